// ABOUTME: Slash commands of the terminal chat client
// ABOUTME: Maps each command onto an engine operation and renders the result

package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/engine"
	"github.com/2389/coven-chat/internal/history"
	"github.com/2389/coven-chat/internal/view"
)

const maxUploadBytes = 25 << 20

type session struct {
	eng *engine.Engine
}

func (s *session) prompt() string {
	snap := s.eng.Snapshot()
	switch {
	case snap.Selection.Inspecting():
		return "[inspecting]> "
	case snap.ActiveConversationID != "":
		return fmt.Sprintf("[%s]> ", snap.ActiveConversationID)
	default:
		return "[new]> "
	}
}

// handle runs one line of input. It reports true when the user asked to quit.
func (s *session) handle(ctx context.Context, input string) (bool, error) {
	if !strings.HasPrefix(input, "/") {
		return false, s.send(ctx, input)
	}

	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help":
		printHelp()
	case "/refresh":
		if err := s.eng.Refresh(ctx); err != nil {
			return false, err
		}
		snap := s.eng.Snapshot()
		fmt.Printf("%d turns across %d conversations\n", len(snap.Turns), len(snap.Conversations))
	case "/history":
		s.printTurns()
	case "/select":
		return false, s.selectTurn(args)
	case "/back":
		if err := s.eng.Back(); err != nil {
			return false, err
		}
		s.printPane()
	case "/convs":
		s.printConversations()
	case "/use":
		if err := s.eng.UseConversation(args); err != nil {
			return false, err
		}
		if args == "" {
			fmt.Println("Next message starts a new conversation")
		} else {
			fmt.Printf("Now using %s\n", args)
		}
	case "/upload":
		return false, s.upload(ctx, args)
	case "/input":
		fmt.Printf("Input: %q\n", s.eng.Snapshot().Input)
	case "/send":
		return false, s.send(ctx, s.eng.Snapshot().Input)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  <text>                   Send a message to the active conversation")
	fmt.Println("  /refresh                 Reload conversations and history")
	fmt.Println("  /history                 List past turns, newest first")
	fmt.Println("  /select <n>              Inspect turn n from /history")
	fmt.Println("  /back                    Leave inspection, show the live session")
	fmt.Println("  /input                   Show the input (filled by /select)")
	fmt.Println("  /send                    Send the input, e.g. to resend a selected prompt")
	fmt.Println("  /convs                   List conversations")
	fmt.Println("  /use [id]                Send to conversation id, or a new one")
	fmt.Println("  /upload <path> [text]    Ask about a file")
	fmt.Println("  /help                    Show this help")
	fmt.Println("  /quit                    Exit")
}

func (s *session) send(ctx context.Context, text string) error {
	if err := s.eng.Send(ctx, text); err != nil {
		if errors.Is(err, engine.ErrEmptyInput) {
			return errors.New("nothing to send")
		}
		return err
	}
	s.printLastReply(view.SourceLive)
	return nil
}

func (s *session) upload(ctx context.Context, args string) error {
	path, question, _ := strings.Cut(args, " ")
	if path == "" {
		return errors.New("usage: /upload <path> [question]")
	}

	file, err := readFile(path)
	if err != nil {
		return err
	}

	if err := s.eng.Upload(ctx, engine.UploadRequest{Question: question, File: file}); err != nil {
		return err
	}
	s.printLastReply(view.SourceUpload)
	return nil
}

func readFile(path string) (*backend.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxUploadBytes {
		return nil, fmt.Errorf("%s is larger than %d MB", path, maxUploadBytes>>20)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &backend.File{Name: filepath.Base(path), MIMEType: mimeType, Data: data}, nil
}

func (s *session) selectTurn(args string) error {
	n, err := strconv.Atoi(args)
	if err != nil {
		return errors.New("usage: /select <n>")
	}
	turns := s.eng.Turns()
	if n < 1 || n > len(turns) {
		return fmt.Errorf("no turn %d (have %d)", n, len(turns))
	}

	if err := s.eng.Select(turns[n-1].ID); err != nil {
		return err
	}
	s.printPane()
	color.New(color.FgHiBlack).Println("/send resends this prompt, /back returns to the live session")
	return nil
}

func (s *session) printTurns() {
	turns := s.eng.Turns()
	if len(turns) == 0 {
		fmt.Println("No history")
		return
	}

	gray := color.New(color.FgHiBlack)
	for i, t := range turns {
		label := view.Topic(t.Prompt)
		if t.Kind == history.TurnIngestion {
			label = "[document] " + label
		}
		fmt.Printf("%3d. %s", i+1, label)
		gray.Printf("  %s", t.ConversationTitle)
		if !t.HasResponse() {
			gray.Print(" (no reply)")
		}
		fmt.Println()
	}
}

func (s *session) printConversations() {
	snap := s.eng.Snapshot()
	if len(snap.Conversations) == 0 {
		fmt.Println("No conversations")
		return
	}
	for _, c := range snap.Conversations {
		marker := " "
		if c.ID == snap.ActiveConversationID {
			marker = "*"
		}
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s %s  %s\n", marker, c.ID, title)
	}
}

// printPane renders the main pane as the engine composes it.
func (s *session) printPane() {
	items := s.eng.Compose()
	if len(items) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, r := range items {
		printRenderable(r)
	}
}

// printLastReply renders the newest assistant message from src.
func (s *session) printLastReply(src view.Source) {
	items := s.eng.Compose()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Source == src && items[i].Role == history.RoleAssistant {
			printRenderable(items[i])
			return
		}
	}
}

func printRenderable(r view.Renderable) {
	switch r.Role {
	case history.RoleUser:
		color.New(color.FgCyan, color.Bold).Println("you:")
		fmt.Println(r.Text)
	case history.RoleSystem:
		color.New(color.FgMagenta).Println("document:")
		fmt.Println(r.Text)
	default:
		color.New(color.FgGreen, color.Bold).Println("assistant:")
		fmt.Print(render(r.Text))
	}
	if r.Err != "" {
		color.New(color.FgRed).Printf("  ! %s\n", r.Err)
	}
}

func render(text string) string {
	styled, err := glamour.Render(text, "dark")
	if err != nil {
		return text + "\n"
	}
	return styled
}
