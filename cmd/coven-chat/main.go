// ABOUTME: Terminal chat client built on the conversation aggregation engine
// ABOUTME: Readline-style loop with history inspection, resend and file uploads

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/engine"
	"github.com/2389/coven-chat/internal/logging"
	"github.com/2389/coven-chat/internal/multimodal"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", config.Path(), "Path to config file")
	server := flag.String("server", "", "Backend URL (overrides config)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *server); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath, server string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if server != "" {
		cfg.Backend.BaseURL = server
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	client := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithUserID(cfg.Backend.UserID),
		backend.WithToken(token(cfg)),
		backend.WithLogger(logger),
	)
	proxy := multimodal.New(client, multimodal.Options{
		Extractor:        multimodal.PDFExtractor{},
		MaxDocumentChars: cfg.Upload.MaxDocumentChars,
		MaxQuestionChars: cfg.Upload.MaxQuestionChars,
		Logger:           logger,
	})
	eng := engine.New(client, proxy, engine.Options{
		IngestionMarkers: cfg.History.IngestionMarkers,
		RefreshAfterSend: cfg.History.RefreshAfterSend,
		RetractOnFailure: cfg.Session.RetractOnFailure,
		Logger:           logger,
	})
	defer eng.Close()

	gray := color.New(color.FgHiBlack)
	fmt.Printf("coven-chat %s connected to %s\n", version, cfg.Backend.BaseURL)
	gray.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	go watchRefreshes(ctx, eng)

	if err := eng.Refresh(ctx); err != nil {
		printError(err)
	}

	return repl(ctx, &session{eng: eng})
}

// token returns the bearer token from config or the COVEN_TOKEN env var.
func token(cfg *config.Config) string {
	if cfg.Backend.Token != "" {
		return cfg.Backend.Token
	}
	return os.Getenv("COVEN_TOKEN")
}

// watchRefreshes prints a notice whenever a refresh fails.
func watchRefreshes(ctx context.Context, eng *engine.Engine) {
	yellow := color.New(color.FgYellow)
	for ev := range eng.Subscribe(ctx) {
		if ev.Kind != engine.EventRefreshFailed {
			continue
		}
		if err := ev.State.Errors.Directory; err != nil {
			yellow.Printf("\n[refresh] conversations unavailable: %v\n", err)
		} else if err := ev.State.Errors.History; err != nil {
			yellow.Printf("\n[refresh] history unavailable: %v\n", err)
		}
	}
}

func repl(ctx context.Context, s *session) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for {
		fmt.Print(s.prompt())

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		quit, err := s.handle(ctx, input)
		if err != nil {
			printError(err)
		}
		if quit {
			return nil
		}
		fmt.Println()
	}
}

func printError(err error) {
	color.New(color.FgRed).Printf("[error] %v\n", err)
}
