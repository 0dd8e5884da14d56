// ABOUTME: View composer that decides what the main pane renders
// ABOUTME: Live mode renders session + upload messages; a selection replaces them with one turn

package view

import (
	"time"

	"github.com/2389/coven-chat/internal/history"
)

// Source tells the renderer where an item came from.
type Source string

const (
	SourceLive   Source = "live"
	SourceUpload Source = "upload"
	SourceTurn   Source = "turn"
)

// Renderable is one bubble in the main pane.
type Renderable struct {
	ID        string
	Role      history.Role
	Text      string
	Source    Source
	CreatedAt time.Time
	Err       string
}

// Compose returns the main pane contents.
//
// With no selection, the live messages followed by the upload messages are
// rendered in append order and turns are ignored (they only feed the side
// list). With a selection, exactly the selected turn's prompt and response
// are rendered and the live stream is hidden. A selection whose turn is no
// longer in turns renders the live view.
func Compose(live, uploads Buffer, turns []history.Turn, sel Selection) []Renderable {
	if sel.Inspecting() {
		if turn, ok := history.FindTurn(turns, sel.TurnID); ok {
			return composeTurn(turn)
		}
	}

	out := make([]Renderable, 0, live.Len()+uploads.Len())
	for _, m := range live.messages {
		out = append(out, fromLive(m, SourceLive))
	}
	for _, m := range uploads.messages {
		out = append(out, fromLive(m, SourceUpload))
	}
	return out
}

// Compose renders the state's main pane.
func (s State) Compose() []Renderable {
	return Compose(s.Live, s.Uploads, s.Turns, s.Selection)
}

func fromLive(m LiveMessage, src Source) Renderable {
	return Renderable{
		ID:        m.ID,
		Role:      m.Role,
		Text:      m.Text,
		Source:    src,
		CreatedAt: m.CreatedAt,
		Err:       m.Err,
	}
}

func composeTurn(t history.Turn) []Renderable {
	prompt := t.Prompt
	if prompt == "" {
		prompt = "(no content)"
	}
	role := history.RoleUser
	if t.Kind == history.TurnIngestion {
		role = history.RoleSystem
	}

	out := []Renderable{{
		ID:        t.ID.Key() + "/prompt",
		Role:      role,
		Text:      prompt,
		Source:    SourceTurn,
		CreatedAt: t.CreatedAt,
	}}
	if t.HasResponse() {
		out = append(out, Renderable{
			ID:        t.ID.Key() + "/response",
			Role:      history.RoleAssistant,
			Text:      t.Response,
			Source:    SourceTurn,
			CreatedAt: t.CreatedAt,
		})
	}
	return out
}
