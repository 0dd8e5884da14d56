// ABOUTME: Short topic labels for turns in the history side list
// ABOUTME: Renders the first markdown line to plain text with goldmark, then keeps at most six words

package view

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	topicWords    = 6
	fallbackTopic = "Conversation"
)

var markdown = goldmark.New()

// Topic returns a short label for a prompt: its first line as plain text,
// cut to six words with an ellipsis.
func Topic(prompt string) string {
	if prompt == "" {
		return fallbackTopic
	}
	firstLine, _, _ := strings.Cut(prompt, "\n")
	plain := PlainText(firstLine)
	if plain == "" {
		plain = strings.TrimSpace(firstLine)
	}
	if plain == "" {
		return fallbackTopic
	}

	words := strings.Fields(plain)
	if len(words) <= topicWords {
		return plain
	}
	return strings.Join(words[:topicWords], " ") + "…"
}

// PlainText strips markdown formatting from src, keeping only its text.
func PlainText(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.AutoLink:
			buf.Write(node.Label(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}
