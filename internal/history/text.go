// ABOUTME: Text extraction from history messages
// ABOUTME: Direct content wins; otherwise text parts are concatenated in order

package history

import "strings"

// ExtractText returns the plain text of a message. Direct content is used
// when present; otherwise every text part is joined with a newline, in
// order, and non-text parts are dropped.
func ExtractText(m Message) string {
	if m.Content != "" {
		return m.Content
	}
	if len(m.Parts) == 0 {
		return ""
	}

	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Type != PartTypeText || p.Text == "" {
			continue
		}
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n")
}
