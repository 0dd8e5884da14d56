// ABOUTME: Multimodal turn proxy: turns an uploaded file into document text, ingests it and asks the backend
// ABOUTME: PDFs go through an Extractor; images and other files are described by their metadata

package multimodal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/2389/coven-chat/internal/backend"
)

const (
	// DefaultMaxDocumentChars bounds the text taken from one PDF.
	DefaultMaxDocumentChars = 20000
	// DefaultMaxQuestionChars bounds the document excerpt attached to the question.
	DefaultMaxQuestionChars = 6000

	truncationSuffix = "\n\n[... truncated ...]"
	noAnswer         = "(no answer)"

	questionPreamble  = "\n\nUse ONLY the following uploaded document content as your source of truth:\n\n"
	summarizePreamble = "I have uploaded a document. Based ONLY on the following content, summarize or extract the most important information:\n\n"
	fallbackQuestion  = "I have uploaded a document. Please summarize or extract important info from it."
)

// ErrNothingToSend is returned when neither a question nor a file is given.
var ErrNothingToSend = errors.New("provide text, image, or file")

// Backend is the part of the assistant backend the proxy needs.
type Backend interface {
	SendTurn(ctx context.Context, text, conversationID string) (backend.Reply, error)
	Ingest(ctx context.Context, text, conversationID string) error
}

// Extractor turns a PDF into plain text.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// Options configures a Proxy.
type Options struct {
	// Extractor reads PDFs. When nil, PDFs are described by metadata like
	// any other file.
	Extractor        Extractor
	MaxDocumentChars int
	MaxQuestionChars int
	Logger           *slog.Logger
}

// Proxy answers questions about uploaded files.
type Proxy struct {
	backend          Backend
	extractor        Extractor
	maxDocumentChars int
	maxQuestionChars int
	logger           *slog.Logger
}

// New creates a proxy in front of b.
func New(b Backend, opts Options) *Proxy {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Proxy{
		backend:          b,
		extractor:        opts.Extractor,
		maxDocumentChars: opts.MaxDocumentChars,
		maxQuestionChars: opts.MaxQuestionChars,
		logger:           logger.With("component", "multimodal"),
	}
	if p.maxDocumentChars <= 0 {
		p.maxDocumentChars = DefaultMaxDocumentChars
	}
	if p.maxQuestionChars <= 0 {
		p.maxQuestionChars = DefaultMaxQuestionChars
	}
	return p
}

// SendMultiModalTurn ingests the file's text (or a description of it) into
// the backend's documents and then asks question with that text attached.
func (p *Proxy) SendMultiModalTurn(ctx context.Context, question string, file *backend.File, conversationID string) (backend.MultiModalReply, error) {
	if strings.TrimSpace(question) == "" {
		question = "" // whitespace-only counts as no question
	}
	if question == "" && file.Size() == 0 {
		return backend.MultiModalReply{}, ErrNothingToSend
	}

	var docText string
	if file.Size() > 0 {
		text, err := p.documentText(ctx, question, file)
		if err != nil {
			return backend.MultiModalReply{}, err
		}
		docText = text
		p.ingest(ctx, docText, conversationID)
	}

	reply, err := p.backend.SendTurn(ctx, p.finalQuestion(question, docText), conversationID)
	if err != nil {
		return backend.MultiModalReply{}, fmt.Errorf("asking backend: %w", err)
	}

	answer := reply.Text
	if answer == "" {
		answer = noAnswer
	}
	convID := reply.ConversationID
	if convID == "" {
		convID = conversationID
	}
	return backend.MultiModalReply{Answer: answer, ConversationID: convID}, nil
}

// documentText returns the text that stands for the file.
func (p *Proxy) documentText(ctx context.Context, question string, file *backend.File) (string, error) {
	kb := int(math.Round(float64(file.Size()) / 1024))

	switch {
	case file.MIMEType == "application/pdf" && p.extractor != nil:
		text, err := p.extractor.ExtractText(ctx, file.Data)
		if err != nil {
			return "", fmt.Errorf("extracting %s: %w", file.Name, err)
		}
		return Truncate(text, p.maxDocumentChars), nil

	case strings.HasPrefix(file.MIMEType, "image/"):
		meta := fmt.Sprintf("Image uploaded: \"%s\" (%s, ~%d KB).", file.Name, file.MIMEType, kb)
		return meta + questionContext(question), nil

	default:
		mime := file.MIMEType
		if mime == "" {
			mime = "unknown"
		}
		meta := fmt.Sprintf("File uploaded: \"%s\" (type: %s, ~%d KB).", file.Name, mime, kb)
		return meta + questionContext(question), nil
	}
}

func questionContext(question string) string {
	if question == "" {
		return ""
	}
	return "\nUser question/context:\n" + question
}

// ingest stores document text in the backend. Failures are logged and the
// question is still asked.
func (p *Proxy) ingest(ctx context.Context, text, conversationID string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if err := p.backend.Ingest(ctx, text, conversationID); err != nil {
		p.logger.Error("document ingest failed",
			"conversation_id", conversationID,
			"error", err)
	}
}

func (p *Proxy) finalQuestion(question, docText string) string {
	doc := strings.TrimSpace(docText)
	if doc == "" {
		if question != "" {
			return question
		}
		return fallbackQuestion
	}

	excerpt := prefix(doc, p.maxQuestionChars)
	if question != "" {
		return question + questionPreamble + excerpt
	}
	return summarizePreamble + excerpt
}

// Truncate cuts text to max characters and marks the cut.
func Truncate(text string, max int) string {
	if len([]rune(text)) <= max {
		return text
	}
	return prefix(text, max) + truncationSuffix
}

// prefix returns the first n characters of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
