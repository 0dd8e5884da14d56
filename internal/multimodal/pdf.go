// ABOUTME: PDF text extraction for uploaded documents
// ABOUTME: Wraps github.com/ledongthuc/pdf and turns its panics on malformed input into errors

package multimodal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads the plain text layer of a PDF.
type PDFExtractor struct{}

// ExtractText returns the text of every page in order.
func (PDFExtractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return sb.String(), nil
}
