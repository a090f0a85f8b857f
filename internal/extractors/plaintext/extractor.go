// Package plaintext extracts text from plain text files. It is the
// fallback for text-bearing types without a dedicated extractor.
package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles plain text files.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMediaTypes returns the media types this extractor handles.
func (e *Extractor) SupportedMediaTypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/markdown",
		"text/x-markdown",
		"text/html",
		"text/rtf",
		"application/rtf",
	}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 5 // Fallback extractor
}

// Extract returns the file's bytes as text. Invalid UTF-8 is dropped.
func (e *Extractor) Extract(_ context.Context, raw *domain.RawFile) (*domain.Extraction, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text := strings.ToValidUTF8(string(raw.Content), "")
	text = strings.TrimPrefix(text, "\ufeff")

	return &domain.Extraction{
		Text:     strings.TrimSpace(text),
		Metadata: map[string]string{},
	}, nil
}
