package driven

import (
	"context"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// TextExtractor pulls text and metadata out of a file's bytes.
// Each extractor handles specific media types (e.g., PDF, Markdown).
type TextExtractor interface {
	// SupportedMediaTypes returns the media types this extractor handles.
	SupportedMediaTypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific extractors should return 50-89.
	// Fallback extractors should return 1-9.
	Priority() int

	// Extract returns the text and metadata of raw.
	Extract(ctx context.Context, raw *domain.RawFile) (*domain.Extraction, error)
}

// ExtractorRegistry selects the best extractor for a media type.
type ExtractorRegistry interface {
	// Extract runs the highest-priority extractor for raw.MediaType.
	// Returns domain.ErrUnsupportedType if none applies.
	Extract(ctx context.Context, raw *domain.RawFile) (*domain.Extraction, error)

	// Register adds an extractor to the registry.
	Register(extractor TextExtractor)

	// Supports reports whether any extractor handles the media type.
	Supports(mediaType string) bool
}
