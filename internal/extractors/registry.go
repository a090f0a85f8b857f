package extractors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry dispatches extraction to the highest-priority extractor for a
// media type, falling back to lower priorities when one fails.
type Registry struct {
	mu     sync.RWMutex
	byType map[string][]driven.TextExtractor
}

// NewRegistry creates a registry holding the given extractors.
func NewRegistry(extractors ...driven.TextExtractor) *Registry {
	r := &Registry{byType: make(map[string][]driven.TextExtractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds an extractor to the registry.
func (r *Registry) Register(extractor driven.TextExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mt := range extractor.SupportedMediaTypes() {
		mt = normalise(mt)
		list := append(r.byType[mt], extractor)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority() > list[j].Priority() })
		r.byType[mt] = list
	}
}

// Supports reports whether any extractor handles the media type.
func (r *Registry) Supports(mediaType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[normalise(mediaType)]) > 0
}

// Extract runs the candidates for raw.MediaType in priority order and
// returns the first successful extraction.
func (r *Registry) Extract(ctx context.Context, raw *domain.RawFile) (*domain.Extraction, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	candidates := append([]driven.TextExtractor(nil), r.byType[normalise(raw.MediaType)]...)
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, raw.MediaType)
	}

	var errs []error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := e.Extract(ctx, raw)
		if err == nil {
			return out, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

func normalise(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
