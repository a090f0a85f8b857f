package extractors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/core/domain"
)

type stubExtractor struct {
	types    []string
	priority int
	text     string
	err      error
	calls    int
}

func (s *stubExtractor) SupportedMediaTypes() []string { return s.types }
func (s *stubExtractor) Priority() int                 { return s.priority }

func (s *stubExtractor) Extract(_ context.Context, _ *domain.RawFile) (*domain.Extraction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Extraction{Text: s.text}, nil
}

func TestRegistry_PicksHighestPriority(t *testing.T) {
	low := &stubExtractor{types: []string{"text/plain"}, priority: 5, text: "low"}
	high := &stubExtractor{types: []string{"text/plain"}, priority: 50, text: "high"}
	r := NewRegistry(low, high)

	out, err := r.Extract(context.Background(), &domain.RawFile{MediaType: "Text/Plain; charset=utf-8"})
	require.NoError(t, err)
	assert.Equal(t, "high", out.Text)
	assert.Equal(t, 0, low.calls)
}

func TestRegistry_FallsBackOnFailure(t *testing.T) {
	failing := &stubExtractor{types: []string{"application/pdf"}, priority: 50, err: errors.New("corrupt")}
	fallback := &stubExtractor{types: []string{"application/pdf"}, priority: 5, text: "fallback"}
	r := NewRegistry(failing, fallback)

	out, err := r.Extract(context.Background(), &domain.RawFile{MediaType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out.Text)
	assert.Equal(t, 1, failing.calls)
}

func TestRegistry_AllFail(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	r := NewRegistry(
		&stubExtractor{types: []string{"text/html"}, priority: 50, err: errA},
		&stubExtractor{types: []string{"text/html"}, priority: 5, err: errB},
	)

	_, err := r.Extract(context.Background(), &domain.RawFile{MediaType: "text/html"})
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Supports("image/png"))

	_, err := r.Extract(context.Background(), &domain.RawFile{MediaType: "image/png"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = r.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistry_CancelledContext(t *testing.T) {
	stub := &stubExtractor{types: []string{"text/plain"}, priority: 5, text: "x"}
	r := NewRegistry(stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Extract(ctx, &domain.RawFile{MediaType: "text/plain"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stub.calls)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubExtractor{types: []string{"message/rfc822"}, priority: 50})
	assert.True(t, r.Supports("message/rfc822"))
	assert.False(t, r.Supports("text/plain"))
}
