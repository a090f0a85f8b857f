package driving

import (
	"context"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// IngestionService merges arrivals from every producer into one ordered,
// per-path serialised pipeline.
type IngestionService interface {
	// Start launches the dispatcher. It returns once the dispatcher is running.
	Start(ctx context.Context) error

	// Submit admits an arrival. Watch arrivals are debounced first.
	Submit(arrival domain.Arrival)

	// Consume forwards a producer's arrivals into Submit until it finishes.
	Consume(ctx context.Context, producer driven.Producer) error

	// RunBatch fingerprints every arrival, resolves exact duplicates across
	// the whole batch, then classifies and migrates the survivors.
	RunBatch(ctx context.Context, arrivals []domain.Arrival) error

	// Drain blocks until no arrival is queued or in flight.
	Drain(ctx context.Context) error

	// Stop stops admission and waits for in-flight files to finish their
	// current atomic step. It returns the fatal error that stopped the
	// pipeline, if any.
	Stop() error

	// Summary returns the per-outcome counts so far.
	Summary() domain.RunSummary
}
