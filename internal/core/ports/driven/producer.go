package driven

import (
	"context"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// Producer is an independent source of file arrivals: an inventory, a
// directory crawl, a directory watch, or a mailbox poll.
type Producer interface {
	// Name identifies the producer in logs.
	Name() string

	// Kind is stamped on every arrival.
	Kind() domain.ProducerKind

	// Produce emits arrivals until the source is exhausted or ctx is
	// cancelled. Both channels are closed when production ends.
	Produce(ctx context.Context) (<-chan domain.Arrival, <-chan error)
}
