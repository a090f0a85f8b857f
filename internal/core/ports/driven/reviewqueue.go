package driven

import (
	"context"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// ReviewQueue persists items awaiting a human disposition.
type ReviewQueue interface {
	// Enqueue adds an open item. An ID is assigned if empty.
	Enqueue(ctx context.Context, item *domain.ReviewItem) error

	// Get retrieves an item by ID.
	// Returns domain.ErrNotFound if the item does not exist.
	Get(ctx context.Context, id string) (*domain.ReviewItem, error)

	// List returns items with the given status, oldest first.
	// An empty status lists every item.
	List(ctx context.Context, status domain.ReviewStatus) ([]domain.ReviewItem, error)

	// Resolve closes an item with a disposition.
	Resolve(ctx context.Context, id string, disposition domain.Disposition, note string) error
}
