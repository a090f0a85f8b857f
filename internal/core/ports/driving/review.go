package driving

import (
	"context"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// ReviewService is the human review channel.
type ReviewService interface {
	// List returns review items with the given status.
	List(ctx context.Context, status domain.ReviewStatus) ([]domain.ReviewItem, error)

	// Get retrieves a single review item.
	Get(ctx context.Context, id string) (*domain.ReviewItem, error)

	// Apply executes a disposition and closes the item.
	Apply(ctx context.Context, instruction domain.ReviewInstruction) error
}
