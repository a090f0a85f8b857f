package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// Ensure ReviewQueue implements the interface.
var _ driven.ReviewQueue = (*ReviewQueue)(nil)

// ReviewQueue is an in-memory implementation of driven.ReviewQueue.
type ReviewQueue struct {
	mu    sync.RWMutex
	items []*domain.ReviewItem
	byID  map[string]*domain.ReviewItem
}

// NewReviewQueue creates an empty review queue.
func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{
		byID: make(map[string]*domain.ReviewItem),
	}
}

// Enqueue adds an open item.
func (q *ReviewQueue) Enqueue(_ context.Context, item *domain.ReviewItem) error {
	if item == nil {
		return domain.ErrInvalidInput
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.Status = domain.ReviewOpen

	stored := *item
	q.items = append(q.items, &stored)
	q.byID[stored.ID] = &stored
	return nil
}

// Get retrieves an item by ID.
func (q *ReviewQueue) Get(_ context.Context, id string) (*domain.ReviewItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	item, ok := q.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *item
	return &out, nil
}

// List returns items with the given status in insertion order.
func (q *ReviewQueue) List(_ context.Context, status domain.ReviewStatus) ([]domain.ReviewItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []domain.ReviewItem
	for _, item := range q.items {
		if status == "" || item.Status == status {
			out = append(out, *item)
		}
	}
	return out, nil
}

// Resolve closes an item with a disposition.
func (q *ReviewQueue) Resolve(_ context.Context, id string, disposition domain.Disposition, note string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	item.Status = domain.ReviewResolved
	item.Disposition = disposition
	item.Note = note
	item.ResolvedAt = time.Now()
	return nil
}
