package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReviewKind identifies why an item entered the review queue.
type ReviewKind string

const (
	ReviewNearDuplicate  ReviewKind = "near_duplicate"
	ReviewClassification ReviewKind = "classification"
	ReviewEscalation     ReviewKind = "escalation"
)

// ReviewStatus is the lifecycle state of a review item.
type ReviewStatus string

const (
	ReviewOpen     ReviewStatus = "open"
	ReviewResolved ReviewStatus = "resolved"
)

// Disposition is a human decision on a review item.
type Disposition string

const (
	DispositionKeep   Disposition = "KEEP"
	DispositionRemove Disposition = "REMOVE"
	DispositionMerge  Disposition = "MERGE"
)

// ParseDisposition converts a case-insensitive string to a Disposition.
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(strings.ToUpper(strings.TrimSpace(s))); d {
	case DispositionKeep, DispositionRemove, DispositionMerge:
		return d, nil
	default:
		return "", fmt.Errorf("%w: disposition %q", ErrInvalidInput, s)
	}
}

// ReviewItem is one entry of the human review queue.
type ReviewItem struct {
	ID     string
	Kind   ReviewKind
	Status ReviewStatus

	// Subject is the original source path the item is about.
	Subject string

	// Location is where the subject currently lives, if it was moved.
	Location string

	// Counterpart is the other member of a near-duplicate pair.
	Counterpart string

	// Proposed is the destination the pipeline would have used.
	Proposed string

	Score       float64
	Reason      string
	Disposition Disposition
	Note        string

	CreatedAt  time.Time
	ResolvedAt time.Time
}

// CurrentPath returns Location when set, otherwise Subject.
func (i *ReviewItem) CurrentPath() string {
	if i.Location != "" {
		return i.Location
	}
	return i.Subject
}

// ReviewInstruction feeds a human disposition back into the pipeline.
type ReviewInstruction struct {
	ItemID      string
	Disposition Disposition

	// Keep names the file to retain for MERGE; defaults to the pair member
	// the canonical tie-break prefers.
	Keep string

	// Destination overrides the proposed destination for KEEP.
	Destination string

	Note string
}
