package memory

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// Ensure AuditLog implements the interface.
var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog is an in-memory implementation of driven.AuditLog.
// It is not durable and is meant for tests and dry runs.
type AuditLog struct {
	mu     sync.RWMutex
	events []domain.AuditEvent
	closed bool

	// FailAppend makes every append fail, to exercise fatal paths.
	FailAppend error
}

// NewAuditLog creates an empty in-memory audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append records an event and assigns its sequence number.
func (l *AuditLog) Append(_ context.Context, event *domain.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailAppend != nil {
		return l.FailAppend
	}
	if l.closed {
		return domain.ErrAuditUnavailable
	}
	event.Seq = int64(len(l.events) + 1)
	l.events = append(l.events, *event)
	return nil
}

// Events returns events matching the filter in sequence order.
func (l *AuditLog) Events(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.AuditEvent
	for _, ev := range l.events {
		if !matches(ev, filter) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// LastMigration returns the latest migration-related event for source.
func (l *AuditLog) LastMigration(_ context.Context, source string) (*domain.AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.events) - 1; i >= 0; i-- {
		ev := l.events[i]
		if ev.Source != source {
			continue
		}
		switch ev.Kind {
		case domain.EventMigration, domain.EventSourceRemoved, domain.EventRecovered:
			return &ev, nil
		}
	}
	return nil, nil
}

// FinalizedByFingerprint returns the earliest finalized placement of the content.
func (l *AuditLog) FinalizedByFingerprint(_ context.Context, fingerprint string) (*domain.AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, ev := range l.events {
		if ev.Kind == domain.EventMigration &&
			ev.State == domain.StateFinalized &&
			ev.FingerprintBefore == fingerprint &&
			ev.Purpose != domain.PurposeQuarantine {
			return &ev, nil
		}
	}
	return nil, nil
}

// Export writes every event as a JSON line.
func (l *AuditLog) Export(_ context.Context, w io.Writer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	enc := json.NewEncoder(w)
	for _, ev := range l.events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the log closed; later appends fail.
func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func matches(ev domain.AuditEvent, f domain.AuditFilter) bool {
	if f.Source != "" && ev.Source != f.Source {
		return false
	}
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	if f.RunID != "" && ev.RunID != f.RunID {
		return false
	}
	return ev.Seq > f.Since
}
