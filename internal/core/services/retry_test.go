package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/core/domain"
)

func fastRetry(attempts int) domain.RetrySettings {
	return domain.RetrySettings{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestRetryTransient(t *testing.T) {
	transient := errors.Join(domain.ErrTransientIO, errors.New("resource busy"))

	tests := []struct {
		name      string
		failures  []error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{"succeeds first time", nil, 3, 1, nil},
		{"recovers from transient", []error{transient, transient}, 3, 3, nil},
		{"exhausts attempts", []error{transient, transient, transient}, 3, 3, domain.ErrTransientIO},
		{"permanent error is not retried", []error{domain.ErrUnreadableFile}, 3, 1, domain.ErrUnreadableFile},
		{"audit failure is not retried", []error{errors.Join(domain.ErrTransientIO, domain.ErrAuditUnavailable)}, 3, 1, domain.ErrAuditUnavailable},
		{"zero attempts runs once", []error{transient}, 0, 1, domain.ErrTransientIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryTransient(context.Background(), fastRetry(tt.attempts), 0, "op", func(context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetryTransient_TimeoutIsTransient(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), fastRetry(2), 5*time.Millisecond, "slow", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryTransient_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryTransient(ctx, fastRetry(5), 0, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.Join(domain.ErrTransientIO, errors.New("busy"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
