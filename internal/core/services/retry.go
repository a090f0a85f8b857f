package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/logger"
)

// retryTransient runs fn with a per-attempt timeout and retries transient
// failures with exponential backoff. A timed-out attempt counts as
// transient. Any other error is returned immediately.
func retryTransient(
	ctx context.Context,
	cfg domain.RetrySettings,
	timeout time.Duration,
	operation string,
	fn func(context.Context) error,
) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 1 {
				logger.Debug("%s succeeded after %d attempts", operation, attempt)
			}
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = errors.Join(domain.ErrTransientIO, err)
		}
		lastErr = err

		if !errors.Is(err, domain.ErrTransientIO) || errors.Is(err, domain.ErrAuditUnavailable) {
			return err
		}
		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}

		logger.Debug("%s failed (attempt %d/%d), retrying in %v: %v", operation, attempt, attempts, backoff, err)

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * cfg.Multiplier)
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: context cancelled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
