package google

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gmail charges each API method a number of per-user quota units.
const (
	CostProfile     = 1
	CostHistoryList = 2
	CostMessageList = 5
	CostMessageGet  = 5
)

// QuotaConfig sizes a Quota in units.
type QuotaConfig struct {
	UnitsPerSecond float64
	Burst          int
}

// GmailQuota spends a fifth of the 250 units/s per-user limit so the
// account stays usable from other clients while filer polls.
var GmailQuota = QuotaConfig{UnitsPerSecond: 50, Burst: 100}

// Quota meters API calls by cost and pauses all spending after the
// server answers 429.
type Quota struct {
	bucket *rate.Limiter
	now    func() time.Time

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewQuota creates a quota. Burst is raised to the most expensive call.
func NewQuota(cfg QuotaConfig) *Quota {
	burst := max(cfg.Burst, CostMessageGet, CostMessageList)
	return &Quota{
		bucket: rate.NewLimiter(rate.Limit(cfg.UnitsPerSecond), burst),
		now:    time.Now,
	}
}

// Spend blocks until units are available and no pause is in effect.
func (q *Quota) Spend(ctx context.Context, units int) error {
	if wait := q.pause().Sub(q.now()); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return q.bucket.WaitN(ctx, units)
}

// TrySpend spends units only if that needs no waiting.
func (q *Quota) TrySpend(units int) bool {
	if q.now().Before(q.pause()) {
		return false
	}
	return q.bucket.AllowN(q.now(), units)
}

// Pause stops spending for retryAfter, or a minute when the server gave
// no Retry-After.
func (q *Quota) Pause(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	q.mu.Lock()
	q.pausedUntil = q.now().Add(retryAfter)
	q.mu.Unlock()
}

func (q *Quota) pause() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pausedUntil
}
