package driving

import "context"

// Scheduler feeds recurring corpus scans and mailbox polls into a
// running pipeline.
type Scheduler interface {
	// Start blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error
	// Stop waits for in-flight tasks to finish.
	Stop() error
}
