package domain

import "time"

// ProducerKind identifies where an arrival came from.
type ProducerKind string

const (
	ProducerScan    ProducerKind = "scan"
	ProducerWatch   ProducerKind = "watch"
	ProducerMailbox ProducerKind = "mailbox"
)

// Arrival is a file observed by a producer.
type Arrival struct {
	Kind       ProducerKind
	Descriptor FileDescriptor
	ObservedAt time.Time
}

// RunSummary counts per-file outcomes for one run.
type RunSummary struct {
	RunID       string
	Admitted    int
	Migrated    int
	Quarantined int
	Held        int
	Skipped     int
	Escalated   int
	NearFlagged int
	Planned     int
}
