package domain

import (
	"fmt"
	"time"
)

// Settings holds all pipeline configuration.
type Settings struct {
	Paths          PathSettings
	Fingerprint    FingerprintSettings
	Dedup          DedupSettings
	Classification ClassificationSettings
	Migration      MigrationSettings
	Ingestion      IngestionSettings
	Retry          RetrySettings
	Mailbox        MailboxSettings
	Scheduler      SchedulerConfig
}

// PathSettings locates the taxonomy, quarantine and working data.
type PathSettings struct {
	// TaxonomyRoot is the root every destination is relative to.
	TaxonomyRoot string

	// QuarantineRoot receives redundant duplicate members.
	QuarantineRoot string

	// RulesFile is the YAML rule set.
	RulesFile string

	// DataDir holds the audit database.
	DataDir string
}

// FingerprintSettings bounds text extraction.
type FingerprintSettings struct {
	// SampleBytes is the length of the stored text prefix.
	SampleBytes int

	// MaxExtractBytes skips extraction for larger files.
	MaxExtractBytes int64
}

// DedupSettings tunes near-duplicate detection.
type DedupSettings struct {
	// NearThreshold is the minimum score for a candidate.
	NearThreshold float64

	// Bands is the number of LSH bands the 64-bit signature is split into.
	Bands int

	// SizeTolerance is the relative size difference still counted as agreement.
	SizeTolerance float64

	// DateTolerance is the modification-time difference still counted as agreement.
	DateTolerance time.Duration
}

// ClassificationSettings tunes the rule engine.
type ClassificationSettings struct {
	// ReviewFloor forces review below this confidence when the rule file
	// does not set its own.
	ReviewFloor float64

	// IncludeReview migrates low-confidence results to their proposed
	// destination instead of holding them in place.
	IncludeReview bool
}

// MigrationSettings tunes the executor.
type MigrationSettings struct {
	Mode MigrationMode

	// MaxCollisionAttempts bounds the numeric suffix search.
	MaxCollisionAttempts int
}

// IngestionSettings tunes the coordinator.
type IngestionSettings struct {
	Workers     int
	FileTimeout time.Duration
	QuietPeriod time.Duration
	ScanRoots   []string
	WatchRoots  []string
}

// RetrySettings configures bounded backoff for transient failures.
type RetrySettings struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// MailboxSettings configures the Gmail producer.
type MailboxSettings struct {
	Enabled      bool
	Query        string
	LabelIDs     []string
	SpoolDir     string
	TokenFile    string
	ClientID     string
	ClientSecret string
}

// DefaultSettings returns sensible defaults for the pipeline.
func DefaultSettings() Settings {
	return Settings{
		Paths: PathSettings{
			TaxonomyRoot:   "practice",
			QuarantineRoot: "_duplicates",
			RulesFile:      "taxonomy/classification_rules.yaml",
		},
		Fingerprint: FingerprintSettings{
			SampleBytes:     64 * 1024,
			MaxExtractBytes: 32 * 1024 * 1024,
		},
		Dedup: DedupSettings{
			NearThreshold: 0.85,
			Bands:         8,
			SizeTolerance: 0.10,
			DateTolerance: 7 * 24 * time.Hour,
		},
		Classification: ClassificationSettings{
			ReviewFloor: DefaultReviewFloor,
		},
		Migration: MigrationSettings{
			Mode:                 ModeCopy,
			MaxCollisionAttempts: 999,
		},
		Ingestion: IngestionSettings{
			Workers:     4,
			FileTimeout: 2 * time.Minute,
			QuietPeriod: 5 * time.Second,
		},
		Retry: RetrySettings{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
		},
		Mailbox: MailboxSettings{
			Query:    "has:attachment OR in:inbox",
			LabelIDs: []string{"INBOX"},
		},
		Scheduler: DefaultSchedulerConfig(),
	}
}

// Validate checks the settings for values the pipeline cannot run with.
func (s *Settings) Validate() error {
	if s.Paths.TaxonomyRoot == "" {
		return fmt.Errorf("%w: taxonomy root is required", ErrInvalidInput)
	}
	if s.Paths.QuarantineRoot == "" {
		return fmt.Errorf("%w: quarantine root is required", ErrInvalidInput)
	}
	if s.Dedup.NearThreshold <= 0 || s.Dedup.NearThreshold > 1 {
		return fmt.Errorf("%w: near threshold %.2f outside (0,1]", ErrInvalidInput, s.Dedup.NearThreshold)
	}
	if s.Dedup.Bands <= 0 || 64%s.Dedup.Bands != 0 {
		return fmt.Errorf("%w: bands must divide 64, got %d", ErrInvalidInput, s.Dedup.Bands)
	}
	if s.Ingestion.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidInput)
	}
	if s.Migration.MaxCollisionAttempts <= 0 {
		return fmt.Errorf("%w: max collision attempts must be positive", ErrInvalidInput)
	}
	if _, err := ParseMigrationMode(string(s.Migration.Mode)); err != nil {
		return err
	}
	return nil
}
