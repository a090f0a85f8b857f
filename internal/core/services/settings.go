package services

import (
	"path/filepath"
	"time"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyTaxonomyRoot   = "paths.taxonomy_root"
	keyQuarantineRoot = "paths.quarantine_root"
	keyRulesFile      = "paths.rules_file"
	keyDataDir        = "paths.data_dir"

	keySampleBytes     = "fingerprint.sample_bytes"
	keyMaxExtractBytes = "fingerprint.max_extract_bytes"

	keyNearThreshold = "dedup.near_threshold"
	keyBands         = "dedup.bands"
	keySizeTolerance = "dedup.size_tolerance"
	keyDateTolerance = "dedup.date_tolerance"

	keyReviewFloor   = "classification.review_floor"
	keyIncludeReview = "classification.include_review"

	keyMigrationMode = "migration.mode"
	keyMaxCollisions = "migration.max_collision_attempts"

	keyWorkers     = "ingestion.workers"
	keyFileTimeout = "ingestion.file_timeout"
	keyQuietPeriod = "ingestion.quiet_period"
	keyScanRoots   = "ingestion.scan_roots"
	keyWatchRoots  = "ingestion.watch_roots"

	keyRetryAttempts   = "retry.max_attempts"
	keyRetryInitial    = "retry.initial_backoff"
	keyRetryMax        = "retry.max_backoff"
	keyRetryMultiplier = "retry.multiplier"

	keyMailboxEnabled      = "mailbox.enabled"
	keyMailboxQuery        = "mailbox.query"
	keyMailboxLabels       = "mailbox.label_ids"
	keyMailboxSpoolDir     = "mailbox.spool_dir"
	keyMailboxTokenFile    = "mailbox.token_file"
	keyMailboxClientID     = "mailbox.client_id"
	keyMailboxClientSecret = "mailbox.client_secret"

	keySchedulerEnabled = "scheduler.enabled"
)

// SettingsService resolves pipeline settings from the config store.
type SettingsService struct {
	configStore driven.ConfigStore
	dataDir     string
}

// NewSettingsService creates a new settings service. dataDir is used for
// the audit database and mailbox spool when the config does not set them.
func NewSettingsService(configStore driven.ConfigStore, dataDir string) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		dataDir:     dataDir,
	}
}

// Get returns the current settings with defaults applied.
func (s *SettingsService) Get() (*domain.Settings, error) {
	d := s.GetDefaults()

	mode := d.Migration.Mode
	if v := s.configStore.GetString(keyMigrationMode); v != "" {
		m, err := domain.ParseMigrationMode(v)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	settings := &domain.Settings{
		Paths: domain.PathSettings{
			TaxonomyRoot:   s.getString(keyTaxonomyRoot, d.Paths.TaxonomyRoot),
			QuarantineRoot: s.getString(keyQuarantineRoot, d.Paths.QuarantineRoot),
			RulesFile:      s.getString(keyRulesFile, d.Paths.RulesFile),
			DataDir:        s.getString(keyDataDir, d.Paths.DataDir),
		},
		Fingerprint: domain.FingerprintSettings{
			SampleBytes:     s.getInt(keySampleBytes, d.Fingerprint.SampleBytes),
			MaxExtractBytes: int64(s.getInt(keyMaxExtractBytes, int(d.Fingerprint.MaxExtractBytes))),
		},
		Dedup: domain.DedupSettings{
			NearThreshold: s.getFloat(keyNearThreshold, d.Dedup.NearThreshold),
			Bands:         s.getInt(keyBands, d.Dedup.Bands),
			SizeTolerance: s.getFloat(keySizeTolerance, d.Dedup.SizeTolerance),
			DateTolerance: s.getDuration(keyDateTolerance, d.Dedup.DateTolerance),
		},
		Classification: domain.ClassificationSettings{
			ReviewFloor:   s.getFloat(keyReviewFloor, d.Classification.ReviewFloor),
			IncludeReview: s.getBool(keyIncludeReview, d.Classification.IncludeReview),
		},
		Migration: domain.MigrationSettings{
			Mode:                 mode,
			MaxCollisionAttempts: s.getInt(keyMaxCollisions, d.Migration.MaxCollisionAttempts),
		},
		Ingestion: domain.IngestionSettings{
			Workers:     s.getInt(keyWorkers, d.Ingestion.Workers),
			FileTimeout: s.getDuration(keyFileTimeout, d.Ingestion.FileTimeout),
			QuietPeriod: s.getDuration(keyQuietPeriod, d.Ingestion.QuietPeriod),
			ScanRoots:   s.getStringSlice(keyScanRoots, d.Ingestion.ScanRoots),
			WatchRoots:  s.getStringSlice(keyWatchRoots, d.Ingestion.WatchRoots),
		},
		Retry: domain.RetrySettings{
			MaxAttempts:    s.getInt(keyRetryAttempts, d.Retry.MaxAttempts),
			InitialBackoff: s.getDuration(keyRetryInitial, d.Retry.InitialBackoff),
			MaxBackoff:     s.getDuration(keyRetryMax, d.Retry.MaxBackoff),
			Multiplier:     s.getFloat(keyRetryMultiplier, d.Retry.Multiplier),
		},
		Mailbox: domain.MailboxSettings{
			Enabled:      s.getBool(keyMailboxEnabled, d.Mailbox.Enabled),
			Query:        s.getString(keyMailboxQuery, d.Mailbox.Query),
			LabelIDs:     s.getStringSlice(keyMailboxLabels, d.Mailbox.LabelIDs),
			SpoolDir:     s.getString(keyMailboxSpoolDir, d.Mailbox.SpoolDir),
			TokenFile:    s.getString(keyMailboxTokenFile, d.Mailbox.TokenFile),
			ClientID:     s.configStore.GetString(keyMailboxClientID),
			ClientSecret: s.configStore.GetString(keyMailboxClientSecret),
		},
		Scheduler: s.GetSchedulerConfig(),
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// GetDefaults returns default settings rooted at the data directory.
func (s *SettingsService) GetDefaults() domain.Settings {
	d := domain.DefaultSettings()
	if s.dataDir != "" {
		d.Paths.DataDir = s.dataDir
		d.Mailbox.SpoolDir = filepath.Join(s.dataDir, "mailbox")
		d.Mailbox.TokenFile = filepath.Join(s.dataDir, "gmail_token.json")
	}
	return d
}

// GetSchedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()

	if _, exists := s.configStore.Get(keySchedulerEnabled); exists {
		defaults.Enabled = s.configStore.GetBool(keySchedulerEnabled)
	}

	// Map from task ID to config key (underscore version for TOML)
	taskKeys := map[string]string{
		domain.TaskIDCorpusScan:  "corpus_scan",
		domain.TaskIDMailboxPoll: "mailbox_poll",
	}

	for taskID, configKey := range taskKeys {
		prefix := "scheduler." + configKey + "."
		taskCfg := defaults.TaskConfigs[taskID]

		if _, exists := s.configStore.Get(prefix + "enabled"); exists {
			taskCfg.Enabled = s.configStore.GetBool(prefix + "enabled")
		}
		if d := s.configStore.GetDuration(prefix + "interval"); d > 0 {
			taskCfg.Interval = d
		}

		defaults.TaskConfigs[taskID] = taskCfg
	}

	return defaults
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if d := s.configStore.GetDuration(key); d > 0 {
		return d
	}
	return defaultVal
}

func (s *SettingsService) getStringSlice(key string, defaultVal []string) []string {
	if val := s.configStore.GetStringSlice(key); len(val) > 0 {
		return val
	}
	return defaultVal
}
