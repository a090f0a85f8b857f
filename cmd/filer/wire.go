package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/custodia-labs/filer/internal/adapters/driven/config/file"
	"github.com/custodia-labs/filer/internal/adapters/driven/filesystem/local"
	"github.com/custodia-labs/filer/internal/adapters/driven/rules"
	"github.com/custodia-labs/filer/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/filer/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/filer/internal/adapters/driving/cli"
	"github.com/custodia-labs/filer/internal/connectors/filesystem"
	"github.com/custodia-labs/filer/internal/connectors/google"
	"github.com/custodia-labs/filer/internal/connectors/google/gmail"
	"github.com/custodia-labs/filer/internal/connectors/inventory"
	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/core/ports/driving"
	"github.com/custodia-labs/filer/internal/core/services"
	"github.com/custodia-labs/filer/internal/extractors"
	"github.com/custodia-labs/filer/internal/extractors/docx"
	"github.com/custodia-labs/filer/internal/extractors/eml"
	"github.com/custodia-labs/filer/internal/extractors/html"
	"github.com/custodia-labs/filer/internal/extractors/markdown"
	"github.com/custodia-labs/filer/internal/extractors/pdf"
	"github.com/custodia-labs/filer/internal/extractors/plaintext"
	"github.com/custodia-labs/filer/internal/logger"
)

// pdfMaxPages bounds text extraction from large PDFs.
const pdfMaxPages = 50

// setup opens the stores and builds the services every command shares.
func setup(opts cli.Options) (*cli.Runtime, error) {
	dataDir := opts.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".filer", "data")
	}

	configStore, err := file.NewConfigStore(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, dataDir)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	logger.Debug("config %s, data dir %s", configStore.Path(), settings.Paths.DataDir)

	store, err := sqlite.NewStore(settings.Paths.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	fs := local.New()
	registry := extractors.NewRegistry(
		plaintext.New(),
		markdown.New(),
		html.New(),
		eml.New(),
		docx.New(),
		pdf.New(pdfMaxPages),
	)
	fingerprints := services.NewFingerprintEngine(fs, registry, settings.Fingerprint)
	loader := rules.NewLoader(settings.Classification.ReviewFloor)

	w := &wiring{
		settings:     settingsService,
		store:        store,
		fs:           fs,
		fingerprints: fingerprints,
		loader:       loader,
	}

	// Outside a run, review and recovery move files on their own.
	reviewRunID := "review-" + newRunID()
	idle := services.NewMigrationExecutor(fs, store.AuditLog(), fingerprints,
		settings.Migration, settings.Paths, reviewRunID)
	audit := services.NewAuditService(store.AuditLog(), idle)

	rt := &cli.Runtime{
		Settings:     settingsService,
		Rules:        services.NewRuleService(loader),
		Review:       services.NewReviewService(store.ReviewQueue(), store.AuditLog(), fingerprints, idle, nil, reviewRunID),
		Audit:        audit,
		NewPipeline:  w.newPipeline,
		NewScheduler: w.newScheduler,
		Inventory:    inventoryReader,
		Scan:         w.scanner,
		Watch:        w.watcher,
		Mailbox:      w.mailbox,
		Fingerprint:  fingerprints.Fingerprint,
		Hash:         fingerprints.Hash,
		Close:        store.Close,
	}
	if settings.Mailbox.ClientID != "" {
		rt.MailboxAuth = services.NewMailboxAuthService(
			google.OAuthConfig(settings.Mailbox.ClientID, settings.Mailbox.ClientSecret),
			settings.Mailbox.TokenFile,
			google.SaveToken,
		)
	}
	return rt, nil
}

// wiring builds the per-run parts of the pipeline.
type wiring struct {
	settings     *services.SettingsService
	store        *sqlite.Store
	fs           *local.FS
	fingerprints *services.FingerprintEngine
	loader       *rules.Loader
}

func (w *wiring) newPipeline(ctx context.Context, o cli.PipelineOptions) (*cli.Pipeline, error) {
	settings, err := w.settings.Get()
	if err != nil {
		return nil, err
	}
	if o.Mode != "" {
		settings.Migration.Mode = o.Mode
	}
	if o.RulesFile != "" {
		settings.Paths.RulesFile = o.RulesFile
	}
	if o.IncludeReview {
		settings.Classification.IncludeReview = true
	}

	ruleSet, err := w.loader.Load(ctx, settings.Paths.RulesFile)
	if err != nil {
		return nil, err
	}
	engine, err := services.NewRuleEngine(*ruleSet)
	if err != nil {
		return nil, err
	}

	runID := newRunID()
	audit := w.store.AuditLog()
	queue := w.store.ReviewQueue()

	resolver := services.NewDuplicateResolver(memory.NewFingerprintIndex(settings.Dedup.Bands), settings.Dedup)
	executor := services.NewMigrationExecutor(w.fs, audit, w.fingerprints, settings.Migration, settings.Paths, runID)
	coordinator := services.NewCoordinator(w.fingerprints, resolver, engine, executor, audit, queue, w.fs, *settings, runID)

	logger.Debug("run %s: rules %s (%s), %s mode", runID, settings.Paths.RulesFile, ruleSet.Version, settings.Migration.Mode)
	return &cli.Pipeline{
		RunID:     runID,
		Settings:  settings,
		Ingestion: coordinator,
		Review:    services.NewReviewService(queue, audit, w.fingerprints, executor, coordinator, runID),
		Audit:     services.NewAuditService(audit, executor),
	}, nil
}

func (w *wiring) newScheduler(settings *domain.Settings, ingestion driving.IngestionService) driving.Scheduler {
	scanners := func() []driven.Producer {
		if len(settings.Ingestion.ScanRoots) == 0 {
			return nil
		}
		return []driven.Producer{w.scanner(settings, settings.Ingestion.ScanRoots)}
	}

	var mailbox driven.Producer
	if settings.Mailbox.Enabled {
		p, err := w.mailbox(context.Background(), settings.Mailbox)
		if err != nil {
			logger.Warn("mailbox disabled: %v", err)
		} else {
			mailbox = p
		}
	}
	return services.NewScheduler(settings.Scheduler, w.store.SchedulerStore(), ingestion, scanners, mailbox)
}

// scanner crawls roots, skipping the taxonomy and quarantine trees so
// migrated files are not picked up again.
func (w *wiring) scanner(settings *domain.Settings, roots []string) driven.Producer {
	return filesystem.NewCrawler(roots, settings.Paths.TaxonomyRoot, settings.Paths.QuarantineRoot)
}

func (w *wiring) watcher(settings *domain.Settings, roots []string) driven.Producer {
	return filesystem.NewWatcher(roots, settings.Paths.TaxonomyRoot, settings.Paths.QuarantineRoot)
}

func (w *wiring) mailbox(ctx context.Context, s domain.MailboxSettings) (driven.Producer, error) {
	p, err := gmail.NewServicePoller(ctx, s)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func inventoryReader(path string) driven.Producer {
	return inventory.NewReader(path)
}

func newRunID() string {
	return uuid.NewString()
}
