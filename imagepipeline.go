// Package imagepipeline wires the WebP conversion pipeline: transform
// engine, backup manager, batch orchestrator, and quality monitor over an
// object store and a record store.
package imagepipeline

import (
	"context"

	"github.com/dulceflor/image-pipeline/backup"
	"github.com/dulceflor/image-pipeline/batch"
	"github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
	"github.com/dulceflor/image-pipeline/quality"
	"github.com/dulceflor/image-pipeline/records"
	"github.com/dulceflor/image-pipeline/storage"
	"github.com/dulceflor/image-pipeline/transform"
)

// Re-export the image classes for convenience.
const (
	Products   = core.ClassProducts
	Flavors    = core.ClassFlavors
	Categories = core.ClassCategories
)

// Service is the fully wired pipeline. Construct with New; all collaborators
// are explicit fields so tests can replace any of them.
type Service struct {
	Store        core.ObjectStore
	Records      *records.Postgres // nil when no DATABASE_URL is configured
	Engine       transform.Transformer
	Backups      *backup.Manager
	Monitor      *quality.Monitor
	Orchestrator *batch.Orchestrator

	settings config.Settings
	logger   core.Logger
}

// Option overrides a default collaborator before wiring completes.
type Option func(*Service)

// WithObjectStore replaces the storage backend chosen by settings.
func WithObjectStore(store core.ObjectStore) Option {
	return func(s *Service) { s.Store = store }
}

// WithTransformer replaces the default pure-Go engine (e.g. with the vips
// backend).
func WithTransformer(t transform.Transformer) Option {
	return func(s *Service) { s.Engine = t }
}

// New builds a Service from runtime settings. metrics and audit may be nil.
func New(ctx context.Context, settings config.Settings, logger core.Logger, metrics core.MetricsCollector, audit *batch.AuditLog, opts ...Option) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		Engine:   transform.NewEngine(),
		Monitor:  quality.NewMonitor(quality.DefaultThresholds(), settings.QualitySampleRate),
		settings: settings,
		logger:   logger,
	}

	for _, o := range opts {
		o(s)
	}

	if s.Store == nil {
		var err error
		switch settings.StorageBackend {
		case "local":
			s.Store, err = storage.NewLocal(settings.LocalRoot, 0)
		case "s3":
			s.Store, err = storage.NewS3(ctx, settings)
		default:
			err = apperrors.New(apperrors.CategoryConfig, "service.new",
				apperrors.ErrMissingSettings)
		}
		if err != nil {
			return nil, err
		}
	}

	if settings.DatabaseURL != "" {
		pg, err := records.NewPostgres(ctx, settings.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.Records = pg
	}

	s.Backups = backup.NewManager(s.Store, logger, backup.WithPrefix(settings.BackupPrefix))

	var recordStore core.RecordStore
	if s.Records != nil {
		recordStore = s.Records
	}
	s.Orchestrator = batch.NewOrchestrator(
		s.Store, recordStore, s.Engine, s.Backups, s.Monitor, logger, metrics, audit,
		batch.Config{
			Workers:    settings.WorkerCount,
			MaxRetries: settings.MaxRetries,
			RetryDelay: settings.RetryDelay,
		},
	)

	return s, nil
}

// Run converts the given assets and returns the batch report.
func (s *Service) Run(ctx context.Context, assets []core.ImageAsset) (*batch.Report, error) {
	return s.Orchestrator.Run(ctx, assets)
}

// ListAssets pulls conversion candidates from the record store.
func (s *Service) ListAssets(ctx context.Context, table, column, folder string, class core.ImageClass) ([]core.ImageAsset, error) {
	if s.Records == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "service.list_assets",
			apperrors.ErrMissingSettings)
	}
	return s.Records.ListImageAssets(ctx, table, column, s.settings.ImagesBucket, folder, class)
}

// Restore re-uploads a backed-up original to its recovered (or explicit)
// path.
func (s *Service) Restore(ctx context.Context, backupPath, targetPath string) core.RestoreResult {
	return s.Backups.RestoreFromBackup(ctx, s.settings.ImagesBucket, backupPath, targetPath)
}

// Cleanup ages out backups older than the configured retention.
func (s *Service) Cleanup(ctx context.Context) core.CleanupResult {
	return s.Backups.CleanupOldBackups(ctx, s.settings.ImagesBucket, s.settings.RetentionDays)
}

// BackupStats summarises the backup inventory.
func (s *Service) BackupStats(ctx context.Context) (core.BackupStats, error) {
	return s.Backups.Stats(ctx, s.settings.ImagesBucket)
}

// QualityStats summarises the sampled conversion history.
func (s *Service) QualityStats() quality.Stats {
	return s.Monitor.GenerateStats()
}

// Close releases held connections.
func (s *Service) Close() {
	if s.Records != nil {
		s.Records.Close()
	}
}
