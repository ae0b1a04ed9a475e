// Package batch drives the conversion of a collection of image assets:
// download, backup, transform, upload, record update — with bounded
// concurrency, retry of transient failures, and per-item error isolation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dulceflor/image-pipeline/backup"
	"github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
	"github.com/dulceflor/image-pipeline/transform"
)

// Config controls a batch run.
type Config struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// PresetFunc resolves the ProcessingConfig for an image class. Defaults to
// the built-in presets; override to apply operator tuning.
type PresetFunc func(core.ImageClass) (config.ProcessingConfig, error)

// Orchestrator converts batches of image assets to WebP. All collaborators
// are injected; the orchestrator holds no ambient state.
type Orchestrator struct {
	store   core.ObjectStore
	records core.RecordStore // nil disables record updates
	engine  transform.Transformer
	backups *backup.Manager
	monitor QualityScorer // nil disables scoring
	logger  core.Logger
	metrics core.MetricsCollector // nil disables metrics
	audit   *AuditLog
	presets PresetFunc
	cfg     Config
}

// QualityScorer is the post-conversion monitor contract.
type QualityScorer interface {
	MonitorConversion(original, webpData []byte, conversionTimeMs, uploadTimeMs float64, bucket, path string) core.QualityReport
}

// NewOrchestrator wires an Orchestrator. store, engine, backups, and logger
// are required; records, monitor, metrics, and audit may be nil.
func NewOrchestrator(
	store core.ObjectStore,
	recordsStore core.RecordStore,
	engine transform.Transformer,
	backups *backup.Manager,
	monitor QualityScorer,
	logger core.Logger,
	metrics core.MetricsCollector,
	audit *AuditLog,
	cfg Config,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Orchestrator{
		store:   store,
		records: recordsStore,
		engine:  engine,
		backups: backups,
		monitor: monitor,
		logger:  logger,
		metrics: metrics,
		audit:   audit,
		presets: config.ForClass,
		cfg:     cfg,
	}
}

// SetPresets overrides preset resolution, e.g. with YAML-tuned presets.
func (o *Orchestrator) SetPresets(fn PresetFunc) { o.presets = fn }

// Report is the final result of a batch run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      core.StatsSnapshot
	Items      []core.ItemResult
}

// Run processes every asset with bounded concurrency. One item's failure
// never halts the batch; Run only returns an error when the context is
// cancelled before any work could complete.
func (o *Orchestrator) Run(ctx context.Context, assets []core.ImageAsset) (*Report, error) {
	runID := uuid.NewString()
	started := time.Now()

	o.logger.Info("batch.start", "run_id", runID, "total", len(assets), "workers", o.cfg.Workers)

	stats := &core.ConversionStats{}
	stats.AddTotal(int64(len(assets)))

	var (
		mu    sync.Mutex
		items = make([]core.ItemResult, 0, len(assets))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, asset := range assets {
		g.Go(func() error {
			result := o.processItem(gctx, asset)

			switch result.Outcome {
			case core.OutcomeConverted:
				stats.IncConverted()
				stats.AddSaved(result.SavedBytes)
				o.audit.Record("converted", asset.SourceURL,
					fmt.Sprintf("-> %s saved=%dB attempts=%d", result.NewURL, result.SavedBytes, result.Attempts))
			case core.OutcomeSkipped:
				stats.IncSkipped()
				o.audit.Record("skipped", asset.SourceURL, "already webp")
			case core.OutcomeError:
				stats.IncErrors()
				o.audit.Record("error", asset.SourceURL,
					fmt.Sprintf("stage=%s: %v", result.FailedAt, result.Err))
				o.logger.Error("batch.item_failed",
					"run_id", runID, "source", asset.SourceURL,
					"stage", string(result.FailedAt), "error", result.Err.Error())
			}
			if o.metrics != nil {
				o.metrics.RecordOutcome(string(result.Outcome))
				o.metrics.RecordBytesSaved(result.SavedBytes)
			}

			mu.Lock()
			items = append(items, result)
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; item failures are values in the results.
	_ = g.Wait()

	report := &Report{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Stats:      stats.Snapshot(),
		Items:      items,
	}

	o.logger.Info("batch.done",
		"run_id", runID,
		"converted", report.Stats.Converted,
		"skipped", report.Stats.Skipped,
		"errors", report.Stats.Errors,
		"size_saved", report.Stats.SizeSaved,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return report, apperrors.Wrap(apperrors.CategoryTransient, "batch.run", err)
	}
	return report, nil
}

// processItem walks one asset through the pipeline state machine. Every
// failure is captured in the result; nothing escapes as a panic or error.
func (o *Orchestrator) processItem(ctx context.Context, asset core.ImageAsset) core.ItemResult {
	result := core.ItemResult{Asset: asset, State: core.StatePending}

	fail := func(state core.ItemState, err error) core.ItemResult {
		result.Outcome = core.OutcomeError
		result.State = core.StateFailed
		result.FailedAt = state
		result.Err = err
		if o.metrics != nil {
			o.metrics.RecordError(string(state), categoryOf(err))
		}
		return result
	}

	// Skip rule: a WebP source transitions straight to done with zero
	// storage calls beyond this inspection.
	if strings.Contains(strings.ToLower(asset.SourceURL), ".webp") {
		result.Outcome = core.OutcomeSkipped
		result.State = core.StateDone
		return result
	}

	preset, err := o.presets(asset.Class)
	if err != nil {
		return fail(core.StatePending, err)
	}

	srcPath, err := objectPath(asset)
	if err != nil {
		return fail(core.StatePending, err)
	}

	// ── download ────────────────────────────────────────────────────────────
	var original []byte
	attempts, err := o.withRetry(ctx, func() error {
		var derr error
		original, derr = o.store.Download(ctx, core.StorageKey{Bucket: asset.Bucket, Path: srcPath})
		return derr
	})
	result.Attempts = attempts
	if err != nil {
		return fail(core.StateDownloading, err)
	}

	// ── backup ──────────────────────────────────────────────────────────────
	var backupInfo *core.BackupInfo
	if preset.Backup.Enabled {
		info, berr := o.backups.CreateBackup(ctx, asset.Bucket, srcPath, original)
		if berr != nil {
			// Non-fatal: convert without a backup, with a warning.
			o.logger.Warn("batch.backup_failed", "source", srcPath, "error", berr.Error())
		} else {
			backupInfo = info
		}
	}

	// ── convert ─────────────────────────────────────────────────────────────
	convStart := time.Now()
	processed, err := o.engine.Transform(ctx, original, preset)
	convElapsed := time.Since(convStart)
	if o.metrics != nil {
		o.metrics.RecordStageTime("convert", convElapsed)
	}
	if err != nil {
		return fail(core.StateConverting, err)
	}

	// ── upload ──────────────────────────────────────────────────────────────
	now := time.Now()
	folder := asset.Folder
	if folder == "" {
		folder = strings.Trim(path.Dir(srcPath), "/")
		if folder == "." {
			folder = ""
		}
	}
	mainPath := joinFolder(folder, config.MainFileName(path.Base(srcPath), now))
	mainKey := core.StorageKey{Bucket: asset.Bucket, Path: mainPath}

	upStart := time.Now()
	attempts, err = o.withRetry(ctx, func() error {
		return o.store.Upload(ctx, mainKey, processed.Primary, "image/webp")
	})
	result.Attempts = max(result.Attempts, attempts)
	if err != nil {
		return fail(core.StateUploading, err)
	}

	if len(processed.Thumbnail) > 0 {
		thumbPath := joinFolder(folder, config.ThumbnailFileName(path.Base(srcPath), preset.Thumbnail.Suffix, now))
		_, err = o.withRetry(ctx, func() error {
			return o.store.Upload(ctx, core.StorageKey{Bucket: asset.Bucket, Path: thumbPath},
				processed.Thumbnail, "image/webp")
		})
		if err != nil {
			return fail(core.StateUploading, err)
		}
	}
	upElapsed := time.Since(upStart)
	if o.metrics != nil {
		o.metrics.RecordStageTime("upload", upElapsed)
	}

	newURL := o.store.PublicURL(mainKey)

	if backupInfo != nil {
		backupInfo.WebPPath = mainPath
		backupInfo.WebPSize = processed.PrimarySize()
		o.logger.Debug("batch.backup_linked",
			"backup", backupInfo.BackupPath, "webp", mainPath, "webp_size", backupInfo.WebPSize)
	}

	// ── record update ───────────────────────────────────────────────────────
	// Best effort: the asset is already converted and uploaded, so a record
	// failure is logged rather than failing the item.
	if o.records != nil {
		_, rerr := o.withRetry(ctx, func() error {
			return o.records.UpdateImageURL(ctx, asset.Table, asset.RecordID, asset.Column, newURL)
		})
		if rerr != nil {
			o.logger.Warn("batch.record_update_failed",
				"table", asset.Table, "id", asset.RecordID, "error", rerr.Error())
		}
	}

	result.Outcome = core.OutcomeConverted
	result.State = core.StateDone
	result.NewURL = newURL
	result.SavedBytes = processed.SavedBytes()

	// ── quality scoring ─────────────────────────────────────────────────────
	if o.monitor != nil {
		report := o.monitor.MonitorConversion(original, processed.Primary,
			float64(convElapsed.Milliseconds()), float64(upElapsed.Milliseconds()),
			asset.Bucket, mainPath)
		if !report.Passed {
			o.logger.Warn("batch.quality_flagged",
				"path", mainPath, "score", report.Score, "issues", strings.Join(report.Issues, "; "))
		}
	}

	return result
}

// withRetry runs fn up to MaxRetries+1 times with a fixed delay, retrying
// only transient failures. Validation errors come back immediately.
func (o *Orchestrator) withRetry(ctx context.Context, fn func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= o.cfg.MaxRetries+1; attempt++ {
		err = fn()
		if err == nil || !apperrors.IsRetryable(err) {
			return attempt, err
		}
		if attempt == o.cfg.MaxRetries+1 {
			return attempt, err
		}
		select {
		case <-ctx.Done():
			return attempt, apperrors.Wrap(apperrors.CategoryTransient, "batch.retry", ctx.Err())
		case <-time.After(o.cfg.RetryDelay):
		}
	}
	return o.cfg.MaxRetries + 1, err
}

// objectPath derives the storage path of an asset from its source URL. The
// URL may be a full public URL containing the bucket segment, or already a
// bare storage path.
func objectPath(asset core.ImageAsset) (string, error) {
	src := asset.SourceURL
	if src == "" {
		return "", apperrors.Validation("batch.object_path", apperrors.ErrEmptyInput)
	}

	if strings.Contains(src, "://") {
		u, err := url.Parse(src)
		if err != nil {
			return "", apperrors.Validation("batch.object_path",
				fmt.Errorf("unparseable source url %q: %v", src, err))
		}
		p := strings.TrimPrefix(u.Path, "/")
		if asset.Bucket != "" {
			if rest, ok := strings.CutPrefix(p, asset.Bucket+"/"); ok {
				return rest, nil
			}
			if i := strings.Index(p, "/"+asset.Bucket+"/"); i >= 0 {
				return p[i+len(asset.Bucket)+2:], nil
			}
		}
		return p, nil
	}

	return strings.TrimPrefix(src, "/"), nil
}

func joinFolder(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func categoryOf(err error) string {
	var pe *apperrors.PipelineError
	if errors.As(err, &pe) {
		return string(pe.Category)
	}
	return "unknown"
}
