package core

import (
	"sync/atomic"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ImageClass selects which ProcessingConfig preset applies to an asset.
// The set is closed: storefront images are exactly one of these.
type ImageClass string

const (
	ClassProducts   ImageClass = "products"
	ClassFlavors    ImageClass = "flavors"
	ClassCategories ImageClass = "categories"
)

// Valid reports whether c is one of the three known classes.
func (c ImageClass) Valid() bool {
	switch c {
	case ClassProducts, ClassFlavors, ClassCategories:
		return true
	}
	return false
}

// ImageAsset references an image owned by an external record. The batch
// orchestrator reads it at conversion time and rewrites the stored URL
// after a successful conversion.
type ImageAsset struct {
	RecordID  string
	Table     string
	Column    string
	SourceURL string
	Bucket    string
	Folder    string
	Class     ImageClass
}

// ProcessedImage is the result of a transform: primary WebP bytes plus an
// optional thumbnail. Consumed immediately by the uploader; not persisted.
type ProcessedImage struct {
	Primary       []byte
	Thumbnail     []byte // nil when thumbnails are disabled
	Width         int
	Height        int
	ThumbWidth    int
	ThumbHeight   int
	SourceFormat  Format
	SourceWidth   int
	SourceHeight  int
	OriginalSize  int64
}

// PrimarySize returns the encoded byte length of the primary image.
func (p *ProcessedImage) PrimarySize() int64 { return int64(len(p.Primary)) }

// SavedBytes returns how many bytes the conversion saved. Negative when the
// WebP output is larger than the source.
func (p *ProcessedImage) SavedBytes() int64 { return p.OriginalSize - p.PrimarySize() }

// BackupInfo describes one archived original. BackupPath is derived
// deterministically from OriginalPath plus a creation timestamp and is
// reversible: stripping the prefix and the leading digits token recovers
// OriginalPath.
type BackupInfo struct {
	OriginalPath string
	BackupPath   string
	Bucket       string
	CreatedAt    time.Time
	OriginalSize int64
	WebPPath     string // set once the replacement upload succeeds
	WebPSize     int64
}

// RestoreResult reports the outcome of restoring a backup. Failures are
// returned here rather than as errors so batch callers can continue.
type RestoreResult struct {
	Success      bool
	RestoredPath string
	PublicURL    string
	Error        string
}

// BackupStats aggregates the backup inventory of a bucket.
type BackupStats struct {
	TotalBackups int
	TotalBytes   int64
	Oldest       time.Time
	Newest       time.Time
}

// CleanupResult reports a retention sweep. A failure removing one backup
// never aborts the sweep for the rest.
type CleanupResult struct {
	Removed int
	Errors  []string
}

// ConversionStats is the running aggregate of a batch run. Counters are
// incremented atomically so concurrent workers never lose an update.
type ConversionStats struct {
	totalImages int64
	converted   int64
	skipped     int64
	errors      int64
	sizeSaved   int64
}

func (s *ConversionStats) AddTotal(n int64) { atomic.AddInt64(&s.totalImages, n) }
func (s *ConversionStats) IncConverted()    { atomic.AddInt64(&s.converted, 1) }
func (s *ConversionStats) IncSkipped()      { atomic.AddInt64(&s.skipped, 1) }
func (s *ConversionStats) IncErrors()       { atomic.AddInt64(&s.errors, 1) }
func (s *ConversionStats) AddSaved(n int64) { atomic.AddInt64(&s.sizeSaved, n) }

func (s *ConversionStats) TotalImages() int64 { return atomic.LoadInt64(&s.totalImages) }
func (s *ConversionStats) Converted() int64   { return atomic.LoadInt64(&s.converted) }
func (s *ConversionStats) Skipped() int64     { return atomic.LoadInt64(&s.skipped) }
func (s *ConversionStats) Errors() int64      { return atomic.LoadInt64(&s.errors) }
func (s *ConversionStats) SizeSaved() int64   { return atomic.LoadInt64(&s.sizeSaved) }

// Snapshot returns an immutable copy for reporting.
func (s *ConversionStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalImages: s.TotalImages(),
		Converted:   s.Converted(),
		Skipped:     s.Skipped(),
		Errors:      s.Errors(),
		SizeSaved:   s.SizeSaved(),
	}
}

// StatsSnapshot is a point-in-time copy of ConversionStats.
type StatsSnapshot struct {
	TotalImages int64
	Converted   int64
	Skipped     int64
	Errors      int64
	SizeSaved   int64
}

// ItemState tracks one asset through the conversion pipeline.
type ItemState string

const (
	StatePending        ItemState = "pending"
	StateDownloading    ItemState = "downloading"
	StateBackingUp      ItemState = "backing-up"
	StateConverting     ItemState = "converting"
	StateUploading      ItemState = "uploading"
	StateUpdatingRecord ItemState = "updating-record"
	StateDone           ItemState = "done"
	StateFailed         ItemState = "failed"
)

// ItemOutcome distinguishes the terminal result of one asset.
type ItemOutcome string

const (
	OutcomeConverted ItemOutcome = "converted"
	OutcomeSkipped   ItemOutcome = "skipped"
	OutcomeError     ItemOutcome = "error"
)

// ItemResult records the terminal state of a single asset in a batch run.
// Failures are values, not panics: one item's failure never halts the batch.
type ItemResult struct {
	Asset      ImageAsset
	Outcome    ItemOutcome
	State      ItemState // StateDone or StateFailed
	FailedAt   ItemState // stage the item was in when it failed
	NewURL     string
	SavedBytes int64
	Attempts   int
	Err        error
}

// QualityMetrics holds objective measurements for one conversion.
type QualityMetrics struct {
	SSIM             float64 // 0 when not computed
	PSNR             float64 // dB; 0 when not computed
	CompressionRatio float64 // webpSize / originalSize
	SavedPercentage  float64
	OriginalSize     int64
	WebPSize         int64
	ConversionTimeMs float64
	UploadTimeMs     float64
	LoadTimeMs       float64 // simulated over a reference bandwidth
	HasSSIM          bool
	HasPSNR          bool
}

// QualityReport is the scored result of one monitored conversion. Score
// starts at 100 and is only ever decremented by named rule violations.
type QualityReport struct {
	Bucket          string
	Path            string
	Timestamp       time.Time
	Metrics         QualityMetrics
	Score           int
	Passed          bool
	Issues          []string
	Recommendations []string
}

// StorageKey uniquely identifies a stored object.
type StorageKey struct {
	Bucket string
	Path   string
}
