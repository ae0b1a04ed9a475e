// Package config holds the per-class processing presets and the runtime
// settings loaded from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
)

// WebPOptions controls the WebP encoder.
type WebPOptions struct {
	Quality      int  `yaml:"quality"`       // 0-100
	Effort       int  `yaml:"effort"`        // 0-6
	Lossless     bool `yaml:"lossless"`
	NearLossless bool `yaml:"near_lossless"`
}

// ResizeOptions bounds the primary output dimensions.
type ResizeOptions struct {
	MaxWidth            int  `yaml:"max_width"`
	MaxHeight           int  `yaml:"max_height"`
	MaintainAspectRatio bool `yaml:"maintain_aspect_ratio"`
	UpscaleSmaller      bool `yaml:"upscale_smaller"`
}

// ThumbnailOptions controls the optional square thumbnail variant.
type ThumbnailOptions struct {
	Enabled bool   `yaml:"enabled"`
	Size    int    `yaml:"size"` // fits within Size x Size
	Quality int    `yaml:"quality"`
	Suffix  string `yaml:"suffix"`
}

// BackupOptions controls backup-before-overwrite behaviour.
type BackupOptions struct {
	Enabled         bool `yaml:"enabled"`
	RetentionDays   int  `yaml:"retention_days"`
	CompressBackups bool `yaml:"compress_backups"`
}

// Limits rejects inputs before any work is done on them.
type Limits struct {
	MaxFileSize    int64    `yaml:"max_file_size"`
	MinWidth       int      `yaml:"min_width"`
	MinHeight      int      `yaml:"min_height"`
	AllowedFormats []string `yaml:"allowed_formats"` // MIME types
}

// ProcessingConfig is an immutable named configuration, one per image class.
// Selected by the caller, never mutated at runtime.
type ProcessingConfig struct {
	Name      string           `yaml:"name"`
	WebP      WebPOptions      `yaml:"webp"`
	Resize    ResizeOptions    `yaml:"resize"`
	Thumbnail ThumbnailOptions `yaml:"thumbnail"`
	Backup    BackupOptions    `yaml:"backup"`
	Limits    Limits           `yaml:"limits"`
}

var defaultFormats = []string{"image/jpeg", "image/png", "image/webp"}

// Products is the preset for product photos: hero images shown full width.
func Products() ProcessingConfig {
	return ProcessingConfig{
		Name: "products",
		WebP: WebPOptions{Quality: 85, Effort: 4},
		Resize: ResizeOptions{
			MaxWidth:            1920,
			MaxHeight:           1080,
			MaintainAspectRatio: true,
		},
		Thumbnail: ThumbnailOptions{Enabled: true, Size: 300, Quality: 75, Suffix: "_thumb"},
		Backup:    BackupOptions{Enabled: true, RetentionDays: 30},
		Limits: Limits{
			MaxFileSize:    10 * 1024 * 1024,
			MinWidth:       100,
			MinHeight:      100,
			AllowedFormats: defaultFormats,
		},
	}
}

// Flavors is the preset for flavor swatches shown in grids.
func Flavors() ProcessingConfig {
	return ProcessingConfig{
		Name: "flavors",
		WebP: WebPOptions{Quality: 82, Effort: 4},
		Resize: ResizeOptions{
			MaxWidth:            1200,
			MaxHeight:           1200,
			MaintainAspectRatio: true,
		},
		Thumbnail: ThumbnailOptions{Enabled: true, Size: 200, Quality: 72, Suffix: "_thumb"},
		Backup:    BackupOptions{Enabled: true, RetentionDays: 30},
		Limits: Limits{
			MaxFileSize:    8 * 1024 * 1024,
			MinWidth:       80,
			MinHeight:      80,
			AllowedFormats: defaultFormats,
		},
	}
}

// Categories is the preset for category banners.
func Categories() ProcessingConfig {
	return ProcessingConfig{
		Name: "categories",
		WebP: WebPOptions{Quality: 80, Effort: 4},
		Resize: ResizeOptions{
			MaxWidth:            1600,
			MaxHeight:           900,
			MaintainAspectRatio: true,
		},
		Thumbnail: ThumbnailOptions{Enabled: false, Size: 0, Quality: 0, Suffix: "_thumb"},
		Backup:    BackupOptions{Enabled: true, RetentionDays: 30},
		Limits: Limits{
			MaxFileSize:    10 * 1024 * 1024,
			MinWidth:       200,
			MinHeight:      120,
			AllowedFormats: defaultFormats,
		},
	}
}

// ForClass returns the preset for the given image class.
func ForClass(class core.ImageClass) (ProcessingConfig, error) {
	switch class {
	case core.ClassProducts:
		return Products(), nil
	case core.ClassFlavors:
		return Flavors(), nil
	case core.ClassCategories:
		return Categories(), nil
	}
	return ProcessingConfig{}, apperrors.New(apperrors.CategoryConfig, "config.for_class",
		fmt.Errorf("unknown image class %q", class))
}

// FileValidation accumulates every violated constraint; callers check Valid
// once all checks have run.
type FileValidation struct {
	Valid  bool
	Errors []string
}

// ValidateFile checks size then MIME type against cfg.Limits. Multiple
// violations accumulate rather than short-circuiting.
func ValidateFile(name string, size int64, mimeType string, cfg ProcessingConfig) FileValidation {
	var errs []string

	if cfg.Limits.MaxFileSize > 0 && size > cfg.Limits.MaxFileSize {
		errs = append(errs, fmt.Sprintf("%s: file size %d exceeds allowed %d bytes",
			name, size, cfg.Limits.MaxFileSize))
	}

	allowed := false
	for _, f := range cfg.Limits.AllowedFormats {
		if f == mimeType {
			allowed = true
			break
		}
	}
	if !allowed {
		errs = append(errs, fmt.Sprintf("%s: type %q is not allowed", name, mimeType))
	}

	return FileValidation{Valid: len(errs) == 0, Errors: errs}
}

// OptimizedSettings is the content-aware output of OptimizeFor.
type OptimizedSettings struct {
	Width   int
	Height  int
	Quality int
}

// Pixel-count thresholds for the quality heuristic. These are tunable
// defaults, not hard rules.
const (
	largeImagePixels = 1920 * 1080
	smallImagePixels = 400 * 400

	largeImageQualityFloor   = 70
	smallImageQualityCeiling = 95
)

// OptimizeFor derives target dimensions and a content-aware quality for a
// source of the given size. Large targets trade quality for size (floor 70);
// small targets gain quality headroom (ceiling 95); anything in between
// keeps the configured quality.
func OptimizeFor(width, height int, cfg ProcessingConfig) OptimizedSettings {
	w, h := width, height
	if cfg.Resize.MaxWidth > 0 || cfg.Resize.MaxHeight > 0 {
		w, h = fitWithin(width, height, cfg.Resize.MaxWidth, cfg.Resize.MaxHeight, cfg.Resize.UpscaleSmaller)
	}

	quality := cfg.WebP.Quality
	pixels := w * h
	switch {
	case pixels > largeImagePixels:
		quality -= 10
		if quality < largeImageQualityFloor {
			quality = largeImageQualityFloor
		}
	case pixels < smallImagePixels:
		quality += 5
		if quality > smallImageQualityCeiling {
			quality = smallImageQualityCeiling
		}
	}

	return OptimizedSettings{Width: w, Height: h, Quality: quality}
}

func fitWithin(srcW, srcH, maxW, maxH int, upscale bool) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}
	ratioW, ratioH := 1.0, 1.0
	if maxW > 0 {
		ratioW = float64(maxW) / float64(srcW)
	}
	if maxH > 0 {
		ratioH = float64(maxH) / float64(srcH)
	}
	ratio := ratioW
	if ratioH < ratio {
		ratio = ratioH
	}
	if ratio >= 1 && !upscale {
		return srcW, srcH
	}
	return int(float64(srcW)*ratio + 0.5), int(float64(srcH)*ratio + 0.5)
}

// Settings is the environment-supplied runtime configuration for a batch run.
type Settings struct {
	StorageBackend string // "local" or "s3"

	ImagesBucket string
	BackupPrefix string

	// S3 connection; unused for the local backend.
	S3Region    string
	S3Endpoint  string
	S3PublicURL string // base URL for PublicURL construction
	S3AccessKey string
	S3SecretKey string

	// Local backend root.
	LocalRoot string

	DatabaseURL string

	WorkerCount int
	MaxRetries  int
	RetryDelay  time.Duration

	QualitySampleRate float64
	RetentionDays     int

	LogDir string
}

// FromEnv builds Settings from environment variables, applying defaults for
// everything a batch run can run without.
func FromEnv() Settings {
	s := Settings{
		StorageBackend:    envOr("STORAGE_BACKEND", "s3"),
		ImagesBucket:      os.Getenv("IMAGES_BUCKET"),
		BackupPrefix:      envOr("BACKUP_PREFIX", "backup"),
		S3Region:          envOr("S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3PublicURL:       os.Getenv("S3_PUBLIC_URL"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		LocalRoot:         envOr("LOCAL_STORAGE_ROOT", "./storage"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WorkerCount:       envInt("WORKER_COUNT", 4),
		MaxRetries:        envInt("MAX_RETRIES", 3),
		RetryDelay:        time.Duration(envInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
		QualitySampleRate: envFloat("QUALITY_SAMPLE_RATE", 0.1),
		RetentionDays:     envInt("BACKUP_RETENTION_DAYS", 30),
		LogDir:            envOr("LOG_DIR", "./logs"),
	}
	return s
}

// Validate returns an error when a setting required for process startup is
// missing or inconsistent. These are the only failures that abort the run.
func (s Settings) Validate() error {
	if s.ImagesBucket == "" {
		return apperrors.New(apperrors.CategoryConfig, "settings.validate",
			fmt.Errorf("%w: IMAGES_BUCKET", apperrors.ErrMissingSettings))
	}
	if s.StorageBackend != "local" && s.StorageBackend != "s3" {
		return apperrors.New(apperrors.CategoryConfig, "settings.validate",
			fmt.Errorf("unknown storage backend %q", s.StorageBackend))
	}
	if s.WorkerCount <= 0 {
		return apperrors.New(apperrors.CategoryConfig, "settings.validate",
			fmt.Errorf("WORKER_COUNT must be positive, got %d", s.WorkerCount))
	}
	if s.QualitySampleRate < 0 || s.QualitySampleRate > 1 {
		return apperrors.New(apperrors.CategoryConfig, "settings.validate",
			fmt.Errorf("QUALITY_SAMPLE_RATE must be in [0,1], got %v", s.QualitySampleRate))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
