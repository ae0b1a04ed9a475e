package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/core"
)

func TestPresets(t *testing.T) {
	tests := []struct {
		class     core.ImageClass
		quality   int
		maxWidth  int
		maxHeight int
		thumbs    bool
	}{
		{core.ClassProducts, 85, 1920, 1080, true},
		{core.ClassFlavors, 82, 1200, 1200, true},
		{core.ClassCategories, 80, 1600, 900, false},
	}

	for _, tt := range tests {
		cfg, err := config.ForClass(tt.class)
		if err != nil {
			t.Fatalf("ForClass(%s): %v", tt.class, err)
		}
		if cfg.WebP.Quality != tt.quality {
			t.Errorf("%s quality: got %d, want %d", tt.class, cfg.WebP.Quality, tt.quality)
		}
		if cfg.Resize.MaxWidth != tt.maxWidth || cfg.Resize.MaxHeight != tt.maxHeight {
			t.Errorf("%s bounds: got %dx%d, want %dx%d",
				tt.class, cfg.Resize.MaxWidth, cfg.Resize.MaxHeight, tt.maxWidth, tt.maxHeight)
		}
		if cfg.Thumbnail.Enabled != tt.thumbs {
			t.Errorf("%s thumbnails: got %v, want %v", tt.class, cfg.Thumbnail.Enabled, tt.thumbs)
		}
		if !cfg.Resize.MaintainAspectRatio {
			t.Errorf("%s: aspect ratio not preserved by default", tt.class)
		}
		if !cfg.Backup.Enabled {
			t.Errorf("%s: backups disabled by default", tt.class)
		}
	}
}

func TestForClass_Unknown(t *testing.T) {
	if _, err := config.ForClass(core.ImageClass("banners")); err == nil {
		t.Error("expected error for unknown image class")
	}
}

func TestValidateFile_AccumulatesErrors(t *testing.T) {
	cfg := config.Products()
	cfg.Limits.MaxFileSize = 10

	v := config.ValidateFile("cake.bmp", 5000, "image/bmp", cfg)
	if v.Valid {
		t.Fatal("expected validation failure")
	}
	if len(v.Errors) != 2 {
		t.Fatalf("errors: got %d (%v), want 2", len(v.Errors), v.Errors)
	}
	if !strings.Contains(v.Errors[0], "size") {
		t.Errorf("first violation should be the size check, got %q", v.Errors[0])
	}
	if !strings.Contains(v.Errors[1], "not allowed") {
		t.Errorf("second violation should be the type check, got %q", v.Errors[1])
	}
}

func TestValidateFile_Passes(t *testing.T) {
	v := config.ValidateFile("cake.jpg", 1024, "image/jpeg", config.Products())
	if !v.Valid {
		t.Errorf("valid file rejected: %v", v.Errors)
	}
}

func TestOptimizeFor(t *testing.T) {
	cfg := config.Products() // quality 85, bounds 1920x1080

	// Oversized sources fit down to the preset bounds first; the fitted
	// output is within the large-pixel threshold so quality is untouched.
	large := config.OptimizeFor(2560, 1440, cfg)
	if large.Width != 1920 || large.Height != 1080 {
		t.Errorf("large image dimensions: got %dx%d, want 1920x1080", large.Width, large.Height)
	}
	if large.Quality != 85 {
		t.Errorf("large image quality: got %d, want 85", large.Quality)
	}

	// 300x300 is under the small threshold: quality headroom.
	small := config.OptimizeFor(300, 300, cfg)
	if small.Quality != 90 {
		t.Errorf("small image quality: got %d, want 90", small.Quality)
	}
	if small.Width != 300 || small.Height != 300 {
		t.Errorf("small image resized: got %dx%d", small.Width, small.Height)
	}

	// Mid-size keeps the configured quality.
	mid := config.OptimizeFor(1000, 800, cfg)
	if mid.Quality != 85 {
		t.Errorf("mid-size quality: got %d, want 85", mid.Quality)
	}

	// Adjustments never leave the 70..95 window.
	lo := cfg
	lo.WebP.Quality = 72
	lo.Resize.MaxWidth, lo.Resize.MaxHeight = 4000, 4000
	if got := config.OptimizeFor(3000, 3000, lo).Quality; got != 70 {
		t.Errorf("floor: got %d, want 70", got)
	}
	hi := cfg
	hi.WebP.Quality = 93
	if got := config.OptimizeFor(100, 100, hi).Quality; got != 95 {
		t.Errorf("ceiling: got %d, want 95", got)
	}
}

func TestSettings_Validate(t *testing.T) {
	s := config.Settings{
		StorageBackend:    "s3",
		ImagesBucket:      "images",
		BackupPrefix:      "backup",
		WorkerCount:       4,
		MaxRetries:        2,
		RetryDelay:        time.Second,
		QualitySampleRate: 0.1,
	}
	if err := s.Validate(); err != nil {
		t.Errorf("valid settings rejected: %v", err)
	}

	missing := s
	missing.ImagesBucket = ""
	if err := missing.Validate(); err == nil {
		t.Error("missing bucket accepted")
	}

	backend := s
	backend.StorageBackend = "ftp"
	if err := backend.Validate(); err == nil {
		t.Error("unknown storage backend accepted")
	}

	workers := s
	workers.WorkerCount = 0
	if err := workers.Validate(); err == nil {
		t.Error("zero workers accepted")
	}

	rate := s
	rate.QualitySampleRate = 1.5
	if err := rate.Validate(); err == nil {
		t.Error("out-of-range sample rate accepted")
	}
}
