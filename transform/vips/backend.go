// Package vips provides a libvips-backed Transformer for deployments where
// conversion throughput matters more than a CGO-free build. It is a drop-in
// replacement for the default pure-Go engine.
package vips

import (
	"context"
	"fmt"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
	"github.com/dulceflor/image-pipeline/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend is a libvips-powered Transformer. Safe for concurrent use.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Transform mirrors the pure-Go engine's contract on top of vips_resize()
// and vips_thumbnail(). JPEG input gets shrink-on-load for free.
func (b *Backend) Transform(ctx context.Context, src []byte, cfg config.ProcessingConfig) (*core.ProcessedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.transform", err)
	}
	if len(src) == 0 {
		return nil, apperrors.Validation("vips.transform", apperrors.ErrEmptyInput)
	}
	if cfg.Limits.MaxFileSize > 0 && int64(len(src)) > cfg.Limits.MaxFileSize {
		return nil, apperrors.Validation("vips.transform", apperrors.ErrFileTooLarge)
	}
	if err := checkFormat(src, cfg); err != nil {
		return nil, err
	}

	ref, err := govips.NewImageFromBuffer(src)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.decode", err)
	}
	defer ref.Close()

	srcW, srcH := ref.Width(), ref.Height()
	if (cfg.Limits.MinWidth > 0 && srcW < cfg.Limits.MinWidth) ||
		(cfg.Limits.MinHeight > 0 && srcH < cfg.Limits.MinHeight) {
		return nil, apperrors.Validation("vips.transform",
			fmt.Errorf("%w: %dx%d below minimum %dx%d", apperrors.ErrInvalidDimensions,
				srcW, srcH, cfg.Limits.MinWidth, cfg.Limits.MinHeight))
	}
	format := vipsFormatToCore(ref.Format())

	dstW, dstH := utils.FitDimensions(srcW, srcH,
		cfg.Resize.MaxWidth, cfg.Resize.MaxHeight, cfg.Resize.UpscaleSmaller)
	if dstW != srcW || dstH != srcH {
		scale := float64(dstW) / float64(srcW)
		if err := ref.Resize(scale, govips.KernelLanczos3); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.resize", err)
		}
	}

	primary, err := exportWebP(ref, cfg.WebP, cfg.WebP.Quality)
	if err != nil {
		return nil, err
	}

	out := &core.ProcessedImage{
		Primary:      primary,
		Width:        ref.Width(),
		Height:       ref.Height(),
		SourceFormat: format,
		SourceWidth:  srcW,
		SourceHeight: srcH,
		OriginalSize: int64(len(src)),
	}

	if cfg.Thumbnail.Enabled && cfg.Thumbnail.Size > 0 {
		thumb, err := govips.NewThumbnailFromBuffer(src, cfg.Thumbnail.Size, cfg.Thumbnail.Size, govips.InterestingNone)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.thumbnail", err)
		}
		defer thumb.Close()
		encoded, err := exportWebP(thumb, cfg.WebP, cfg.Thumbnail.Quality)
		if err != nil {
			return nil, err
		}
		out.Thumbnail = encoded
		out.ThumbWidth = thumb.Width()
		out.ThumbHeight = thumb.Height()
	}

	return out, nil
}

// checkFormat sniffs src and rejects formats outside the preset allow-list
// before handing the buffer to libvips, so disallowed inputs surface as
// validation failures just like in the pure-Go engine.
func checkFormat(src []byte, cfg config.ProcessingConfig) error {
	format := core.Format(utils.DetectFormat(src))
	mime := utils.FormatMIME(string(format))
	for _, f := range cfg.Limits.AllowedFormats {
		if f == mime {
			return nil
		}
	}
	return apperrors.Validation("vips.transform",
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
}

func exportWebP(ref *govips.ImageRef, opts config.WebPOptions, quality int) ([]byte, error) {
	ep := govips.NewWebpExportParams()
	ep.Quality = utils.Clamp(quality, 0, 100)
	ep.ReductionEffort = utils.Clamp(opts.Effort, 0, 6)
	ep.Lossless = opts.Lossless
	ep.NearLossless = opts.NearLossless
	ep.StripMetadata = true
	buf, _, err := ref.ExportWebp(ep)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "vips.encode", err)
	}
	return buf, nil
}

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	}
	return core.FormatUnknown
}
