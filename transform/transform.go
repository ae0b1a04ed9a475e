// Package transform implements the pure image conversion engine: validate,
// decode, resize within per-class bounds, and encode to WebP with an
// optional thumbnail variant. No network or storage access.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	xwebp "golang.org/x/image/webp"

	"github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
	"github.com/dulceflor/image-pipeline/utils"
)

// Transformer converts source bytes into a ProcessedImage under a preset.
// Implementations must be safe for concurrent use.
type Transformer interface {
	Transform(ctx context.Context, src []byte, cfg config.ProcessingConfig) (*core.ProcessedImage, error)
}

// Engine is the default pure-Go Transformer.
type Engine struct {
	// Resampler controls quality vs speed for the primary resize.
	// Defaults to draw.CatmullRom.
	Resampler xdraw.Interpolator
}

// NewEngine returns an Engine with default resampling.
func NewEngine() *Engine { return &Engine{} }

// Transform validates src against cfg.Limits, decodes it, resizes it to fit
// within cfg.Resize bounds preserving aspect ratio, and encodes the primary
// WebP plus an optional thumbnail.
func (e *Engine) Transform(ctx context.Context, src []byte, cfg config.ProcessingConfig) (*core.ProcessedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "transform", err)
	}
	if len(src) == 0 {
		return nil, apperrors.Validation("transform.validate", apperrors.ErrEmptyInput)
	}

	format := core.Format(utils.DetectFormat(src))
	if err := validateInput(src, format, cfg); err != nil {
		return nil, err
	}

	img, err := decode(src, format)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if err := validateDimensions(srcW, srcH, cfg); err != nil {
		return nil, err
	}

	dstW, dstH := srcW, srcH
	if cfg.Resize.MaintainAspectRatio {
		dstW, dstH = utils.FitDimensions(srcW, srcH,
			cfg.Resize.MaxWidth, cfg.Resize.MaxHeight, cfg.Resize.UpscaleSmaller)
	} else {
		if cfg.Resize.MaxWidth > 0 && dstW > cfg.Resize.MaxWidth {
			dstW = cfg.Resize.MaxWidth
		}
		if cfg.Resize.MaxHeight > 0 && dstH > cfg.Resize.MaxHeight {
			dstH = cfg.Resize.MaxHeight
		}
	}

	primary := img
	if dstW != srcW || dstH != srcH {
		primary = e.resize(img, dstW, dstH)
	}

	encoded, err := encodeWebP(primary, cfg.WebP)
	if err != nil {
		return nil, err
	}

	out := &core.ProcessedImage{
		Primary:      encoded,
		Width:        dstW,
		Height:       dstH,
		SourceFormat: format,
		SourceWidth:  srcW,
		SourceHeight: srcH,
		OriginalSize: int64(len(src)),
	}

	if cfg.Thumbnail.Enabled && cfg.Thumbnail.Size > 0 {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryTransform, "transform.thumbnail", err)
		}
		thumb := imaging.Fit(img, cfg.Thumbnail.Size, cfg.Thumbnail.Size, imaging.Lanczos)
		opts := cfg.WebP
		opts.Quality = cfg.Thumbnail.Quality
		encodedThumb, err := encodeWebP(thumb, opts)
		if err != nil {
			return nil, err
		}
		tb := thumb.Bounds()
		out.Thumbnail = encodedThumb
		out.ThumbWidth = tb.Dx()
		out.ThumbHeight = tb.Dy()
	}

	return out, nil
}

func (e *Engine) resize(src image.Image, w, h int) image.Image {
	sampler := e.Resampler
	if sampler == nil {
		sampler = xdraw.CatmullRom
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	sampler.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// validateInput enforces cfg.Limits on the raw bytes before any decode work.
func validateInput(src []byte, format core.Format, cfg config.ProcessingConfig) error {
	if cfg.Limits.MaxFileSize > 0 && int64(len(src)) > cfg.Limits.MaxFileSize {
		return apperrors.Validation("transform.validate",
			fmt.Errorf("%w: %d > %d bytes", apperrors.ErrFileTooLarge, len(src), cfg.Limits.MaxFileSize))
	}

	mime := utils.FormatMIME(string(format))
	allowed := false
	for _, f := range cfg.Limits.AllowedFormats {
		if f == mime {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperrors.Validation("transform.validate",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	return nil
}

// validateDimensions enforces the per-class minimums on the decoded size.
// Sources below the floor are too small to produce a usable storefront image.
func validateDimensions(w, h int, cfg config.ProcessingConfig) error {
	if (cfg.Limits.MinWidth > 0 && w < cfg.Limits.MinWidth) ||
		(cfg.Limits.MinHeight > 0 && h < cfg.Limits.MinHeight) {
		return apperrors.Validation("transform.validate",
			fmt.Errorf("%w: %dx%d below minimum %dx%d", apperrors.ErrInvalidDimensions,
				w, h, cfg.Limits.MinWidth, cfg.Limits.MinHeight))
	}
	return nil
}

func decode(src []byte, format core.Format) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch format {
	case core.FormatJPEG:
		img, err = jpeg.Decode(bytes.NewReader(src))
	case core.FormatPNG:
		img, err = png.Decode(bytes.NewReader(src))
	case core.FormatWebP:
		img, err = xwebp.Decode(bytes.NewReader(src))
	default:
		return nil, apperrors.Validation("transform.decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "transform.decode", err)
	}
	return img, nil
}

// encodeWebP serialises img. Quality comes from user-editable presets and is
// clamped to the encoder's 0-100 range.
func encodeWebP(img image.Image, opts config.WebPOptions) ([]byte, error) {
	quality := utils.Clamp(opts.Quality, 0, 100)

	var buf bytes.Buffer
	wopts := &webp.Options{
		Lossless: opts.Lossless || opts.NearLossless,
		Quality:  float32(quality),
	}
	if err := webp.Encode(&buf, img, wopts); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryTransform, "transform.encode", err)
	}
	return buf.Bytes(), nil
}
