package utils

import (
	"net/http"
)

const (
	formatJPEG    = "jpeg"
	formatPNG     = "png"
	formatWebP    = "webp"
	formatUnknown = "unknown"
)

// DetectFormat sniffs the leading bytes of data and returns the image format.
func DetectFormat(data []byte) string {
	if len(data) < 4 {
		return formatUnknown
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return formatJPEG
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return formatPNG
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 &&
		data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return formatWebP
	}
	// Fallback to net/http sniffing.
	ct := http.DetectContentType(data)
	switch ct {
	case "image/jpeg":
		return formatJPEG
	case "image/png":
		return formatPNG
	case "image/webp":
		return formatWebP
	}
	return formatUnknown
}

// FormatMIME maps a detected format name to its MIME type.
func FormatMIME(format string) string {
	switch format {
	case formatJPEG:
		return "image/jpeg"
	case formatPNG:
		return "image/png"
	case formatWebP:
		return "image/webp"
	}
	return "application/octet-stream"
}

// FitDimensions computes output (w, h) preserving aspect ratio so that both
// dimensions fit within (maxW, maxH). When both axes exceed their bound the
// more restrictive ratio wins. The source dimensions are returned unchanged
// when they already fit and upscale is false.
func FitDimensions(srcW, srcH, maxW, maxH int, upscale bool) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}
	if maxW <= 0 && maxH <= 0 {
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

	w := int(float64(srcW)*ratio + 0.5)
	h := int(float64(srcH)*ratio + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CloneBytes returns a copy of b (safe for use after the source buffer is released).
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
