package config

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// SanitizeBaseName strips the extension and reduces the base name to
// lowercase alphanumerics, dashes and underscores so it is safe as a storage
// key on any backend.
func SanitizeBaseName(name string) string {
	base := path.Base(name)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.ToLower(base)

	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" {
		out = "image"
	}
	return out
}

// MainFileName returns the output name for the primary WebP variant. The
// millisecond timestamp guarantees uniqueness across repeated runs on the
// same source name.
func MainFileName(sourceName string, t time.Time) string {
	return fmt.Sprintf("%s_%d.webp", SanitizeBaseName(sourceName), t.UnixMilli())
}

// ThumbnailFileName returns the output name for the thumbnail variant.
func ThumbnailFileName(sourceName, suffix string, t time.Time) string {
	if suffix == "" {
		suffix = "_thumb"
	}
	return fmt.Sprintf("%s%s_%d.webp", SanitizeBaseName(sourceName), suffix, t.UnixMilli())
}

// BackupFileName prefixes the original file name with a millisecond
// timestamp. The file name is kept verbatim so the original path can be
// recovered by stripping the leading digits token.
func BackupFileName(originalFileName string, t time.Time) string {
	return fmt.Sprintf("%d_%s", t.UnixMilli(), originalFileName)
}
