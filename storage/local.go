// Package storage provides ObjectStore implementations: a local filesystem
// backend for development and an S3 backend for production.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
)

// Local stores objects on the local filesystem. Bucket maps to a
// subdirectory; Path is the key within it.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local store rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

func (l *Local) absPath(key core.StorageKey) string {
	return filepath.Join(l.rootDir, filepath.Clean(key.Bucket), filepath.Clean(key.Path))
}

func (l *Local) Upload(ctx context.Context, key core.StorageKey, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.upload", err)
	}
	path := l.absPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.upload.mkdir", err)
	}
	if err := os.WriteFile(path, data, l.permissions); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.upload.write", err)
	}
	return nil
}

func (l *Local) Download(ctx context.Context, key core.StorageKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.download", err)
	}
	data, err := os.ReadFile(l.absPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryStorage, "local.download",
				fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, key.Bucket, key.Path))
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.download.read", err)
	}
	return data, nil
}

func (l *Local) List(ctx context.Context, bucket, prefix string) ([]core.ObjectEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.list", err)
	}

	root := filepath.Join(l.rootDir, filepath.Clean(bucket))
	var entries []core.ObjectEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, core.ObjectEntry{
			Path:      rel,
			Size:      info.Size(),
			UpdatedAt: info.ModTime().UnixMilli(),
		})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.list.walk", err)
	}
	return entries, nil
}

func (l *Local) Remove(ctx context.Context, bucket string, paths []string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.remove", err)
	}
	for _, p := range paths {
		path := l.absPath(core.StorageKey{Bucket: bucket, Path: p})
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return apperrors.Wrap(apperrors.CategoryStorage, "local.remove", err)
		}
	}
	return nil
}

func (l *Local) PublicURL(key core.StorageKey) string {
	abs, err := filepath.Abs(l.absPath(key))
	if err != nil {
		abs = l.absPath(key)
	}
	return "file://" + filepath.ToSlash(abs)
}
