// Package backup archives originals before they are destructively replaced,
// and can list, restore, and age-out those archives.
//
// Backup paths are built as {prefix}/{originalFolder}/{timestamp}_{fileName}
// and the encoding is invertible: stripping the prefix and the leading
// digits token recovers the original path.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
	"github.com/dulceflor/image-pipeline/utils"
)

const defaultPrefix = "backup"

// Manager owns backup creation, restoration, and the retention sweep. It is
// an explicitly constructed service object: inject it into the orchestrator
// rather than reaching for package-level state.
type Manager struct {
	store  core.ObjectStore
	prefix string
	logger core.Logger

	// Listing cache: bounded, TTL-evicted. Invalidated on every write.
	cache *expirable.LRU[string, []core.BackupInfo]

	// now is injectable for deterministic tests.
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrefix overrides the backup path prefix.
func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = strings.Trim(prefix, "/") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCacheTTL overrides the listing cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.cache = expirable.NewLRU[string, []core.BackupInfo](64, nil, ttl)
	}
}

// NewManager creates a Manager over the given object store.
func NewManager(store core.ObjectStore, logger core.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		prefix: defaultPrefix,
		logger: logger,
		cache:  expirable.NewLRU[string, []core.BackupInfo](64, nil, 30*time.Second),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// BuildBackupPath derives the archive location for originalPath at time t.
func (m *Manager) BuildBackupPath(originalPath string, t time.Time) string {
	folder, file := path.Split(originalPath)
	folder = strings.Trim(folder, "/")
	name := config.BackupFileName(file, t)
	if folder == "" {
		return m.prefix + "/" + name
	}
	return m.prefix + "/" + folder + "/" + name
}

// OriginalPathFromBackup inverts BuildBackupPath: it strips the prefix and
// the leading digits token from the file name.
func (m *Manager) OriginalPathFromBackup(backupPath string) (string, error) {
	rel, ok := strings.CutPrefix(backupPath, m.prefix+"/")
	if !ok {
		return "", apperrors.New(apperrors.CategoryBackup, "backup.invert",
			fmt.Errorf("path %q lacks backup prefix %q", backupPath, m.prefix))
	}

	folder, file := path.Split(rel)
	_, name, err := splitTimestamp(file)
	if err != nil {
		return "", err
	}
	return folder + name, nil
}

// splitTimestamp parses the {digits}_{fileName} token.
func splitTimestamp(file string) (time.Time, string, error) {
	i := strings.IndexByte(file, '_')
	if i <= 0 {
		return time.Time{}, "", apperrors.New(apperrors.CategoryBackup, "backup.invert",
			fmt.Errorf("file %q lacks timestamp token", file))
	}
	ms, err := strconv.ParseInt(file[:i], 10, 64)
	if err != nil {
		return time.Time{}, "", apperrors.New(apperrors.CategoryBackup, "backup.invert",
			fmt.Errorf("file %q has malformed timestamp: %v", file, err))
	}
	return time.UnixMilli(ms), file[i+1:], nil
}

// CreateBackup copies data into a timestamped backup location and returns
// its metadata. Callers treat failure as non-fatal: conversion proceeds
// without a backup, with a warning logged.
func (m *Manager) CreateBackup(ctx context.Context, bucket, originalPath string, data []byte) (*core.BackupInfo, error) {
	createdAt := m.now()
	backupPath := m.BuildBackupPath(originalPath, createdAt)

	contentType := utils.FormatMIME(utils.DetectFormat(data))
	key := core.StorageKey{Bucket: bucket, Path: backupPath}
	if err := m.store.Upload(ctx, key, data, contentType); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryBackup, "backup.create", err)
	}

	m.invalidate(bucket)
	return &core.BackupInfo{
		OriginalPath: originalPath,
		BackupPath:   backupPath,
		Bucket:       bucket,
		CreatedAt:    createdAt,
		OriginalSize: int64(len(data)),
	}, nil
}

// RestoreFromBackup downloads the backup and re-uploads it to targetPath,
// or to the path recovered by inversion when targetPath is empty. The
// destination is overwritten. Failures come back in the result, not as an
// error, so batch callers can continue.
func (m *Manager) RestoreFromBackup(ctx context.Context, bucket, backupPath, targetPath string) core.RestoreResult {
	if targetPath == "" {
		original, err := m.OriginalPathFromBackup(backupPath)
		if err != nil {
			return core.RestoreResult{Error: err.Error()}
		}
		targetPath = original
	}

	data, err := m.store.Download(ctx, core.StorageKey{Bucket: bucket, Path: backupPath})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			err = fmt.Errorf("%w: %s", apperrors.ErrBackupNotFound, backupPath)
		}
		return core.RestoreResult{Error: fmt.Sprintf("download %s: %v", backupPath, err)}
	}

	contentType := utils.FormatMIME(utils.DetectFormat(data))
	target := core.StorageKey{Bucket: bucket, Path: targetPath}
	if err := m.store.Upload(ctx, target, data, contentType); err != nil {
		return core.RestoreResult{Error: fmt.Sprintf("upload %s: %v", targetPath, err)}
	}

	return core.RestoreResult{
		Success:      true,
		RestoredPath: targetPath,
		PublicURL:    m.store.PublicURL(target),
	}
}

// ListBackups returns every backup in bucket, optionally narrowed to the
// original folder. Results are cached briefly to keep repeated convenience
// queries from hammering the store.
func (m *Manager) ListBackups(ctx context.Context, bucket, folder string) ([]core.BackupInfo, error) {
	cacheKey := bucket + "|" + folder
	if cached, ok := m.cache.Get(cacheKey); ok {
		return cached, nil
	}

	prefix := m.prefix + "/"
	if folder != "" {
		prefix += strings.Trim(folder, "/") + "/"
	}

	entries, err := m.store.List(ctx, bucket, prefix)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryBackup, "backup.list", err)
	}

	backups := make([]core.BackupInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := m.parseEntry(bucket, entry)
		if err != nil {
			// Foreign objects under the prefix are not ours to manage.
			continue
		}
		backups = append(backups, info)
	}

	m.cache.Add(cacheKey, backups)
	return backups, nil
}

func (m *Manager) parseEntry(bucket string, entry core.ObjectEntry) (core.BackupInfo, error) {
	original, err := m.OriginalPathFromBackup(entry.Path)
	if err != nil {
		return core.BackupInfo{}, err
	}
	_, file := path.Split(entry.Path)
	createdAt, _, err := splitTimestamp(file)
	if err != nil {
		return core.BackupInfo{}, err
	}
	return core.BackupInfo{
		OriginalPath: original,
		BackupPath:   entry.Path,
		Bucket:       bucket,
		CreatedAt:    createdAt,
		OriginalSize: entry.Size,
	}, nil
}

// HasBackup reports whether at least one backup of originalPath exists.
func (m *Manager) HasBackup(ctx context.Context, bucket, originalPath string) (bool, error) {
	latest, err := m.FindLatestBackup(ctx, bucket, originalPath)
	if errors.Is(err, apperrors.ErrBackupNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return latest != nil, nil
}

// FindLatestBackup returns the most recent backup of originalPath, by
// CreatedAt descending. A miss returns ErrBackupNotFound.
func (m *Manager) FindLatestBackup(ctx context.Context, bucket, originalPath string) (*core.BackupInfo, error) {
	folder, _ := path.Split(originalPath)
	backups, err := m.ListBackups(ctx, bucket, strings.Trim(folder, "/"))
	if err != nil {
		return nil, err
	}

	var latest *core.BackupInfo
	for i := range backups {
		b := &backups[i]
		if b.OriginalPath != originalPath {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, apperrors.Wrap(apperrors.CategoryBackup, "backup.find_latest",
			fmt.Errorf("%w: %s", apperrors.ErrBackupNotFound, originalPath))
	}
	out := *latest
	return &out, nil
}

// CleanupOldBackups deletes every backup strictly older than now minus
// daysToKeep. A failure removing one backup never aborts the sweep.
func (m *Manager) CleanupOldBackups(ctx context.Context, bucket string, daysToKeep int) core.CleanupResult {
	var result core.CleanupResult

	backups, err := m.ListBackups(ctx, bucket, "")
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list backups: %v", err))
		return result
	}

	cutoff := m.now().AddDate(0, 0, -daysToKeep)
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Remove(ctx, bucket, []string{b.BackupPath}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove %s: %v", b.BackupPath, err))
			continue
		}
		result.Removed++
	}

	m.invalidate(bucket)
	return result
}

// Stats aggregates the backup inventory of a bucket.
func (m *Manager) Stats(ctx context.Context, bucket string) (core.BackupStats, error) {
	backups, err := m.ListBackups(ctx, bucket, "")
	if err != nil {
		return core.BackupStats{}, err
	}

	stats := core.BackupStats{TotalBackups: len(backups)}
	sort.Slice(backups, func(i, j int) bool { return backups[i].CreatedAt.Before(backups[j].CreatedAt) })
	for _, b := range backups {
		stats.TotalBytes += b.OriginalSize
	}
	if len(backups) > 0 {
		stats.Oldest = backups[0].CreatedAt
		stats.Newest = backups[len(backups)-1].CreatedAt
	}
	return stats, nil
}

func (m *Manager) invalidate(bucket string) {
	for _, key := range m.cache.Keys() {
		if strings.HasPrefix(key, bucket+"|") {
			m.cache.Remove(key)
		}
	}
}
