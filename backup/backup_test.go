package backup_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dulceflor/image-pipeline/backup"
	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
	"github.com/dulceflor/image-pipeline/hooks"
	"github.com/dulceflor/image-pipeline/storage"
)

func discardLogger() core.Logger {
	return hooks.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBackupPathRoundTrip(t *testing.T) {
	mgr := backup.NewManager(storage.NewMemory(), discardLogger())
	at := time.UnixMilli(1700000000000)

	tests := []string{
		"products/shake.png",
		"flavors/summer/mango.jpg",
		"banner.webp", // no folder
	}
	for _, original := range tests {
		backupPath := mgr.BuildBackupPath(original, at)
		if !strings.HasPrefix(backupPath, "backup/") {
			t.Errorf("%s: backup path %q lacks prefix", original, backupPath)
		}
		if !strings.Contains(backupPath, "1700000000000_") {
			t.Errorf("%s: backup path %q lacks timestamp token", original, backupPath)
		}

		recovered, err := mgr.OriginalPathFromBackup(backupPath)
		if err != nil {
			t.Fatalf("%s: invert %q: %v", original, backupPath, err)
		}
		if recovered != original {
			t.Errorf("round trip: got %q, want %q", recovered, original)
		}
	}
}

func TestBackupPath_KnownLayout(t *testing.T) {
	mgr := backup.NewManager(storage.NewMemory(), discardLogger())

	got := mgr.BuildBackupPath("products/shake.png", time.UnixMilli(1700000000000))
	want := "backup/products/1700000000000_shake.png"
	if got != want {
		t.Errorf("BuildBackupPath: got %q, want %q", got, want)
	}

	original, err := mgr.OriginalPathFromBackup(want)
	if err != nil {
		t.Fatalf("OriginalPathFromBackup: %v", err)
	}
	if original != "products/shake.png" {
		t.Errorf("inverted path: got %q, want products/shake.png", original)
	}
}

func TestOriginalPathFromBackup_Errors(t *testing.T) {
	mgr := backup.NewManager(storage.NewMemory(), discardLogger())

	tests := []string{
		"products/1700000000000_shake.png", // missing prefix
		"backup/products/shake.png",        // no timestamp token
		"backup/products/abc_shake.png",    // malformed timestamp
		"backup/products/_shake.png",       // empty timestamp
	}
	for _, p := range tests {
		if _, err := mgr.OriginalPathFromBackup(p); err == nil {
			t.Errorf("%q: expected inversion error", p)
		}
	}
}

func TestCreateAndFindLatestBackup(t *testing.T) {
	store := storage.NewMemory()
	current := time.UnixMilli(1700000000000)
	mgr := backup.NewManager(store, discardLogger(),
		backup.WithClock(func() time.Time { return current }))
	ctx := context.Background()

	first, err := mgr.CreateBackup(ctx, "images", "products/shake.png", []byte("v1"))
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if !store.Has(core.StorageKey{Bucket: "images", Path: first.BackupPath}) {
		t.Fatalf("backup object %q not stored", first.BackupPath)
	}
	if first.OriginalSize != 2 {
		t.Errorf("original size: got %d, want 2", first.OriginalSize)
	}

	current = current.Add(time.Hour)
	second, err := mgr.CreateBackup(ctx, "images", "products/shake.png", []byte("v2-bigger"))
	if err != nil {
		t.Fatalf("CreateBackup second: %v", err)
	}

	latest, err := mgr.FindLatestBackup(ctx, "images", "products/shake.png")
	if err != nil {
		t.Fatalf("FindLatestBackup: %v", err)
	}
	if latest == nil {
		t.Fatal("latest backup not found")
	}
	if latest.BackupPath != second.BackupPath {
		t.Errorf("latest: got %q, want %q", latest.BackupPath, second.BackupPath)
	}
	if !latest.CreatedAt.Equal(current) {
		t.Errorf("latest CreatedAt: got %v, want %v", latest.CreatedAt, current)
	}

	ok, err := mgr.HasBackup(ctx, "images", "products/shake.png")
	if err != nil || !ok {
		t.Errorf("HasBackup: got (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = mgr.HasBackup(ctx, "images", "products/other.png")
	if err != nil || ok {
		t.Errorf("HasBackup for missing path: got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestRestoreFromBackup(t *testing.T) {
	store := storage.NewMemory()
	mgr := backup.NewManager(store, discardLogger(),
		backup.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	ctx := context.Background()

	info, err := mgr.CreateBackup(ctx, "images", "products/shake.png", []byte("original-bytes"))
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	// Simulate the destructive overwrite that the backup protects against.
	overwritten := core.StorageKey{Bucket: "images", Path: "products/shake.png"}
	if err := store.Upload(ctx, overwritten, []byte("converted"), "image/webp"); err != nil {
		t.Fatalf("seed overwrite: %v", err)
	}

	res := mgr.RestoreFromBackup(ctx, "images", info.BackupPath, "")
	if !res.Success {
		t.Fatalf("restore failed: %s", res.Error)
	}
	if res.RestoredPath != "products/shake.png" {
		t.Errorf("restored path: got %q, want products/shake.png", res.RestoredPath)
	}
	if got := string(store.Bytes(overwritten)); got != "original-bytes" {
		t.Errorf("restored content: got %q, want original-bytes", got)
	}
	if res.PublicURL == "" {
		t.Error("restore result lacks public URL")
	}
}

func TestRestoreFromBackup_ExplicitTarget(t *testing.T) {
	store := storage.NewMemory()
	mgr := backup.NewManager(store, discardLogger())
	ctx := context.Background()

	info, err := mgr.CreateBackup(ctx, "images", "products/shake.png", []byte("v1"))
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	res := mgr.RestoreFromBackup(ctx, "images", info.BackupPath, "products/shake_recovered.png")
	if !res.Success {
		t.Fatalf("restore failed: %s", res.Error)
	}
	if !store.Has(core.StorageKey{Bucket: "images", Path: "products/shake_recovered.png"}) {
		t.Error("explicit target not written")
	}
}

func TestRestoreFromBackup_MissingBackup(t *testing.T) {
	mgr := backup.NewManager(storage.NewMemory(), discardLogger())

	res := mgr.RestoreFromBackup(context.Background(), "images", "backup/products/1700000000000_gone.png", "")
	if res.Success {
		t.Fatal("restore of missing backup reported success")
	}
	if res.Error == "" {
		t.Error("restore result lacks error detail")
	}
	if !strings.Contains(res.Error, "backup not found") {
		t.Errorf("restore error %q should name the missing backup", res.Error)
	}
}

func TestFindLatestBackup_Missing(t *testing.T) {
	mgr := backup.NewManager(storage.NewMemory(), discardLogger())

	latest, err := mgr.FindLatestBackup(context.Background(), "images", "products/never-backed-up.png")
	if latest != nil {
		t.Errorf("latest: got %+v, want nil", latest)
	}
	if !errors.Is(err, apperrors.ErrBackupNotFound) {
		t.Errorf("sentinel: got %v, want ErrBackupNotFound", err)
	}
}

func TestListBackups_SkipsForeignObjects(t *testing.T) {
	store := storage.NewMemory()
	mgr := backup.NewManager(store, discardLogger())
	ctx := context.Background()

	if _, err := mgr.CreateBackup(ctx, "images", "products/shake.png", []byte("v1")); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	// Something else dropped a file under our prefix: not ours to manage.
	foreign := core.StorageKey{Bucket: "images", Path: "backup/products/notes.txt"}
	if err := store.Upload(ctx, foreign, []byte("scribbles"), "text/plain"); err != nil {
		t.Fatalf("seed foreign object: %v", err)
	}

	backups, err := mgr.ListBackups(ctx, "images", "products")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("backups: got %d, want 1 (foreign object not skipped)", len(backups))
	}
	if backups[0].OriginalPath != "products/shake.png" {
		t.Errorf("original path: got %q", backups[0].OriginalPath)
	}
}

func TestListBackups_CachesListing(t *testing.T) {
	store := storage.NewMemory()
	mgr := backup.NewManager(store, discardLogger(), backup.WithCacheTTL(time.Minute))
	ctx := context.Background()

	if _, err := mgr.CreateBackup(ctx, "images", "products/shake.png", []byte("v1")); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	if _, err := mgr.ListBackups(ctx, "images", ""); err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	calls := store.ListCalls
	if _, err := mgr.ListBackups(ctx, "images", ""); err != nil {
		t.Fatalf("ListBackups cached: %v", err)
	}
	if store.ListCalls != calls {
		t.Errorf("second listing hit the store: %d calls, want %d", store.ListCalls, calls)
	}

	// A write invalidates the cache for the bucket.
	if _, err := mgr.CreateBackup(ctx, "images", "products/other.png", []byte("v1")); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if _, err := mgr.ListBackups(ctx, "images", ""); err != nil {
		t.Fatalf("ListBackups after write: %v", err)
	}
	if store.ListCalls != calls+1 {
		t.Errorf("listing after write did not refresh: %d calls, want %d", store.ListCalls, calls+1)
	}
}

func TestCleanupOldBackups(t *testing.T) {
	store := storage.NewMemory()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	current := base
	mgr := backup.NewManager(store, discardLogger(),
		backup.WithClock(func() time.Time { return current }))
	ctx := context.Background()

	current = base.AddDate(0, 0, -40)
	old, err := mgr.CreateBackup(ctx, "images", "products/old.png", []byte("old"))
	if err != nil {
		t.Fatalf("CreateBackup old: %v", err)
	}
	current = base.AddDate(0, 0, -30) // exactly at the cutoff
	edge, err := mgr.CreateBackup(ctx, "images", "products/edge.png", []byte("edge"))
	if err != nil {
		t.Fatalf("CreateBackup edge: %v", err)
	}
	current = base.AddDate(0, 0, -10)
	fresh, err := mgr.CreateBackup(ctx, "images", "products/fresh.png", []byte("fresh"))
	if err != nil {
		t.Fatalf("CreateBackup fresh: %v", err)
	}

	current = base
	result := mgr.CleanupOldBackups(ctx, "images", 30)
	if len(result.Errors) != 0 {
		t.Fatalf("cleanup errors: %v", result.Errors)
	}
	if result.Removed != 1 {
		t.Errorf("removed: got %d, want 1", result.Removed)
	}
	if store.Has(core.StorageKey{Bucket: "images", Path: old.BackupPath}) {
		t.Error("40-day-old backup survived a 30-day sweep")
	}
	// Strictly-older semantics: a backup exactly at the cutoff is kept.
	if !store.Has(core.StorageKey{Bucket: "images", Path: edge.BackupPath}) {
		t.Error("backup exactly at the cutoff was removed")
	}
	if !store.Has(core.StorageKey{Bucket: "images", Path: fresh.BackupPath}) {
		t.Error("fresh backup was removed")
	}
}

func TestBackupStats(t *testing.T) {
	store := storage.NewMemory()
	current := time.UnixMilli(1700000000000)
	mgr := backup.NewManager(store, discardLogger(),
		backup.WithClock(func() time.Time { return current }))
	ctx := context.Background()

	oldest := current
	for i := 0; i < 3; i++ {
		payload := []byte(fmt.Sprintf("payload-%d", i))
		if _, err := mgr.CreateBackup(ctx, "images", fmt.Sprintf("products/p%d.png", i), payload); err != nil {
			t.Fatalf("CreateBackup %d: %v", i, err)
		}
		current = current.Add(time.Hour)
	}
	newest := current.Add(-time.Hour)

	stats, err := mgr.Stats(ctx, "images")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalBackups != 3 {
		t.Errorf("total backups: got %d, want 3", stats.TotalBackups)
	}
	if stats.TotalBytes != 3*int64(len("payload-0")) {
		t.Errorf("total bytes: got %d", stats.TotalBytes)
	}
	if !stats.Oldest.Equal(oldest) {
		t.Errorf("oldest: got %v, want %v", stats.Oldest, oldest)
	}
	if !stats.Newest.Equal(newest) {
		t.Errorf("newest: got %v, want %v", stats.Newest, newest)
	}
}
