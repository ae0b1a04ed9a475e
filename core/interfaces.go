package core

import "context"

// ObjectStore is the external object storage collaborator: a key/blob store
// keyed by {bucket, path}. Implementations live in storage/.
type ObjectStore interface {
	// Upload writes bytes at key, overwriting (upsert) any existing object.
	Upload(ctx context.Context, key StorageKey, data []byte, contentType string) error
	// Download retrieves the object at key.
	Download(ctx context.Context, key StorageKey) ([]byte, error)
	// List returns the objects under prefix in the given bucket.
	List(ctx context.Context, bucket, prefix string) ([]ObjectEntry, error)
	// Remove deletes the given paths from bucket. Missing paths are not errors.
	Remove(ctx context.Context, bucket string, paths []string) error
	// PublicURL returns the publicly addressable URL for key.
	PublicURL(key StorageKey) string
}

// ObjectEntry describes one listed object.
type ObjectEntry struct {
	Path      string
	Size      int64
	UpdatedAt int64 // unix millis; 0 when the backend does not report it
}

// RecordStore is the external relational collaborator. The pipeline calls it
// once per converted item to rewrite the stored image URL; best effort, log
// on failure.
type RecordStore interface {
	UpdateImageURL(ctx context.Context, table, id, column, url string) error
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector receives observations from the batch pipeline.
type MetricsCollector interface {
	RecordStageTime(stage string, d interface{ Seconds() float64 })
	RecordOutcome(outcome string)
	RecordBytesSaved(bytes int64)
	RecordError(stage string, category string)
}
