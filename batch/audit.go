package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditLog is the persistent, human-readable record of every decision a
// batch run makes. One timestamped line per converted/skipped/errored item.
type AuditLog struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

// OpenAuditLog creates the run's log file under dir.
func OpenAuditLog(dir, runID string) (*AuditLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit log: mkdir %s: %w", dir, err)
	}
	name := fmt.Sprintf("conversion_%s_%s.log", time.Now().Format("20060102_150405"), runID)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit log: open: %w", err)
	}
	return &AuditLog{w: f, now: time.Now}, nil
}

// NewAuditLog wraps an arbitrary writer; used by tests and the CLI's
// console tee.
func NewAuditLog(w io.WriteCloser) *AuditLog {
	return &AuditLog{w: w, now: time.Now}
}

// Record appends one decision line. Logging failures are swallowed: the
// audit trail must never fail a batch.
func (a *AuditLog) Record(outcome, path, detail string) {
	if a == nil || a.w == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	line := fmt.Sprintf("%s %-9s %s", a.now().UTC().Format(time.RFC3339), outcome, path)
	if detail != "" {
		line += " " + detail
	}
	fmt.Fprintln(a.w, line)
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	if a == nil || a.w == nil {
		return nil
	}
	return a.w.Close()
}
