package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
)

// Memory is an in-memory ObjectStore used by tests and development runs.
// It counts calls so tests can assert on storage traffic.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	touched map[string]int64 // unix millis

	UploadCalls   int
	DownloadCalls int
	ListCalls     int
	RemoveCalls   int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		touched: make(map[string]int64),
	}
}

func memKey(key core.StorageKey) string { return key.Bucket + "/" + key.Path }

func (m *Memory) Upload(_ context.Context, key core.StorageKey, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UploadCalls++
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[memKey(key)] = buf
	m.touched[memKey(key)] = time.Now().UnixMilli()
	return nil
}

func (m *Memory) Download(_ context.Context, key core.StorageKey) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DownloadCalls++
	data, ok := m.objects[memKey(key)]
	if !ok {
		return nil, apperrors.New(apperrors.CategoryStorage, "memory.download",
			fmt.Errorf("%w: %s", apperrors.ErrNotFound, memKey(key)))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) List(_ context.Context, bucket, prefix string) ([]core.ObjectEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++

	var entries []core.ObjectEntry
	lead := bucket + "/"
	for k, v := range m.objects {
		rel, ok := strings.CutPrefix(k, lead)
		if !ok || !strings.HasPrefix(rel, prefix) {
			continue
		}
		entries = append(entries, core.ObjectEntry{
			Path:      rel,
			Size:      int64(len(v)),
			UpdatedAt: m.touched[k],
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m *Memory) Remove(_ context.Context, bucket string, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls++
	for _, p := range paths {
		delete(m.objects, bucket+"/"+p)
		delete(m.touched, bucket+"/"+p)
	}
	return nil
}

func (m *Memory) PublicURL(key core.StorageKey) string {
	return "https://cdn.example.test/" + key.Bucket + "/" + key.Path
}

// Has reports whether an object exists.
func (m *Memory) Has(key core.StorageKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[memKey(key)]
	return ok
}

// Bytes returns a copy of a stored object, or nil.
func (m *Memory) Bytes(key core.StorageKey) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[memKey(key)]
	if !ok {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Calls returns the total number of storage operations performed.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UploadCalls + m.DownloadCalls + m.ListCalls + m.RemoveCalls
}

var _ core.ObjectStore = (*Memory)(nil)
