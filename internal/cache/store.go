package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vk/modplan/internal/ctxlog"
)

const (
	fileFormat  = "modplan-cache"
	fileVersion = 1
)

// Record is the persisted outcome of one successful module build.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	ArtifactRef string    `json:"artifact"`
	Timestamp   time.Time `json:"timestamp"`
}

type fileContents struct {
	Format  string            `json:"format"`
	Version int               `json:"version"`
	Records map[string]Record `json:"records"`
}

// CorruptionError reports a cache file that could not be used.
type CorruptionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache file %s is unusable: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("cache file %s is unusable: %s", e.Path, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Store holds cache records keyed by module name. Writes to one module are
// serialized by a per-name lock.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
	locks   sync.Map
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Load reads the store persisted at path. A missing file yields an empty
// store; any other problem is logged as a warning and also yields an empty
// store, which forces a full rebuild.
func Load(ctx context.Context, path string) *Store {
	logger := ctxlog.FromContext(ctx).With("cache", path)
	s, err := ReadFile(path)
	switch {
	case err == nil:
		logger.Debug("Cache loaded.", "records", s.Len())
		return s
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("No cache file found, starting empty.")
	default:
		logger.Warn("Ignoring cache file, all modules will be rebuilt.", "error", err)
	}
	return NewStore()
}

// ReadFile reads and validates a cache file. Content problems are reported
// as *CorruptionError.
func ReadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, &CorruptionError{Path: path, Reason: "unreadable", Err: err}
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "invalid JSON", Err: err}
	}
	if contents.Format != fileFormat {
		return nil, &CorruptionError{Path: path, Reason: fmt.Sprintf("unexpected format %q", contents.Format)}
	}
	if contents.Version != fileVersion {
		return nil, &CorruptionError{Path: path, Reason: fmt.Sprintf("unsupported version %d", contents.Version)}
	}

	s := NewStore()
	for name, rec := range contents.Records {
		if rec.Fingerprint == "" || rec.ArtifactRef == "" {
			return nil, &CorruptionError{Path: path, Reason: fmt.Sprintf("incomplete record for %q", name)}
		}
		s.records[name] = rec
	}
	return s, nil
}

// Save writes the store to path atomically.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	contents := fileContents{Format: fileFormat, Version: fileVersion, Records: make(map[string]Record, len(s.records))}
	for name, rec := range s.records {
		contents.Records[name] = rec
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}

// ShouldRebuild reports whether the module must be rebuilt for fingerprint.
func (s *Store) ShouldRebuild(name, fingerprint string) bool {
	rec, ok := s.Lookup(name)
	return !ok || rec.Fingerprint != fingerprint
}

// Lookup returns the record of a module.
func (s *Store) Lookup(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	return rec, ok
}

// Put stores the record of a module.
func (s *Store) Put(name string, rec Record) {
	l, _ := s.locks.LoadOrStore(name, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	s.mu.Lock()
	s.records[name] = rec
	s.mu.Unlock()
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// writeFileAtomic writes data to a temporary file in the destination
// directory and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting cache file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming cache file into place: %w", err)
	}
	committed = true
	return nil
}
