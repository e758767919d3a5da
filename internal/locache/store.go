package locache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCacheCorrupt marks a cache file that could not be parsed. Load recovers
// from it locally; it is only surfaced through Inspect.
var ErrCacheCorrupt = eris.New("locache: cache file corrupt")

// Store loads and saves the full set of entries.
type Store interface {
	Load(ctx context.Context) (Entries, error)
	Save(ctx context.Context, entries Entries) error
}

// FileStore keeps entries in a single JSON object keyed by address key.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the cache file. A missing file yields an empty map; an
// unparseable one is logged and also yields an empty map so the run can
// rebuild the cache from scratch.
func (s *FileStore) Load(_ context.Context) (Entries, error) {
	entries, err := s.Inspect()
	switch {
	case err == nil:
		zap.L().Info("loaded location cache",
			zap.String("path", s.path),
			zap.Int("entries", len(entries)),
		)
		return entries, nil
	case eris.Is(err, ErrCacheCorrupt):
		zap.L().Warn("location cache corrupt, starting fresh",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return Entries{}, nil
	default:
		return nil, err
	}
}

// Inspect is Load without recovery: it reports ErrCacheCorrupt instead of
// discarding a bad file. A missing file is still an empty map.
func (s *FileStore) Inspect() (Entries, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entries{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "locache: read %s", s.path)
	}
	return decode(data)
}

// Save writes every entry, replacing the previous file atomically. Parent
// directories are created as needed.
func (s *FileStore) Save(_ context.Context, entries Entries) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "locache: create dir %s", dir)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "locache: marshal entries")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "locache: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "locache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "locache: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return eris.Wrapf(err, "locache: replace %s", s.path)
	}
	return nil
}

// nanLiteral matches bare NaN values that Python's json module emits for
// missing station fields.
var nanLiteral = regexp.MustCompile(`:\s*-?NaN\b`)

func decode(data []byte) (Entries, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, eris.Wrap(ErrCacheCorrupt, "empty file")
	}
	data = nanLiteral.ReplaceAll(data, []byte(": null"))

	var entries Entries
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(ErrCacheCorrupt, "%v", err)
	}
	if entries == nil {
		entries = Entries{}
	}
	return entries, nil
}

// MemoryStore is an in-process Store. Saves are recorded so callers can
// assert on flush cadence.
type MemoryStore struct {
	mu      sync.Mutex
	entries Entries
	saves   int
}

// NewMemoryStore returns a MemoryStore seeded with entries.
func NewMemoryStore(entries Entries) *MemoryStore {
	if entries == nil {
		entries = Entries{}
	}
	return &MemoryStore{entries: entries.Clone()}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (Entries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Clone(), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, entries Entries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
