// Package store persists evaluation results: a local file cache that the
// results view reads immediately after navigation, and a best-effort remote
// Postgres store for durable history.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prepcall/prepcall/pkg/types"
)

// latestFile is the pointer file naming the most recent session id.
const latestFile = "latest"

// Cache is a local, file-per-session result cache under a state directory.
// It is the client-side equivalent of the results view's local storage: the
// navigation target reads it synchronously, so writes happen before the
// navigation callback fires. Safe for concurrent use.
type Cache struct {
	mu  sync.Mutex
	dir string
}

// NewCache creates the cache directory if needed and returns a Cache.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("store: cache dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Put stores result under its session id and updates the "latest session"
// pointer. The write is atomic (temp file + rename) so a crashed process
// never leaves a half-written result.
func (c *Cache) Put(result *types.EvaluationResult) error {
	if result == nil || result.SessionID == "" {
		return errors.New("store: result with session id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal result: %w", err)
	}
	if err := writeAtomic(c.path(result.SessionID), data); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(c.dir, latestFile), []byte(result.SessionID))
}

// Get returns the cached result for sessionID, or (nil, nil) when absent.
func (c *Cache) Get(sessionID string) (*types.EvaluationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(sessionID)
}

// Latest returns the most recently cached result, or (nil, nil) when the
// cache is empty.
func (c *Cache) Latest() (*types.EvaluationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(c.dir, latestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read latest pointer: %w", err)
	}
	return c.read(strings.TrimSpace(string(data)))
}

func (c *Cache) read(sessionID string) (*types.EvaluationResult, error) {
	data, err := os.ReadFile(c.path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read result %q: %w", sessionID, err)
	}

	var result types.EvaluationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("store: decode result %q: %w", sessionID, err)
	}
	return &result, nil
}

// path returns the file path for a session id, with path separators
// sanitised out of the id.
func (c *Cache) path(sessionID string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, sessionID)
	return filepath.Join(c.dir, name+".json")
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: rename %q: %w", path, err)
	}
	return nil
}
