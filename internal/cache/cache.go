// Package cache persists keyed inference responses to a JSON file with
// a TTL. It exists purely as an optimization: every failure mode, from
// a missing file to corrupt JSON to a failed write, degrades to a cache
// miss and never reaches the caller as an error.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultTTL is how long a cached response stays usable.
const DefaultTTL = 30 * 24 * time.Hour

type entry struct {
	Response  json.RawMessage `json:"response"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
}

// Cache is a file-backed response cache with an in-memory mirror. The
// file is loaded lazily on first access; every mutation is written
// through before the call returns. All read-modify-write cycles are
// serialized through one mutex so racing writers cannot lose each
// other's entries.
type Cache struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	loaded  bool
	entries map[string]entry
}

// Option adjusts cache construction.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a cache persisting to path. The file is not touched until
// first use.
func New(path string, opts ...Option) *Cache {
	c := &Cache{path: path, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached response for key, if present and fresh. An
// entry past its TTL is deleted from disk as a side effect of the read,
// then reported absent.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		c.persist()
		return nil, false
	}
	return e.Response, true
}

// Set stores value under key with the current timestamp and persists
// the whole cache. Write failures are silently dropped.
func (c *Cache) Set(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	c.entries[key] = entry{
		Response:  value,
		Timestamp: c.now().UnixMilli(),
	}
	c.persist()
}

// CleanupAll removes every expired entry in one batch write and reports
// how many were purged.
func (c *Cache) CleanupAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	removed := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.persist()
	}
	return removed
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()
	return len(c.entries)
}

func (c *Cache) expired(e entry) bool {
	age := c.now().Sub(time.UnixMilli(e.Timestamp))
	return age > c.ttl
}

// load reads the backing file once per process lifetime. A missing or
// unreadable file, or one with an unexpected shape, is an empty cache,
// never an error. Callers must hold mu.
func (c *Cache) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	c.entries = make(map[string]entry)

	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var raw map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	c.entries = raw
}

// persist writes the whole cache atomically (tmp file + rename).
// Best-effort: a failed write leaves the previous file intact and the
// in-memory mirror authoritative. Callers must hold mu.
func (c *Cache) persist() {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, c.path)
}
