package providers

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileCache is a TTL'd JSON cache keyed by source, method, and params.
// It keeps repeated watchlist runs from hammering the upstream APIs.
type fileCache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

func newFileCache(dir string, ttl time.Duration, enabled bool) *fileCache {
	return &fileCache{dir: dir, ttl: ttl, enabled: enabled}
}

func (c *fileCache) key(source, method string, params any) string {
	data, _ := json.Marshal(params)
	return fmt.Sprintf("%s_%s_%x.json", source, method, md5.Sum(data))
}

// Lookup fills result from a fresh cache entry, reporting a hit. Expired
// entries are removed on the way out.
func (c *fileCache) Lookup(source, method string, params, result any) bool {
	if !c.enabled {
		return false
	}
	path := filepath.Join(c.dir, c.key(source, method, params))

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > c.ttl {
		os.Remove(path)
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, result) == nil
}

// Store writes a cache entry, creating the directory on first use.
func (c *fileCache) Store(source, method string, params, data any) error {
	if !c.enabled {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, c.key(source, method, params)), blob, 0o644)
}
