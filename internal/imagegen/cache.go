package imagegen

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Cache provides file-based caching for rendered heatmaps.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates a cache in dir. Entries older than maxAge are treated as
// missing, so heatmaps for re-imported datasets are eventually redrawn.
func NewCache(dir string, maxAge time.Duration) *Cache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		// cache is optional; Set will fail and rendering continues uncached
		log.Printf("imagegen: could not create cache directory: %v", err)
	}
	return &Cache{dir: dir, maxAge: maxAge}
}

// Key derives a file-safe cache key from request parameters.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, "heatmap_"+key+".png")
}

// Get returns a cached image if it exists and is not stale.
func (c *Cache) Get(key string) ([]byte, bool) {
	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores an image in the cache.
func (c *Cache) Set(key string, data []byte) error {
	return os.WriteFile(c.path(key), data, 0644)
}

// Purge removes every cached image, for example after a dataset changes.
func (c *Cache) Purge() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".png" {
			if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
