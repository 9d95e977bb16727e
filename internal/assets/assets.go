// Package assets resolves asset paths against ordered sources and caches
// the bytes it reads.
package assets

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when no source holds the requested path.
var ErrNotFound = errors.New("asset not found")

// Source is a place assets can be read from.
type Source interface {
	Name() string
	Read(ctx context.Context, name string) ([]byte, error)
}

// DirSource reads assets below a directory on disk.
type DirSource struct {
	Root string
}

// Name returns the root directory.
func (d DirSource) Name() string { return d.Root }

// Read reads name relative to Root.
func (d DirSource) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// FSSource reads assets from an fs.FS, e.g. an embed.FS or fstest.MapFS.
type FSSource struct {
	Label string
	FS    fs.FS
}

// Name returns the label.
func (f FSSource) Name() string { return f.Label }

// Read reads name from the file system.
func (f FSSource) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(f.FS, strings.TrimPrefix(path.Clean(name), "/"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// Manager handles asset loading from ordered sources.
type Manager struct {
	sources []Source
	cache   *Cache
	mu      sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager(sources ...Source) *Manager {
	return &Manager{
		sources: sources,
		cache:   NewCache(),
	}
}

// AddSource adds a source to the manager.
// Sources are searched in reverse order (last added = highest priority).
func (m *Manager) AddSource(s Source) {
	m.mu.Lock()
	m.sources = append(m.sources, s)
	m.mu.Unlock()
}

// AddDir adds a directory source.
func (m *Manager) AddDir(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("opening asset dir %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("asset root %s is not a directory", root)
	}
	m.AddSource(DirSource{Root: root})
	return nil
}

// Fetch returns the contents of name. Paths ending in .gz are inflated
// when the stored bytes are gzip compressed.
func (m *Manager) Fetch(ctx context.Context, name string) ([]byte, error) {
	if data, ok := m.cache.Get(name); ok {
		return data, nil
	}

	m.mu.RLock()
	sources := append([]Source(nil), m.sources...)
	m.mu.RUnlock()

	for i := len(sources) - 1; i >= 0; i-- {
		data, err := sources[i].Read(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s from %s: %w", name, sources[i].Name(), err)
		}
		if strings.HasSuffix(name, ".gz") {
			if data, err = inflate(data); err != nil {
				return nil, fmt.Errorf("inflating %s: %w", name, err)
			}
		}
		m.cache.Set(name, data)
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Invalidate drops name from the cache so the next Fetch rereads it.
func (m *Manager) Invalidate(name string) {
	m.cache.Delete(name)
}

// Stats returns cache statistics.
func (m *Manager) Stats() (hits, misses int) {
	return m.cache.Stats()
}

// Close drops all sources and cached data.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = nil
	m.cache.Clear()
}

func inflate(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Delete removes an item.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
