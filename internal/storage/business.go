package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/opsboard/internal/core"
	"github.com/valter-silva-au/opsboard/pkg/models"
)

// BusinessFile represents the top-level structure of businesses.yaml.
type BusinessFile struct {
	Version    string            `yaml:"version"`
	Businesses []models.Business `yaml:"businesses"`
}

// FileBusinessDirectory reads business accounts from businesses.yaml in the
// base directory. The file is maintained outside opsboard and re-read on
// every call.
type FileBusinessDirectory struct {
	basePath string
}

var _ core.BusinessLookup = (*FileBusinessDirectory)(nil)

// NewFileBusinessDirectory creates a directory rooted at basePath.
func NewFileBusinessDirectory(basePath string) *FileBusinessDirectory {
	return &FileBusinessDirectory{basePath: basePath}
}

func (d *FileBusinessDirectory) filePath() string {
	return filepath.Join(d.basePath, "businesses.yaml")
}

func (d *FileBusinessDirectory) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	bf, err := d.load()
	if err != nil {
		return nil, err
	}
	out := append([]models.Business(nil), bf.Businesses...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *FileBusinessDirectory) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	bf, err := d.load()
	if err != nil {
		return nil, err
	}
	for _, b := range bf.Businesses {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, fmt.Errorf("business %s: %w", id, core.ErrNotFound)
}

func (d *FileBusinessDirectory) load() (*BusinessFile, error) {
	data, err := os.ReadFile(d.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &BusinessFile{Version: "1.0"}, nil
		}
		return nil, fmt.Errorf("loading businesses: %w", err)
	}
	var bf BusinessFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("loading businesses: parsing YAML: %w", err)
	}
	return &bf, nil
}

// CachedBusinessLookup fronts another BusinessLookup with an in-process
// ristretto cache keyed by business id. Listings are not cached.
type CachedBusinessLookup struct {
	next  core.BusinessLookup
	cache *ristretto.Cache[string, models.Business]
	ttl   time.Duration
}

var _ core.BusinessLookup = (*CachedBusinessLookup)(nil)

// NewCachedBusinessLookup wraps next. maxItems bounds the number of cached
// businesses; ttl bounds how stale an entry may be.
func NewCachedBusinessLookup(next core.BusinessLookup, maxItems int64, ttl time.Duration) (*CachedBusinessLookup, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, models.Business]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating business cache: %w", err)
	}
	return &CachedBusinessLookup{next: next, cache: c, ttl: ttl}, nil
}

func (l *CachedBusinessLookup) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	if b, ok := l.cache.Get(id); ok {
		return &b, nil
	}
	b, err := l.next.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.ttl > 0 {
		l.cache.SetWithTTL(id, *b, 1, l.ttl)
	}
	return b, nil
}

func (l *CachedBusinessLookup) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	return l.next.ListBusinesses(ctx)
}

// Wait blocks until pending cache writes are applied.
func (l *CachedBusinessLookup) Wait() {
	l.cache.Wait()
}

// Close shuts down the cache and releases resources.
func (l *CachedBusinessLookup) Close() {
	l.cache.Close()
}
