package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryCatalog keeps catalog state in process. It backs tests and local
// single-process runs (pipeline + report in one `serve`).
type MemoryCatalog struct {
	database string

	mu         sync.RWMutex
	datasets   map[string]Dataset
	partitions map[string]map[string]Partition
	watermarks map[string]time.Time
}

func NewMemoryCatalog(database string) *MemoryCatalog {
	return &MemoryCatalog{
		database:   database,
		datasets:   make(map[string]Dataset),
		partitions: make(map[string]map[string]Partition),
		watermarks: make(map[string]time.Time),
	}
}

func (c *MemoryCatalog) EnsureDataset(ctx context.Context, ds Dataset) (Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ds.Database = c.database
	existing, ok := c.datasets[ds.Name]
	if !ok {
		ds.Version = 0
		ds.UpdatedAt = time.Now().UTC()
		c.datasets[ds.Name] = ds
		return cloneDataset(ds), nil
	}
	if err := checkCompatible(existing, ds); err != nil {
		return Dataset{}, err
	}
	existing.Location = ds.Location
	existing.Format = ds.Format
	existing.Schema = ds.Schema
	c.datasets[ds.Name] = existing
	return cloneDataset(existing), nil
}

func (c *MemoryCatalog) CommitPublish(ctx context.Context, name string, commit Commit) (Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ds, ok := c.datasets[name]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	parts := c.partitions[name]
	if parts == nil {
		parts = make(map[string]Partition)
		c.partitions[name] = parts
	}
	for _, p := range commit.Partitions {
		p.Dataset = name
		parts[p.Path] = p
	}

	if ds.Layout == LayoutFlat {
		ds.RowCount = commit.Rows
	} else {
		ds.RowCount += commit.Rows
	}
	ds.Version++
	ds.UpdatedAt = time.Now().UTC()
	c.datasets[name] = ds
	return cloneDataset(ds), nil
}

func (c *MemoryCatalog) Dataset(ctx context.Context, name string) (Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ds, ok := c.datasets[name]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return cloneDataset(ds), nil
}

func (c *MemoryCatalog) Datasets(ctx context.Context) ([]Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Dataset, 0, len(c.datasets))
	for _, ds := range c.datasets {
		out = append(out, cloneDataset(ds))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *MemoryCatalog) Partitions(ctx context.Context, name string) ([]Partition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.datasets[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	out := make([]Partition, 0, len(c.partitions[name]))
	for _, p := range c.partitions[name] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *MemoryCatalog) Watermark(ctx context.Context, name string) (time.Time, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.watermarks[name]
	return t, ok, nil
}

func (c *MemoryCatalog) SetWatermark(ctx context.Context, name string, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.watermarks[name] = t.UTC()
	return nil
}

func (c *MemoryCatalog) Close(ctx context.Context) error {
	return nil
}

func cloneDataset(ds Dataset) Dataset {
	ds.PartitionKeys = append([]string(nil), ds.PartitionKeys...)
	return ds
}
