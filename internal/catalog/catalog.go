// Package catalog records the datasets the publisher writes so a query engine
// can discover their location, schema and partitions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrNotFound       = errors.New("dataset not found")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrUnavailable    = errors.New("catalog unavailable")
)

// Layout of a dataset's objects.
type Layout string

const (
	LayoutPartitioned Layout = "partitioned"
	LayoutFlat        Layout = "flat"
)

// Dataset is the catalog entry for one published table.
type Dataset struct {
	Name          string    `bson:"_id"`
	Database      string    `bson:"database"`
	Location      string    `bson:"location"`
	Format        string    `bson:"format"`
	Layout        Layout    `bson:"layout"`
	Schema        string    `bson:"schema"`
	PartitionKeys []string  `bson:"partition_keys"`
	Version       int64     `bson:"version"`
	RowCount      int64     `bson:"row_count"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

// Partition is one registered Hive partition of a dataset.
type Partition struct {
	Dataset  string            `bson:"dataset"`
	Path     string            `bson:"path"`
	Values   map[string]string `bson:"values"`
	Location string            `bson:"location"`
}

// Commit describes the outcome of one publish.
type Commit struct {
	Partitions []Partition
	// Rows appended for partitioned datasets, or the full row count for flat ones.
	Rows int64
}

// Catalog is the metadata store shared by the publisher and the readers.
type Catalog interface {
	// EnsureDataset creates ds or checks it against the registered entry.
	// Partitioned datasets must keep their schema and partition keys
	// (ErrSchemaMismatch otherwise); flat datasets take the new schema.
	EnsureDataset(ctx context.Context, ds Dataset) (Dataset, error)
	// CommitPublish registers partitions and bumps the dataset version.
	CommitPublish(ctx context.Context, name string, c Commit) (Dataset, error)
	Dataset(ctx context.Context, name string) (Dataset, error)
	Datasets(ctx context.Context) ([]Dataset, error)
	Partitions(ctx context.Context, name string) ([]Partition, error)

	// Watermark returns the high-watermark of a dataset, if one was committed.
	Watermark(ctx context.Context, name string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, name string, t time.Time) error

	Close(ctx context.Context) error
}

// checkCompatible applies the EnsureDataset rules to an existing entry.
func checkCompatible(existing, incoming Dataset) error {
	if existing.Layout != incoming.Layout {
		return fmt.Errorf("%w: dataset %s is %s, publish is %s",
			ErrSchemaMismatch, incoming.Name, existing.Layout, incoming.Layout)
	}
	if incoming.Layout == LayoutFlat {
		return nil
	}
	if existing.Schema != incoming.Schema {
		return fmt.Errorf("%w: dataset %s registered schema differs from published columns",
			ErrSchemaMismatch, incoming.Name)
	}
	if !slices.Equal(existing.PartitionKeys, incoming.PartitionKeys) {
		return fmt.Errorf("%w: dataset %s is partitioned by %v, publish uses %v",
			ErrSchemaMismatch, incoming.Name, existing.PartitionKeys, incoming.PartitionKeys)
	}
	return nil
}
