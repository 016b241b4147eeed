package etl

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/truckpipe/internal/catalog"
	"github.com/BartekS5/truckpipe/internal/storage"
	"github.com/BartekS5/truckpipe/pkg/metrics"
	"github.com/BartekS5/truckpipe/pkg/models"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

const formatParquet = "parquet"

var datasetNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Publisher writes datasets to object storage and registers them in the catalog.
type Publisher struct {
	store   storage.ObjectStore
	catalog catalog.Catalog
	prefix  string
	newID   func() string
	now     func() time.Time
	metrics *metrics.Manager
	log     *zap.Logger
}

type PublisherOption func(*Publisher)

// WithRunID fixes how object name suffixes are generated.
func WithRunID(fn func() string) PublisherOption {
	return func(p *Publisher) { p.newID = fn }
}

func WithPublisherMetrics(m *metrics.Manager) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

func WithPublisherLogger(l *zap.Logger) PublisherOption {
	return func(p *Publisher) { p.log = l }
}

func NewPublisher(store storage.ObjectStore, cat catalog.Catalog, prefix string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:   store,
		catalog: cat,
		prefix:  strings.Trim(prefix, "/"),
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishResult summarizes one publish call.
type PublishResult struct {
	Dataset    string
	Rows       int
	Partitions []string
	Files      []string
	Version    int64
}

// DatasetKey is the object prefix every file of dataset lives under.
func (p *Publisher) DatasetKey(dataset string) string {
	return storage.Key(p.prefix, dataset)
}

// PublishPartitioned appends records to a Hive-partitioned dataset. Every
// partition touched gets one new file; existing files are never rewritten,
// so publishing the same records twice stores them twice.
func (p *Publisher) PublishPartitioned(ctx context.Context, dataset string, records []models.Transaction, partitionColumns []string) (*PublishResult, error) {
	if err := validateDatasetName(dataset); err != nil {
		return nil, err
	}
	if err := validatePartitionColumns(partitionColumns); err != nil {
		return nil, err
	}

	// Registering first rejects incompatible schemas before any upload.
	_, err := p.catalog.EnsureDataset(ctx, catalog.Dataset{
		Name:          dataset,
		Location:      p.store.URI(p.DatasetKey(dataset)),
		Format:        formatParquet,
		Layout:        catalog.LayoutPartitioned,
		Schema:        schemaOf[models.Transaction](),
		PartitionKeys: partitionColumns,
		UpdatedAt:     p.now().UTC(),
	})
	if err != nil {
		return nil, catalogError("register dataset "+dataset, err)
	}

	res := &PublishResult{Dataset: dataset}
	if len(records) == 0 {
		return res, nil
	}

	groups := make(map[string][]models.Transaction)
	values := make(map[string]map[string]string)
	for _, rec := range records {
		path, vals := partitionPath(rec.Partition, partitionColumns)
		groups[path] = append(groups[path], rec)
		values[path] = vals
	}
	paths := make([]string, 0, len(groups))
	for path := range groups {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	runID := p.newID()
	commit := catalog.Commit{Rows: int64(len(records))}
	for _, path := range paths {
		body, err := encodeParquet(groups[path])
		if err != nil {
			return nil, fmt.Errorf("encode partition %s: %w", path, err)
		}
		key := storage.Key(p.DatasetKey(dataset), path, "part-"+runID+".parquet")
		if err := p.store.Put(ctx, key, body); err != nil {
			return nil, fmt.Errorf("upload %s: %w", key, err)
		}
		p.log.Debug("partition written",
			zap.String("dataset", dataset),
			zap.String("key", key),
			zap.Int("rows", len(groups[path])))

		res.Partitions = append(res.Partitions, path)
		res.Files = append(res.Files, key)
		commit.Partitions = append(commit.Partitions, catalog.Partition{
			Dataset:  dataset,
			Path:     path,
			Values:   values[path],
			Location: p.store.URI(storage.Key(p.DatasetKey(dataset), path)),
		})
	}

	ds, err := p.catalog.CommitPublish(ctx, dataset, commit)
	if err != nil {
		return nil, catalogError("commit dataset "+dataset, err)
	}
	res.Rows = len(records)
	res.Version = ds.Version

	p.metrics.AddRowsPublished(dataset, res.Rows)
	p.metrics.AddPartitionsWritten(dataset, len(res.Partitions))
	p.log.Info("partitioned dataset published",
		zap.String("dataset", dataset),
		zap.Int("rows", res.Rows),
		zap.Int("partitions", len(res.Partitions)),
		zap.Int64("version", res.Version))
	return res, nil
}

// PublishFlat replaces a non-partitioned dataset with rows. After it returns
// the dataset holds exactly one file with exactly these rows.
func PublishFlat[T any](ctx context.Context, p *Publisher, dataset string, rows []T) (*PublishResult, error) {
	if err := validateDatasetName(dataset); err != nil {
		return nil, err
	}

	prefix := p.DatasetKey(dataset)
	_, err := p.catalog.EnsureDataset(ctx, catalog.Dataset{
		Name:      dataset,
		Location:  p.store.URI(prefix),
		Format:    formatParquet,
		Layout:    catalog.LayoutFlat,
		Schema:    schemaOf[T](),
		UpdatedAt: p.now().UTC(),
	})
	if err != nil {
		return nil, catalogError("register dataset "+dataset, err)
	}

	body, err := encodeParquet(rows)
	if err != nil {
		return nil, fmt.Errorf("encode dataset %s: %w", dataset, err)
	}
	key := storage.Key(prefix, dataset+"."+formatParquet)
	if err := p.store.Put(ctx, key, body); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	existing, err := p.store.List(ctx, prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	stale := make([]string, 0, len(existing))
	for _, k := range existing {
		if k != key {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		if err := p.store.Delete(ctx, stale...); err != nil {
			return nil, fmt.Errorf("remove stale objects of %s: %w", dataset, err)
		}
	}

	ds, err := p.catalog.CommitPublish(ctx, dataset, catalog.Commit{Rows: int64(len(rows))})
	if err != nil {
		return nil, catalogError("commit dataset "+dataset, err)
	}

	p.metrics.AddRowsPublished(dataset, len(rows))
	p.log.Info("flat dataset replaced",
		zap.String("dataset", dataset),
		zap.Int("rows", len(rows)),
		zap.Int("removed", len(stale)),
		zap.Int64("version", ds.Version))
	return &PublishResult{
		Dataset: dataset,
		Rows:    len(rows),
		Files:   []string{key},
		Version: ds.Version,
	}, nil
}

func validateDatasetName(name string) error {
	if !datasetNamePattern.MatchString(name) {
		return fmt.Errorf("invalid dataset name %q", name)
	}
	return nil
}

func validatePartitionColumns(cols []string) error {
	if len(cols) == 0 {
		return fmt.Errorf("at least one partition column is required")
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if _, err := (models.PartitionKey{}).Value(c); err != nil {
			return err
		}
		if seen[c] {
			return fmt.Errorf("partition column %q listed twice", c)
		}
		seen[c] = true
	}
	return nil
}

// partitionPath renders the Hive path of key, e.g. year=2024/month=1.
func partitionPath(key models.PartitionKey, cols []string) (string, map[string]string) {
	segments := make([]string, 0, len(cols))
	values := make(map[string]string, len(cols))
	for _, c := range cols {
		v, _ := key.Value(c)
		s := strconv.Itoa(v)
		segments = append(segments, c+"="+s)
		values[c] = s
	}
	return strings.Join(segments, "/"), values
}

func schemaOf[T any]() string {
	return parquet.SchemaOf(new(T)).String()
}

func encodeParquet[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf, parquet.Compression(&parquet.Snappy))
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeParquet reads every row of a Parquet file.
func DecodeParquet[T any](body []byte) ([]T, error) {
	return parquet.Read[T](bytes.NewReader(body), int64(len(body)))
}
