package etl

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/BartekS5/truckpipe/internal/catalog"
	"github.com/BartekS5/truckpipe/internal/storage"
	"github.com/BartekS5/truckpipe/pkg/clock"
	"github.com/BartekS5/truckpipe/pkg/database"
	"github.com/BartekS5/truckpipe/pkg/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sourceSchema = `
CREATE TABLE DIM_Payment_Method (
	payment_method_id INTEGER PRIMARY KEY,
	payment_method TEXT NOT NULL
);
CREATE TABLE DIM_Truck (
	truck_id INTEGER PRIMARY KEY,
	truck_name TEXT NOT NULL,
	truck_description TEXT,
	has_card_reader INTEGER NOT NULL,
	fsa_rating INTEGER NOT NULL
);
CREATE TABLE FACT_Transaction (
	transaction_id INTEGER PRIMARY KEY,
	truck_id INTEGER NOT NULL,
	payment_method_id INTEGER NOT NULL,
	total INTEGER NOT NULL,
	at TEXT NOT NULL
);
INSERT INTO DIM_Payment_Method VALUES (1, 'cash'), (2, 'card');
`

// newSourceDB creates a sqlite source store with the dimension tables and
// the given fixture statements applied.
func newSourceDB(t *testing.T, fixtures ...string) database.SQLConfig {
	t.Helper()
	cfg := database.SQLConfig{
		Driver: database.DriverSQLite,
		Name:   filepath.Join(t.TempDir(), "source.db"),
	}
	db, err := sql.Open(database.DriverSQLite, cfg.Name)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(sourceSchema)
	require.NoError(t, err)
	for _, stmt := range fixtures {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	return cfg
}

const fiveTrucks = `INSERT INTO DIM_Truck VALUES
	(1, 'Burrito Madness', 'An authentic taste of Mexico.', 1, 4),
	(2, 'Kimchi & Chips', 'Fresh kimchi and chips.', 1, 2),
	(3, 'Cupcakes by Michael', 'Delicious cupcakes.', 0, 5),
	(4, 'Hartmann''s Jellied Eels', 'A taste of the sea.', 1, 4),
	(5, 'Yoghurt Heaven', NULL, 0, 3)`

type testEnv struct {
	store     *storage.LocalStore
	catalog   *catalog.MemoryCatalog
	publisher *Publisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	cat := catalog.NewMemoryCatalog("truck_db")
	runs := 0
	pub := NewPublisher(store, cat, "trucks/input",
		WithPublisherLogger(zaptest.NewLogger(t)),
		WithRunID(func() string {
			runs++
			return fmt.Sprintf("run%d", runs)
		}))
	return &testEnv{store: store, catalog: cat, publisher: pub}
}

// readDataset decodes every file stored under a dataset prefix.
func readDataset[T any](t *testing.T, env *testEnv, dataset string) []T {
	t.Helper()
	ctx := context.Background()
	keys, err := env.store.List(ctx, env.publisher.DatasetKey(dataset)+"/")
	require.NoError(t, err)
	var rows []T
	for _, k := range keys {
		body, err := env.store.Get(ctx, k)
		require.NoError(t, err)
		decoded, err := DecodeParquet[T](body)
		require.NoError(t, err)
		rows = append(rows, decoded...)
	}
	return rows
}

func transactionIDs(txs []models.Transaction) []int64 {
	ids := make([]int64, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.TransactionID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// memorySource serves transaction rows that have occurred by the clock's now.
type memorySource struct {
	rows   []map[string]interface{}
	clock  clock.Clock
	calls  []string
	opened int
	closed int
}

func (m *memorySource) open(ctx context.Context) (Extractor, error) {
	m.opened++
	return &memoryExtractor{src: m}, nil
}

func (m *memorySource) addTransaction(id int64, at time.Time, pence int64) {
	m.rows = append(m.rows, map[string]interface{}{
		"transaction_id":    id,
		"truck_id":          int64(1),
		"payment_method_id": int64(2),
		"total":             pence,
		"at":                at,
		"payment_method":    "card",
		"truck_name":        "Burrito Madness",
		"has_card_reader":   int64(1),
		"fsa_rating":        int64(4),
	})
}

type memoryExtractor struct {
	src *memorySource
}

func (e *memoryExtractor) filter(keep func(time.Time) bool) []map[string]interface{} {
	now := e.src.clock.Now()
	var out []map[string]interface{}
	for _, r := range e.src.rows {
		at := r["at"].(time.Time)
		if !at.After(now) && keep(at) {
			out = append(out, r)
		}
	}
	return out
}

func (e *memoryExtractor) ExtractSince(ctx context.Context, lowerBound time.Time) ([]map[string]interface{}, error) {
	e.src.calls = append(e.src.calls, "since")
	return e.filter(func(at time.Time) bool { return !at.Before(lowerBound) }), nil
}

func (e *memoryExtractor) ExtractAfter(ctx context.Context, watermark time.Time) ([]map[string]interface{}, error) {
	e.src.calls = append(e.src.calls, "after")
	return e.filter(func(at time.Time) bool { return at.After(watermark) }), nil
}

func (e *memoryExtractor) ExtractTable(ctx context.Context, table string) ([]map[string]interface{}, error) {
	return nil, ErrUnknownTable
}

func (e *memoryExtractor) Close() error {
	e.src.closed++
	return nil
}

// unavailableStore fails every write.
type unavailableStore struct {
	*storage.LocalStore
}

func (s unavailableStore) Put(ctx context.Context, key string, body []byte) error {
	return fmt.Errorf("%w: connection reset", storage.ErrUnavailable)
}

// offlineCatalog fails every registration.
type offlineCatalog struct {
	*catalog.MemoryCatalog
}

func (c offlineCatalog) EnsureDataset(ctx context.Context, ds catalog.Dataset) (catalog.Dataset, error) {
	return catalog.Dataset{}, catalog.ErrUnavailable
}
