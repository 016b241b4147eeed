package etl

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/BartekS5/truckpipe/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeTransactions = `INSERT INTO FACT_Transaction VALUES
	(1, 1, 1, 150, '2024-01-01 21:00:00'),
	(2, 2, 1, 200, '2024-01-01 23:15:00'),
	(3, 3, 2, 9999, '2024-01-02 00:30:00')`

func TestSQLExtractorExtractSince(t *testing.T) {
	ctx := context.Background()
	cfg := newSourceDB(t, fiveTrucks, threeTransactions)

	ext, err := Connect(ctx, cfg, time.Second)
	require.NoError(t, err)
	defer ext.Close()

	rows, err := ext.ExtractSince(ctx, time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	records, err := TransformTransactions(rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), records[0].TransactionID)
	assert.Equal(t, "cash", records[0].PaymentMethod)
	assert.Equal(t, "Kimchi & Chips", records[0].TruckName)
	assert.Equal(t, int64(3), records[1].TransactionID)
	assert.Equal(t, "card", records[1].PaymentMethod)
	assert.False(t, records[1].HasCardReader)

	// The bound is inclusive.
	rows, err = ext.ExtractSince(ctx, time.Date(2024, 1, 1, 23, 15, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSQLExtractorExtractAfter(t *testing.T) {
	ctx := context.Background()
	cfg := newSourceDB(t, fiveTrucks, threeTransactions)

	ext, err := Connect(ctx, cfg, 0)
	require.NoError(t, err)
	defer ext.Close()

	rows, err := ext.ExtractAfter(ctx, time.Date(2024, 1, 1, 23, 15, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	records, err := TransformTransactions(rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), records[0].TransactionID)
}

func TestSQLExtractorExtractAfterFractionalSeconds(t *testing.T) {
	ctx := context.Background()
	cfg := newSourceDB(t, fiveTrucks, `INSERT INTO FACT_Transaction VALUES
	(1, 1, 1, 100, '2024-01-01 23:50:00.250'),
	(2, 2, 1, 200, '2024-01-01 23:50:00.500'),
	(3, 3, 2, 300, '2024-01-01 23:50:01')`)

	ext, err := Connect(ctx, cfg, 0)
	require.NoError(t, err)
	defer ext.Close()

	rows, err := ext.ExtractAfter(ctx, time.Date(2024, 1, 1, 23, 50, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = ext.ExtractAfter(ctx, time.Date(2024, 1, 1, 23, 50, 0, 500*int(time.Millisecond), time.UTC))
	require.NoError(t, err)
	records, err := TransformTransactions(rows)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(3), records[0].TransactionID)
}

func TestSQLExtractorExtractTable(t *testing.T) {
	ctx := context.Background()
	cfg := newSourceDB(t, fiveTrucks)

	ext, err := Connect(ctx, cfg, 0)
	require.NoError(t, err)
	defer ext.Close()

	rows, err := ext.ExtractTable(ctx, TableTruck)
	require.NoError(t, err)
	trucks, err := TransformTrucks(rows)
	require.NoError(t, err)
	require.Len(t, trucks, 5)
	assert.Equal(t, "Hartmann's Jellied Eels", trucks[3].TruckName)
	assert.Equal(t, "", trucks[4].TruckDescription)

	rows, err = ext.ExtractTable(ctx, TablePaymentMethod)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ext.ExtractTable(ctx, "FACT_Transaction; DROP TABLE DIM_Truck")
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestSQLExtractorErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Connect(ctx, database.SQLConfig{Driver: "oracle"}, 0)
	assert.ErrorIs(t, err, ErrConnection)

	// A store without the expected tables fails at query time.
	ext, err := Connect(ctx, database.SQLConfig{
		Driver: database.DriverSQLite,
		Name:   filepath.Join(t.TempDir(), "empty.db"),
	}, 0)
	require.NoError(t, err)
	defer ext.Close()

	_, err = ext.ExtractSince(ctx, time.Now())
	assert.ErrorIs(t, err, ErrQuery)
}

func TestWithExtractorReleasesConnection(t *testing.T) {
	ctx := context.Background()
	src := &memorySource{}

	err := WithExtractor(ctx, src.open, func(Extractor) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, src.closed)

	boom := errors.New("boom")
	err = WithExtractor(ctx, src.open, func(Extractor) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, src.closed)

	assert.Panics(t, func() {
		_ = WithExtractor(ctx, src.open, func(Extractor) error { panic("extract") })
	})
	assert.Equal(t, 3, src.closed)
	assert.Equal(t, src.opened, src.closed)

	failing := func(context.Context) (Extractor, error) { return nil, ErrConnection }
	called := false
	err = WithExtractor(ctx, failing, func(Extractor) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrConnection)
	assert.False(t, called)
}
