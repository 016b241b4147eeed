package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BartekS5/truckpipe/internal/catalog"
	"github.com/BartekS5/truckpipe/internal/etl"
	"github.com/BartekS5/truckpipe/internal/query"
	"github.com/BartekS5/truckpipe/internal/storage"
	"github.com/BartekS5/truckpipe/pkg/clock"
	"github.com/BartekS5/truckpipe/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeQuerier struct {
	result *query.Result
	err    error
	calls  int
	args   []interface{}
}

func (f *fakeQuerier) Query(ctx context.Context, database, sql string, args ...interface{}) (*query.Result, error) {
	f.calls++
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func dayRows() *query.Result {
	return &query.Result{
		Columns: []string{"value", "payment_method", "truck_name"},
		Rows: []map[string]interface{}{
			{"value": 2.0, "payment_method": "cash", "truck_name": "Burrito Madness"},
			{"value": 3.5, "payment_method": "card", "truck_name": "Burrito Madness"},
			{"value": 99.99, "payment_method": "card", "truck_name": "Kimchi & Chips"},
		},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSummarize(t *testing.T) {
	q := &fakeQuerier{result: dayRows()}
	g := NewGenerator(q, "truck_db", WithLogger(zaptest.NewLogger(t)))

	s, err := g.Summarize(context.Background(), time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2024, 1, 1}, q.args)

	assert.Equal(t, 3, s.TotalTransactions)
	assert.True(t, s.TotalRevenue.Equal(dec("105.49")), s.TotalRevenue.String())
	assert.Equal(t, []PaymentCount{
		{PaymentMethod: "card", Transactions: 2},
		{PaymentMethod: "cash", Transactions: 1},
	}, s.PaymentMethods)

	require.Len(t, s.Trucks, 2)
	assert.Equal(t, "Burrito Madness", s.Trucks[0].TruckName)
	assert.Equal(t, 2, s.Trucks[0].Transactions)
	assert.True(t, s.Trucks[0].Revenue.Equal(dec("5.5")))
	assert.True(t, s.Trucks[0].AverageValue.Equal(dec("2.75")))
	assert.Equal(t, "Kimchi & Chips", s.Trucks[1].TruckName)
	assert.True(t, s.Trucks[1].AverageValue.Equal(dec("99.99")))
}

func TestSummarizeEmptyDay(t *testing.T) {
	g := NewGenerator(&fakeQuerier{result: &query.Result{}}, "truck_db")
	s, err := g.Summarize(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, s.TotalTransactions)
	assert.True(t, s.TotalRevenue.IsZero())
	assert.Empty(t, s.Trucks)
}

func TestPreviousDay(t *testing.T) {
	g := NewGenerator(&fakeQuerier{}, "truck_db",
		WithClock(clock.NewFakeClock(time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC))))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), g.PreviousDay())
}

func TestHandle(t *testing.T) {
	g := NewGenerator(&fakeQuerier{result: dayRows()}, "truck_db",
		WithClock(clock.NewFakeClock(time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC))))

	resp, err := g.HandlePreviousDay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.HTML, "T3 Report - 2024-01-01")
	assert.Contains(t, resp.HTML, "Total revenue £105.49")
	assert.Contains(t, resp.HTML, "Total transactions 3")
	assert.Contains(t, resp.HTML, "Kimchi &amp; Chips")
	assert.Contains(t, resp.HTML, "<td>5.50</td><td>2.75</td>")

	failing := NewGenerator(&fakeQuerier{err: errors.New("engine down")}, "truck_db")
	resp, err = failing.Handle(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Contains(t, resp.HTML, "could not be generated")
}

func TestSummarizeOverPublishedDataset(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	cat := catalog.NewMemoryCatalog("truck_db")
	pub := etl.NewPublisher(store, cat, "trucks/input")

	_, err = pub.PublishPartitioned(ctx, "transaction", etl.DerivePartitionColumns([]models.Transaction{
		{TransactionID: 1, Total: 2, At: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), PaymentMethod: "cash", TruckName: "Burrito Madness"},
		{TransactionID: 2, Total: 99.99, At: time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC), PaymentMethod: "card", TruckName: "Kimchi & Chips"},
		{TransactionID: 3, Total: 7, At: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), PaymentMethod: "card", TruckName: "Kimchi & Chips"},
	}), models.PartitionColumns)
	require.NoError(t, err)

	engine, err := query.OpenDuckDB(ctx, cat)
	require.NoError(t, err)
	defer engine.Close()

	g := NewGenerator(engine, "truck_db")
	s, err := g.Summarize(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalTransactions)
	assert.True(t, s.TotalRevenue.Equal(dec("101.99")), s.TotalRevenue.String())
}
