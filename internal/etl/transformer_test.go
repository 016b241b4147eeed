package etl

import (
	"testing"
	"time"

	"github.com/BartekS5/truckpipe/pkg/clock"
	"github.com/BartekS5/truckpipe/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPounds(t *testing.T) {
	cases := map[int64]string{
		0:       "0",
		1:       "0.01",
		200:     "2",
		9999:    "99.99",
		1234567: "12345.67",
	}
	for minor, want := range cases {
		got := ToPounds(minor)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "ToPounds(%d) = %s", minor, got)
		assert.Equal(t, minor, got.Mul(decimal.NewFromInt(100)).IntPart(), "round trip of %d", minor)
	}
}

func TestComputeBatchWindow(t *testing.T) {
	c := clock.NewFakeClock(time.Date(2024, 1, 2, 1, 0, 0, 750_000_000, time.UTC))

	bound := ComputeBatchWindow(c, 3)
	assert.True(t, bound.Equal(time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)), "bound = %s", bound)

	// Truncation only moves the bound earlier.
	assert.False(t, bound.After(c.Now().Add(-3*time.Hour)))
}

func TestDerivePartitionColumns(t *testing.T) {
	local := time.FixedZone("UTC+2", 2*60*60)
	txs := []models.Transaction{
		{TransactionID: 1, At: time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)},
		{TransactionID: 2, At: time.Date(2024, 1, 2, 1, 30, 0, 0, local)},
		{TransactionID: 3, At: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
	}

	first := DerivePartitionColumns(txs)
	second := DerivePartitionColumns(txs)
	assert.Equal(t, first, second)

	assert.Equal(t, models.PartitionKey{Year: 2024, Month: 1, Day: 1, Hour: 23}, first[0].Partition)
	assert.Equal(t, models.PartitionKey{Year: 2024, Month: 1, Day: 1, Hour: 23}, first[1].Partition)
	assert.Equal(t, models.PartitionKey{Year: 2024, Month: 2, Day: 29, Hour: 0}, first[2].Partition)

	for _, tx := range first {
		start := tx.Partition.Start()
		assert.True(t, start.Equal(tx.At.Truncate(time.Hour)), "start of %s = %s", tx.At, start)
		assert.Equal(t, time.UTC, tx.At.Location())
	}
	assert.True(t, txs[1].Partition == models.PartitionKey{}, "input must not be modified")
}

func TestTransformTransactions(t *testing.T) {
	rows := []map[string]interface{}{
		{
			"transaction_id":    int64(7),
			"truck_id":          int64(3),
			"payment_method_id": []byte("2"),
			"total":             int64(9999),
			"at":                "2024-01-02 00:30:00",
			"payment_method":    "card",
			"truck_name":        []byte("Cupcakes by Michael"),
			"has_card_reader":   []byte{1},
			"fsa_rating":        int32(5),
		},
	}

	records, err := TransformTransactions(rows)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.TransactionRecord{
		TransactionID:   7,
		AmountMinor:     9999,
		OccurredAt:      time.Date(2024, 1, 2, 0, 30, 0, 0, time.UTC),
		PaymentMethodID: 2,
		PaymentMethod:   "card",
		TruckID:         3,
		TruckName:       "Cupcakes by Michael",
		HasCardReader:   true,
		FSARating:       5,
	}, records[0])

	txs, err := NewTransformer(nil).Transactions(rows)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.InDelta(t, 99.99, txs[0].Total, 1e-9)
	assert.Equal(t, models.PartitionKey{Year: 2024, Month: 1, Day: 2, Hour: 0}, txs[0].Partition)
}

func TestTransformRejectsIncompleteRows(t *testing.T) {
	_, err := TransformTransactions([]map[string]interface{}{
		{"transaction_id": int64(1), "total": int64(100)},
	})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = TransformTransactions([]map[string]interface{}{
		{
			"transaction_id": int64(1), "truck_id": int64(1), "payment_method_id": int64(1),
			"total": int64(100), "at": "not a time", "payment_method": "cash",
			"truck_name": "x", "has_card_reader": int64(0), "fsa_rating": int64(1),
		},
	})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = TransformPaymentMethods([]map[string]interface{}{{"payment_method": "cash"}})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestTransformTrucksAllowsMissingDescription(t *testing.T) {
	trucks, err := TransformTrucks([]map[string]interface{}{
		{"truck_id": int64(5), "truck_name": "Yoghurt Heaven", "truck_description": nil, "has_card_reader": false, "fsa_rating": int64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.Truck{{TruckID: 5, TruckName: "Yoghurt Heaven", FSARating: 3}}, trucks)
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	ok := models.TransactionRecord{TransactionID: 1, AmountMinor: 0, OccurredAt: time.Unix(0, 1)}
	assert.NoError(t, v.ValidateTransaction(ok))

	refund := models.TransactionRecord{TransactionID: 1, AmountMinor: -5, OccurredAt: time.Unix(0, 1)}
	assert.NoError(t, v.ValidateTransaction(refund))

	bad := []models.TransactionRecord{
		{TransactionID: 0, OccurredAt: time.Unix(0, 1)},
		{TransactionID: 1},
	}
	for _, rec := range bad {
		assert.ErrorIs(t, v.ValidateTransaction(rec), ErrInvalidRecord)
	}

	v.RejectNegativeTotals = true
	assert.ErrorIs(t, v.ValidateTransaction(refund), ErrInvalidRecord)

	assert.ErrorIs(t, v.ValidateTruck(models.Truck{}), ErrInvalidRecord)
	assert.ErrorIs(t, v.ValidatePaymentMethod(models.PaymentMethod{PaymentMethodID: 1}), ErrInvalidRecord)
}
