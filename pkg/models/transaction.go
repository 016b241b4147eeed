package models

import (
	"fmt"
	"time"
)

// TransactionRecord is a sale as read from the operational store, with the
// lookup columns denormalized at read time.
type TransactionRecord struct {
	TransactionID   int64
	AmountMinor     int64 // pence
	OccurredAt      time.Time
	PaymentMethodID int64
	PaymentMethod   string
	TruckID         int64
	TruckName       string
	HasCardReader   bool
	FSARating       int64
}

// Transaction is the published row of the transaction dataset. The partition
// key is encoded in the object path, not in the file.
type Transaction struct {
	TransactionID   int64     `parquet:"transaction_id"`
	TruckID         int64     `parquet:"truck_id"`
	PaymentMethodID int64     `parquet:"payment_method_id"`
	Total           float64   `parquet:"total"` // pounds
	At              time.Time `parquet:"at,timestamp(millisecond)"`
	PaymentMethod   string    `parquet:"payment_method"`
	TruckName       string    `parquet:"truck_name"`
	HasCardReader   bool      `parquet:"has_card_reader"`
	FSARating       int64     `parquet:"fsa_rating"`

	Partition PartitionKey `parquet:"-"`
}

// PartitionKey is the (year, month, day, hour) placement of a row.
type PartitionKey struct {
	Year  int
	Month int
	Day   int
	Hour  int
}

// PartitionColumns is the full Hive partition layout of the transaction dataset.
var PartitionColumns = []string{"year", "month", "day", "hour"}

// PartitionKeyOf derives the key from t in UTC.
func PartitionKeyOf(t time.Time) PartitionKey {
	u := t.UTC()
	return PartitionKey{
		Year:  u.Year(),
		Month: int(u.Month()),
		Day:   u.Day(),
		Hour:  u.Hour(),
	}
}

// Start returns the first instant of the hour the key names.
func (k PartitionKey) Start() time.Time {
	return time.Date(k.Year, time.Month(k.Month), k.Day, k.Hour, 0, 0, 0, time.UTC)
}

// Value returns the key component for a partition column name.
func (k PartitionKey) Value(column string) (int, error) {
	switch column {
	case "year":
		return k.Year, nil
	case "month":
		return k.Month, nil
	case "day":
		return k.Day, nil
	case "hour":
		return k.Hour, nil
	default:
		return 0, fmt.Errorf("unknown partition column %q", column)
	}
}
