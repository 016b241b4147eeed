package etl

import (
	"fmt"
	"time"

	"github.com/BartekS5/truckpipe/pkg/clock"
	"github.com/BartekS5/truckpipe/pkg/models"
	"github.com/BartekS5/truckpipe/pkg/utils"
	"github.com/shopspring/decimal"
)

// ToPounds converts pence to pounds exactly.
func ToPounds(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// ComputeBatchWindow returns the lower bound of the extraction window,
// truncated to whole seconds.
func ComputeBatchWindow(c clock.Clock, intervalHours int) time.Time {
	now := c.Now().UTC()
	return now.Add(-time.Duration(intervalHours) * time.Hour).Truncate(time.Second)
}

// DerivePartitionColumns returns a copy of txs with every partition key set
// from the row's timestamp.
func DerivePartitionColumns(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	for i, tx := range txs {
		tx.At = tx.At.UTC()
		tx.Partition = models.PartitionKeyOf(tx.At)
		out[i] = tx
	}
	return out
}

type Transformer struct {
	Validator *Validator
}

func NewTransformer(v *Validator) *Transformer {
	if v == nil {
		v = NewValidator()
	}
	return &Transformer{Validator: v}
}

// Transactions turns extracted rows into publishable transactions with
// totals in pounds and partition keys derived.
func (t *Transformer) Transactions(rows []map[string]interface{}) ([]models.Transaction, error) {
	records, err := TransformTransactions(rows)
	if err != nil {
		return nil, err
	}

	txs := make([]models.Transaction, 0, len(records))
	for _, rec := range records {
		if err := t.Validator.ValidateTransaction(rec); err != nil {
			return nil, err
		}
		txs = append(txs, models.Transaction{
			TransactionID:   rec.TransactionID,
			TruckID:         rec.TruckID,
			PaymentMethodID: rec.PaymentMethodID,
			Total:           ToPounds(rec.AmountMinor).InexactFloat64(),
			At:              rec.OccurredAt,
			PaymentMethod:   rec.PaymentMethod,
			TruckName:       rec.TruckName,
			HasCardReader:   rec.HasCardReader,
			FSARating:       rec.FSARating,
		})
	}
	return DerivePartitionColumns(txs), nil
}

func (t *Transformer) Trucks(rows []map[string]interface{}) ([]models.Truck, error) {
	trucks, err := TransformTrucks(rows)
	if err != nil {
		return nil, err
	}
	for _, tr := range trucks {
		if err := t.Validator.ValidateTruck(tr); err != nil {
			return nil, err
		}
	}
	return trucks, nil
}

func (t *Transformer) PaymentMethods(rows []map[string]interface{}) ([]models.PaymentMethod, error) {
	methods, err := TransformPaymentMethods(rows)
	if err != nil {
		return nil, err
	}
	for _, pm := range methods {
		if err := t.Validator.ValidatePaymentMethod(pm); err != nil {
			return nil, err
		}
	}
	return methods, nil
}

// TransformTransactions converts joined transaction rows into records.
func TransformTransactions(rows []map[string]interface{}) ([]models.TransactionRecord, error) {
	out := make([]models.TransactionRecord, 0, len(rows))
	for i, row := range rows {
		r := rowReader{row: row, index: i}
		rec := models.TransactionRecord{
			TransactionID:   r.integer("transaction_id"),
			AmountMinor:     r.integer("total"),
			OccurredAt:      r.timestamp("at"),
			PaymentMethodID: r.integer("payment_method_id"),
			PaymentMethod:   r.text("payment_method"),
			TruckID:         r.integer("truck_id"),
			TruckName:       r.text("truck_name"),
			HasCardReader:   r.boolean("has_card_reader"),
			FSARating:       r.integer("fsa_rating"),
		}
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, rec)
	}
	return out, nil
}

func TransformTrucks(rows []map[string]interface{}) ([]models.Truck, error) {
	out := make([]models.Truck, 0, len(rows))
	for i, row := range rows {
		r := rowReader{row: row, index: i}
		tr := models.Truck{
			TruckID:          r.integer("truck_id"),
			TruckName:        r.text("truck_name"),
			TruckDescription: r.optionalText("truck_description"),
			HasCardReader:    r.boolean("has_card_reader"),
			FSARating:        r.integer("fsa_rating"),
		}
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, tr)
	}
	return out, nil
}

func TransformPaymentMethods(rows []map[string]interface{}) ([]models.PaymentMethod, error) {
	out := make([]models.PaymentMethod, 0, len(rows))
	for i, row := range rows {
		r := rowReader{row: row, index: i}
		pm := models.PaymentMethod{
			PaymentMethodID: r.integer("payment_method_id"),
			PaymentMethod:   r.text("payment_method"),
		}
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, pm)
	}
	return out, nil
}

// rowReader converts columns of one row and keeps the first failure.
type rowReader struct {
	row   map[string]interface{}
	index int
	err   error
}

func (r *rowReader) value(col string) (interface{}, bool) {
	if r.err != nil {
		return nil, false
	}
	val, ok := r.row[col]
	if !ok || val == nil {
		r.err = fmt.Errorf("%w: row %d: column %s is missing", ErrInvalidRecord, r.index, col)
		return nil, false
	}
	return val, true
}

func (r *rowReader) fail(col string, err error) {
	r.err = fmt.Errorf("%w: row %d: column %s: %v", ErrInvalidRecord, r.index, col, err)
}

func (r *rowReader) integer(col string) int64 {
	val, ok := r.value(col)
	if !ok {
		return 0
	}
	n, err := utils.ConvertToInt64(val)
	if err != nil {
		r.fail(col, err)
	}
	return n
}

func (r *rowReader) boolean(col string) bool {
	val, ok := r.value(col)
	if !ok {
		return false
	}
	b, err := utils.ConvertToBool(val)
	if err != nil {
		r.fail(col, err)
	}
	return b
}

func (r *rowReader) timestamp(col string) time.Time {
	val, ok := r.value(col)
	if !ok {
		return time.Time{}
	}
	t, err := utils.ConvertDateTime(val)
	if err != nil {
		r.fail(col, err)
	}
	return t
}

func (r *rowReader) text(col string) string {
	val, ok := r.value(col)
	if !ok {
		return ""
	}
	return utils.ConvertToString(val)
}

// optionalText reads a nullable text column.
func (r *rowReader) optionalText(col string) string {
	if r.err != nil {
		return ""
	}
	return utils.ConvertToString(r.row[col])
}
