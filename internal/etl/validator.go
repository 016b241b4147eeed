package etl

import (
	"fmt"

	"github.com/BartekS5/truckpipe/pkg/models"
)

// Validator rejects records that must not reach the lake.
type Validator struct {
	// RejectNegativeTotals fails records with a negative total. Refunds are
	// recorded as negative totals, so it is off unless configured.
	RejectNegativeTotals bool
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) ValidateTransaction(rec models.TransactionRecord) error {
	if rec.TransactionID <= 0 {
		return fmt.Errorf("%w: transaction_id must be positive, got %d", ErrInvalidRecord, rec.TransactionID)
	}
	if rec.OccurredAt.IsZero() {
		return fmt.Errorf("%w: transaction %d has no timestamp", ErrInvalidRecord, rec.TransactionID)
	}
	if rec.AmountMinor < 0 && v.RejectNegativeTotals {
		return fmt.Errorf("%w: transaction %d has negative total %d", ErrInvalidRecord, rec.TransactionID, rec.AmountMinor)
	}
	return nil
}

func (v *Validator) ValidateTruck(t models.Truck) error {
	if t.TruckID <= 0 {
		return fmt.Errorf("%w: truck_id must be positive, got %d", ErrInvalidRecord, t.TruckID)
	}
	return nil
}

func (v *Validator) ValidatePaymentMethod(pm models.PaymentMethod) error {
	if pm.PaymentMethodID <= 0 {
		return fmt.Errorf("%w: payment_method_id must be positive, got %d", ErrInvalidRecord, pm.PaymentMethodID)
	}
	if pm.PaymentMethod == "" {
		return fmt.Errorf("%w: payment method %d has no label", ErrInvalidRecord, pm.PaymentMethodID)
	}
	return nil
}
