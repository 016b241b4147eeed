package etl

import (
	"errors"
	"fmt"

	"github.com/BartekS5/truckpipe/internal/catalog"
	"github.com/BartekS5/truckpipe/internal/storage"
)

// Failure taxonomy of a pipeline run. Every one of them is fatal for the run.
var (
	// ErrConnection: the source store could not be reached.
	ErrConnection = errors.New("source connection failed")
	// ErrQuery: a source query failed to execute.
	ErrQuery = errors.New("source query failed")
	// ErrStorageUnavailable: object storage or the catalog failed.
	ErrStorageUnavailable = storage.ErrUnavailable
	// ErrSchemaMismatch: published columns disagree with the registered schema.
	ErrSchemaMismatch = catalog.ErrSchemaMismatch

	ErrUnknownTable  = errors.New("table is not in the dimension allow-list")
	ErrInvalidRecord = errors.New("invalid source record")
)

// catalogError keeps schema mismatches distinct and folds every other
// catalog failure into ErrStorageUnavailable.
func catalogError(op string, err error) error {
	if errors.Is(err, ErrSchemaMismatch) || errors.Is(err, ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
