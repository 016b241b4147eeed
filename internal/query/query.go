// Package query runs SQL over the published datasets.
package query

import (
	"context"
)

// Result is a fully materialized row set.
type Result struct {
	Columns []string
	Rows    []map[string]interface{}
}

// Querier runs read-only SQL against the datasets registered under a
// catalog database. Dataset names resolve as table names.
type Querier interface {
	Query(ctx context.Context, database, sql string, args ...interface{}) (*Result, error)
}
