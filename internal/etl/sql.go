package etl

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/truckpipe/pkg/database"
)

// Source table names accepted by ExtractTable.
const (
	TableTruck         = "DIM_Truck"
	TablePaymentMethod = "DIM_Payment_Method"
)

// Time layouts of bound query parameters. Window bounds are whole seconds.
// Watermarks keep microseconds, zero padded so that text columns compare
// "23:50:00.5" as not after a watermark of "23:50:00.500000".
const (
	sourceTimeLayout    = "2006-01-02 15:04:05"
	watermarkTimeLayout = "2006-01-02 15:04:05.000000"
)

const transactionSelect = `
SELECT t.transaction_id AS transaction_id,
       t.truck_id AS truck_id,
       t.payment_method_id AS payment_method_id,
       t.total AS total,
       t.at AS at,
       pm.payment_method AS payment_method,
       tr.truck_name AS truck_name,
       tr.has_card_reader AS has_card_reader,
       tr.fsa_rating AS fsa_rating
FROM FACT_Transaction t
JOIN DIM_Payment_Method pm ON pm.payment_method_id = t.payment_method_id
JOIN DIM_Truck tr ON tr.truck_id = t.truck_id`

var (
	queryTransactionsSince = transactionSelect + "\nWHERE t.at >= ?\nORDER BY t.at, t.transaction_id"
	queryTransactionsAfter = transactionSelect + "\nWHERE t.at > ?\nORDER BY t.at, t.transaction_id"
)

// dimensionQueries is the allow-list of tables ExtractTable may read. Table
// names are looked up here and never interpolated into SQL.
var dimensionQueries = map[string]string{
	TableTruck: `SELECT truck_id, truck_name, truck_description, has_card_reader, fsa_rating
FROM DIM_Truck ORDER BY truck_id`,
	TablePaymentMethod: `SELECT payment_method_id, payment_method
FROM DIM_Payment_Method ORDER BY payment_method_id`,
}

// SQLExtractor runs the pipeline queries over one source connection.
type SQLExtractor struct {
	DB           *sql.DB
	Driver       string
	QueryTimeout time.Duration
}

// Connect opens the source store. The caller owns Close.
func Connect(ctx context.Context, cfg database.SQLConfig, queryTimeout time.Duration) (*SQLExtractor, error) {
	db, err := database.ConnectSQL(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	driverName := cfg.Driver
	if driverName == "" {
		driverName = database.DriverMySQL
	}
	return &SQLExtractor{DB: db, Driver: driverName, QueryTimeout: queryTimeout}, nil
}

// NewSQLOpener returns an Opener connecting with cfg on every run.
func NewSQLOpener(cfg database.SQLConfig, queryTimeout time.Duration) Opener {
	return func(ctx context.Context) (Extractor, error) {
		return Connect(ctx, cfg, queryTimeout)
	}
}

// WithExtractor opens a connection, runs fn and releases the connection on
// every exit path.
func WithExtractor(ctx context.Context, open Opener, fn func(Extractor) error) (err error) {
	ext, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ext.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close: %v", ErrConnection, cerr)
		}
	}()
	return fn(ext)
}

func (s *SQLExtractor) ExtractSince(ctx context.Context, lowerBound time.Time) ([]map[string]interface{}, error) {
	return s.query(ctx, queryTransactionsSince, lowerBound.UTC().Format(sourceTimeLayout))
}

func (s *SQLExtractor) ExtractAfter(ctx context.Context, watermark time.Time) ([]map[string]interface{}, error) {
	return s.query(ctx, queryTransactionsAfter, watermark.UTC().Format(watermarkTimeLayout))
}

func (s *SQLExtractor) ExtractTable(ctx context.Context, table string) ([]map[string]interface{}, error) {
	query, ok := dimensionQueries[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return s.query(ctx, query)
}

func (s *SQLExtractor) Close() error {
	return s.DB.Close()
}

func (s *SQLExtractor) query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	if s.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.QueryTimeout)
		defer cancel()
	}

	rows, err := s.DB.QueryContext(ctx, database.Rebind(s.Driver, query), args...)
	if err != nil {
		return nil, classifyQueryError(err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, classifyQueryError(err)
	}
	return results, nil
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}
		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		m := make(map[string]interface{}, len(cols))
		for i, colName := range cols {
			val := columns[i]
			if b, ok := val.([]byte); ok {
				m[colName] = string(b)
			} else {
				m[colName] = val
			}
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func classifyQueryError(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return fmt.Errorf("%w: %v", ErrQuery, err)
}
