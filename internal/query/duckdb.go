package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/BartekS5/truckpipe/internal/catalog"
	"github.com/BartekS5/truckpipe/internal/storage"
	_ "github.com/marcboeker/go-duckdb/v2"
	"go.uber.org/zap"
)

// DuckDB exposes every catalog dataset as a view over its Parquet files.
type DuckDB struct {
	db      *sql.DB
	catalog catalog.Catalog
	s3      *storage.S3Config
	log     *zap.Logger

	mu    sync.Mutex
	views map[string]int64 // schema.view -> dataset version it was built from
}

type Option func(*DuckDB)

// WithS3 loads httpfs and registers credentials for s3:// locations.
func WithS3(cfg storage.S3Config) Option {
	return func(d *DuckDB) { d.s3 = &cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *DuckDB) { d.log = l }
}

// OpenDuckDB starts an in-memory engine reading the datasets in cat.
func OpenDuckDB(ctx context.Context, cat catalog.Catalog, opts ...Option) (*DuckDB, error) {
	d := &DuckDB{
		catalog: cat,
		log:     zap.NewNop(),
		views:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(d)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	d.db = db

	if d.s3 != nil {
		if err := d.configureS3(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *DuckDB) configureS3(ctx context.Context) error {
	for _, stmt := range []string{"INSTALL httpfs", "LOAD httpfs"} {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("duckdb %s: %w", stmt, err)
		}
	}

	cfg := d.s3
	urlStyle := "vhost"
	if cfg.UsePathStyle {
		urlStyle = "path"
	}
	params := []string{
		"TYPE S3",
		"REGION " + quoteLiteral(cfg.Region),
		"URL_STYLE " + quoteLiteral(urlStyle),
	}
	if cfg.AccessKeyID != "" {
		params = append(params,
			"KEY_ID "+quoteLiteral(cfg.AccessKeyID),
			"SECRET "+quoteLiteral(cfg.SecretAccessKey))
	} else {
		params = append(params, "PROVIDER credential_chain")
	}
	if cfg.Endpoint != "" {
		endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
		params = append(params, "ENDPOINT "+quoteLiteral(endpoint))
		if strings.HasPrefix(cfg.Endpoint, "http://") {
			params = append(params, "USE_SSL false")
		}
	}

	stmt := "CREATE OR REPLACE SECRET truckpipe_s3 (" + strings.Join(params, ", ") + ")"
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create duckdb s3 secret: %w", err)
	}
	d.log.Info("duckdb s3 access configured",
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("url_style", urlStyle))
	return nil
}

// Query refreshes the dataset views of database and runs query with it as
// the default schema.
func (d *DuckDB) Query(ctx context.Context, database, query string, args ...interface{}) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.refresh(ctx, database); err != nil {
		return nil, err
	}

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("duckdb connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET schema = "+quoteLiteral(database)); err != nil {
		return nil, fmt.Errorf("select schema %s: %w", database, err)
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return scanResult(rows)
}

// refresh creates or replaces the view of every dataset whose catalog
// version moved since the view was built.
func (d *DuckDB) refresh(ctx context.Context, database string) error {
	datasets, err := d.catalog.Datasets(ctx)
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(database)); err != nil {
		return fmt.Errorf("create schema %s: %w", database, err)
	}
	for _, ds := range datasets {
		if ds.Database != database || ds.Version == 0 {
			continue
		}
		name := database + "." + ds.Name
		if v, ok := d.views[name]; ok && v == ds.Version {
			continue
		}
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s.%s AS SELECT * FROM %s",
			quoteIdent(database), quoteIdent(ds.Name), scanExpr(ds))
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create view %s: %w", name, err)
		}
		d.views[name] = ds.Version
		d.log.Debug("dataset view refreshed", zap.String("view", name), zap.Int64("version", ds.Version))
	}
	return nil
}

// scanExpr is the table function reading every file of ds.
func scanExpr(ds catalog.Dataset) string {
	location := strings.TrimRight(ds.Location, "/")
	if ds.Layout == catalog.LayoutPartitioned {
		return fmt.Sprintf("read_parquet(%s, hive_partitioning = true)", quoteLiteral(location+"/**/*.parquet"))
	}
	return fmt.Sprintf("read_parquet(%s)", quoteLiteral(location+"/*.parquet"))
}

func (d *DuckDB) Close() error {
	return d.db.Close()
}

func scanResult(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
