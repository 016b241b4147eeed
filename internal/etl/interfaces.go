package etl

import (
	"context"
	"time"
)

// Extractor reads row sets from the source store. Rows are column name to
// driver value mappings.
type Extractor interface {
	// ExtractSince returns transactions with at >= lowerBound.
	ExtractSince(ctx context.Context, lowerBound time.Time) ([]map[string]interface{}, error)
	// ExtractAfter returns transactions with at > watermark.
	ExtractAfter(ctx context.Context, watermark time.Time) ([]map[string]interface{}, error)
	// ExtractTable reads a whole allow-listed dimension table.
	ExtractTable(ctx context.Context, table string) ([]map[string]interface{}, error)
	Close() error
}

// Opener connects an Extractor for the duration of one run.
type Opener func(ctx context.Context) (Extractor, error)
