package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/BartekS5/truckpipe/pkg/database"
	"github.com/BartekS5/truckpipe/pkg/models"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "TRUCKPIPE_"
	envFileVar = "TRUCKPIPE_CONFIG"
)

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. a YAML file, if TRUCKPIPE_CONFIG names one
//  3. env vars with the TRUCKPIPE_ prefix, e.g. TRUCKPIPE_DB_HOST -> db_host
func Load() (*Config, error) {
	return LoadFile(os.Getenv(envFileVar))
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error

	switch c.SourceDriver {
	case database.DriverMySQL, database.DriverSQLServer:
		if c.DBHost == "" {
			errs = append(errs, invalid("db_host must not be empty"))
		}
	case database.DriverSQLite:
		if c.DBName == "" {
			errs = append(errs, invalid("db_name must name the sqlite file"))
		}
	default:
		errs = append(errs, invalid("unsupported source_driver %q", c.SourceDriver))
	}

	switch c.StorageBackend {
	case BackendLocal:
		if c.LocalRoot == "" {
			errs = append(errs, invalid("local_root must not be empty"))
		}
	case BackendS3:
		if c.Bucket == "" {
			errs = append(errs, invalid("bucket must not be empty"))
		}
	default:
		errs = append(errs, invalid("unsupported storage_backend %q", c.StorageBackend))
	}

	switch c.CatalogBackend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, invalid("mongo_uri must not be empty"))
		}
	default:
		errs = append(errs, invalid("unsupported catalog_backend %q", c.CatalogBackend))
	}
	if c.CatalogDatabase == "" {
		errs = append(errs, invalid("catalog_database must not be empty"))
	}

	switch c.ReportCache {
	case BackendNone, BackendMemory, BackendRedis:
	default:
		errs = append(errs, invalid("unsupported report_cache %q", c.ReportCache))
	}

	if c.WindowHours <= 0 {
		errs = append(errs, invalid("window_hours must be positive"))
	}
	cols := c.partitionColumns()
	if len(cols) == 0 {
		errs = append(errs, invalid("partition_columns must not be empty"))
	}
	for _, col := range cols {
		if _, err := (models.PartitionKey{}).Value(col); err != nil {
			errs = append(errs, invalid("partition_columns: %v", err))
		}
	}
	// The daily report filters on the day columns.
	if len(cols) < 3 || cols[0] != "year" || cols[1] != "month" || cols[2] != "day" {
		errs = append(errs, invalid("partition_columns must start with year,month,day, got %q", c.PartitionColumns))
	}

	if c.LiveCadence <= 0 || c.MasterCadence <= 0 {
		errs = append(errs, invalid("live_cadence and master_cadence must be positive"))
	}
	// Without a watermark, a cadence longer than the window drops the rows
	// that fall between two windows.
	if !c.UseWatermark && c.LiveCadence > time.Duration(c.WindowHours)*time.Hour {
		errs = append(errs, invalid("live_cadence %s exceeds the %dh extraction window", c.LiveCadence, c.WindowHours))
	}

	return errors.Join(errs...)
}
