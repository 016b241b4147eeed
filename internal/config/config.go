// Package config holds the process configuration and converts it into the
// settings each component takes.
package config

import (
	"strings"
	"time"

	"github.com/BartekS5/truckpipe/internal/etl"
	"github.com/BartekS5/truckpipe/internal/storage"
	"github.com/BartekS5/truckpipe/pkg/database"
)

// Storage and catalog backends.
const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config contains process configuration. Keys are flat so that every one
// can be set as TRUCKPIPE_<KEY>.
type Config struct {
	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"`

	// Source store.
	SourceDriver string        `koanf:"source_driver"`
	DBHost       string        `koanf:"db_host"`
	DBPort       int           `koanf:"db_port"`
	DBUser       string        `koanf:"db_user"`
	DBPassword   string        `koanf:"db_password"`
	DBName       string        `koanf:"db_name"`
	PingTimeout  time.Duration `koanf:"ping_timeout"`
	QueryTimeout time.Duration `koanf:"query_timeout"`

	// Object storage.
	StorageBackend     string `koanf:"storage_backend"`
	LocalRoot          string `koanf:"local_root"`
	Bucket             string `koanf:"bucket"`
	Prefix             string `koanf:"prefix"`
	AWSRegion          string `koanf:"aws_region"`
	AWSAccessKeyID     string `koanf:"aws_access_key_id"`
	AWSSecretAccessKey string `koanf:"aws_secret_access_key"`
	S3Endpoint         string `koanf:"s3_endpoint"`
	S3UsePathStyle     bool   `koanf:"s3_use_path_style"`

	// Catalog.
	CatalogBackend  string `koanf:"catalog_backend"`
	MongoURI        string `koanf:"mongo_uri"`
	CatalogDatabase string `koanf:"catalog_database"`

	// Pipeline.
	WindowHours          int    `koanf:"window_hours"`
	UseWatermark         bool   `koanf:"use_watermark"`
	RejectNegativeTotals bool   `koanf:"reject_negative_totals"`
	TransactionDataset   string `koanf:"transaction_dataset"`
	TruckDataset         string `koanf:"truck_dataset"`
	PaymentMethodDataset string `koanf:"payment_method_dataset"`
	// PartitionColumns is a comma separated subset of year,month,day,hour.
	PartitionColumns string `koanf:"partition_columns"`

	// Scheduling.
	LiveCadence   time.Duration `koanf:"live_cadence"`
	MasterCadence time.Duration `koanf:"master_cadence"`

	// HTTP and report.
	Addr           string        `koanf:"addr"`
	ReportCache    string        `koanf:"report_cache"`
	ReportCacheTTL time.Duration `koanf:"report_cache_ttl"`
	RedisAddr      string        `koanf:"redis_addr"`
	RedisPassword  string        `koanf:"redis_password"`
	RedisDB        int           `koanf:"redis_db"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",

		SourceDriver: database.DriverMySQL,
		DBPort:       3306,
		PingTimeout:  5 * time.Second,
		QueryTimeout: 2 * time.Minute,

		StorageBackend: BackendS3,
		LocalRoot:      "./lake",
		Prefix:         "trucks/input",
		AWSRegion:      "eu-west-2",

		CatalogBackend:  BackendMongo,
		MongoURI:        "mongodb://localhost:27017",
		CatalogDatabase: "truck_db",

		WindowHours:          3,
		TransactionDataset:   "transaction",
		TruckDataset:         "truck",
		PaymentMethodDataset: "payment_method",
		PartitionColumns:     "year,month,day,hour",

		LiveCadence:   3 * time.Hour,
		MasterCadence: 24 * time.Hour,

		Addr:           ":8080",
		ReportCache:    BackendMemory,
		ReportCacheTTL: 10 * time.Minute,
		RedisAddr:      "localhost:6379",
	}
}

// SQL is the source store connection.
func (c *Config) SQL() database.SQLConfig {
	return database.SQLConfig{
		Driver:      c.SourceDriver,
		Host:        c.DBHost,
		Port:        c.DBPort,
		User:        c.DBUser,
		Password:    c.DBPassword,
		Name:        c.DBName,
		PingTimeout: c.PingTimeout,
	}
}

func (c *Config) S3() storage.S3Config {
	return storage.S3Config{
		Bucket:          c.Bucket,
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		Endpoint:        c.S3Endpoint,
		UsePathStyle:    c.S3UsePathStyle,
	}
}

// Driver is the batch driver configuration.
func (c *Config) Driver() etl.DriverConfig {
	return etl.DriverConfig{
		WindowHours:          c.WindowHours,
		UseWatermark:         c.UseWatermark,
		TransactionDataset:   c.TransactionDataset,
		PartitionColumns:     c.partitionColumns(),
		TruckDataset:         c.TruckDataset,
		PaymentMethodDataset: c.PaymentMethodDataset,
	}
}

// Validator is the record validation applied before publishing.
func (c *Config) Validator() *etl.Validator {
	return &etl.Validator{RejectNegativeTotals: c.RejectNegativeTotals}
}

func (c *Config) partitionColumns() []string {
	var cols []string
	for _, col := range strings.Split(c.PartitionColumns, ",") {
		if col = strings.TrimSpace(col); col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}
