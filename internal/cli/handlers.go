package cli

import (
	"context"
	"fmt"

	"github.com/BartekS5/truckpipe/internal/catalog"
	"github.com/BartekS5/truckpipe/internal/config"
	"github.com/BartekS5/truckpipe/internal/etl"
	"github.com/BartekS5/truckpipe/internal/query"
	"github.com/BartekS5/truckpipe/internal/report"
	"github.com/BartekS5/truckpipe/internal/storage"
	"github.com/BartekS5/truckpipe/pkg/database"
	"github.com/BartekS5/truckpipe/pkg/logger"
	"github.com/BartekS5/truckpipe/pkg/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the long-lived components one command needs.
type app struct {
	cfg     *config.Config
	store   storage.ObjectStore
	catalog catalog.Catalog
	metrics *metrics.Manager
	log     *zap.Logger
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.NewManager(),
		log:     logger.L(),
	}

	switch cfg.StorageBackend {
	case config.BackendLocal:
		store, err := storage.NewLocalStore(cfg.LocalRoot)
		if err != nil {
			return nil, err
		}
		a.store = store
	case config.BackendS3:
		store, err := storage.NewS3Store(ctx, cfg.S3())
		if err != nil {
			return nil, err
		}
		a.store = store
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}

	switch cfg.CatalogBackend {
	case config.BackendMemory:
		a.log.Warn("using in-memory catalog; registrations are lost on exit")
		a.catalog = catalog.NewMemoryCatalog(cfg.CatalogDatabase)
	case config.BackendMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", catalog.ErrUnavailable, err)
		}
		a.catalog = catalog.NewMongoCatalog(client, cfg.CatalogDatabase)
	default:
		return nil, fmt.Errorf("unsupported catalog backend %q", cfg.CatalogBackend)
	}
	a.closers = append(a.closers, a.catalog.Close)

	a.log.Info("components ready",
		zap.String("storage", cfg.StorageBackend),
		zap.String("catalog", cfg.CatalogBackend),
		zap.String("catalog_database", cfg.CatalogDatabase))
	return a, nil
}

func (a *app) driver() *etl.Driver {
	publisher := etl.NewPublisher(a.store, a.catalog, a.cfg.Prefix,
		etl.WithPublisherMetrics(a.metrics),
		etl.WithPublisherLogger(a.log.Named("publisher")))
	return etl.NewDriver(a.cfg.Driver(), etl.NewSQLOpener(a.cfg.SQL(), a.cfg.QueryTimeout), publisher, a.catalog,
		etl.WithMetrics(a.metrics),
		etl.WithTransformer(etl.NewTransformer(a.cfg.Validator())),
		etl.WithLogger(a.log.Named("driver")))
}

// reportGenerator opens the query engine and wraps it in the configured cache.
func (a *app) reportGenerator(ctx context.Context) (*report.Generator, error) {
	var opts []query.Option
	opts = append(opts, query.WithLogger(a.log.Named("query")))
	if a.cfg.StorageBackend == config.BackendS3 {
		opts = append(opts, query.WithS3(a.cfg.S3()))
	}
	engine, err := query.OpenDuckDB(ctx, a.catalog, opts...)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return engine.Close() })

	var q query.Querier = engine
	switch a.cfg.ReportCache {
	case config.BackendMemory:
		q = report.NewCachedQuerier(engine, a.catalog, report.NewMemoryCache(), a.cfg.ReportCacheTTL, a.metrics, a.log.Named("cache"))
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		q = report.NewCachedQuerier(engine, a.catalog, report.NewRedisCache(client, ""), a.cfg.ReportCacheTTL, a.metrics, a.log.Named("cache"))
	}

	return report.NewGenerator(q, a.cfg.CatalogDatabase,
		report.WithDataset(a.cfg.TransactionDataset),
		report.WithLogger(a.log.Named("report"))), nil
}

func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warnf("shutdown step failed: %v", err)
		}
	}
}
