package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BartekS5/truckpipe/internal/catalog"
	"github.com/BartekS5/truckpipe/internal/query"
	"github.com/BartekS5/truckpipe/pkg/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	_ Cache         = (*RedisCache)(nil)
	_ query.Querier = (*CachedQuerier)(nil)
)

// Cache stores query results by fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (*query.Result, bool, error)
	Set(ctx context.Context, key string, res *query.Result, ttl time.Duration) error
}

type memoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryCacheEntry
	now   func() time.Time
}

type memoryCacheEntry struct {
	expiresAt time.Time
	result    *query.Result
}

// NewMemoryCache returns a process-local TTL cache.
func NewMemoryCache() Cache {
	return &memoryCache{
		items: make(map[string]memoryCacheEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (c *memoryCache) Get(ctx context.Context, key string) (*query.Result, bool, error) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return cloneResult(entry.result), true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, res *query.Result, ttl time.Duration) error {
	c.mu.Lock()
	c.items[key] = memoryCacheEntry{
		expiresAt: c.now().Add(ttl),
		result:    cloneResult(res),
	}
	c.mu.Unlock()
	return nil
}

func cloneResult(res *query.Result) *query.Result {
	return &query.Result{
		Columns: append([]string(nil), res.Columns...),
		Rows:    append([]map[string]interface{}(nil), res.Rows...),
	}
}

// RedisCache shares results between report processes. Values round-trip
// through JSON, so numbers come back as float64.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "truckpipe:report:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*query.Result, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var res query.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res *query.Result, ttl time.Duration) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.client.Set(ctx, c.prefix+key, raw, ttl).Err()
}

// CachedQuerier memoizes query results. The fingerprint covers the
// versions of every dataset in the database, so any publish misses the
// cache.
type CachedQuerier struct {
	next    query.Querier
	catalog catalog.Catalog
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Manager
	log     *zap.Logger
}

func NewCachedQuerier(next query.Querier, cat catalog.Catalog, cache Cache, ttl time.Duration, m *metrics.Manager, log *zap.Logger) *CachedQuerier {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedQuerier{next: next, catalog: cat, cache: cache, ttl: ttl, metrics: m, log: log}
}

func (q *CachedQuerier) Query(ctx context.Context, database, sql string, args ...interface{}) (*query.Result, error) {
	key, err := q.fingerprint(ctx, database, sql, args)
	if err != nil {
		return nil, err
	}

	res, ok, err := q.cache.Get(ctx, key)
	if err != nil {
		q.log.Warn("report cache read failed", zap.Error(err))
	}
	q.metrics.RecordCacheLookup(ok)
	if ok {
		return res, nil
	}

	res, err = q.next.Query(ctx, database, sql, args...)
	if err != nil {
		return nil, err
	}
	if err := q.cache.Set(ctx, key, res, q.ttl); err != nil {
		q.log.Warn("report cache write failed", zap.Error(err))
	}
	return res, nil
}

func (q *CachedQuerier) fingerprint(ctx context.Context, database, sql string, args []interface{}) (string, error) {
	datasets, err := q.catalog.Datasets(ctx)
	if err != nil {
		return "", fmt.Errorf("read dataset versions: %w", err)
	}
	versions := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		if ds.Database == database {
			versions = append(versions, fmt.Sprintf("%s@%d", ds.Name, ds.Version))
		}
	}
	sort.Strings(versions)

	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode query args: %w", err)
	}

	h := sha256.New()
	for _, part := range append([]string{database, sql, string(encodedArgs)}, versions...) {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
