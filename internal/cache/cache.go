// Package cache holds the Redis-backed caches: query results, permission
// lookups, per-user search history, and a hot-query frequency counter.
// Everything here is best-effort; a backend failure reads as a miss and a
// write failure is logged and dropped, so callers never depend on the
// cache being up.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Fingerprint is the md5 hex digest of a normalized query, used as the
// query-result cache key.
func Fingerprint(normalizedQuery string) string {
	sum := md5.Sum([]byte(normalizedQuery))
	return hex.EncodeToString(sum[:])
}

// Cache wraps a Redis client. The caching methods are best-effort: a Redis
// error is logged and treated as a cache miss / no-op rather than
// propagated, since nothing downstream depends on the cache being
// available. Info, Ping and Close return the Redis error to the caller.
type Cache struct {
	client redis.UniversalClient
	log    *logrus.Logger

	defaultTTL    time.Duration
	permissionTTL time.Duration
	historyTTL    time.Duration
	historyMaxLen int64
}

// Config is the subset of internal/config.CacheConfig the cache needs.
type Config struct {
	Addr              string
	Password          string
	DB                int
	DefaultTTL        time.Duration
	PermissionTTL     time.Duration
	HistoryTTL        time.Duration
	HistoryMaxLen     int64
}

// New dials Redis and pings once before returning.
func New(cfg Config, log *logrus.Logger) (*Cache, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to cache: %w", err)
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 6 * time.Hour
	}
	if cfg.HistoryMaxLen <= 0 {
		cfg.HistoryMaxLen = 50
	}
	return &Cache{
		client:        client,
		log:           log,
		defaultTTL:    cfg.DefaultTTL,
		permissionTTL: cfg.PermissionTTL,
		historyTTL:    cfg.HistoryTTL,
		historyMaxLen: cfg.HistoryMaxLen,
	}, nil
}

func queryResultKey(fingerprint string) string { return "query:result:" + fingerprint }
func permissionKey(userID string) string       { return "perm:" + userID }
func historyKey(userID string) string          { return "history:" + userID }

const hotQueriesKey = "hot_queries"

// CacheQueryResult stores an arbitrary JSON-serializable result keyed by a
// normalized-query fingerprint, with an optional TTL override (0 uses the
// configured default of 6h).
func (c *Cache) CacheQueryResult(ctx context.Context, fingerprint string, result any, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		c.log.WithError(err).Warn("cache: marshal query result failed")
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, queryResultKey(fingerprint), data, ttl).Err(); err != nil {
		c.log.WithError(err).Warn("cache: set query result failed")
	}
}

// GetCachedQueryResult unmarshals a previously cached result into out.
// Reports false on any miss or error, both of which the caller treats the
// same way: fall through to live retrieval.
func (c *Cache) GetCachedQueryResult(ctx context.Context, fingerprint string, out any) bool {
	data, err := c.client.Get(ctx, queryResultKey(fingerprint)).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.WithError(err).Warn("cache: unmarshal query result failed")
		return false
	}
	return true
}

// CacheUserPermissions stores a user's resolved permission set.
func (c *Cache) CacheUserPermissions(ctx context.Context, userID string, permissions any) {
	data, err := json.Marshal(permissions)
	if err != nil {
		c.log.WithError(err).Warn("cache: marshal permissions failed")
		return
	}
	ttl := c.permissionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := c.client.Set(ctx, permissionKey(userID), data, ttl).Err(); err != nil {
		c.log.WithError(err).Warn("cache: set permissions failed")
	}
}

// GetUserPermissions unmarshals a cached permission set into out.
func (c *Cache) GetUserPermissions(ctx context.Context, userID string, out any) bool {
	data, err := c.client.Get(ctx, permissionKey(userID)).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.WithError(err).Warn("cache: unmarshal permissions failed")
		return false
	}
	return true
}

// AddSearchHistory pushes query onto the user's history list, trimmed to
// historyMaxLen entries, refreshing the list TTL.
func (c *Cache) AddSearchHistory(ctx context.Context, userID, query string) {
	key := historyKey(userID)
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, query)
	pipe.LTrim(ctx, key, 0, c.historyMaxLen-1)
	if c.historyTTL > 0 {
		pipe.Expire(ctx, key, c.historyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).Warn("cache: add search history failed")
	}
}

// GetSearchHistory returns up to limit of the user's most recent queries,
// newest first.
func (c *Cache) GetSearchHistory(ctx context.Context, userID string, limit int64) []string {
	if limit <= 0 {
		limit = c.historyMaxLen
	}
	out, err := c.client.LRange(ctx, historyKey(userID), 0, limit-1).Result()
	if err != nil {
		c.log.WithError(err).Warn("cache: get search history failed")
		return nil
	}
	return out
}

// IncrementHotQuery bumps a normalized query's frequency score in the
// hot-queries sorted set.
func (c *Cache) IncrementHotQuery(ctx context.Context, normalizedQuery string) {
	if err := c.client.ZIncrBy(ctx, hotQueriesKey, 1, normalizedQuery).Err(); err != nil {
		c.log.WithError(err).Warn("cache: increment hot query failed")
	}
}

// HotQuery is one entry in the hot-queries ranking.
type HotQuery struct {
	Query string
	Count float64
}

// GetHotQueries returns the top-n queries by frequency, descending.
func (c *Cache) GetHotQueries(ctx context.Context, n int64) []HotQuery {
	if n <= 0 {
		n = 10
	}
	results, err := c.client.ZRevRangeWithScores(ctx, hotQueriesKey, 0, n-1).Result()
	if err != nil {
		c.log.WithError(err).Warn("cache: get hot queries failed")
		return nil
	}
	out := make([]HotQuery, 0, len(results))
	for _, z := range results {
		q, _ := z.Member.(string)
		out = append(out, HotQuery{Query: q, Count: z.Score})
	}
	return out
}

// Info reports the cache backend's INFO output, for operator diagnostics.
func (c *Cache) Info(ctx context.Context) (string, error) {
	return c.client.Info(ctx).Result()
}

// Ping reports whether the cache is reachable right now.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
