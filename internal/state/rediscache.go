package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	tokenmodels "soulbind/internal/token/models"
	wrapmodels "soulbind/internal/wrap/models"
	"soulbind/pkg/domain"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soulbind_ledger_cache_hits_total",
		Help: "Ledger read cache hits by record kind",
	}, []string{"kind"})
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soulbind_ledger_cache_misses_total",
		Help: "Ledger read cache misses by record kind",
	}, []string{"kind"})
)

const (
	identityKeyPrefix = "ledger:identity:"
	tokenKeyPrefix    = "ledger:token:"
)

// Cache is a best-effort read cache in front of the ledger store, for the
// read endpoints only. Atomic units always consult the backing store, so a
// stale entry can never influence an ordered check. A nil client degrades
// to a cache that always misses.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache constructs a Redis-backed read cache. The client lifecycle is
// managed by the caller.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Identity returns the cached record for a user, if present.
func (c *Cache) Identity(ctx context.Context, user domain.Principal) (*wrapmodels.WrappedIdentity, bool) {
	var rec wrapmodels.WrappedIdentity
	if !c.get(ctx, "identity", identityKeyPrefix+string(user), &rec) {
		return nil, false
	}
	return &rec, true
}

// StoreIdentity caches a record after a store read.
func (c *Cache) StoreIdentity(ctx context.Context, rec *wrapmodels.WrappedIdentity) {
	if rec == nil {
		return
	}
	c.set(ctx, identityKeyPrefix+string(rec.User), rec)
}

// InvalidateIdentity drops a user's cached record. Mutating operations
// call this after commit.
func (c *Cache) InvalidateIdentity(ctx context.Context, user domain.Principal) {
	c.drop(ctx, identityKeyPrefix+string(user))
}

// Metadata returns the cached record for a token, if present.
func (c *Cache) Metadata(ctx context.Context, id domain.TokenID) (*tokenmodels.Metadata, bool) {
	var meta tokenmodels.Metadata
	if !c.get(ctx, "token", tokenKey(id), &meta) {
		return nil, false
	}
	return &meta, true
}

// StoreMetadata caches a record after a store read.
func (c *Cache) StoreMetadata(ctx context.Context, meta *tokenmodels.Metadata) {
	if meta == nil {
		return
	}
	c.set(ctx, tokenKey(meta.TokenID), meta)
}

// InvalidateToken drops a token's cached record. Mutating operations call
// this after commit.
func (c *Cache) InvalidateToken(ctx context.Context, id domain.TokenID) {
	c.drop(ctx, tokenKey(id))
}

func tokenKey(id domain.TokenID) string {
	return fmt.Sprintf("%s%d", tokenKeyPrefix, id)
}

func (c *Cache) get(ctx context.Context, kind, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheMisses.WithLabelValues(kind).Inc()
		return false
	}
	if err != nil {
		cacheMisses.WithLabelValues(kind).Inc()
		c.logger.DebugContext(ctx, "ledger cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		cacheMisses.WithLabelValues(kind).Inc()
		c.logger.DebugContext(ctx, "ledger cache entry unreadable", "key", key, "error", err)
		c.drop(ctx, key)
		return false
	}
	cacheHits.WithLabelValues(kind).Inc()
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.DebugContext(ctx, "ledger cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.DebugContext(ctx, "ledger cache write failed", "key", key, "error", err)
	}
}

func (c *Cache) drop(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.DebugContext(ctx, "ledger cache invalidation failed", "key", key, "error", err)
	}
}
