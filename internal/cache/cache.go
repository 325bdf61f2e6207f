package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/securescan/internal/domain"
)

// New creates a cache based on configuration. It returns a nil cache for
// type "none".
//   - memory: in-process LRU
//   - redis: Redis, or LRU in front of Redis when two-phase is enabled
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil

	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis, shared between replicas
type TwoPhaseCache struct {
	local  *LRUCache
	remote domain.Cache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote domain.Cache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = time.Minute
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the entry for at most its own TTL.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

// Verdicts memoizes score results. Keys combine the rule generation with the
// canonical transaction, so a rule reload never serves a stale verdict.
// A nil *Verdicts is a valid, disabled memo.
type Verdicts struct {
	cache domain.Cache
	ttl   time.Duration
}

// NewVerdicts wraps c. It returns nil when c is nil.
func NewVerdicts(c domain.Cache, ttl time.Duration) *Verdicts {
	if c == nil {
		return nil
	}
	return &Verdicts{cache: c, ttl: ttl}
}

// VerdictKey is the cache key of the verdict for tx under a rule generation.
func VerdictKey(tx *domain.Transaction, generation uint64) string {
	return "verdict:" + strconv.FormatUint(generation, 10) + ":" + tx.Key()
}

// Get returns a memoized verdict. Cache failures count as a miss.
func (v *Verdicts) Get(ctx context.Context, tx *domain.Transaction, generation uint64) (*domain.ScoreResult, bool) {
	if v == nil {
		return nil, false
	}

	data, err := v.cache.Get(ctx, VerdictKey(tx, generation))
	if err != nil {
		slog.Warn("verdict cache read failed", "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var res domain.ScoreResult
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("discarding unreadable cached verdict", "error", err)
		return nil, false
	}
	return &res, true
}

// Put stores a verdict. Cache failures are logged and ignored.
func (v *Verdicts) Put(ctx context.Context, tx *domain.Transaction, generation uint64, res *domain.ScoreResult) {
	if v == nil {
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("failed to encode verdict for cache", "error", err)
		return
	}
	if err := v.cache.Set(ctx, VerdictKey(tx, generation), data, v.ttl); err != nil {
		slog.Warn("verdict cache write failed", "error", err)
	}
}
