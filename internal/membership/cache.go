package membership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is the subset of *redis.Client used for memoising checks.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedChecker memoises membership results in Redis for ttl. Failed checks are
// never cached. Redis errors fall through to the wrapped checker.
type CachedChecker struct {
	next  Checker
	cache Cache
	ttl   time.Duration
}

func NewCachedChecker(next Checker, cache Cache, ttl time.Duration) *CachedChecker {
	return &CachedChecker{next: next, cache: cache, ttl: ttl}
}

func cacheKey(telegramID int64) string {
	return fmt.Sprintf("membership:%d", telegramID)
}

type cachedMembership struct {
	IsPaid bool   `json:"is_paid"`
	Reason string `json:"reason,omitempty"`
}

func (c *CachedChecker) CheckMembership(ctx context.Context, telegramID int64) Membership {
	key := cacheKey(telegramID)

	raw, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cached cachedMembership
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return Membership{IsPaid: cached.IsPaid, Reason: cached.Reason}
		}
		zap.L().Warn("decode cached membership", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		zap.L().Warn("read membership cache", zap.Error(err), zap.String("key", key))
	}

	m := c.next.CheckMembership(ctx, telegramID)
	if m.Reason == ReasonCheckFailed {
		return m
	}

	payload, _ := json.Marshal(cachedMembership{IsPaid: m.IsPaid, Reason: m.Reason})
	if err := c.cache.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		zap.L().Warn("write membership cache", zap.Error(err), zap.String("key", key))
	}

	return m
}
