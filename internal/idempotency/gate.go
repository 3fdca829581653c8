package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geomark27/autumn-api/internal/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "idempotency:transfer"

// Gate is the fast duplicate-detection path in front of the transfers table.
// It is never authoritative: every answer is best-effort, and any cache
// failure degrades to the unique constraint on transfers.idempotency_key.
type Gate struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewGate(redis redis.Cmdable, ttl time.Duration) *Gate {
	return &Gate{redis: redis, ttl: ttl}
}

// Probe looks the key up in the cache. A miss, a parse failure or an
// unavailable cache all report "not seen".
func (g *Gate) Probe(ctx context.Context, key uuid.UUID) (uuid.UUID, bool) {
	if g.redis == nil {
		return uuid.Nil, false
	}

	val, err := g.redis.Get(ctx, cacheKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.IncrementIdempotencyGate("cache_error")
			zap.L().Warn("idempotency probe failed", zap.Error(err))
		}
		return uuid.Nil, false
	}

	transferID, err := uuid.Parse(val)
	if err != nil {
		zap.L().Warn("idempotency cache holds malformed transfer id", zap.String("value", val))
		return uuid.Nil, false
	}
	observability.IncrementIdempotencyGate("cache_hit")
	return transferID, true
}

// Claim registers key -> transferID with a TTL, set-if-absent. It returns
// true when this caller is first. Cache unavailability reports true so the
// storage constraint stays the deciding authority.
func (g *Gate) Claim(ctx context.Context, key, transferID uuid.UUID) bool {
	if g.redis == nil {
		return true
	}

	stored, err := g.redis.SetNX(ctx, cacheKey(key), transferID.String(), g.ttl).Result()
	if err != nil {
		observability.IncrementIdempotencyGate("cache_error")
		zap.L().Warn("idempotency claim failed", zap.Error(err))
		return true
	}
	if !stored {
		observability.IncrementIdempotencyGate("claim_lost")
	}
	return stored
}

func cacheKey(key uuid.UUID) string {
	return fmt.Sprintf("%s:%s", keyPrefix, key)
}
