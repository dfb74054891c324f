package plansweep

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/cache"
)

// redisMarker backs the warning dedupe with SET NX in the cache. When the
// cache is unreachable the marker claims the key anyway: a duplicate warning
// beats a silently dropped one.
type redisMarker struct{}

// NewRedisMarker returns the cache-backed sweep marker.
func NewRedisMarker() Marker {
	return redisMarker{}
}

func (redisMarker) MarkOnce(key string, ttl time.Duration) bool {
	ok, err := cache.GetClient().SetNX(context.Background(), key, "1", ttl).Result()
	if err != nil {
		log.Warnf("[PlanSweep] marker %s unavailable: %v", key, err)
		return true
	}
	return ok
}
