package ratelimiting

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	// Consume takes a token for key if one is available
	Consume(key string) bool
	// Wait blocks until a token for key is available or ctx is done
	Wait(ctx context.Context, key string) error
}

type tokenBucketRateLimiter struct {
	limiterByKey    *ttlcache.Cache[string, *rate.Limiter]
	refillPerSecond int
	burstSize       int
}

func (rateLimiter *tokenBucketRateLimiter) limiterFor(key string) *rate.Limiter {
	limiter, _ := rateLimiter.limiterByKey.GetOrSet(key, rate.NewLimiter(rate.Limit(rateLimiter.refillPerSecond), rateLimiter.burstSize))
	return limiter.Value()
}

func (rateLimiter *tokenBucketRateLimiter) Consume(key string) bool {
	return rateLimiter.limiterFor(key).Allow()
}

func (rateLimiter *tokenBucketRateLimiter) Wait(ctx context.Context, key string) error {
	err := rateLimiter.limiterFor(key).Wait(ctx)
	if err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	return nil
}

type RefillPerSecond int
type BurstSize int

// NewTokenBucketRateLimiter returns a limiter with one token bucket per key, and a function to stop it.
//
// Buckets for keys that have not been used for 30 minutes are dropped.
func NewTokenBucketRateLimiter(refillPerSecond RefillPerSecond, burstSize BurstSize) (RateLimiter, func()) {
	limiterTTLCache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](30 * time.Minute),
	)
	go limiterTTLCache.Start()

	return &tokenBucketRateLimiter{
		limiterByKey:    limiterTTLCache,
		refillPerSecond: int(refillPerSecond),
		burstSize:       int(burstSize),
	}, limiterTTLCache.Stop
}

// HostKeyFunc groups requests by the host they are sent to
func HostKeyFunc(u *url.URL) string {
	return fmt.Sprintf("host: %s", strings.ToLower(u.Host))
}
