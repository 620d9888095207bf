package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"askai/internal/logging"
)

// slidingWindowScript prunes, counts and appends in one atomic step so two
// concurrent callers can never both take the last slot.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

	local count = redis.call('ZCARD', key)
	if count >= limit then
		return 0
	end

	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window * 2)
	return 1
`)

// RedisLimiter is a sliding-window limiter backed by a Redis sorted set per
// identity. It exists for deployments running more than one instance against
// a shared throttle; semantics match SlidingWindow.
type RedisLimiter struct {
	client      *redis.Client
	maxRequests int
	duration    time.Duration

	// Bounds the round trip so admission cannot stall the caller.
	timeout time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter with the same admission
// semantics as SlidingWindow.
func NewRedisLimiter(client *redis.Client, maxRequests int, duration time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		maxRequests: maxRequests,
		duration:    duration,
		timeout:     2 * time.Second,
	}
}

// TryAcquire checks and records one request attempt. Redis failures deny the
// request: an unavailable throttle must not become an unlimited one.
func (l *RedisLimiter) TryAcquire(identity uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	now := time.Now().UnixMilli()
	member := strconv.FormatInt(now, 10) + ":" + uuid.NewString()

	result, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.key(identity)},
		now, l.duration.Milliseconds(), l.maxRequests, member,
	).Int()
	if err != nil {
		logging.Errorf("rate limit check failed: %v", err)
		return false
	}

	return result == 1
}

// Release drops the identity's window.
func (l *RedisLimiter) Release(identity uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	if err := l.client.Del(ctx, l.key(identity)).Err(); err != nil {
		logging.Warningf("rate limit cleanup failed: %v", err)
	}
}

func (l *RedisLimiter) key(identity uuid.UUID) string {
	return "ratelimit:" + identity.String()
}
