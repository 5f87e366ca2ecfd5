package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures from the backing store.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")

// Prune-count-admit in one round trip. The admitted attempt is recorded
// as a unique member scored by its millisecond timestamp; a rejected
// attempt leaves no trace.
const allowScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now_ms - window_ms)
local count = redis.call("ZCARD", key)
if count >= limit then
  return 0
end
redis.call("ZADD", key, now_ms, member)
redis.call("PEXPIRE", key, window_ms)
return 1
`

var allowLua = redis.NewScript(allowScript)

// Limiter counts attempts per logical key within a trailing window.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a [Limiter] backed by the given Redis client. now is
// injected for testability and defaults to time.Now.
func New(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (l *Limiter) key(logical string) string {
	return l.prefix + ":rl:" + logical
}

// Allow records an attempt for key if and only if fewer than limit
// attempts fall within the trailing window, and reports whether the
// attempt was admitted. Rejection has no side effect on the counter.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	nowMS := l.now().UnixMilli()
	member := strconv.FormatInt(nowMS, 10) + ":" + uuid.NewString()

	admitted, err := allowLua.Run(ctx, l.redis, []string{l.key(key)},
		limit, window.Milliseconds(), nowMS, member).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return admitted == 1, nil
}

// Count returns the number of attempts currently inside the window for
// key, without recording one.
func (l *Limiter) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	nowMS := l.now().UnixMilli()
	min := strconv.FormatInt(nowMS-window.Milliseconds(), 10)

	count, err := l.redis.ZCount(ctx, l.key(key), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// Reset clears the window for key. Used by operator tooling; the engine
// never resets login windows on success since they are keyed by IP.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
