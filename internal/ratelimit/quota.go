package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefixQuota is the Redis key prefix for daily quota counters.
const KeyPrefixQuota = "quota:"

// DailyQuota caps total calls to one capability per UTC day. The counter
// lives in Redis so multiple engine instances draw from a single allowance,
// which is how provider quotas are enforced on their side too.
type DailyQuota struct {
	redis redis.Cmdable
	name  string
	limit int64
	now   func() time.Time
}

// DailyQuotaConfig holds configuration for a daily quota.
type DailyQuotaConfig struct {
	// Redis is the client used for cross-instance coordination.
	// Required - the quota cannot function without Redis.
	Redis redis.Cmdable

	// Name identifies the capability in the Redis key, e.g. "pagespeed".
	Name string

	// Limit is the number of calls allowed per UTC day.
	Limit int64
}

// Validate checks if the configuration is valid.
func (c *DailyQuotaConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Name == "" {
		return errors.New("quota name is required")
	}
	if c.Limit <= 0 {
		return errors.New("daily limit must be positive")
	}
	return nil
}

// NewDailyQuota creates a quota with the given configuration.
// Returns an error if the configuration is invalid.
func NewDailyQuota(cfg *DailyQuotaConfig) (*DailyQuota, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &DailyQuota{
		redis: cfg.Redis,
		name:  cfg.Name,
		limit: cfg.Limit,
		now:   time.Now,
	}, nil
}

// key returns the Redis key for the given day's counter.
func (q *DailyQuota) key(day time.Time) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefixQuota, q.name, day.UTC().Format("2006-01-02"))
}

// TrySpend consumes n calls from today's allowance. It returns false when the
// allowance cannot cover n. The check and increment run atomically so
// concurrent spenders never overshoot the limit.
func (q *DailyQuota) TrySpend(ctx context.Context, n int64) (bool, error) {
	if n <= 0 {
		return true, nil
	}

	day := q.now().UTC()
	key := q.key(day)

	script := redis.NewScript(`
		local key = KEYS[1]
		local n = tonumber(ARGV[1])
		local limit = tonumber(ARGV[2])
		local ttl = tonumber(ARGV[3])

		local used = tonumber(redis.call('GET', key) or '0')
		if used + n > limit then
			return {0, used}
		end

		redis.call('INCRBY', key, n)
		redis.call('EXPIRE', key, ttl)
		return {1, used + n}
	`)

	// Key expires shortly after the day rolls over
	ttlSeconds := int64(endOfDay(day).Sub(day).Seconds()) + 60

	result, err := script.Run(ctx, q.redis, []string{key}, n, q.limit, ttlSeconds).Int64Slice()
	if err != nil {
		return false, err
	}

	return result[0] == 1, nil
}

// Used returns the number of calls consumed today.
func (q *DailyQuota) Used(ctx context.Context) (int64, error) {
	val, err := q.redis.Get(ctx, q.key(q.now())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Remaining returns today's unspent allowance.
func (q *DailyQuota) Remaining(ctx context.Context) (int64, error) {
	used, err := q.Used(ctx)
	if err != nil {
		return 0, err
	}

	remaining := q.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Limit returns the configured daily limit.
func (q *DailyQuota) Limit() int64 {
	return q.limit
}

// ResetsAt returns when the current allowance rolls over.
func (q *DailyQuota) ResetsAt() time.Time {
	return endOfDay(q.now().UTC())
}

// endOfDay returns the first instant of the day after t.
func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
