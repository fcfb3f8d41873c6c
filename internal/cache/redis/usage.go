package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/pkg/utils"
)

// incrementUsage bumps the counter for the current period, restarting at 1
// when the stored period is stale or missing.
var incrementUsage = redis.NewScript(`
local period = redis.call('HGET', KEYS[1], 'period')
local count
if period ~= ARGV[1] then
  redis.call('HSET', KEYS[1], 'period', ARGV[1], 'count', 1)
  count = 1
else
  count = redis.call('HINCRBY', KEYS[1], 'count', 1)
end
redis.call('HSET', KEYS[1], 'last_at', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return count
`)

// resetUsage starts a new period at zero. A counter already on the period
// is left alone so a concurrent increment is never lost.
var resetUsage = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'period') ~= ARGV[1] then
  redis.call('HSET', KEYS[1], 'period', ARGV[1], 'count', 0)
end
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

func usageKey(id quota.Identity) string {
	return fmt.Sprintf("usage:%s:%s", id.Kind, utils.HashIdentity(id.Key))
}

func (c *Client) GetUsage(ctx context.Context, id quota.Identity) (*quota.Record, error) {
	fields, err := c.client.HGetAll(ctx, usageKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := &quota.Record{PeriodKey: fields["period"]}
	if v, ok := fields["count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt usage count %q: %w", v, err)
		}
		rec.CountUsed = n
	}
	if v, ok := fields["last_at"]; ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.LastEvaluationAt = time.Unix(ts, 0).UTC()
		}
	}
	return rec, nil
}

func (c *Client) ResetUsage(ctx context.Context, id quota.Identity, period string) error {
	err := resetUsage.Run(ctx, c.client,
		[]string{usageKey(id)},
		period, int64(c.usageTTL/time.Second),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

func (c *Client) IncrementUsage(ctx context.Context, id quota.Identity, period string, at time.Time) (int, error) {
	n, err := incrementUsage.Run(ctx, c.client,
		[]string{usageKey(id)},
		period, at.Unix(), int64(c.usageTTL/time.Second),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return n, nil
}
