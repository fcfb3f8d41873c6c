package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

type cachedAccount struct {
	ID     string `json:"id"`
	Tier   string `json:"tier"`
	Active bool   `json:"active"`
	// Missing records "no account" so unknown emails are not re-queried.
	Missing bool `json:"missing,omitempty"`
}

// AccountCache is a read-through cache in front of an AccountResolver.
type AccountCache struct {
	client *Client
	next   quota.AccountResolver
	ttl    time.Duration
}

func NewAccountCache(client *Client, next quota.AccountResolver, ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AccountCache{client: client, next: next, ttl: ttl}
}

func accountKey(email string) string {
	return "account:" + utils.HashIdentity(email)
}

func (a *AccountCache) ResolveAccount(ctx context.Context, email string) (*quota.Account, error) {
	key := accountKey(email)

	data, err := a.client.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedAccount
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			metrics.CacheHits.WithLabelValues("account").Inc()
			if cached.Missing {
				return nil, nil
			}
			return &quota.Account{ID: cached.ID, Email: email, Tier: quota.ParseTier(cached.Tier), Active: cached.Active}, nil
		}
	case errors.Is(err, redis.Nil):
	default:
		logger.Warn("Account cache read failed", zap.Error(err))
	}

	metrics.CacheMisses.WithLabelValues("account").Inc()

	acct, err := a.next.ResolveAccount(ctx, email)
	if err != nil {
		return nil, err
	}

	entry := cachedAccount{Missing: acct == nil}
	if acct != nil {
		entry = cachedAccount{ID: acct.ID, Tier: string(acct.Tier), Active: acct.Active}
	}
	if err := a.set(ctx, key, entry); err != nil {
		logger.Warn("Account cache write failed", zap.Error(err))
	}
	return acct, nil
}

// Invalidate drops the cached entry for email, e.g. after a tier change.
func (a *AccountCache) Invalidate(ctx context.Context, email string) error {
	return a.client.client.Del(ctx, accountKey(email)).Err()
}

func (a *AccountCache) set(ctx context.Context, key string, entry cachedAccount) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	return a.client.client.Set(ctx, key, data, a.ttl).Err()
}
