// Package quota enforces the monthly evaluation allowance for anonymous
// callers (keyed by network address) and registered accounts (keyed by
// account id).
package quota

import (
	"context"
	"time"
)

type Kind string

const (
	KindIP      Kind = "ip"
	KindAccount Kind = "account"
)

// Identity is the unit a usage counter is kept for.
type Identity struct {
	Kind Kind
	Key  string
}

func IPIdentity(addr string) Identity {
	return Identity{Kind: KindIP, Key: addr}
}

func AccountIdentity(accountID string) Identity {
	return Identity{Kind: KindAccount, Key: accountID}
}

type Tier string

const (
	TierAnonymous  Tier = "anonymous"
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPro, TierEnterprise:
		return Tier(s)
	default:
		return TierFree
	}
}

// Record is the stored usage counter for one identity.
type Record struct {
	PeriodKey        string
	CountUsed        int
	LastEvaluationAt time.Time
}

// Store persists usage counters. GetUsage returns nil, nil when the identity
// has no record yet.
type Store interface {
	GetUsage(ctx context.Context, id Identity) (*Record, error)
	ResetUsage(ctx context.Context, id Identity, period string) error
	IncrementUsage(ctx context.Context, id Identity, period string, at time.Time) (int, error)
}

type Account struct {
	ID        string
	Email     string
	Tier      Tier
	Active    bool
	CreatedAt time.Time
}

// AccountResolver maps a caller email to an account. It returns nil, nil
// when no account exists for the email.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, email string) (*Account, error)
}

// PeriodKey is the calendar month (UTC) a usage counter belongs to.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NextReset is the start of the next calendar month in UTC.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
