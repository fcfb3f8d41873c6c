package quota

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/adalign/backend/internal/metrics"
	"github.com/adalign/backend/pkg/logger"
	"github.com/adalign/backend/pkg/utils"
)

var ErrNoStore = errors.New("usage store not configured")

type Limits struct {
	Anonymous int
	Tiers     map[Tier]int
}

func DefaultLimits() Limits {
	return Limits{
		Anonymous: 5,
		Tiers: map[Tier]int{
			TierFree:       10,
			TierPro:        100,
			TierEnterprise: 1000,
		},
	}
}

type Decision struct {
	Allowed   bool
	Limit     int
	Used      int
	Remaining int
	NextReset time.Time
	// FailOpen is set when the store could not be consulted.
	FailOpen bool
}

type Limiter struct {
	store  Store
	limits Limits
	now    func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter builds a limiter over store. A nil store is allowed and makes
// every check fail open.
func NewLimiter(store Store, limits Limits, opts ...Option) *Limiter {
	l := &Limiter{store: store, limits: limits, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) LimitFor(tier Tier) int {
	if tier == TierAnonymous {
		return l.limits.Anonymous
	}
	if n, ok := l.limits.Tiers[tier]; ok {
		return n
	}
	return l.limits.Tiers[TierFree]
}

// Check reports whether id may run one more evaluation this month. It never
// increments the counter, so repeated checks return the same decision.
func (l *Limiter) Check(ctx context.Context, id Identity, tier Tier) Decision {
	now := l.now()
	period := PeriodKey(now)
	limit := l.LimitFor(tier)
	d := Decision{Limit: limit, NextReset: NextReset(now)}

	if l.store == nil {
		return l.failOpen(d, id, ErrNoStore)
	}

	rec, err := l.store.GetUsage(ctx, id)
	if err != nil {
		return l.failOpen(d, id, err)
	}

	used := 0
	switch {
	case rec == nil, rec.PeriodKey != period:
		if err := l.store.ResetUsage(ctx, id, period); err != nil {
			logger.Warn("Failed to stamp usage period",
				zap.String("kind", string(id.Kind)),
				zap.String("identity", utils.HashIdentity(id.Key)),
				zap.Error(err),
			)
		}
	default:
		used = rec.CountUsed
	}

	d.Used = used
	d.Allowed = used < limit
	d.Remaining = max(limit-used, 0)

	decision := "allowed"
	if !d.Allowed {
		decision = "blocked"
	}
	metrics.QuotaDecisions.WithLabelValues(string(id.Kind), decision).Inc()

	return d
}

// RecordUsage atomically adds one evaluation to id's counter for the
// current month.
func (l *Limiter) RecordUsage(ctx context.Context, id Identity) error {
	if l.store == nil {
		return ErrNoStore
	}
	now := l.now()
	count, err := l.store.IncrementUsage(ctx, id, PeriodKey(now), now)
	if err != nil {
		return err
	}
	logger.Debug("Usage recorded",
		zap.String("kind", string(id.Kind)),
		zap.String("identity", utils.HashIdentity(id.Key)),
		zap.Int("count", count),
	)
	return nil
}

func (l *Limiter) failOpen(d Decision, id Identity, err error) Decision {
	logger.Warn("Usage check failed, allowing request",
		zap.String("kind", string(id.Kind)),
		zap.String("identity", utils.HashIdentity(id.Key)),
		zap.Error(err),
	)
	metrics.QuotaDecisions.WithLabelValues(string(id.Kind), "fail_open").Inc()

	d.Allowed = true
	d.Remaining = d.Limit
	d.FailOpen = true
	return d
}
