package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/pkg/utils"
)

func (c *Client) GetUsage(ctx context.Context, id quota.Identity) (*quota.Record, error) {
	query := c.rebind(`
		SELECT period_key, count_used, last_evaluation_at
		FROM usage_counters
		WHERE identity_kind = ? AND identity_key = ?`)

	var rec quota.Record
	var lastAt sql.NullInt64
	err := c.db.QueryRowContext(ctx, query, string(id.Kind), identityKey(id)).
		Scan(&rec.PeriodKey, &rec.CountUsed, &lastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}
	if lastAt.Valid {
		rec.LastEvaluationAt = time.Unix(lastAt.Int64, 0).UTC()
	}
	return &rec, nil
}

// ResetUsage moves a stale counter to period at zero. A counter already on
// period is left unchanged.
func (c *Client) ResetUsage(ctx context.Context, id quota.Identity, period string) error {
	query := c.rebind(`
		INSERT INTO usage_counters (identity_kind, identity_key, period_key, count_used)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (identity_kind, identity_key) DO UPDATE SET
			period_key = excluded.period_key,
			count_used = 0
		WHERE usage_counters.period_key <> excluded.period_key`)

	if _, err := c.db.ExecContext(ctx, query, string(id.Kind), identityKey(id), period); err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

// IncrementUsage adds one to the counter in a single statement. A stale
// period restarts the count at 1.
func (c *Client) IncrementUsage(ctx context.Context, id quota.Identity, period string, at time.Time) (int, error) {
	query := c.rebind(`
		INSERT INTO usage_counters (identity_kind, identity_key, period_key, count_used, last_evaluation_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (identity_kind, identity_key) DO UPDATE SET
			count_used = CASE
				WHEN usage_counters.period_key = excluded.period_key THEN usage_counters.count_used + 1
				ELSE 1
			END,
			period_key = excluded.period_key,
			last_evaluation_at = excluded.last_evaluation_at
		RETURNING count_used`)

	var count int
	err := c.db.QueryRowContext(ctx, query, string(id.Kind), identityKey(id), period, at.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

// Network addresses are stored hashed; account ids are already opaque.
func identityKey(id quota.Identity) string {
	if id.Kind == quota.KindIP {
		return utils.HashIdentity(id.Key)
	}
	return id.Key
}
