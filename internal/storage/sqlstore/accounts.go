package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adalign/backend/internal/quota"
)

func (c *Client) ResolveAccount(ctx context.Context, email string) (*quota.Account, error) {
	query := c.rebind(`
		SELECT id, email, tier, active, created_at
		FROM accounts
		WHERE email = ?`)

	var acct quota.Account
	var tier string
	var active int
	var createdAt int64
	err := c.db.QueryRowContext(ctx, query, normalizeEmail(email)).
		Scan(&acct.ID, &acct.Email, &tier, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	acct.Tier = quota.ParseTier(tier)
	acct.Active = active != 0
	acct.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &acct, nil
}

// UpsertAccount creates the account or updates its tier and status. A new
// account gets a fresh UUID; an existing one keeps its id, which is written
// back to acct.
func (c *Client) UpsertAccount(ctx context.Context, acct *quota.Account) error {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	acct.Email = normalizeEmail(acct.Email)

	query := c.rebind(`
		INSERT INTO accounts (id, email, tier, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			tier = excluded.tier,
			active = excluded.active
		RETURNING id`)

	active := 0
	if acct.Active {
		active = 1
	}
	err := c.db.QueryRowContext(ctx, query, acct.ID, acct.Email, string(acct.Tier), active, acct.CreatedAt.Unix()).Scan(&acct.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
