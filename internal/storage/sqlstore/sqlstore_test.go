package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalign/backend/internal/quota"
	"github.com/adalign/backend/internal/storage/models"
)

// ============================================================================
// Test Helpers
// ============================================================================

func createTestStore(t *testing.T) *Client {
	t.Helper()
	c, err := Open("sqlite3", filepath.Join(t.TempDir(), "adalign.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.InitSchema(context.Background()))
	return c
}

func createTestEvaluation(id, accountID string, createdAt time.Time) *models.Evaluation {
	return &models.Evaluation{
		ID:                 id,
		AccountID:          accountID,
		Platform:           "meta",
		AdImageURL:         "https://cdn.example.com/ad.png",
		AdSourceType:       "upload",
		AdExtractionMethod: "upload",
		LandingPageURL:     "https://shop.example.com",
		Audience: models.Audience{
			AgeRange:  "25-34",
			Gender:    "all",
			Interests: []string{"fitness"},
		},
		Scores:       models.ComponentScores{VisualMatch: 3, ContextualMatch: 4, ToneAlignment: 2},
		OverallScore: 3,
		Suggestions: models.Suggestions{
			Visual:     []string{"Reuse the ad's orange CTA"},
			Contextual: []string{"Repeat the 20% offer"},
			Tone:       []string{"Match the playful voice"},
		},
		ElementComparisons: []models.ElementComparison{{
			Element:          "headline",
			AdValue:          "20% off today",
			LandingPageValue: "Welcome",
			Status:           models.StatusMismatch,
			Severity:         models.SeverityHigh,
			Recommendation:   "Lead with the offer",
		}},
		CreatedAt: createdAt,
	}
}

// ============================================================================
// SQLite integration
// ============================================================================

func TestUsageCounters(t *testing.T) {
	c := createTestStore(t)
	ctx := context.Background()
	id := quota.IPIdentity("203.0.113.7")
	at := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	rec, err := c.GetUsage(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, c.ResetUsage(ctx, id, "2025-03"))
	rec, err = c.GetUsage(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "2025-03", rec.PeriodKey)
	assert.Zero(t, rec.CountUsed)
	assert.True(t, rec.LastEvaluationAt.IsZero())

	for i := 1; i <= 3; i++ {
		n, err := c.IncrementUsage(ctx, id, "2025-03", at)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := c.IncrementUsage(ctx, id, "2025-04", at.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err = c.GetUsage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2025-04", rec.PeriodKey)
	assert.Equal(t, 1, rec.CountUsed)
	assert.Equal(t, at.AddDate(0, 1, 0), rec.LastEvaluationAt)
}

func TestUsageCounters_ResetKeepsCurrentPeriod(t *testing.T) {
	c := createTestStore(t)
	ctx := context.Background()
	id := quota.AccountIdentity("acct-9")
	at := time.Date(2025, 4, 1, 0, 0, 5, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := c.IncrementUsage(ctx, id, "2025-03", at)
		require.NoError(t, err)
	}

	// A request for the new month lands before the stale reading is reset.
	_, err := c.IncrementUsage(ctx, id, "2025-04", at)
	require.NoError(t, err)
	require.NoError(t, c.ResetUsage(ctx, id, "2025-04"))

	rec, err := c.GetUsage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2025-04", rec.PeriodKey)
	assert.Equal(t, 1, rec.CountUsed)
}

func TestUsageCounters_IdentitiesAreSeparate(t *testing.T) {
	c := createTestStore(t)
	ctx := context.Background()

	_, err := c.IncrementUsage(ctx, quota.IPIdentity("x"), "2025-03", time.Now())
	require.NoError(t, err)
	n, err := c.IncrementUsage(ctx, quota.AccountIdentity("x"), "2025-03", time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
}

func TestAccounts(t *testing.T) {
	c := createTestStore(t)
	ctx := context.Background()

	acct, err := c.ResolveAccount(ctx, "missing@example.com")
	require.NoError(t, err)
	assert.Nil(t, acct)

	created := &quota.Account{Email: " Owner@Example.com", Tier: quota.TierPro, Active: true}
	require.NoError(t, c.UpsertAccount(ctx, created))
	require.NotEmpty(t, created.ID)

	acct, err = c.ResolveAccount(ctx, "owner@example.com")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, created.ID, acct.ID)
	assert.Equal(t, quota.TierPro, acct.Tier)
	assert.True(t, acct.Active)

	created.Active = false
	created.Tier = quota.TierEnterprise
	require.NoError(t, c.UpsertAccount(ctx, created))

	acct, err = c.ResolveAccount(ctx, "OWNER@example.com")
	require.NoError(t, err)
	assert.False(t, acct.Active)
	assert.Equal(t, quota.TierEnterprise, acct.Tier)
}

func TestEvaluations(t *testing.T) {
	c := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"eval-1", "eval-2", "eval-3"} {
		require.NoError(t, c.InsertEvaluation(ctx, createTestEvaluation(id, "acct-1", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, c.InsertEvaluation(ctx, createTestEvaluation("eval-anon", "", base)))

	got, err := c.GetEvaluation(ctx, "eval-2")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.AccountID)
	assert.Equal(t, 3, got.OverallScore)
	assert.Equal(t, "25-34", got.Audience.AgeRange)
	assert.Equal(t, []string{"Repeat the 20% offer"}, got.Suggestions.Contextual)
	require.Len(t, got.ElementComparisons, 1)
	assert.Equal(t, models.SeverityHigh, got.ElementComparisons[0].Severity)
	assert.Equal(t, base.Add(time.Hour), got.CreatedAt)

	list, err := c.ListEvaluations(ctx, "acct-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "eval-3", list[0].ID)
	assert.Equal(t, "eval-2", list[1].ID)

	anon, err := c.GetEvaluation(ctx, "eval-anon")
	require.NoError(t, err)
	assert.Empty(t, anon.AccountID)

	_, err = c.GetEvaluation(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = c.InsertEvaluation(ctx, createTestEvaluation("eval-1", "acct-1", base))
	assert.Error(t, err)
}

// ============================================================================
// Failure paths (sqlmock)
// ============================================================================

func TestIncrementUsage_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := New(db, DialectPostgres)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO usage_counters")).
		WithArgs("account", "acct-1", "2025-03", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err = c.IncrementUsage(context.Background(), quota.AccountIdentity("acct-1"), "2025-03", time.Now())

	assert.ErrorContains(t, err, "failed to increment usage")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUsage_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := New(db, DialectPostgres)
	mock.ExpectQuery(`VALUES \(\$1, \$2, \$3, 1, \$4\)`).
		WithArgs("account", "acct-1", "2025-03", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count_used"}).AddRow(4))

	n, err := c.IncrementUsage(context.Background(), quota.AccountIdentity("acct-1"), "2025-03", time.Now())

	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsage_ScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := New(db, DialectSQLite)
	mock.ExpectQuery("SELECT period_key, count_used, last_evaluation_at").
		WillReturnError(errors.New("disk I/O error"))

	l := quota.NewLimiter(c, quota.DefaultLimits())
	d := l.Check(context.Background(), quota.IPIdentity("192.0.2.1"), quota.TierAnonymous)

	assert.True(t, d.Allowed)
	assert.True(t, d.FailOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEvaluation_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := New(db, DialectSQLite)
	mock.ExpectExec("INSERT INTO evaluations").WillReturnError(errors.New("readonly database"))

	err = c.InsertEvaluation(context.Background(), createTestEvaluation("e", "", time.Now()))

	assert.ErrorContains(t, err, "failed to insert evaluation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	pg := New(nil, DialectPostgres)
	lite := New(nil, DialectSQLite)
	q := "SELECT a FROM t WHERE b = ? AND c = ?"

	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}
