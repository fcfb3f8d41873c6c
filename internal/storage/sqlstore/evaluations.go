package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adalign/backend/internal/storage/models"
)

const evaluationColumns = `id, account_id, platform, ad_image_url, ad_source_type, ad_extraction_method,
	ad_frame_count, landing_page_url, landing_page_image_url, audience, visual_match, contextual_match,
	tone_alignment, overall_score, suggestions, element_comparisons, created_at`

func (c *Client) InsertEvaluation(ctx context.Context, eval *models.Evaluation) error {
	audience, err := json.Marshal(eval.Audience)
	if err != nil {
		return fmt.Errorf("failed to marshal audience: %w", err)
	}
	suggestions, err := json.Marshal(eval.Suggestions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}
	comparisons, err := json.Marshal(eval.ElementComparisons)
	if err != nil {
		return fmt.Errorf("failed to marshal element comparisons: %w", err)
	}

	query := c.rebind(`INSERT INTO evaluations (` + evaluationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = c.db.ExecContext(ctx, query,
		eval.ID,
		nullString(eval.AccountID),
		eval.Platform,
		eval.AdImageURL,
		eval.AdSourceType,
		eval.AdExtractionMethod,
		eval.AdFrameCount,
		eval.LandingPageURL,
		nullString(eval.LandingPageImageURL),
		string(audience),
		eval.Scores.VisualMatch,
		eval.Scores.ContextualMatch,
		eval.Scores.ToneAlignment,
		eval.OverallScore,
		string(suggestions),
		string(comparisons),
		eval.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

func (c *Client) GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
	query := c.rebind(`SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = ?`)

	eval, err := scanEvaluation(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return eval, nil
}

// ListEvaluations returns the account's evaluations, newest first.
func (c *Client) ListEvaluations(ctx context.Context, accountID string, limit int) ([]models.Evaluation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := c.rebind(`SELECT ` + evaluationColumns + `
		FROM evaluations
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ?`)

	rows, err := c.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []models.Evaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evals = append(evals, *eval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate evaluations: %w", err)
	}
	return evals, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (*models.Evaluation, error) {
	var (
		eval                               models.Evaluation
		accountID, pageImage               sql.NullString
		adImage, adSource, adMethod        sql.NullString
		frameCount                         sql.NullInt64
		audience, suggestions, comparisons sql.NullString
		createdAt                          int64
	)

	err := row.Scan(
		&eval.ID,
		&accountID,
		&eval.Platform,
		&adImage,
		&adSource,
		&adMethod,
		&frameCount,
		&eval.LandingPageURL,
		&pageImage,
		&audience,
		&eval.Scores.VisualMatch,
		&eval.Scores.ContextualMatch,
		&eval.Scores.ToneAlignment,
		&eval.OverallScore,
		&suggestions,
		&comparisons,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	eval.AccountID = accountID.String
	eval.AdImageURL = adImage.String
	eval.AdSourceType = adSource.String
	eval.AdExtractionMethod = adMethod.String
	eval.AdFrameCount = int(frameCount.Int64)
	eval.LandingPageImageURL = pageImage.String
	eval.CreatedAt = time.Unix(createdAt, 0).UTC()

	if audience.Valid && audience.String != "" {
		if err := json.Unmarshal([]byte(audience.String), &eval.Audience); err != nil {
			return nil, fmt.Errorf("failed to decode audience: %w", err)
		}
	}
	if suggestions.Valid && suggestions.String != "" {
		if err := json.Unmarshal([]byte(suggestions.String), &eval.Suggestions); err != nil {
			return nil, fmt.Errorf("failed to decode suggestions: %w", err)
		}
	}
	if comparisons.Valid && comparisons.String != "" {
		if err := json.Unmarshal([]byte(comparisons.String), &eval.ElementComparisons); err != nil {
			return nil, fmt.Errorf("failed to decode element comparisons: %w", err)
		}
	}
	return &eval, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
