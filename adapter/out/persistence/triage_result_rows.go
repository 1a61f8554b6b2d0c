package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
)

// =============================================================================
// Database Row Mapping
// =============================================================================

type classificationRow struct {
	EmailID        string         `db:"email_id"`
	Category       string         `db:"category"`
	Confidence     float64        `db:"confidence"`
	Reasoning      string         `db:"reasoning"`
	Alternatives   []byte         `db:"alternatives"`
	RequiresReview bool           `db:"requires_review"`
	Fallback       bool           `db:"fallback"`
	Version        int64          `db:"version"`
	ClassifiedAt   time.Time      `db:"classified_at"`
	ModelUsed      sql.NullString `db:"model_used"`
	TokensUsed     int            `db:"tokens_used"`
}

func (r *classificationRow) toDomain() (*domain.ClassificationResult, error) {
	result := &domain.ClassificationResult{
		EmailID:        r.EmailID,
		Category:       domain.EmailCategory(r.Category),
		Confidence:     r.Confidence,
		Reasoning:      r.Reasoning,
		RequiresReview: r.RequiresReview,
		Fallback:       r.Fallback,
		Version:        r.Version,
		ClassifiedAt:   r.ClassifiedAt,
		TokensUsed:     r.TokensUsed,
	}
	if r.ModelUsed.Valid {
		result.ModelUsed = r.ModelUsed.String
	}
	if len(r.Alternatives) > 0 {
		if err := json.Unmarshal(r.Alternatives, &result.Alternatives); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alternatives: %w", err)
		}
	}
	return result, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
