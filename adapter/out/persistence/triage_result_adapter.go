package persistence

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"triage_server/core/domain"
	portout "triage_server/core/port/out"
)

// =============================================================================
// Result Adapter (PostgreSQL)
// =============================================================================

// ResultAdapter implements out.ResultStore using PostgreSQL. Classification
// and extraction rows are keyed by email id; saves are upserts so a
// reclassification replaces the previous row wholesale.
type ResultAdapter struct {
	db *sqlx.DB
}

// NewResultAdapter creates a new ResultAdapter.
func NewResultAdapter(db *sqlx.DB) *ResultAdapter {
	return &ResultAdapter{db: db}
}

var _ portout.ResultStore = (*ResultAdapter)(nil)

// SaveClassification upserts the classification row for an email.
func (a *ResultAdapter) SaveClassification(ctx context.Context, result *domain.ClassificationResult) error {
	alternatives, err := json.Marshal(result.Alternatives)
	if err != nil {
		return fmt.Errorf("failed to marshal alternatives: %w", err)
	}

	query := `
		INSERT INTO classifications (email_id, category, confidence, reasoning, alternatives,
			requires_review, fallback, version, classified_at, model_used, tokens_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (email_id) DO UPDATE SET
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			alternatives = EXCLUDED.alternatives,
			requires_review = EXCLUDED.requires_review,
			fallback = EXCLUDED.fallback,
			version = EXCLUDED.version,
			classified_at = EXCLUDED.classified_at,
			model_used = EXCLUDED.model_used,
			tokens_used = EXCLUDED.tokens_used`

	_, err = a.db.ExecContext(ctx, query,
		result.EmailID,
		string(result.Category),
		result.Confidence,
		result.Reasoning,
		alternatives,
		result.RequiresReview,
		result.Fallback,
		result.Version,
		result.ClassifiedAt,
		result.ModelUsed,
		result.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}
	return nil
}

// SaveExtraction upserts the extraction row for an email. Action items and
// key points are stored as JSONB alongside the summary.
func (a *ResultAdapter) SaveExtraction(ctx context.Context, result *domain.ExtractionResult) error {
	actionItems, err := json.Marshal(result.ActionItems)
	if err != nil {
		return fmt.Errorf("failed to marshal action items: %w", err)
	}
	keyPoints, err := json.Marshal(result.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to marshal key points: %w", err)
	}

	query := `
		INSERT INTO extractions (email_id, summary, key_points, action_items,
			version, extracted_at, model_used, tokens_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			key_points = EXCLUDED.key_points,
			action_items = EXCLUDED.action_items,
			version = EXCLUDED.version,
			extracted_at = EXCLUDED.extracted_at,
			model_used = EXCLUDED.model_used,
			tokens_used = EXCLUDED.tokens_used`

	_, err = a.db.ExecContext(ctx, query,
		result.EmailID,
		result.Summary,
		keyPoints,
		actionItems,
		result.Version,
		result.ExtractedAt,
		result.ModelUsed,
		result.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to save extraction: %w", err)
	}
	return nil
}

// DeleteExtraction removes the persisted extraction for an email. Deleting a
// missing row is not an error.
func (a *ResultAdapter) DeleteExtraction(ctx context.Context, emailID string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM extractions WHERE email_id = $1`, emailID)
	if err != nil {
		return fmt.Errorf("failed to delete extraction: %w", err)
	}
	return nil
}

// SaveDuplicateGroup upserts a duplicate group.
func (a *ResultAdapter) SaveDuplicateGroup(ctx context.Context, group *domain.DeduplicationGroup) error {
	members, err := json.Marshal(group.MemberIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal member ids: %w", err)
	}

	query := `
		INSERT INTO duplicate_groups (id, kind, canonical_id, member_ids, detected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			canonical_id = EXCLUDED.canonical_id,
			member_ids = EXCLUDED.member_ids,
			detected_at = EXCLUDED.detected_at`

	_, err = a.db.ExecContext(ctx, query,
		group.ID,
		string(group.Kind),
		group.CanonicalID,
		members,
		group.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save duplicate group: %w", err)
	}
	return nil
}

// LoadClassification reads the classification row for an email, or nil.
func (a *ResultAdapter) LoadClassification(ctx context.Context, emailID string) (*domain.ClassificationResult, error) {
	var row classificationRow
	query := `
		SELECT email_id, category, confidence, reasoning, alternatives,
			   requires_review, fallback, version, classified_at, model_used, tokens_used
		FROM classifications WHERE email_id = $1`

	if err := a.db.GetContext(ctx, &row, query, emailID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load classification: %w", err)
	}
	return row.toDomain()
}
