package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"triage_server/core/domain"
	portout "triage_server/core/port/out"
)

// =============================================================================
// Email Adapter (PostgreSQL)
// =============================================================================

// EmailAdapter implements out.EmailProvider using PostgreSQL. Reads only:
// the engine never mutates source emails.
type EmailAdapter struct {
	db *sqlx.DB
}

// NewEmailAdapter creates a new EmailAdapter.
func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

var _ portout.EmailProvider = (*EmailAdapter)(nil)

// GetByID retrieves a single email, or nil when it does not exist.
func (a *EmailAdapter) GetByID(ctx context.Context, id string) (*domain.Email, error) {
	var email domain.Email
	query := `SELECT id, subject, sender, body, received_at FROM emails WHERE id = $1`

	if err := a.db.GetContext(ctx, &email, query, id); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &email, nil
}

// ListSince lists emails received at or after the given time, oldest first.
func (a *EmailAdapter) ListSince(ctx context.Context, since time.Time, limit int) ([]*domain.Email, error) {
	if limit <= 0 {
		limit = 100
	}

	var emails []*domain.Email
	query := `
		SELECT id, subject, sender, body, received_at
		FROM emails
		WHERE received_at >= $1
		ORDER BY received_at ASC
		LIMIT $2`

	if err := a.db.SelectContext(ctx, &emails, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}
