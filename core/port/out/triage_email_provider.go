package out

import (
	"context"
	"time"

	"triage_server/core/domain"
)

// EmailProvider is a read-only supplier of email records. The engine never
// mutates source emails.
type EmailProvider interface {
	GetByID(ctx context.Context, id string) (*domain.Email, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]*domain.Email, error)
}
