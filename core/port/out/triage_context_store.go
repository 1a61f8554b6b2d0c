package out

import (
	"context"

	"triage_server/core/domain"

	"github.com/google/uuid"
)

// UserContextStore supplies per-user personalization data.
// Returns (nil, nil) when the user has no stored context.
type UserContextStore interface {
	GetContext(ctx context.Context, userID uuid.UUID) (*domain.UserContext, error)
	SaveContext(ctx context.Context, uc *domain.UserContext) error
}
