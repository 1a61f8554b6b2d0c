package out

import (
	"context"

	"triage_server/core/domain"
)

// ResultCache is a cross-process, write-through cache of classification
// results keyed by email id. The coordinator's in-memory state remains
// authoritative; the cache only saves repeated completion spend across
// instances. A nil/missing entry is never an error.
type ResultCache interface {
	GetClassification(ctx context.Context, emailID string) (*domain.ClassificationResult, error)
	SetClassification(ctx context.Context, result *domain.ClassificationResult) error
	InvalidateEmail(ctx context.Context, emailID string) error
}
