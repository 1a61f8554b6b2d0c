package out

import (
	"context"

	"triage_server/core/domain"
)

// ResultStore is the persistence collaborator. The engine owns results for
// the duration of a processing session; the store is the long-term owner
// once results are handed off.
type ResultStore interface {
	SaveClassification(ctx context.Context, result *domain.ClassificationResult) error
	SaveExtraction(ctx context.Context, result *domain.ExtractionResult) error
	SaveDuplicateGroup(ctx context.Context, group *domain.DeduplicationGroup) error
	DeleteExtraction(ctx context.Context, emailID string) error
}
