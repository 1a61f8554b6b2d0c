package in

import (
	"context"

	"triage_server/core/domain"

	"github.com/google/uuid"
)

// BatchError records a per-item failure inside a batch. Batches have
// partial-failure semantics: errors are returned alongside successes.
type BatchError struct {
	EmailID string `json:"email_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClassifyBatchResult is the outcome of a classification pass.
// Every input email gets an entry in Results (fallbacks included);
// Errors only carries validation skips.
type ClassifyBatchResult struct {
	Results map[string]*domain.ClassificationResult `json:"results"`
	Errors  []BatchError                            `json:"errors,omitempty"`
}

// DetailedBatchResult is the outcome of deferred detailed processing.
// Every requested finalized email gets exactly one ExtractionResult.
type DetailedBatchResult struct {
	Results map[string]*domain.ExtractionResult `json:"results"`
	Errors  []BatchError                        `json:"errors,omitempty"`
}

// ProcessingService is the only surface the surrounding HTTP/UI layer is
// permitted to call.
type ProcessingService interface {
	// ClassifyBatch runs the cheap classification pass over a batch of
	// emails. One failing email never aborts the rest.
	ClassifyBatch(ctx context.Context, userID uuid.UUID, emails []*domain.Email) (*ClassifyBatchResult, error)

	// Finalize marks the given emails as category-final. Emails not in the
	// set stay Classified and must not be detail-processed.
	Finalize(ctx context.Context, emailIDs []string) error

	// Reclassify replaces an email's classification wholesale, resetting
	// the state machine and invalidating any cached extraction.
	Reclassify(ctx context.Context, emailID string, category domain.EmailCategory) error

	// ProcessDetailedBatch runs extraction for finalized emails. Idempotent:
	// already-processed emails return cached results without new completion
	// calls.
	ProcessDetailedBatch(ctx context.Context, userID uuid.UUID, emailIDs []string) (*DetailedBatchResult, error)

	// FindDuplicates compares a candidate email against a pool and returns
	// its duplicate group, or nil when it is unique.
	FindDuplicates(ctx context.Context, candidate *domain.Email, pool []*domain.Email) (*domain.DeduplicationGroup, error)
}
