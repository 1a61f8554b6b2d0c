package domain

import (
	"errors"
	"time"
)

// Domain validation errors.
var (
	ErrNilEmail       = errors.New("email is nil")
	ErrMissingEmailID = errors.New("email has no id")
	ErrEmptyEmail     = errors.New("email has neither subject nor body")
)

// CategoryScore is one alternative category with its confidence.
// Alternatives are kept ordered (best first) so the UI can offer one-click
// recategorization without another completion call.
type CategoryScore struct {
	Category   EmailCategory `json:"category"`
	Confidence float64       `json:"confidence"`
}

// ClassificationResult is the outcome of classifying a single email.
// A reclassification replaces the whole result; there is no partial mutation.
type ClassificationResult struct {
	EmailID      string          `json:"email_id"`
	Category     EmailCategory   `json:"category"`
	Confidence   float64         `json:"confidence"` // 0.0 - 1.0
	Reasoning    string          `json:"reasoning"`
	Alternatives []CategoryScore `json:"alternatives,omitempty"`

	// RequiresReview is derived from (category, confidence) by the
	// confidence evaluator, never set by the model directly.
	RequiresReview bool `json:"requires_review"`

	// Fallback marks a result produced because the completion call failed
	// or returned unparsable output.
	Fallback bool `json:"fallback,omitempty"`

	// Version increments on every reclassification of the email. Extraction
	// results stamped with an older version are stale and discarded.
	Version int64 `json:"version"`

	// Processing info
	ClassifiedAt time.Time `json:"classified_at"`
	ModelUsed    string    `json:"model_used,omitempty"`
	TokensUsed   int       `json:"tokens_used,omitempty"`
}

// FallbackReasoning is the reasoning string attached to fallback results.
const FallbackReasoning = "classification unavailable"

// NewFallbackClassification builds the well-formed placeholder returned when
// the completion call fails: downstream logic never sees an absent result.
func NewFallbackClassification(emailID string) *ClassificationResult {
	return &ClassificationResult{
		EmailID:        emailID,
		Category:       CategoryOther,
		Confidence:     0.0,
		Reasoning:      FallbackReasoning,
		RequiresReview: true,
		Fallback:       true,
		ClassifiedAt:   time.Now(),
	}
}
