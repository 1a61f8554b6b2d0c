// Package triage implements the classification-and-deferred-processing
// decision engine: confidence-gated classification, deferred extraction with
// cache invalidation, and similarity-based deduplication.
package triage

import (
	"triage_server/core/domain"
)

// =============================================================================
// Confidence Evaluator
// =============================================================================

// defaultReviewThreshold applies to categories without a documented threshold.
const defaultReviewThreshold = 0.85

// autoApproveThresholds maps category → minimum confidence for skipping
// human review. required_personal_action is absent on purpose: it never
// auto-approves, whatever the confidence.
var autoApproveThresholds = map[domain.EmailCategory]float64{
	domain.CategoryOptionalFYI:    0.90,
	domain.CategoryTeamAction:     0.80,
	domain.CategoryTaskDelegation: 0.80,
	domain.CategoryWorkRelevant:   0.80,
}

// ConfidenceEvaluator decides whether a classification needs human review.
// Pure and deterministic: no dependencies, no side effects, no failure mode.
type ConfidenceEvaluator struct{}

// NewConfidenceEvaluator creates a confidence evaluator.
func NewConfidenceEvaluator() *ConfidenceEvaluator {
	return &ConfidenceEvaluator{}
}

// Evaluate returns true when the (category, confidence) pair requires human
// review. Personal-action items carry the highest cost of a false negative,
// so they are never silently auto-filed.
func (e *ConfidenceEvaluator) Evaluate(category domain.EmailCategory, confidence float64) bool {
	if category == domain.CategoryRequiredPersonalAction {
		return true
	}

	threshold, ok := autoApproveThresholds[category]
	if !ok {
		threshold = defaultReviewThreshold
	}

	// Tie-break is "never auto-approve below threshold": equality clears it.
	return confidence < threshold
}

// Threshold returns the auto-approve threshold for a category, or -1 for
// categories that always require review.
func (e *ConfidenceEvaluator) Threshold(category domain.EmailCategory) float64 {
	if category == domain.CategoryRequiredPersonalAction {
		return -1
	}
	if t, ok := autoApproveThresholds[category]; ok {
		return t
	}
	return defaultReviewThreshold
}
