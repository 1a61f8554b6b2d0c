package triage

import (
	"testing"

	"triage_server/core/domain"
)

// TestConfidenceEvaluator tests the category-aware review gating.
func TestConfidenceEvaluator(t *testing.T) {
	evaluator := NewConfidenceEvaluator()

	tests := []struct {
		name       string
		category   domain.EmailCategory
		confidence float64
		wantReview bool
	}{
		{
			name:       "high confidence FYI auto-approves",
			category:   domain.CategoryOptionalFYI,
			confidence: 0.92,
			wantReview: false,
		},
		{
			name:       "low confidence FYI requires review",
			category:   domain.CategoryOptionalFYI,
			confidence: 0.70,
			wantReview: true,
		},
		{
			name:       "FYI at exactly the threshold auto-approves",
			category:   domain.CategoryOptionalFYI,
			confidence: 0.90,
			wantReview: false,
		},
		{
			name:       "personal action always requires review",
			category:   domain.CategoryRequiredPersonalAction,
			confidence: 0.99,
			wantReview: true,
		},
		{
			name:       "personal action at full confidence still requires review",
			category:   domain.CategoryRequiredPersonalAction,
			confidence: 1.0,
			wantReview: true,
		},
		{
			name:       "team action at threshold auto-approves",
			category:   domain.CategoryTeamAction,
			confidence: 0.80,
			wantReview: false,
		},
		{
			name:       "team action just under threshold requires review",
			category:   domain.CategoryTeamAction,
			confidence: 0.79,
			wantReview: true,
		},
		{
			name:       "task delegation at threshold auto-approves",
			category:   domain.CategoryTaskDelegation,
			confidence: 0.80,
			wantReview: false,
		},
		{
			name:       "newsletter uses default threshold",
			category:   domain.CategoryNewsletter,
			confidence: 0.85,
			wantReview: false,
		},
		{
			name:       "newsletter under default threshold requires review",
			category:   domain.CategoryNewsletter,
			confidence: 0.84,
			wantReview: true,
		},
		{
			name:       "zero confidence always requires review",
			category:   domain.CategoryOther,
			confidence: 0.0,
			wantReview: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluator.Evaluate(tt.category, tt.confidence)
			if got != tt.wantReview {
				t.Errorf("Evaluate(%s, %.2f) = %v, want %v",
					tt.category, tt.confidence, got, tt.wantReview)
			}
		})
	}
}

func TestConfidenceThreshold(t *testing.T) {
	evaluator := NewConfidenceEvaluator()

	if got := evaluator.Threshold(domain.CategoryRequiredPersonalAction); got != -1 {
		t.Errorf("personal action threshold = %v, want -1", got)
	}
	if got := evaluator.Threshold(domain.CategoryOptionalFYI); got != 0.90 {
		t.Errorf("optional FYI threshold = %v, want 0.90", got)
	}
	if got := evaluator.Threshold(domain.CategorySpam); got != defaultReviewThreshold {
		t.Errorf("spam threshold = %v, want default %v", got, defaultReviewThreshold)
	}
}

// TestEvaluatorDeterminism verifies repeated evaluation of the same pair
// yields the same answer.
func TestEvaluatorDeterminism(t *testing.T) {
	evaluator := NewConfidenceEvaluator()

	first := evaluator.Evaluate(domain.CategoryWorkRelevant, 0.81)
	for i := 0; i < 100; i++ {
		if evaluator.Evaluate(domain.CategoryWorkRelevant, 0.81) != first {
			t.Fatal("evaluator is not deterministic")
		}
	}
}
