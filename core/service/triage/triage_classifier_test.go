package triage

import (
	"context"
	"errors"
	"testing"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

func newTestClassifier(completion *fakeCompletion) *ClassificationEngine {
	return NewClassificationEngine(completion, NewConfidenceEvaluator(), 0)
}

// TestClassifySuccess tests the happy path with a plain JSON response.
func TestClassifySuccess(t *testing.T) {
	completion := &fakeCompletion{
		response: `{"category": "team_action", "confidence": 0.88, "reasoning": "asks the team to review", "alternatives": [{"category": "work_relevant", "confidence": 0.45}]}`,
	}
	engine := newTestClassifier(completion)

	email := testEmail("e1", "alice@corp.com", "Please review the design doc", "Can someone on the team take a look before Friday?")
	result := engine.Classify(context.Background(), email, nil)

	if result.Category != domain.CategoryTeamAction {
		t.Errorf("category = %s, want team_action", result.Category)
	}
	if result.Confidence != 0.88 {
		t.Errorf("confidence = %v, want 0.88", result.Confidence)
	}
	if result.RequiresReview {
		t.Error("0.88 team_action should auto-approve")
	}
	if result.Fallback {
		t.Error("successful classification must not be marked fallback")
	}
	if len(result.Alternatives) != 1 || result.Alternatives[0].Category != domain.CategoryWorkRelevant {
		t.Errorf("alternatives = %v, want [work_relevant]", result.Alternatives)
	}
	if result.ModelUsed != "gpt-4o-mini" {
		t.Errorf("model = %s, want gpt-4o-mini", result.ModelUsed)
	}
}

// TestClassifyFencedJSON verifies markdown code fences are tolerated.
func TestClassifyFencedJSON(t *testing.T) {
	completion := &fakeCompletion{
		response: "```json\n{\"category\": \"optional_fyi\", \"confidence\": 0.93, \"reasoning\": \"status update\"}\n```",
	}
	engine := newTestClassifier(completion)

	result := engine.Classify(context.Background(), testEmail("e1", "bob@corp.com", "Status update", "FYI the deploy went out."), nil)

	if result.Category != domain.CategoryOptionalFYI {
		t.Errorf("category = %s, want optional_fyi", result.Category)
	}
	if result.Fallback {
		t.Error("fenced but valid JSON should not fall back")
	}
}

// TestClassifyFallback tests that completion failures produce the well-formed
// fallback result instead of an error.
func TestClassifyFallback(t *testing.T) {
	tests := []struct {
		name       string
		completion *fakeCompletion
	}{
		{
			name: "completion error",
			completion: &fakeCompletion{
				err: out.NewCompletionError(out.CompletionTransient, "classify", errors.New("timeout")),
			},
		},
		{
			name:       "unparsable response",
			completion: &fakeCompletion{response: "I think this email is about a meeting."},
		},
		{
			name:       "unknown category",
			completion: &fakeCompletion{response: `{"category": "urgent_stuff", "confidence": 0.9, "reasoning": "x"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestClassifier(tt.completion)
			result := engine.Classify(context.Background(), testEmail("e1", "alice@corp.com", "Quarterly planning", "Let's sync next week."), nil)

			if result == nil {
				t.Fatal("fallback must still produce a result")
			}
			if result.Category != domain.CategoryOther {
				t.Errorf("category = %s, want other", result.Category)
			}
			if result.Confidence != 0.0 {
				t.Errorf("confidence = %v, want 0.0", result.Confidence)
			}
			if !result.RequiresReview {
				t.Error("fallback must require review")
			}
			if !result.Fallback {
				t.Error("fallback flag must be set")
			}
			if result.Reasoning != domain.FallbackReasoning {
				t.Errorf("reasoning = %q, want %q", result.Reasoning, domain.FallbackReasoning)
			}
		})
	}
}

// TestClassifyStructuralShortCircuit verifies obvious senders skip the
// completion call entirely.
func TestClassifyStructuralShortCircuit(t *testing.T) {
	tests := []struct {
		name         string
		email        *domain.Email
		wantCategory domain.EmailCategory
	}{
		{
			name:         "newsletter sender",
			email:        testEmail("e1", "newsletter@techweekly.com", "This week in tech", "..."),
			wantCategory: domain.CategoryNewsletter,
		},
		{
			name:         "unsubscribe subject",
			email:        testEmail("e2", "updates@shop.com", "Sale! Click to unsubscribe below", "..."),
			wantCategory: domain.CategoryNewsletter,
		},
		{
			name:         "job board sender",
			email:        testEmail("e3", "jobs@hirefast.io", "5 roles for you", "..."),
			wantCategory: domain.CategoryJobListing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completion := &fakeCompletion{}
			engine := newTestClassifier(completion)

			result := engine.Classify(context.Background(), tt.email, nil)

			if result.Category != tt.wantCategory {
				t.Errorf("category = %s, want %s", result.Category, tt.wantCategory)
			}
			if completion.callCount() != 0 {
				t.Errorf("structural classification spent %d completion calls, want 0", completion.callCount())
			}
		})
	}
}

// TestClassifyAlternativesFiltered verifies invalid and duplicate alternative
// categories are dropped.
func TestClassifyAlternativesFiltered(t *testing.T) {
	completion := &fakeCompletion{
		response: `{"category": "work_relevant", "confidence": 0.85, "reasoning": "x", "alternatives": [{"category": "work_relevant", "confidence": 0.85}, {"category": "bogus", "confidence": 0.5}, {"category": "optional_fyi", "confidence": 0.4}]}`,
	}
	engine := newTestClassifier(completion)

	result := engine.Classify(context.Background(), testEmail("e1", "alice@corp.com", "Roadmap notes", "Sharing the notes."), nil)

	if len(result.Alternatives) != 1 {
		t.Fatalf("alternatives = %v, want exactly one surviving entry", result.Alternatives)
	}
	if result.Alternatives[0].Category != domain.CategoryOptionalFYI {
		t.Errorf("surviving alternative = %s, want optional_fyi", result.Alternatives[0].Category)
	}
}

// TestClassifyConfidenceClamped verifies out-of-range model confidence is
// clamped into [0, 1].
func TestClassifyConfidenceClamped(t *testing.T) {
	completion := &fakeCompletion{
		response: `{"category": "spam", "confidence": 1.7, "reasoning": "x"}`,
	}
	engine := newTestClassifier(completion)

	result := engine.Classify(context.Background(), testEmail("e1", "x@y.com", "You won", "Claim your prize"), nil)
	if result.Confidence != 1.0 {
		t.Errorf("confidence = %v, want clamped to 1.0", result.Confidence)
	}
}
