package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// TestExtractDeadlinePolicy tests the deadline fallback chain:
// explicit date > relative phrase > no specific deadline.
func TestExtractDeadlinePolicy(t *testing.T) {
	tests := []struct {
		name         string
		response     string
		wantDeadline string
	}{
		{
			name:         "explicit date wins over relative phrase",
			response:     `{"summary": "s", "action_items": [{"action": "send report", "explicit_date": "2026-09-04", "relative_phrase": "by Friday", "priority": "high", "confidence": 0.9}]}`,
			wantDeadline: "2026-09-04",
		},
		{
			name:         "relative phrase when no explicit date",
			response:     `{"summary": "s", "action_items": [{"action": "send report", "explicit_date": "", "relative_phrase": "by end of week", "priority": "medium", "confidence": 0.8}]}`,
			wantDeadline: "by end of week",
		},
		{
			name:         "no deadline information",
			response:     `{"summary": "s", "action_items": [{"action": "send report", "explicit_date": "", "relative_phrase": "", "priority": "low", "confidence": 0.7}]}`,
			wantDeadline: domain.NoDeadline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewExtractionEngine(&fakeCompletion{response: tt.response}, 0)
			email := testEmail("e1", "boss@corp.com", "Report needed", "Please send the report.")

			result := engine.Extract(context.Background(), email, domain.CategoryRequiredPersonalAction, 1, nil)

			if result.Failed() {
				t.Fatalf("unexpected failure: %s", result.Err)
			}
			if len(result.ActionItems) != 1 {
				t.Fatalf("action items = %d, want 1", len(result.ActionItems))
			}
			if got := result.ActionItems[0].Deadline; got != tt.wantDeadline {
				t.Errorf("deadline = %q, want %q", got, tt.wantDeadline)
			}
		})
	}
}

// TestExtractSummaryOnlyForFYI verifies non-actionable categories never carry
// action items, even when the model produces some.
func TestExtractSummaryOnlyForFYI(t *testing.T) {
	completion := &fakeCompletion{
		response: `{"summary": "deploy completed", "key_points": ["no incidents"], "action_items": [{"action": "spurious", "priority": "high", "confidence": 0.9}]}`,
	}
	engine := NewExtractionEngine(completion, 0)
	email := testEmail("e1", "ci@corp.com", "Deploy done", "All green.")

	result := engine.Extract(context.Background(), email, domain.CategoryOptionalFYI, 1, nil)

	if result.Summary != "deploy completed" {
		t.Errorf("summary = %q", result.Summary)
	}
	if len(result.ActionItems) != 0 {
		t.Errorf("FYI extraction carried %d action items, want 0", len(result.ActionItems))
	}
}

// TestExtractSummaryOnlyPrompt verifies the prompt itself switches for
// non-actionable categories.
func TestExtractSummaryOnlyPrompt(t *testing.T) {
	var seenSystem string
	completion := &fakeCompletion{
		respond: func(system, user string, hint out.SchemaHint) (string, error) {
			seenSystem = system
			return `{"summary": "s"}`, nil
		},
	}
	engine := NewExtractionEngine(completion, 0)
	email := testEmail("e1", "news@corp.com", "Update", "FYI.")

	engine.Extract(context.Background(), email, domain.CategoryWorkRelevant, 1, nil)

	if strings.Contains(seenSystem, "action_items") {
		t.Error("summary-only prompt should not request action items")
	}
}

// TestExtractFailure tests the empty-but-valid failure results.
func TestExtractFailure(t *testing.T) {
	tests := []struct {
		name       string
		completion *fakeCompletion
		wantErr    string
	}{
		{
			name: "completion error",
			completion: &fakeCompletion{
				err: out.NewCompletionError(out.CompletionTransient, "extract", errors.New("rate limited")),
			},
			wantErr: "extraction unavailable",
		},
		{
			name:       "unparsable response",
			completion: &fakeCompletion{response: "not json at all"},
			wantErr:    "extraction response unparsable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewExtractionEngine(tt.completion, 0)
			email := testEmail("e1", "boss@corp.com", "Report", "Send it.")

			result := engine.Extract(context.Background(), email, domain.CategoryRequiredPersonalAction, 3, nil)

			if result == nil {
				t.Fatal("failure must still produce a result")
			}
			if !result.Failed() {
				t.Error("result must be marked failed")
			}
			if result.Err != tt.wantErr {
				t.Errorf("err marker = %q, want %q", result.Err, tt.wantErr)
			}
			if result.Version != 3 {
				t.Errorf("version = %d, want the dispatch version 3", result.Version)
			}
			if len(result.ActionItems) != 0 || result.Summary != "" {
				t.Error("failed result must be empty")
			}
		})
	}
}

// TestExtractPriorityNormalized verifies unknown priorities default to medium
// and empty actions are skipped.
func TestExtractPriorityNormalized(t *testing.T) {
	completion := &fakeCompletion{
		response: `{"summary": "s", "action_items": [{"action": "fix bug", "priority": "urgent", "confidence": 0.8}, {"action": "", "priority": "high", "confidence": 0.9}]}`,
	}
	engine := NewExtractionEngine(completion, 0)
	email := testEmail("e1", "qa@corp.com", "Bug found", "Please fix.")

	result := engine.Extract(context.Background(), email, domain.CategoryTaskDelegation, 1, nil)

	if len(result.ActionItems) != 1 {
		t.Fatalf("action items = %d, want 1 (empty action skipped)", len(result.ActionItems))
	}
	item := result.ActionItems[0]
	if item.Priority != domain.ActionPriorityMedium {
		t.Errorf("priority = %s, want medium for unknown input", item.Priority)
	}
	if item.ID == "" {
		t.Error("action item must be assigned an id")
	}
	if item.EmailID != "e1" {
		t.Errorf("action item email id = %s, want e1", item.EmailID)
	}
}
