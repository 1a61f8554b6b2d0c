package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

const validExtractionJSON = `{"summary": "send the report", "key_points": ["deadline friday"], "action_items": [{"action": "send report", "explicit_date": "", "relative_phrase": "by Friday", "priority": "high", "confidence": 0.9}]}`

func classifiedResult(emailID string, category domain.EmailCategory) *domain.ClassificationResult {
	return &domain.ClassificationResult{
		EmailID:      emailID,
		Category:     category,
		Confidence:   0.9,
		Reasoning:    "test",
		ClassifiedAt: time.Now(),
	}
}

func newTestCoordinator(completion *fakeCompletion) *Coordinator {
	extractor := NewExtractionEngine(completion, 0)
	return NewCoordinator(extractor, nil, nil)
}

// TestProcessDetailedIdempotent verifies a second detailed-processing request
// returns the cached result with zero additional completion calls.
func TestProcessDetailedIdempotent(t *testing.T) {
	completion := &fakeCompletion{response: validExtractionJSON}
	c := newTestCoordinator(completion)
	email := testEmail("e1", "boss@corp.com", "Report", "Send the report by Friday.")

	c.RecordClassification(context.Background(), classifiedResult("e1", domain.CategoryRequiredPersonalAction))
	if err := c.Finalize(context.Background(), []string{"e1"}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	first, err := c.ProcessDetailed(context.Background(), email, nil)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}
	if completion.callCount() != 1 {
		t.Fatalf("first process used %d completion calls, want 1", completion.callCount())
	}

	second, err := c.ProcessDetailed(context.Background(), email, nil)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if completion.callCount() != 1 {
		t.Errorf("second process spent completion calls (%d total), want cached result", completion.callCount())
	}
	if first != second {
		t.Error("second process must return the identical cached result")
	}
	if c.State("e1") != domain.StateDetailedProcessed {
		t.Errorf("state = %s, want detailed_processed", c.State("e1"))
	}
}

// TestProcessDetailedRequiresFinalized verifies the state gate.
func TestProcessDetailedRequiresFinalized(t *testing.T) {
	completion := &fakeCompletion{response: validExtractionJSON}
	c := newTestCoordinator(completion)
	email := testEmail("e1", "boss@corp.com", "Report", "Send it.")

	// Classified but not finalized.
	c.RecordClassification(context.Background(), classifiedResult("e1", domain.CategoryTeamAction))

	_, err := c.ProcessDetailed(context.Background(), email, nil)
	if err == nil {
		t.Fatal("expected state conflict for non-finalized email")
	}
	appErr := apperr.AsAppError(err)
	if appErr.Code != apperr.CodeStateConflict {
		t.Errorf("error code = %s, want %s", appErr.Code, apperr.CodeStateConflict)
	}
	if completion.callCount() != 0 {
		t.Errorf("state conflict spent %d completion calls, want 0", completion.callCount())
	}

	// Unknown email.
	_, err = c.ProcessDetailed(context.Background(), testEmail("missing", "a@b.c", "x", "y"), nil)
	if apperr.AsAppError(err).Code != apperr.CodeNotFound {
		t.Errorf("unknown email error = %v, want not found", err)
	}
}

// TestFinalize tests the finalization transitions.
func TestFinalize(t *testing.T) {
	c := newTestCoordinator(&fakeCompletion{response: validExtractionJSON})

	c.RecordClassification(context.Background(), classifiedResult("e1", domain.CategoryTeamAction))

	if err := c.Finalize(context.Background(), []string{"e1"}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if c.State("e1") != domain.StateFinalized {
		t.Errorf("state = %s, want finalized", c.State("e1"))
	}

	// Finalizing again is a no-op.
	if err := c.Finalize(context.Background(), []string{"e1"}); err != nil {
		t.Errorf("re-finalize should be a no-op, got %v", err)
	}

	// Unknown email fails.
	if err := c.Finalize(context.Background(), []string{"nope"}); err == nil {
		t.Error("finalizing an unknown email must fail")
	}
}

// TestReclassifyInvalidatesExtraction verifies reclassification resets state
// and drops the cached extraction so it is recomputed.
func TestReclassifyInvalidatesExtraction(t *testing.T) {
	completion := &fakeCompletion{response: validExtractionJSON}
	c := newTestCoordinator(completion)
	email := testEmail("e1", "boss@corp.com", "Report", "Send it by Friday.")

	c.RecordClassification(context.Background(), classifiedResult("e1", domain.CategoryRequiredPersonalAction))
	c.Finalize(context.Background(), []string{"e1"})
	if _, err := c.ProcessDetailed(context.Background(), email, nil); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := c.Reclassify(context.Background(), "e1", domain.CategoryOptionalFYI); err != nil {
		t.Fatalf("reclassify: %v", err)
	}

	if c.State("e1") != domain.StateClassified {
		t.Errorf("state after reclassify = %s, want classified", c.State("e1"))
	}
	if c.CachedExtraction("e1") != nil {
		t.Error("reclassification must drop the cached extraction")
	}

	got := c.Classification("e1")
	if got.Category != domain.CategoryOptionalFYI {
		t.Errorf("category = %s, want optional_fyi", got.Category)
	}
	if got.Confidence != 1.0 {
		t.Errorf("user-assigned confidence = %v, want 1.0", got.Confidence)
	}

	// Re-finalize and re-process: a fresh completion call is spent.
	calls := completion.callCount()
	c.Finalize(context.Background(), []string{"e1"})
	if _, err := c.ProcessDetailed(context.Background(), email, nil); err != nil {
		t.Fatalf("re-process: %v", err)
	}
	if completion.callCount() != calls+1 {
		t.Errorf("re-process after reclassify used %d calls, want %d", completion.callCount(), calls+1)
	}
}

// TestReclassifyErrors tests the validation around reclassification.
func TestReclassifyErrors(t *testing.T) {
	c := newTestCoordinator(&fakeCompletion{response: validExtractionJSON})

	if err := c.Reclassify(context.Background(), "missing", domain.CategorySpam); err == nil {
		t.Error("reclassifying an unknown email must fail")
	}

	c.RecordClassification(context.Background(), classifiedResult("e1", domain.CategoryOther))
	if err := c.Reclassify(context.Background(), "e1", domain.EmailCategory("nonsense")); err == nil {
		t.Error("reclassifying to an unknown category must fail")
	}
}

// TestStaleInFlightExtractionDiscarded simulates a reclassification racing an
// in-flight extraction: the stale result must be discarded, not stored.
func TestStaleInFlightExtractionDiscarded(t *testing.T) {
	var c *Coordinator
	completion := &fakeCompletion{
		respond: func(system, user string, hint out.SchemaHint) (string, error) {
			// The user reclassifies while the extraction call is in flight.
			if err := c.Reclassify(context.Background(), "e1", domain.CategoryOptionalFYI); err != nil {
				return "", err
			}
			return validExtractionJSON, nil
		},
	}
	c = newTestCoordinator(completion)
	email := testEmail("e1", "boss@corp.com", "Report", "Send it.")

	c.RecordClassification(context.Background(), classifiedResult("e1", domain.CategoryRequiredPersonalAction))
	c.Finalize(context.Background(), []string{"e1"})

	_, err := c.ProcessDetailed(context.Background(), email, nil)
	if err == nil {
		t.Fatal("stale extraction must surface as an error")
	}
	if apperr.AsAppError(err).Code != apperr.CodeStateConflict {
		t.Errorf("error code = %s, want state conflict", apperr.AsAppError(err).Code)
	}

	if c.CachedExtraction("e1") != nil {
		t.Error("stale extraction must not be cached")
	}
	if c.State("e1") != domain.StateClassified {
		t.Errorf("state = %s, want classified (the reclassification wins)", c.State("e1"))
	}
}

// TestFailedExtractionNotCached verifies a failed extraction leaves the email
// Finalized so a retry can re-attempt.
func TestFailedExtractionNotCached(t *testing.T) {
	completion := &fakeCompletion{
		err: out.NewCompletionError(out.CompletionTransient, "extract", errors.New("down")),
	}
	c := newTestCoordinator(completion)
	email := testEmail("e1", "boss@corp.com", "Report", "Send it.")

	c.RecordClassification(context.Background(), classifiedResult("e1", domain.CategoryTeamAction))
	c.Finalize(context.Background(), []string{"e1"})

	result, err := c.ProcessDetailed(context.Background(), email, nil)
	if err != nil {
		t.Fatalf("failed extraction should return a result, not an error: %v", err)
	}
	if !result.Failed() {
		t.Fatal("result must carry the failure marker")
	}
	if c.State("e1") != domain.StateFinalized {
		t.Errorf("state = %s, want finalized for retry", c.State("e1"))
	}
	if c.CachedExtraction("e1") != nil {
		t.Error("failed extraction must not be cached")
	}

	// A retry spends another completion call.
	c.ProcessDetailed(context.Background(), email, nil)
	if completion.callCount() != 2 {
		t.Errorf("retry used %d total calls, want 2", completion.callCount())
	}
}

// TestRecordClassificationBumpsVersion verifies every recorded classification
// increments the version stamp.
func TestRecordClassificationBumpsVersion(t *testing.T) {
	c := newTestCoordinator(&fakeCompletion{response: validExtractionJSON})

	first := classifiedResult("e1", domain.CategoryOther)
	c.RecordClassification(context.Background(), first)
	if first.Version != 1 {
		t.Errorf("first version = %d, want 1", first.Version)
	}

	second := classifiedResult("e1", domain.CategoryTeamAction)
	c.RecordClassification(context.Background(), second)
	if second.Version != 2 {
		t.Errorf("second version = %d, want 2", second.Version)
	}
}
