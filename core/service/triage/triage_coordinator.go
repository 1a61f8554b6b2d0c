package triage

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// =============================================================================
// Deferred Processing Coordinator
// =============================================================================

// emailRecord is the per-email mutable state the coordinator owns: the
// processing state, the current classification, and the cached extraction.
// This is the one shared-mutable boundary in the core, so writes to a record
// go through its mutex (single-writer per id).
type emailRecord struct {
	mu             sync.Mutex
	state          domain.ProcessingState
	classification *domain.ClassificationResult
	extraction     *domain.ExtractionResult
	version        int64
}

// Coordinator orchestrates the two-phase workflow: cheap classification now,
// expensive extraction only after the user finalizes categories. The prior
// eager design wasted 50-70% of completion calls under reclassification; the
// coordinator makes detailed processing idempotent and invalidates its cache
// exactly when a category changes.
type Coordinator struct {
	extractor *ExtractionEngine
	store     out.ResultStore // optional
	cache     out.ResultCache // optional

	mu      sync.RWMutex
	records map[string]*emailRecord

	// extractFlight collapses concurrent extraction requests for the same
	// email id so only one caller pays for the completion call.
	extractFlight singleflight.Group
}

// NewCoordinator creates a coordinator. store and cache may be nil.
func NewCoordinator(extractor *ExtractionEngine, store out.ResultStore, cache out.ResultCache) *Coordinator {
	return &Coordinator{
		extractor: extractor,
		store:     store,
		cache:     cache,
		records:   make(map[string]*emailRecord),
	}
}

func (c *Coordinator) record(emailID string) *emailRecord {
	c.mu.RLock()
	rec, ok := c.records[emailID]
	c.mu.RUnlock()
	if ok {
		return rec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok = c.records[emailID]; ok {
		return rec
	}
	rec = &emailRecord{state: domain.StateUnclassified}
	c.records[emailID] = rec
	return rec
}

// lookup returns the record without creating one.
func (c *Coordinator) lookup(emailID string) *emailRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records[emailID]
}

// =============================================================================
// Classification Bookkeeping
// =============================================================================

// RecordClassification installs a fresh classification result, moving the
// email to Classified. The result is superseded wholesale: no partial
// mutation, and any cached extraction from a previous version is dropped.
func (c *Coordinator) RecordClassification(ctx context.Context, result *domain.ClassificationResult) {
	rec := c.record(result.EmailID)

	rec.mu.Lock()
	rec.version++
	result.Version = rec.version
	rec.classification = result
	hadExtraction := rec.extraction != nil
	rec.extraction = nil
	rec.state = domain.StateClassified
	rec.mu.Unlock()

	if hadExtraction {
		c.dropPersistedExtraction(ctx, result.EmailID)
	}
}

// Reclassify replaces the email's category after user review. If the email
// was already detail-processed, its state resets to Classified and the
// cached extraction is invalidated: stale detailed output must never be
// served.
func (c *Coordinator) Reclassify(ctx context.Context, emailID string, category domain.EmailCategory) error {
	if !category.IsValid() {
		return apperr.InvalidInput("category", "unknown category")
	}

	rec := c.lookup(emailID)
	if rec == nil {
		return apperr.NotFound("email " + emailID)
	}

	rec.mu.Lock()
	if rec.classification == nil {
		rec.mu.Unlock()
		return apperr.StateConflict(emailID, string(rec.state), "reclassify")
	}

	prev := rec.classification
	rec.version++
	rec.classification = &domain.ClassificationResult{
		EmailID:      emailID,
		Category:     category,
		Confidence:   1.0, // user-assigned
		Reasoning:    "reclassified by user",
		Alternatives: prev.Alternatives,
		Version:      rec.version,
		ClassifiedAt: time.Now(),
	}
	hadExtraction := rec.extraction != nil
	rec.extraction = nil
	rec.state = domain.StateClassified
	rec.mu.Unlock()

	if hadExtraction {
		c.dropPersistedExtraction(ctx, emailID)
	}
	if c.cache != nil {
		if err := c.cache.InvalidateEmail(ctx, emailID); err != nil {
			logger.WithError(err).Warn("failed to invalidate cache for email %s", emailID)
		}
	}
	return nil
}

// =============================================================================
// Finalization
// =============================================================================

// Finalize marks the given emails as category-final. Finalizing an already
// finalized email is a no-op; an unclassified email is a state conflict.
func (c *Coordinator) Finalize(ctx context.Context, emailIDs []string) error {
	for _, id := range emailIDs {
		rec := c.lookup(id)
		if rec == nil {
			return apperr.NotFound("email " + id)
		}

		rec.mu.Lock()
		switch rec.state {
		case domain.StateClassified:
			rec.state = domain.StateFinalized
		case domain.StateFinalized, domain.StateDetailedProcessed:
			// Already final.
		default:
			rec.mu.Unlock()
			return apperr.StateConflict(id, string(rec.state), "finalize")
		}
		rec.mu.Unlock()
	}
	return nil
}

// =============================================================================
// Deferred Detailed Processing
// =============================================================================

// ProcessDetailed runs extraction for a single finalized email. Idempotent:
// an already-processed email returns the cached result without a completion
// call. An in-flight result whose classification version no longer matches
// is discarded.
func (c *Coordinator) ProcessDetailed(ctx context.Context, email *domain.Email, uc *domain.UserContext) (*domain.ExtractionResult, error) {
	rec := c.lookup(email.ID)
	if rec == nil {
		return nil, apperr.NotFound("email " + email.ID)
	}

	rec.mu.Lock()
	switch rec.state {
	case domain.StateDetailedProcessed:
		if rec.extraction != nil {
			cached := rec.extraction
			rec.mu.Unlock()
			return cached, nil
		}
	case domain.StateFinalized:
		// Proceed to extraction.
	default:
		state := rec.state
		rec.mu.Unlock()
		return nil, apperr.StateConflict(email.ID, string(state), "process detailed")
	}
	category := rec.classification.Category
	dispatchVersion := rec.version
	rec.mu.Unlock()

	// Collapse concurrent callers for the same id: one extraction, one bill.
	v, err, _ := c.extractFlight.Do(email.ID, func() (interface{}, error) {
		// Re-check under the record lock: another caller may have completed
		// while this one queued.
		rec.mu.Lock()
		if rec.state == domain.StateDetailedProcessed && rec.extraction != nil {
			cached := rec.extraction
			rec.mu.Unlock()
			return cached, nil
		}
		rec.mu.Unlock()

		result := c.extractor.Extract(ctx, email, category, dispatchVersion, uc)

		rec.mu.Lock()
		defer rec.mu.Unlock()

		// The user reclassified while extraction was in flight: the result
		// is stale and must not overwrite the new classification.
		if rec.version != dispatchVersion {
			logger.Info("discarding stale extraction for email %s (version %d != %d)",
				email.ID, dispatchVersion, rec.version)
			return nil, apperr.StateConflict(email.ID, string(rec.state), "store stale extraction")
		}

		// Failed extraction keeps the email Finalized so a retry can
		// re-attempt; the empty-but-valid result is returned, not cached.
		if result.Failed() {
			return result, nil
		}

		rec.extraction = result
		rec.state = domain.StateDetailedProcessed
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	result := v.(*domain.ExtractionResult)
	if !result.Failed() && c.store != nil {
		if err := c.store.SaveExtraction(ctx, result); err != nil {
			logger.WithError(err).Warn("failed to persist extraction for email %s", email.ID)
		}
	}
	return result, nil
}

// State returns the current processing state of an email.
func (c *Coordinator) State(emailID string) domain.ProcessingState {
	rec := c.lookup(emailID)
	if rec == nil {
		return domain.StateUnclassified
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state
}

// Classification returns the email's current classification, or nil.
func (c *Coordinator) Classification(emailID string) *domain.ClassificationResult {
	rec := c.lookup(emailID)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.classification
}

// CachedExtraction returns the cached extraction result, or nil.
func (c *Coordinator) CachedExtraction(emailID string) *domain.ExtractionResult {
	rec := c.lookup(emailID)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.extraction
}

func (c *Coordinator) dropPersistedExtraction(ctx context.Context, emailID string) {
	if c.store == nil {
		return
	}
	if err := c.store.DeleteExtraction(ctx, emailID); err != nil {
		logger.WithError(err).Warn("failed to delete persisted extraction for email %s", emailID)
	}
}
