package triage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/usercontext"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// =============================================================================
// Processing Service
// =============================================================================

// Service wires the engines into the ProcessingAPI: the only entry points
// the surrounding HTTP/UI layer is permitted to call.
type Service struct {
	classifier  *ClassificationEngine
	coordinator *Coordinator
	dedup       *Deduplicator
	contexts    *usercontext.Manager
	store       out.ResultStore    // optional
	cache       out.ResultCache    // optional
	provider    out.EmailProvider  // optional, needed for detailed processing

	// concurrency bounds per-batch fan-out.
	concurrency int

	stats Stats
}

// Stats holds processing counters.
type Stats struct {
	Classified         atomic.Int64
	AutoApproved       atomic.Int64
	ReviewRequired     atomic.Int64
	CompletionFailures atomic.Int64
	DetailProcessed    atomic.Int64
	DetailCacheHits    atomic.Int64
}

// StatsSnapshot is the exported view of the counters.
type StatsSnapshot struct {
	Classified         int64 `json:"classified"`
	AutoApproved       int64 `json:"auto_approved"`
	ReviewRequired     int64 `json:"review_required"`
	CompletionFailures int64 `json:"completion_failures"`
	DetailProcessed    int64 `json:"detail_processed"`
	DetailCacheHits    int64 `json:"detail_cache_hits"`
}

// ServiceDeps holds dependencies for creating a Service.
type ServiceDeps struct {
	Classifier  *ClassificationEngine
	Coordinator *Coordinator
	Dedup       *Deduplicator
	Contexts    *usercontext.Manager
	Store       out.ResultStore
	Cache       out.ResultCache
	Provider    out.EmailProvider
	Concurrency int
}

// NewService creates the processing service.
func NewService(deps ServiceDeps) *Service {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Service{
		classifier:  deps.Classifier,
		coordinator: deps.Coordinator,
		dedup:       deps.Dedup,
		contexts:    deps.Contexts,
		store:       deps.Store,
		cache:       deps.Cache,
		provider:    deps.Provider,
		concurrency: concurrency,
	}
}

var _ in.ProcessingService = (*Service)(nil)

// =============================================================================
// Classification
// =============================================================================

// ClassifyBatch runs the cheap classification pass over a batch. Emails are
// classified concurrently; one failing email never aborts the rest. Every
// valid email gets a result (fallbacks included); malformed emails are
// skipped with an error entry.
func (s *Service) ClassifyBatch(ctx context.Context, userID uuid.UUID, emails []*domain.Email) (*in.ClassifyBatchResult, error) {
	if len(emails) == 0 {
		return nil, apperr.BadRequest("empty email batch")
	}

	uc := s.contexts.Get(ctx, userID)

	batch := &in.ClassifyBatchResult{
		Results: make(map[string]*domain.ClassificationResult, len(emails)),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.concurrency)
	)

	for _, email := range emails {
		if err := email.Validate(); err != nil {
			id := ""
			if email != nil {
				id = email.ID
			}
			batch.Errors = append(batch.Errors, in.BatchError{
				EmailID: id,
				Code:    apperr.CodeValidationFailed,
				Message: err.Error(),
			})
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(email *domain.Email) {
			defer wg.Done()
			defer func() { <-sem }()

			result := s.classifyOne(ctx, email, uc)

			mu.Lock()
			batch.Results[email.ID] = result
			mu.Unlock()
		}(email)
	}

	wg.Wait()
	return batch, nil
}

func (s *Service) classifyOne(ctx context.Context, email *domain.Email, uc *domain.UserContext) *domain.ClassificationResult {
	// Cross-process cache first: a prior instance may have classified this
	// email already.
	if s.cache != nil {
		if cached, err := s.cache.GetClassification(ctx, email.ID); err == nil && cached != nil {
			s.coordinator.RecordClassification(ctx, cached)
			s.recordClassifyStats(cached)
			return cached
		}
	}

	result := s.classifier.Classify(ctx, email, uc)
	s.coordinator.RecordClassification(ctx, result)
	s.recordClassifyStats(result)

	if s.cache != nil && !result.Fallback {
		if err := s.cache.SetClassification(ctx, result); err != nil {
			logger.WithError(err).Warn("failed to cache classification for email %s", email.ID)
		}
	}
	if s.store != nil {
		if err := s.store.SaveClassification(ctx, result); err != nil {
			logger.WithError(err).Warn("failed to persist classification for email %s", email.ID)
		}
	}
	return result
}

func (s *Service) recordClassifyStats(result *domain.ClassificationResult) {
	s.stats.Classified.Add(1)
	if result.Fallback {
		s.stats.CompletionFailures.Add(1)
	}
	if result.RequiresReview {
		s.stats.ReviewRequired.Add(1)
	} else {
		s.stats.AutoApproved.Add(1)
	}
}

// =============================================================================
// Finalization & Reclassification
// =============================================================================

// Finalize marks the given emails as category-final.
func (s *Service) Finalize(ctx context.Context, emailIDs []string) error {
	if len(emailIDs) == 0 {
		return apperr.BadRequest("empty email id list")
	}
	return s.coordinator.Finalize(ctx, emailIDs)
}

// Reclassify replaces an email's classification wholesale and invalidates
// any completed extraction.
func (s *Service) Reclassify(ctx context.Context, emailID string, category domain.EmailCategory) error {
	if emailID == "" {
		return apperr.MissingField("email_id")
	}
	if err := s.coordinator.Reclassify(ctx, emailID, category); err != nil {
		return err
	}
	if s.store != nil {
		if result := s.coordinator.Classification(emailID); result != nil {
			if err := s.store.SaveClassification(ctx, result); err != nil {
				logger.WithError(err).Warn("failed to persist reclassification for email %s", emailID)
			}
		}
	}
	return nil
}

// =============================================================================
// Deferred Detailed Processing
// =============================================================================

// ProcessDetailedBatch runs extraction for finalized emails, concurrently
// per email with per-id serialization inside the coordinator. Partial
// failures return results for the rest plus a per-id error list.
func (s *Service) ProcessDetailedBatch(ctx context.Context, userID uuid.UUID, emailIDs []string) (*in.DetailedBatchResult, error) {
	if len(emailIDs) == 0 {
		return nil, apperr.BadRequest("empty email id list")
	}

	uc := s.contexts.Get(ctx, userID)

	batch := &in.DetailedBatchResult{
		Results: make(map[string]*domain.ExtractionResult, len(emailIDs)),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.concurrency)
	)

	for _, id := range emailIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.processDetailedOne(ctx, id, uc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				appErr := apperr.AsAppError(err)
				batch.Errors = append(batch.Errors, in.BatchError{
					EmailID: id,
					Code:    appErr.Code,
					Message: appErr.Message,
				})
				return
			}
			batch.Results[id] = result
			if result.Failed() {
				batch.Errors = append(batch.Errors, in.BatchError{
					EmailID: id,
					Code:    apperr.CodeCompletionFailed,
					Message: result.Err,
				})
			}
		}(id)
	}

	wg.Wait()

	s.mergeDuplicateActionItems(ctx, batch)
	return batch, nil
}

func (s *Service) processDetailedOne(ctx context.Context, emailID string, uc *domain.UserContext) (*domain.ExtractionResult, error) {
	// Cached results short-circuit before the email body is even fetched.
	if s.coordinator.State(emailID) == domain.StateDetailedProcessed {
		if cached := s.coordinator.CachedExtraction(emailID); cached != nil {
			s.stats.DetailCacheHits.Add(1)
			return cached, nil
		}
	}

	email, err := s.loadEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}

	result, err := s.coordinator.ProcessDetailed(ctx, email, uc)
	if err != nil {
		return nil, err
	}
	if !result.Failed() {
		s.stats.DetailProcessed.Add(1)
	} else {
		s.stats.CompletionFailures.Add(1)
	}
	return result, nil
}

// mergeDuplicateActionItems runs cross-email action-item deduplication over
// a completed batch, marking later duplicates with their canonical id.
func (s *Service) mergeDuplicateActionItems(ctx context.Context, batch *in.DetailedBatchResult) {
	if s.dedup == nil {
		return
	}

	var pool []domain.ActionItem
	for _, result := range batch.Results {
		pool = append(pool, result.ActionItems...)
	}
	if len(pool) < 2 {
		return
	}

	grouped := make(map[string]string) // item id → canonical id
	for _, result := range batch.Results {
		for i := range result.ActionItems {
			item := &result.ActionItems[i]
			if _, seen := grouped[item.ID]; seen {
				continue
			}

			group, err := s.dedup.FindDuplicateActionItems(ctx, *item, pool)
			if err != nil {
				logger.WithError(err).Warn("action item dedup failed for %s", item.ID)
				continue
			}
			if group == nil {
				continue
			}

			for _, member := range group.MemberIDs {
				grouped[member] = group.CanonicalID
			}
			if s.store != nil {
				if err := s.store.SaveDuplicateGroup(ctx, group); err != nil {
					logger.WithError(err).Warn("failed to persist action item group %s", group.ID)
				}
			}
		}
	}

	for _, result := range batch.Results {
		for i := range result.ActionItems {
			item := &result.ActionItems[i]
			if canonical, ok := grouped[item.ID]; ok && canonical != item.ID {
				item.DuplicateOf = canonical
			}
		}
	}
}

// =============================================================================
// Deduplication
// =============================================================================

// FindDuplicates compares a candidate email against a pool.
func (s *Service) FindDuplicates(ctx context.Context, candidate *domain.Email, pool []*domain.Email) (*domain.DeduplicationGroup, error) {
	if err := candidate.Validate(); err != nil {
		return nil, apperr.ValidationFailed(err.Error())
	}

	group, err := s.dedup.FindDuplicates(ctx, candidate, pool)
	if err != nil {
		if ce, ok := out.AsCompletionError(err); ok {
			return nil, apperr.CompletionFailed(ce.Op, ce)
		}
		return nil, err
	}

	if group != nil && s.store != nil {
		if err := s.store.SaveDuplicateGroup(ctx, group); err != nil {
			logger.WithError(err).Warn("failed to persist duplicate group %s", group.ID)
		}
	}
	return group, nil
}

// =============================================================================
// Email Loading
// =============================================================================

func (s *Service) loadEmail(ctx context.Context, emailID string) (*domain.Email, error) {
	if s.provider == nil {
		return nil, apperr.Internal("email provider not configured")
	}
	email, err := s.provider.GetByID(ctx, emailID)
	if err != nil {
		return nil, apperr.DatabaseError("load email", err)
	}
	if email == nil {
		return nil, apperr.NotFound("email " + emailID)
	}
	return email, nil
}

// StatsSnapshot returns the current counters.
func (s *Service) StatsSnapshot() StatsSnapshot {
	return StatsSnapshot{
		Classified:         s.stats.Classified.Load(),
		AutoApproved:       s.stats.AutoApproved.Load(),
		ReviewRequired:     s.stats.ReviewRequired.Load(),
		CompletionFailures: s.stats.CompletionFailures.Load(),
		DetailProcessed:    s.stats.DetailProcessed.Load(),
		DetailCacheHits:    s.stats.DetailCacheHits.Load(),
	}
}
