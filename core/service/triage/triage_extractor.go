package triage

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// =============================================================================
// Extraction Engine
// =============================================================================

// extractionResponse is the strict parse target for detailed extraction.
type extractionResponse struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []struct {
		Action         string  `json:"action"`
		ExplicitDate   string  `json:"explicit_date"`
		RelativePhrase string  `json:"relative_phrase"`
		Priority       string  `json:"priority"`
		Confidence     float64 `json:"confidence"`
	} `json:"action_items"`
}

// ExtractionEngine produces summaries and action items for a single
// finalized email. FYI-like categories get summary-only output; actionable
// categories get summary plus action items.
type ExtractionEngine struct {
	completion out.TextCompletion
	timeout    time.Duration
}

// NewExtractionEngine creates an extraction engine. timeout is longer than
// the classification timeout since outputs are richer.
func NewExtractionEngine(completion out.TextCompletion, timeout time.Duration) *ExtractionEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ExtractionEngine{
		completion: completion,
		timeout:    timeout,
	}
}

// Extract runs detailed processing for one finalized email. On completion
// failure it returns an empty-but-valid result with an error marker so
// downstream consumers always receive one ExtractionResult per email.
func (e *ExtractionEngine) Extract(ctx context.Context, email *domain.Email, category domain.EmailCategory, version int64, uc *domain.UserContext) *domain.ExtractionResult {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	system, user := buildExtractionPrompts(email, category, uc)
	raw, usage, err := e.completion.Complete(callCtx, system, user, out.SchemaExtraction)
	if err != nil {
		logger.WithError(err).Warn("extraction completion failed for email %s", email.ID)
		return domain.NewFailedExtraction(email.ID, version, "extraction unavailable")
	}

	var resp extractionResponse
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &resp); err != nil {
		logger.WithError(err).Warn("unparsable extraction response for email %s", email.ID)
		return domain.NewFailedExtraction(email.ID, version, "extraction response unparsable")
	}

	result := &domain.ExtractionResult{
		EmailID:     email.ID,
		Summary:     resp.Summary,
		KeyPoints:   resp.KeyPoints,
		Version:     version,
		ExtractedAt: time.Now(),
	}
	if usage != nil {
		result.ModelUsed = usage.Model
		result.TokensUsed = usage.TotalTokens
	}

	// Summary-only categories: action items are dropped even if the model
	// produced some.
	if !category.IsActionable() {
		return result
	}

	for _, item := range resp.ActionItems {
		if item.Action == "" {
			continue
		}
		result.ActionItems = append(result.ActionItems, domain.ActionItem{
			ID:         uuid.NewString(),
			EmailID:    email.ID,
			Action:     item.Action,
			Deadline:   resolveDeadline(item.ExplicitDate, item.RelativePhrase),
			Priority:   normalizePriority(item.Priority),
			Confidence: clampConfidence(item.Confidence),
		})
	}

	return result
}

// resolveDeadline applies the deadline fallback policy:
// explicit date > relative phrase > no specific deadline.
func resolveDeadline(explicitDate, relativePhrase string) string {
	if explicitDate != "" {
		return explicitDate
	}
	if relativePhrase != "" {
		return relativePhrase
	}
	return domain.NoDeadline
}

func normalizePriority(p string) domain.ActionItemPriority {
	switch domain.ActionItemPriority(p) {
	case domain.ActionPriorityHigh, domain.ActionPriorityMedium, domain.ActionPriorityLow:
		return domain.ActionItemPriority(p)
	default:
		return domain.ActionPriorityMedium
	}
}
