package triage

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// =============================================================================
// Classification Engine
// =============================================================================

// classificationResponse is the strict parse target for the completion
// output. Anything that does not unmarshal into it becomes a fallback
// result; no downstream code branches on untyped maps.
type classificationResponse struct {
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	Alternatives []struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
}

// ClassificationEngine performs the cheap classification pass: one
// completion call per email, confidence-gated by the evaluator. Completion
// failures become fallback results, never errors out of a batch.
type ClassificationEngine struct {
	completion out.TextCompletion
	evaluator  *ConfidenceEvaluator
	timeout    time.Duration
}

// NewClassificationEngine creates a classification engine. timeout bounds
// each completion call; classification keeps it short because the fallback
// path is cheap.
func NewClassificationEngine(completion out.TextCompletion, evaluator *ConfidenceEvaluator, timeout time.Duration) *ClassificationEngine {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ClassificationEngine{
		completion: completion,
		evaluator:  evaluator,
		timeout:    timeout,
	}
}

// Classify assigns a category and confidence to one email. It never returns
// an error: a failed or unparsable completion yields the fallback result
// (other / 0.0 / requires review).
func (e *ClassificationEngine) Classify(ctx context.Context, email *domain.Email, uc *domain.UserContext) *domain.ClassificationResult {
	// Stage 1: structural short-circuit. Obvious senders classify without
	// spending a completion call.
	if result := e.classifyStructural(email); result != nil {
		return result
	}

	// Stage 2: completion call.
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	system, user := buildClassificationPrompts(email, uc)
	raw, usage, err := e.completion.Complete(callCtx, system, user, out.SchemaClassification)
	if err != nil {
		logger.WithError(err).Warn("classification completion failed for email %s", email.ID)
		return domain.NewFallbackClassification(email.ID)
	}

	var resp classificationResponse
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &resp); err != nil {
		logger.WithError(err).Warn("unparsable classification response for email %s", email.ID)
		return domain.NewFallbackClassification(email.ID)
	}

	category := domain.EmailCategory(resp.Category)
	if !category.IsValid() {
		logger.Warn("unknown category %q for email %s", resp.Category, email.ID)
		return domain.NewFallbackClassification(email.ID)
	}

	result := &domain.ClassificationResult{
		EmailID:      email.ID,
		Category:     category,
		Confidence:   clampConfidence(resp.Confidence),
		Reasoning:    resp.Reasoning,
		ClassifiedAt: time.Now(),
	}
	if usage != nil {
		result.ModelUsed = usage.Model
		result.TokensUsed = usage.TotalTokens
	}

	// Alternatives are retained, ordered best first, so the UI can offer
	// one-click recategorization without a new completion call.
	for _, alt := range resp.Alternatives {
		altCat := domain.EmailCategory(alt.Category)
		if !altCat.IsValid() || altCat == category {
			continue
		}
		result.Alternatives = append(result.Alternatives, domain.CategoryScore{
			Category:   altCat,
			Confidence: clampConfidence(alt.Confidence),
		})
	}

	result.RequiresReview = e.evaluator.Evaluate(result.Category, result.Confidence)
	return result
}

// classifyStructural handles the patterns a model is not needed for:
// newsletter senders, job boards, bulk mailers. Returns nil when the email
// needs the completion pass.
func (e *ClassificationEngine) classifyStructural(email *domain.Email) *domain.ClassificationResult {
	sender := strings.ToLower(email.Sender)
	subject := strings.ToLower(email.Subject)

	var (
		category  domain.EmailCategory
		reasoning string
	)

	switch {
	case strings.Contains(sender, "newsletter@") || strings.Contains(subject, "unsubscribe") ||
		strings.Contains(subject, "weekly digest") || strings.Contains(subject, "daily digest"):
		category = domain.CategoryNewsletter
		reasoning = "newsletter sender or digest subject"

	case strings.Contains(sender, "jobs@") || strings.Contains(sender, "careers@") ||
		strings.Contains(subject, "job alert") || strings.Contains(subject, "new jobs for you"):
		category = domain.CategoryJobListing
		reasoning = "job board sender or job alert subject"

	default:
		return nil
	}

	result := &domain.ClassificationResult{
		EmailID:      email.ID,
		Category:     category,
		Confidence:   0.95,
		Reasoning:    reasoning,
		ClassifiedAt: time.Now(),
	}
	result.RequiresReview = e.evaluator.Evaluate(result.Category, result.Confidence)
	return result
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
