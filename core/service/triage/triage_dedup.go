package triage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// =============================================================================
// Deduplicator
// =============================================================================

// similarityResponse is the strict parse target for the batched similarity
// call. Indexes refer to positions in the numbered pool presented in the
// prompt.
type similarityResponse struct {
	Duplicates []struct {
		Index      int     `json:"index"`
		Confidence float64 `json:"confidence"`
	} `json:"duplicates"`
}

// Deduplicator finds duplicate emails and action items with a two-stage
// algorithm: a cheap structural pre-filter shrinks the comparison pool, then
// one batched similarity completion call decides true/false for the
// survivors. Stage 1 must eliminate the majority of non-duplicates before
// any completion call is spent.
type Deduplicator struct {
	completion out.TextCompletion
	timeout    time.Duration

	// dateWindow bounds stage-1 date proximity for emails.
	dateWindow time.Duration
	// similarityThreshold is the minimum confidence for a stage-2 match.
	similarityThreshold float64
}

// NewDeduplicator creates a deduplicator.
func NewDeduplicator(completion out.TextCompletion, dateWindow time.Duration, similarityThreshold float64) *Deduplicator {
	if dateWindow <= 0 {
		dateWindow = 72 * time.Hour
	}
	if similarityThreshold <= 0 {
		similarityThreshold = 0.80
	}
	return &Deduplicator{
		completion:          completion,
		timeout:             30 * time.Second,
		dateWindow:          dateWindow,
		similarityThreshold: similarityThreshold,
	}
}

// FindDuplicates compares a candidate email against a pool. Returns nil when
// the candidate is unique. The duplicate relation is symmetric; the group
// designates the earliest-received member as canonical.
func (d *Deduplicator) FindDuplicates(ctx context.Context, candidate *domain.Email, pool []*domain.Email) (*domain.DeduplicationGroup, error) {
	if candidate == nil || len(pool) == 0 {
		return nil, nil
	}

	// Stage 1: structural pre-filter.
	var exact []*domain.Email
	var survivors []*domain.Email
	for _, other := range pool {
		if other == nil || other.ID == candidate.ID {
			continue
		}
		switch d.prefilterEmail(candidate, other) {
		case matchExact:
			exact = append(exact, other)
		case matchCandidate:
			survivors = append(survivors, other)
		}
	}

	matched := exact

	// Stage 2: one batched similarity call for all survivors.
	if len(survivors) > 0 {
		semantic, err := d.similarEmails(ctx, candidate, survivors)
		if err != nil {
			// Exact matches still stand even when the similarity call fails.
			if len(matched) == 0 {
				return nil, err
			}
		}
		matched = append(matched, semantic...)
	}

	if len(matched) == 0 {
		return nil, nil
	}

	return buildEmailGroup(candidate, matched), nil
}

// FindDuplicateActionItems compares a candidate action item against a pool
// using description text instead of subject.
func (d *Deduplicator) FindDuplicateActionItems(ctx context.Context, candidate domain.ActionItem, pool []domain.ActionItem) (*domain.DeduplicationGroup, error) {
	if len(pool) == 0 {
		return nil, nil
	}

	var survivors []domain.ActionItem
	for _, other := range pool {
		if other.ID == candidate.ID {
			continue
		}
		if tokenOverlap(candidate.Action, other.Action) >= 0.5 {
			survivors = append(survivors, other)
		}
	}
	if len(survivors) == 0 {
		return nil, nil
	}

	matched, err := d.similarActionItems(ctx, candidate, survivors)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	group := &domain.DeduplicationGroup{
		ID:          uuid.NewString(),
		Kind:        domain.DedupActionItems,
		CanonicalID: candidate.ID,
		MemberIDs:   []string{candidate.ID},
		DetectedAt:  time.Now(),
	}
	for _, m := range matched {
		group.Merge(m.ID)
	}
	return group, nil
}

// =============================================================================
// Stage 1: Structural Pre-Filter
// =============================================================================

type prefilterMatch int

const (
	matchNone prefilterMatch = iota
	matchCandidate
	matchExact
)

var subjectPrefixPattern = regexp.MustCompile(`(?i)^(re|fwd?|fw):\s*`)

// normalizeSubject strips reply/forward prefixes and collapses whitespace.
func normalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := subjectPrefixPattern.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// prefilterEmail decides whether other belongs in the comparison pool.
// Same normalized subject + same sender is an exact duplicate requiring no
// completion call; same sender or subject within the date window survives to
// stage 2; everything else is eliminated here.
func (d *Deduplicator) prefilterEmail(candidate, other *domain.Email) prefilterMatch {
	delta := candidate.ReceivedAt.Sub(other.ReceivedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta > d.dateWindow {
		return matchNone
	}

	sameSender := strings.EqualFold(candidate.Sender, other.Sender)
	sameSubject := normalizeSubject(candidate.Subject) == normalizeSubject(other.Subject) &&
		normalizeSubject(candidate.Subject) != ""

	switch {
	case sameSender && sameSubject:
		return matchExact
	case sameSender || sameSubject:
		return matchCandidate
	default:
		return matchNone
	}
}

// tokenOverlap computes Jaccard similarity over lowercase word sets.
func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}

// =============================================================================
// Stage 2: Batched Similarity Call
// =============================================================================

const similaritySystemPrompt = `You are a duplicate detection AI. Decide which of the numbered items describe the same underlying thing as the candidate. Respond with JSON only.

Respond with this exact JSON format:
{
  "duplicates": [
    {"index": 1, "confidence": 0.0-1.0}
  ]
}

Only include items that are true duplicates. An empty list is a valid answer.`

func (d *Deduplicator) similarEmails(ctx context.Context, candidate *domain.Email, survivors []*domain.Email) ([]*domain.Email, error) {
	var sb strings.Builder
	sb.WriteString("Candidate email:\n")
	sb.WriteString(fmt.Sprintf("From: %s\nSubject: %s\nBody: %s\n\n",
		candidate.Sender, candidate.Subject, truncateBody(CleanEmailBody(candidate.Body), 500)))
	sb.WriteString("Pool:\n")
	for i, other := range survivors {
		sb.WriteString(fmt.Sprintf("[%d]\nFrom: %s\nSubject: %s\nBody: %s\n\n",
			i+1, other.Sender, other.Subject, truncateBody(CleanEmailBody(other.Body), 500)))
	}

	indexes, err := d.runSimilarity(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var matched []*domain.Email
	for _, idx := range indexes {
		if idx >= 1 && idx <= len(survivors) {
			matched = append(matched, survivors[idx-1])
		}
	}
	return matched, nil
}

func (d *Deduplicator) similarActionItems(ctx context.Context, candidate domain.ActionItem, survivors []domain.ActionItem) ([]domain.ActionItem, error) {
	var sb strings.Builder
	sb.WriteString("Candidate action item:\n")
	sb.WriteString(candidate.Action + "\n\nPool:\n")
	for i, other := range survivors {
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, other.Action))
	}

	indexes, err := d.runSimilarity(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var matched []domain.ActionItem
	for _, idx := range indexes {
		if idx >= 1 && idx <= len(survivors) {
			matched = append(matched, survivors[idx-1])
		}
	}
	return matched, nil
}

// runSimilarity issues the single batched similarity call and returns the
// matched pool indexes above the threshold.
func (d *Deduplicator) runSimilarity(ctx context.Context, userPrompt string) ([]int, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, _, err := d.completion.Complete(callCtx, similaritySystemPrompt, userPrompt, out.SchemaSimilarity)
	if err != nil {
		return nil, err
	}

	var resp similarityResponse
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &resp); err != nil {
		return nil, out.NewCompletionError(out.CompletionUnparsable, "similarity", err)
	}

	var indexes []int
	for _, dup := range resp.Duplicates {
		if dup.Confidence >= d.similarityThreshold {
			indexes = append(indexes, dup.Index)
		}
	}
	return indexes, nil
}

// buildEmailGroup assembles the group with the earliest-received member as
// canonical.
func buildEmailGroup(candidate *domain.Email, matched []*domain.Email) *domain.DeduplicationGroup {
	canonical := candidate
	members := []string{candidate.ID}
	for _, m := range matched {
		members = append(members, m.ID)
		if m.ReceivedAt.Before(canonical.ReceivedAt) {
			canonical = m
		}
	}

	group := &domain.DeduplicationGroup{
		ID:          uuid.NewString(),
		Kind:        domain.DedupEmails,
		CanonicalID: canonical.ID,
		DetectedAt:  time.Now(),
	}
	group.Merge(members...)
	return group
}
