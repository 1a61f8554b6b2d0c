package domain

import "time"

// ActionItemPriority mirrors the coarse priority the extractor assigns.
type ActionItemPriority string

const (
	ActionPriorityHigh   ActionItemPriority = "high"
	ActionPriorityMedium ActionItemPriority = "medium"
	ActionPriorityLow    ActionItemPriority = "low"
)

// NoDeadline is the deadline string used when neither an explicit date nor a
// relative phrase could be found in the email.
const NoDeadline = "no specific deadline"

// ActionItem is a single extracted unit of work.
type ActionItem struct {
	ID          string             `json:"id"`
	EmailID     string             `json:"email_id"`
	Action      string             `json:"action"`
	Deadline    string             `json:"deadline"` // explicit date > relative phrase > NoDeadline
	Priority    ActionItemPriority `json:"priority"`
	Confidence  float64            `json:"confidence"`
	DuplicateOf string             `json:"duplicate_of,omitempty"` // canonical action item id, if merged
}

// ExtractionResult is the expensive derived output produced once per
// finalized email. It is recomputed only when the email's category changes
// after finalization.
type ExtractionResult struct {
	EmailID     string       `json:"email_id"`
	ActionItems []ActionItem `json:"action_items,omitempty"`
	Summary     string       `json:"summary"`
	KeyPoints   []string     `json:"key_points,omitempty"`

	// Err carries the completion failure marker. The result stays
	// well-formed either way: one ExtractionResult per requested email.
	Err string `json:"error,omitempty"`

	// Version stamps the classification version the extraction was
	// dispatched against. Mismatch with the current version means stale.
	Version     int64     `json:"version"`
	ExtractedAt time.Time `json:"extracted_at"`
	ModelUsed   string    `json:"model_used,omitempty"`
	TokensUsed  int       `json:"tokens_used,omitempty"`
}

// Failed reports whether this result is the empty-but-valid failure shape.
func (r *ExtractionResult) Failed() bool {
	return r != nil && r.Err != ""
}

// NewFailedExtraction builds the empty-but-valid result attached when the
// completion call fails during extraction.
func NewFailedExtraction(emailID string, version int64, reason string) *ExtractionResult {
	return &ExtractionResult{
		EmailID:     emailID,
		Summary:     "",
		Err:         reason,
		Version:     version,
		ExtractedAt: time.Now(),
	}
}
