package domain

import (
	"time"
)

// EmailCategory represents the actionability category assigned to an email
type EmailCategory string

const (
	// === Actionable Categories ===
	CategoryRequiredPersonalAction EmailCategory = "required_personal_action" // Needs a direct action from the user
	CategoryTeamAction             EmailCategory = "team_action"              // Someone on the team should act
	CategoryTaskDelegation         EmailCategory = "task_delegation"          // Work delegated to/from the user

	// === Informational Categories ===
	CategoryOptionalFYI  EmailCategory = "optional_fyi"  // Worth knowing, no action needed
	CategoryWorkRelevant EmailCategory = "work_relevant" // Work context, no explicit action

	// === Low Priority ===
	CategoryNewsletter EmailCategory = "newsletter"  // Newsletters and digests
	CategoryJobListing EmailCategory = "job_listing" // Recruiter mail, job boards
	CategorySpam       EmailCategory = "spam"        // Spam/unwanted
	CategoryOther      EmailCategory = "other"       // Uncategorized / fallback
)

// ActionableCategories are the categories for which detailed extraction
// produces action items in addition to a summary.
var ActionableCategories = map[EmailCategory]bool{
	CategoryRequiredPersonalAction: true,
	CategoryTeamAction:             true,
	CategoryTaskDelegation:         true,
}

// IsActionable reports whether emails in this category carry action items.
func (c EmailCategory) IsActionable() bool {
	return ActionableCategories[c]
}

// IsValid reports whether the category is one of the known values.
func (c EmailCategory) IsValid() bool {
	switch c {
	case CategoryRequiredPersonalAction, CategoryTeamAction, CategoryTaskDelegation,
		CategoryOptionalFYI, CategoryWorkRelevant,
		CategoryNewsletter, CategoryJobListing, CategorySpam, CategoryOther:
		return true
	}
	return false
}

// ProcessingState tracks an email through the two-phase triage workflow.
//
// Unclassified → Classified → Finalized → DetailedProcessed
//
// DetailedProcessed is only reachable from Finalized. A reclassification
// after finalization resets the email to Classified and invalidates any
// completed extraction.
type ProcessingState string

const (
	StateUnclassified      ProcessingState = "unclassified"
	StateClassified        ProcessingState = "classified"
	StateFinalized         ProcessingState = "finalized"
	StateDetailedProcessed ProcessingState = "detailed_processed"
)

// CanTransition reports whether the state machine permits moving to next.
func (s ProcessingState) CanTransition(next ProcessingState) bool {
	switch s {
	case StateUnclassified:
		return next == StateClassified
	case StateClassified:
		return next == StateFinalized || next == StateClassified
	case StateFinalized:
		return next == StateDetailedProcessed || next == StateClassified
	case StateDetailedProcessed:
		// Only a reclassification moves the email out of this state.
		return next == StateClassified
	}
	return false
}

// Email is an immutable email record supplied by the provider.
// The engine references emails, it never mutates them.
type Email struct {
	ID         string    `json:"id" db:"id"`
	Subject    string    `json:"subject" db:"subject"`
	Sender     string    `json:"sender" db:"sender"`
	Body       string    `json:"body" db:"body"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

// Validate checks the minimum fields the engine needs to work with.
func (e *Email) Validate() error {
	if e == nil {
		return ErrNilEmail
	}
	if e.ID == "" {
		return ErrMissingEmailID
	}
	if e.Subject == "" && e.Body == "" {
		return ErrEmptyEmail
	}
	return nil
}
