package domain

import "time"

// DedupKind distinguishes what a deduplication group contains.
type DedupKind string

const (
	DedupEmails      DedupKind = "emails"
	DedupActionItems DedupKind = "action_items"
)

// DeduplicationGroup is a set of email or action-item identifiers judged
// duplicates of each other. The duplicate relation is symmetric but the group
// has exactly one canonical member. Membership is decided at detection time
// and is not retroactively re-evaluated unless a new candidate is compared.
type DeduplicationGroup struct {
	ID          string    `json:"id"`
	Kind        DedupKind `json:"kind"`
	CanonicalID string    `json:"canonical_id"`
	MemberIDs   []string  `json:"member_ids"` // includes CanonicalID
	DetectedAt  time.Time `json:"detected_at"`
}

// Contains reports whether id is a member of the group.
func (g *DeduplicationGroup) Contains(id string) bool {
	for _, m := range g.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// Merge adds ids into the group, keeping membership unique.
func (g *DeduplicationGroup) Merge(ids ...string) {
	for _, id := range ids {
		if !g.Contains(id) {
			g.MemberIDs = append(g.MemberIDs, id)
		}
	}
}
