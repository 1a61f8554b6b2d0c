package domain

import (
	"strings"

	"github.com/google/uuid"
)

// UserContext holds the personalization data injected into every completion
// prompt. Read-only for the duration of a batch.
type UserContext struct {
	UserID      uuid.UUID         `json:"user_id"`
	Role        string            `json:"role,omitempty"`      // e.g. "backend engineer"
	Interests   []string          `json:"interests,omitempty"` // topics the user cares about
	Preferences map[string]string `json:"preferences,omitempty"`
}

// PromptFragment renders the context as a block suitable for appending to a
// system prompt. Empty contexts render to an empty string.
func (c *UserContext) PromptFragment() string {
	if c == nil {
		return ""
	}

	var sb strings.Builder
	if c.Role != "" {
		sb.WriteString("User role: " + c.Role + "\n")
	}
	if len(c.Interests) > 0 {
		sb.WriteString("User interests: " + strings.Join(c.Interests, ", ") + "\n")
	}
	for k, v := range c.Preferences {
		sb.WriteString(k + ": " + v + "\n")
	}

	if sb.Len() == 0 {
		return ""
	}
	return "\n## User Context\n" + sb.String()
}
