package triage

import (
	"fmt"
	"regexp"
	"strings"

	"triage_server/core/domain"
)

// =============================================================================
// Prompt Construction
// =============================================================================

const classificationSystemPrompt = `You are an email triage AI. Analyze the email and respond with JSON only.

Categories (pick ONE):
- required_personal_action: The recipient personally must do something
- team_action: Someone on the recipient's team should act
- task_delegation: Work being delegated to or from the recipient
- optional_fyi: Worth knowing, no action needed
- work_relevant: Work context without an explicit action
- newsletter: Subscribed newsletters and digests
- job_listing: Recruiter mail, job boards
- spam: Unwanted or suspicious emails
- other: Doesn't fit other categories

Respond with this exact JSON format:
{
  "category": "category_name",
  "confidence": 0.0-1.0,
  "reasoning": "one sentence explaining the choice",
  "alternatives": [
    {"category": "second_best", "confidence": 0.0-1.0},
    {"category": "third_best", "confidence": 0.0-1.0}
  ]
}

Order alternatives by confidence, best first.`

const extractionSystemPrompt = `You are an email analysis AI. Produce a summary and action items for the email. Respond with JSON only.

For each action item, report the deadline in two fields:
- "explicit_date": an exact date stated in the email (e.g. "2026-09-04"), or ""
- "relative_phrase": a relative phrase from the email (e.g. "by Friday"), or ""

Respond with this exact JSON format:
{
  "summary": "1-2 sentence summary",
  "key_points": ["point 1", "point 2"],
  "action_items": [
    {
      "action": "what needs to be done",
      "explicit_date": "",
      "relative_phrase": "",
      "priority": "high|medium|low",
      "confidence": 0.0-1.0
    }
  ]
}`

const summaryOnlySystemPrompt = `You are an email analysis AI. Produce a one-line summary and key points for the email. Do not extract action items. Respond with JSON only.

Respond with this exact JSON format:
{
  "summary": "one line summary",
  "key_points": ["point 1", "point 2"]
}`

// buildClassificationPrompts builds the system and user prompts for the
// cheap classification pass.
func buildClassificationPrompts(email *domain.Email, uc *domain.UserContext) (string, string) {
	system := classificationSystemPrompt + uc.PromptFragment()
	user := fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\nBody:\n%s",
		email.Sender, email.Subject,
		email.ReceivedAt.Format("2006-01-02 15:04"),
		truncateBody(CleanEmailBody(email.Body), 2000))
	return system, user
}

// buildExtractionPrompts builds the system and user prompts for detailed
// extraction. FYI-like categories get summary-only prompts.
func buildExtractionPrompts(email *domain.Email, category domain.EmailCategory, uc *domain.UserContext) (string, string) {
	system := summaryOnlySystemPrompt
	if category.IsActionable() {
		system = extractionSystemPrompt
	}
	system += uc.PromptFragment()

	user := fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\nBody:\n%s",
		email.Sender, email.Subject,
		email.ReceivedAt.Format("2006-01-02 15:04"),
		truncateBody(CleanEmailBody(email.Body), 4000))
	return system, user
}

// stripJSONFences removes markdown code fences some models wrap around JSON.
func stripJSONFences(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

// =============================================================================
// Body Preparation
// =============================================================================

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	quotedPattern     = regexp.MustCompile(`(?m)^>.*$`)
	onWrotePattern    = regexp.MustCompile(`(?i)on .* wrote:.*`)

	signaturePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)--\s*\n.*`),
		regexp.MustCompile(`(?i)sent from my.*`),
		regexp.MustCompile(`(?i)regards,?\s*\n.*`),
		regexp.MustCompile(`(?i)best,?\s*\n.*`),
		regexp.MustCompile(`(?i)thanks,?\s*\n.*`),
	}
)

// CleanEmailBody strips HTML tags, quoted replies, and signatures so prompts
// spend tokens on content.
func CleanEmailBody(body string) string {
	body = htmlTagPattern.ReplaceAllString(body, "")
	body = quotedPattern.ReplaceAllString(body, "")
	body = onWrotePattern.ReplaceAllString(body, "")
	for _, re := range signaturePatterns {
		body = re.ReplaceAllString(body, "")
	}
	body = whitespacePattern.ReplaceAllString(body, " ")
	return strings.TrimSpace(body)
}

// truncateBody truncates text to maxLen characters.
func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "..."
}
