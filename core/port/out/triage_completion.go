package out

import (
	"context"
	"errors"
	"fmt"
)

// CompletionErrorKind classifies completion failures for retry decisions.
type CompletionErrorKind string

const (
	CompletionTransient  CompletionErrorKind = "transient"  // timeout, 5xx, rate limit → retryable
	CompletionPermanent  CompletionErrorKind = "permanent"  // malformed prompt, auth → not retryable
	CompletionUnparsable CompletionErrorKind = "unparsable" // response did not match the schema hint
)

// CompletionError is the failure mode of the text-completion capability.
// It is a recoverable, reported condition: engines convert it to fallback
// results instead of letting it escape a batch.
type CompletionError struct {
	Kind CompletionErrorKind
	Op   string // e.g. "classify", "extract", "similarity"
	Err  error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the call-site retry wrapper may retry.
func (e *CompletionError) Retryable() bool {
	return e.Kind == CompletionTransient
}

// NewCompletionError wraps err as a CompletionError.
func NewCompletionError(kind CompletionErrorKind, op string, err error) *CompletionError {
	return &CompletionError{Kind: kind, Op: op, Err: err}
}

// AsCompletionError extracts a CompletionError from an error chain.
func AsCompletionError(err error) (*CompletionError, bool) {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// SchemaHint names the structured response shape a completion call expects.
// Implementations use it to enable structured output modes where available.
type SchemaHint string

const (
	SchemaClassification SchemaHint = "classification"
	SchemaExtraction     SchemaHint = "extraction"
	SchemaSimilarity     SchemaHint = "similarity"
)

// CompletionUsage reports token consumption for a single call.
type CompletionUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// TextCompletion is the abstract AI capability the engine consumes.
// Callers must assume unbounded latency and bound calls with a context
// deadline. Implementations fail with *CompletionError.
type TextCompletion interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, hint SchemaHint) (string, *CompletionUsage, error)
}
