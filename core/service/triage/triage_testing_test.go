package triage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// fakeCompletion is the shared test double for the completion port. It counts
// calls and answers via the respond func (or a fixed response/error).
type fakeCompletion struct {
	mu       sync.Mutex
	calls    int32
	response string
	err      error
	respond  func(system, user string, hint out.SchemaHint) (string, error)
}

func (f *fakeCompletion) Complete(ctx context.Context, system, user string, hint out.SchemaHint) (string, *out.CompletionUsage, error) {
	atomic.AddInt32(&f.calls, 1)

	if f.respond != nil {
		raw, err := f.respond(system, user, hint)
		if err != nil {
			return "", nil, err
		}
		return raw, &out.CompletionUsage{Model: "gpt-4o-mini", TotalTokens: 100}, nil
	}
	if f.err != nil {
		return "", nil, f.err
	}
	return f.response, &out.CompletionUsage{Model: "gpt-4o-mini", TotalTokens: 100}, nil
}

func (f *fakeCompletion) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func testEmail(id, sender, subject, body string) *domain.Email {
	return &domain.Email{
		ID:         id,
		Sender:     sender,
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
}
