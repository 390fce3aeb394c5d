package mailer

import (
	"context"
	"fmt"
	"sync"
)

// RecorderProvider keeps every message in memory for tests.
type RecorderProvider struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func NewRecorderProvider() *RecorderProvider {
	return &RecorderProvider{}
}

func (r *RecorderProvider) Name() string {
	return "recorder"
}

func (r *RecorderProvider) Send(_ context.Context, msg Message) (SendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return SendResult{}, r.Err
	}
	r.sent = append(r.sent, msg)
	return SendResult{ProviderMessageID: fmt.Sprintf("recorder-%d", len(r.sent))}, nil
}

// Sent returns a copy of the recorded messages.
func (r *RecorderProvider) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}
