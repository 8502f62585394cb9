package testfixtures

import (
	"context"
	"sync"

	"github.com/example/lounge-reconciler/internal/push"
)

// PushRecorder is a push.Client that records every message and fails the
// tokens it has been told to fail.
type PushRecorder struct {
	mu       sync.Mutex
	failures map[string]error
	sent     []push.Message
}

// NewPushRecorder returns a recorder that delivers everything.
func NewPushRecorder() *PushRecorder {
	return &PushRecorder{failures: map[string]error{}}
}

// FailToken makes every send to token fail with a delivery error of kind.
func (r *PushRecorder) FailToken(token string, kind push.FailureKind) {
	r.mu.Lock()
	r.failures[token] = push.Fail(kind, nil)
	r.mu.Unlock()
}

// Reset clears recorded messages and failures.
func (r *PushRecorder) Reset() {
	r.mu.Lock()
	r.failures = map[string]error{}
	r.sent = nil
	r.mu.Unlock()
}

// Send implements push.Client.
func (r *PushRecorder) Send(ctx context.Context, msg push.Message) error {
	if err := ctx.Err(); err != nil {
		return push.Fail(push.KindTransient, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.failures[msg.Token]
}

// Sent returns a copy of every attempted message.
func (r *PushRecorder) Sent() []push.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]push.Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// SentTo returns the messages addressed to token.
func (r *PushRecorder) SentTo(token string) []push.Message {
	var out []push.Message
	for _, msg := range r.Sent() {
		if msg.Token == token {
			out = append(out, msg)
		}
	}
	return out
}
