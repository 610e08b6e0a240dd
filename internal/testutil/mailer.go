package testutil

import (
	"context"
	"sync"

	"github.com/roach88/outreach/internal/message"
)

// RecordingMailer captures messages instead of delivering them.
//
// Thread-safety: RecordingMailer is safe for concurrent use via internal mutex.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []message.Message

	// Errors maps a recipient address to the error its send returns.
	// Failed sends are still captured.
	Errors map[string]error
	// AfterSend, when set, runs after each captured message.
	AfterSend func(msg message.Message)
	// PrepareErr is returned by Prepare.
	PrepareErr error
	prepared   int
}

// Send captures msg and returns the configured error for its recipient.
func (m *RecordingMailer) Send(ctx context.Context, msg message.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	err := m.Errors[msg.To]
	hook := m.AfterSend
	m.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return err
}

// Prepare counts calls and returns PrepareErr.
func (m *RecordingMailer) Prepare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepared++
	return m.PrepareErr
}

// Sent returns the captured messages in send order.
func (m *RecordingMailer) Sent() []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message.Message(nil), m.sent...)
}

// Recipients returns the To address of every captured message.
func (m *RecordingMailer) Recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		out = append(out, msg.To)
	}
	return out
}

// Prepared returns the number of Prepare calls.
func (m *RecordingMailer) Prepared() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepared
}
