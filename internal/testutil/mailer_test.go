package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/outreach/internal/message"
)

func TestRecordingMailer(t *testing.T) {
	boom := errors.New("boom")
	var hooked []string
	m := &RecordingMailer{
		Errors:    map[string]error{"b@example.com": boom},
		AfterSend: func(msg message.Message) { hooked = append(hooked, msg.To) },
	}

	assert.NoError(t, m.Send(context.Background(), message.Message{To: "a@example.com"}))
	assert.ErrorIs(t, m.Send(context.Background(), message.Message{To: "b@example.com"}), boom)

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, m.Recipients())
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, hooked)
	assert.Len(t, m.Sent(), 2)

	m.PrepareErr = boom
	assert.ErrorIs(t, m.Prepare(context.Background()), boom)
	assert.Equal(t, 1, m.Prepared())
}
