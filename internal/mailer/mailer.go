// Package mailer delivers composed messages through Microsoft Graph or SMTP.
package mailer

import (
	"context"
	"fmt"

	"github.com/roach88/outreach/internal/message"
)

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, msg message.Message) error
}

// Preparer is implemented by transports that can verify their credentials
// before the first send.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// maxErrorBody bounds the response body kept in a SendError.
const maxErrorBody = 200

// SendError is a non-success response from the mail service.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed with status %d: %s", e.StatusCode, e.Body)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
