package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/roach88/outreach/internal/auth"
	"github.com/roach88/outreach/internal/message"
)

// DefaultRetryAfter is used when a 429 response carries no usable Retry-After.
const DefaultRetryAfter = 10 * time.Second

// GraphConfig configures a Graph mailer.
type GraphConfig struct {
	BaseURL   string
	SenderUPN string
	Tokens    auth.TokenSource
	// HTTPClient overrides the transport; nil uses resty's default.
	HTTPClient *http.Client
	// Sleep waits out a throttling delay; nil waits on a timer honoring ctx.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Graph sends mail through the Graph sendMail action.
type Graph struct {
	client *resty.Client
	path   string
	tokens auth.TokenSource
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// NewGraph returns a Graph mailer for cfg.
func NewGraph(cfg GraphConfig) *Graph {
	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	g := &Graph{
		client: client,
		path:   "/users/" + url.PathEscape(cfg.SenderUPN) + "/sendMail",
		tokens: cfg.Tokens,
		sleep:  cfg.Sleep,
		logger: cfg.Logger,
	}
	if g.sleep == nil {
		g.sleep = sleepContext
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Prepare acquires a token so authentication problems surface before any send.
func (g *Graph) Prepare(ctx context.Context) error {
	if _, err := g.tokens.Token(ctx); err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	return nil
}

// Send posts msg. A 401 refreshes the token and retries once; a 429 waits
// Retry-After and retries once. Any other non-2xx status is a *SendError.
func (g *Graph) Send(ctx context.Context, msg message.Message) error {
	payload := newSendMailRequest(msg)

	resp, err := g.post(ctx, payload)
	if err != nil {
		return err
	}

	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		g.logger.Warn("token rejected, refreshing", "to", msg.To)
		g.tokens.Invalidate()
		resp, err = g.post(ctx, payload)
	case http.StatusTooManyRequests:
		wait := retryAfter(resp.Header().Get("Retry-After"), time.Now())
		g.logger.Warn("throttled by mail service", "to", msg.To, "retry_after", wait)
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
		resp, err = g.post(ctx, payload)
	}
	if err != nil {
		return err
	}

	if accepted(resp.StatusCode()) {
		return nil
	}
	return &SendError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), maxErrorBody)}
}

func (g *Graph) post(ctx context.Context, payload sendMailRequest) (*resty.Response, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		Post(g.path)
	if err != nil {
		return nil, fmt.Errorf("post sendMail: %w", err)
	}
	return resp, nil
}

func accepted(code int) bool {
	return code == http.StatusOK || code == http.StatusAccepted
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRetryAfter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type sendMailRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         itemBody         `json:"body"`
	ToRecipients []recipient      `json:"toRecipients"`
	Attachments  []fileAttachment `json:"attachments,omitempty"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes []byte `json:"contentBytes"`
	ContentID    string `json:"contentId,omitempty"`
	IsInline     bool   `json:"isInline"`
}

func newSendMailRequest(msg message.Message) sendMailRequest {
	req := sendMailRequest{
		Message: graphMessage{
			Subject: msg.Subject,
			Body:    itemBody{ContentType: "HTML", Content: msg.HTMLBody},
			ToRecipients: []recipient{
				{EmailAddress: emailAddress{Address: msg.To, Name: msg.ToName}},
			},
		},
		SaveToSentItems: true,
	}
	for _, a := range msg.Attachments {
		req.Message.Attachments = append(req.Message.Attachments, fileAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         a.Name,
			ContentType:  a.ContentType,
			ContentBytes: a.Content,
			ContentID:    a.ContentID,
			IsInline:     a.Inline,
		})
	}
	return req
}
