// Package notify posts run summaries to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Notifier delivers short status messages.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop discards every message.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string) {}

// TelegramConfig configures a Telegram notifier.
type TelegramConfig struct {
	Token      string
	ChatID     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Telegram sends messages through the Bot API sendMessage method.
// A message identical to the previous one is not sent again.
type Telegram struct {
	client *resty.Client
	path   string
	chatID string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

// New returns a Telegram notifier, or Nop when no token is configured.
func New(cfg TelegramConfig) Notifier {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		return Nop{}
	}
	return NewTelegram(cfg)
}

// NewTelegram returns a Telegram notifier for cfg.
func NewTelegram(cfg TelegramConfig) *Telegram {
	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New()
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client.SetBaseURL(strings.TrimRight(base, "/")).SetTimeout(10 * time.Second)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		client: client,
		path:   "/bot" + cfg.Token + "/sendMessage",
		chatID: cfg.ChatID,
		logger: logger,
	}
}

// Notify sends text. Failures are logged and otherwise ignored.
func (t *Telegram) Notify(ctx context.Context, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if text == t.last {
		t.logger.Debug("duplicate notification suppressed")
		return
	}
	if err := t.send(ctx, text); err != nil {
		t.logger.Warn("telegram notification failed", "error", err)
		return
	}
	t.last = text
}

func (t *Telegram) send(ctx context.Context, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"chat_id": t.chatID, "text": text}).
		Post(t.path)
	if err != nil {
		// The request URL embeds the bot token; keep it out of logs.
		return fmt.Errorf("post sendMessage: %s", strings.ReplaceAll(err.Error(), t.path, "/bot***/sendMessage"))
	}
	if resp.IsError() {
		return fmt.Errorf("sendMessage returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
