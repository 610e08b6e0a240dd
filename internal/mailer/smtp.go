package mailer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/roach88/outreach/internal/message"
)

// SMTPConfig configures an SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	Logger   *slog.Logger
}

type dialer interface {
	Dial() (gomail.SendCloser, error)
	DialAndSend(m ...*gomail.Message) error
}

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	dialer   dialer
	from     string
	fromName string
	logger   *slog.Logger
}

// NewSMTP returns an SMTP mailer for cfg.
func NewSMTP(cfg SMTPConfig) *SMTP {
	s := &SMTP{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger.Debug("smtp mailer initialised", "host", cfg.Host, "port", cfg.Port, "user", cfg.User)
	return s
}

// Prepare dials the relay once to verify connectivity and credentials.
func (s *SMTP) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := s.dialer.Dial()
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	return conn.Close()
}

// Send delivers msg in a single SMTP session.
func (s *SMTP) Send(ctx context.Context, msg message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.build(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTP) build(msg message.Message) *gomail.Message {
	m := gomail.NewMessage()
	if s.fromName != "" {
		m.SetAddressHeader("From", s.from, s.fromName)
	} else {
		m.SetHeader("From", s.from)
	}
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	for _, a := range msg.Attachments {
		content := a.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		if a.Inline {
			// Embed derives Content-ID from the name; the body refers to it as cid:<name>.
			name := a.ContentID
			if name == "" {
				name = a.Name
			}
			m.Embed(name, settings...)
			continue
		}
		m.Attach(a.Name, settings...)
	}
	return m
}
