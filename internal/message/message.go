package message

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/outreach/internal/roster"
)

//go:embed templates/subject.tmpl
var defaultSubject string

//go:embed templates/body.html.tmpl
var defaultBody string

// Campaign is the message definition, usually read from a YAML file.
type Campaign struct {
	Subject     string `yaml:"subject"`
	Body        string `yaml:"body"`
	Logo        string `yaml:"logo"`
	SenderName  string `yaml:"sender_name"`
	SenderTitle string `yaml:"sender_title"`
}

// DefaultCampaign returns the embedded templates.
func DefaultCampaign() Campaign {
	return Campaign{Subject: defaultSubject, Body: defaultBody}
}

// LoadCampaign reads a YAML campaign file. Empty templates fall back to the
// embedded defaults; a relative logo path resolves against the file's directory.
func LoadCampaign(path string) (Campaign, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Campaign{}, fmt.Errorf("read campaign: %w", err)
	}
	var c Campaign
	if err := yaml.Unmarshal(content, &c); err != nil {
		return Campaign{}, fmt.Errorf("parse campaign %s: %w", path, err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		c.Subject = defaultSubject
	}
	if strings.TrimSpace(c.Body) == "" {
		c.Body = defaultBody
	}
	if c.Logo != "" && !filepath.IsAbs(c.Logo) {
		c.Logo = filepath.Join(filepath.Dir(path), c.Logo)
	}
	return c, nil
}

// Attachment is a file carried by a message.
type Attachment struct {
	Name        string
	ContentType string
	ContentID   string
	Content     []byte
	Inline      bool
}

// Message is a rendered email for one recipient.
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Data is the template context.
type Data struct {
	FirstName   string
	Company     string
	Title       string
	Email       string
	PersonID    string
	Extra       map[string]string
	SenderName  string
	SenderTitle string
	LogoCID     string
	// LogoSrc is the cid: reference for the inline logo.
	LogoSrc template.URL
}

// Options overrides campaign values with configuration.
type Options struct {
	LogoPath    string
	SenderName  string
	SenderTitle string
}

// Composer renders messages. It is safe for concurrent use.
type Composer struct {
	subject     *texttemplate.Template
	body        *template.Template
	logo        *Attachment
	senderName  string
	senderTitle string
}

// NewComposer parses the campaign templates and loads the logo.
func NewComposer(c Campaign, opts Options) (*Composer, error) {
	subject, err := texttemplate.New("subject").Funcs(sprig.TxtFuncMap()).Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	body, err := template.New("body").Funcs(sprig.FuncMap()).Parse(c.Body)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}

	comp := &Composer{
		subject:     subject,
		body:        body,
		senderName:  firstNonEmpty(opts.SenderName, c.SenderName),
		senderTitle: firstNonEmpty(opts.SenderTitle, c.SenderTitle),
	}

	if logoPath := firstNonEmpty(opts.LogoPath, c.Logo); logoPath != "" {
		logo, err := loadInline(logoPath)
		if err != nil {
			return nil, err
		}
		comp.logo = logo
	}
	return comp, nil
}

// Compose renders the message for r.
func (c *Composer) Compose(r roster.Recipient) (Message, error) {
	data := Data{
		FirstName:   r.FirstName,
		Company:     r.Company,
		Title:       r.Title,
		Email:       r.Email,
		PersonID:    r.PersonID,
		Extra:       r.Extra,
		SenderName:  c.senderName,
		SenderTitle: c.senderTitle,
	}
	if c.logo != nil {
		data.LogoCID = c.logo.ContentID
		data.LogoSrc = template.URL("cid:" + c.logo.ContentID)
	}

	var subject bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render subject for %s: %w", r.Email, err)
	}
	var body bytes.Buffer
	if err := c.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render body for %s: %w", r.Email, err)
	}

	msg := Message{
		To:       r.Email,
		ToName:   strings.TrimSpace(r.FirstName),
		Subject:  strings.Join(strings.Fields(subject.String()), " "),
		HTMLBody: body.String(),
	}
	if c.logo != nil {
		msg.Attachments = []Attachment{*c.logo}
	}
	return msg, nil
}

// loadInline reads an inline image. The file name doubles as the content id,
// which Outlook resolves most reliably.
func loadInline(path string) (*Attachment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	return &Attachment{
		Name:        name,
		ContentType: contentType,
		ContentID:   name,
		Content:     content,
		Inline:      true,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
