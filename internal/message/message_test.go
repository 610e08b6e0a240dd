package message

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outreach/internal/roster"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func writeLogo(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))
	return path
}

func goldenAssert(t *testing.T, name string, actual []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, actual)
}

func TestCompose_DefaultCampaign(t *testing.T) {
	logo := writeLogo(t, t.TempDir())
	comp, err := NewComposer(DefaultCampaign(), Options{
		LogoPath:    logo,
		SenderName:  "Jane Doe",
		SenderTitle: "Chief Architect",
	})
	require.NoError(t, err)

	msg, err := comp.Compose(roster.Recipient{
		Email:     "ada@acme.com",
		FirstName: "Ada",
		Company:   "Acme",
		Title:     "CDO",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@acme.com", msg.To)
	assert.Equal(t, "Ada", msg.ToName)
	assert.Equal(t, "Acme re: master data governance for SAP S/4HANA programs", msg.Subject)
	goldenAssert(t, "default_body", []byte(msg.HTMLBody))

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "logo.png", att.Name)
	assert.Equal(t, "logo.png", att.ContentID)
	assert.Equal(t, "image/png", att.ContentType)
	assert.True(t, att.Inline)
	assert.Equal(t, pngHeader, att.Content)
}

func TestCompose_Fallbacks(t *testing.T) {
	comp, err := NewComposer(DefaultCampaign(), Options{SenderName: "Jane Doe"})
	require.NoError(t, err)

	msg, err := comp.Compose(roster.Recipient{Email: "anon@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "your team re: master data governance for SAP S/4HANA programs", msg.Subject)
	assert.Empty(t, msg.Attachments)
	goldenAssert(t, "default_body_fallbacks", []byte(msg.HTMLBody))
}

func TestCompose_UnsignedSignature(t *testing.T) {
	logo := writeLogo(t, t.TempDir())
	comp, err := NewComposer(DefaultCampaign(), Options{LogoPath: logo})
	require.NoError(t, err)

	msg, err := comp.Compose(roster.Recipient{Email: "ada@acme.com", FirstName: "Ada"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTMLBody, "<strong></strong>")
	assert.NotContains(t, msg.HTMLBody, `alt=""`)
	assert.Contains(t, msg.HTMLBody, "Best wishes,\n    </p>")
	assert.Contains(t, msg.HTMLBody, `alt="Logo"`)
}

func TestCompose_TitleWithoutName(t *testing.T) {
	comp, err := NewComposer(DefaultCampaign(), Options{SenderTitle: "Chief Architect"})
	require.NoError(t, err)

	msg, err := comp.Compose(roster.Recipient{Email: "ada@acme.com"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTMLBody, "<strong></strong>")
	assert.Contains(t, msg.HTMLBody, "Best wishes,<br>\n      Chief Architect\n    </p>")
}

func TestCompose_EscapesRecipientData(t *testing.T) {
	comp, err := NewComposer(DefaultCampaign(), Options{})
	require.NoError(t, err)

	msg, err := comp.Compose(roster.Recipient{
		Email:     "x@example.com",
		FirstName: "<script>",
		Company:   "Smith & Sons",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.HTMLBody, "Hi &lt;script&gt;,")
	assert.Contains(t, msg.HTMLBody, "Smith &amp; Sons")
	assert.Equal(t, "Smith & Sons re: master data governance for SAP S/4HANA programs", msg.Subject)
}

func TestLoadCampaign(t *testing.T) {
	dir := t.TempDir()
	writeLogo(t, dir)
	path := filepath.Join(dir, "campaign.yaml")
	content := `
subject: "Quick question for {{ .Company | upper }}"
body: |
  <p>Hello {{ .FirstName }} ({{ index .Extra "city" }})</p>
logo: logo.png
sender_name: Sam Sender
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadCampaign(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logo.png"), c.Logo)

	comp, err := NewComposer(c, Options{})
	require.NoError(t, err)
	msg, err := comp.Compose(roster.Recipient{
		Email:     "b@beta.com",
		FirstName: "Bea",
		Company:   "Beta",
		Extra:     map[string]string{"city": "Berlin"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Quick question for BETA", msg.Subject)
	assert.Equal(t, "<p>Hello Bea (Berlin)</p>\n", msg.HTMLBody)
	assert.Len(t, msg.Attachments, 1)
}

func TestLoadCampaign_EmptyTemplatesUseDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sender_title: CTO\n"), 0o644))

	c, err := LoadCampaign(path)
	require.NoError(t, err)
	assert.Equal(t, defaultSubject, c.Subject)
	assert.Equal(t, defaultBody, c.Body)
	assert.Equal(t, "CTO", c.SenderTitle)
}

func TestLoadCampaign_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subject: [unclosed\n"), 0o644))

	_, err := LoadCampaign(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse campaign")
}

func TestNewComposer_Errors(t *testing.T) {
	_, err := NewComposer(Campaign{Subject: "{{ .Broken", Body: "ok"}, Options{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "subject"))

	_, err = NewComposer(DefaultCampaign(), Options{LogoPath: filepath.Join(t.TempDir(), "missing.png")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read logo")
}
