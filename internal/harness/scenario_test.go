package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
name: minimal
description: "Smallest valid scenario"
options:
  daily_limit: 1
roster: |
  email
  a@example.com
expect:
  outcome: completed
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, 1, scenario.Options.DailyLimit)
	assert.Equal(t, "email\na@example.com\n", scenario.Roster)
	assert.Equal(t, DefaultNow, scenario.start().Format("2006-01-02T15:04:05Z07:00"))
	assert.Zero(t, scenario.interval())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimal + "expectations: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\noptions: {daily_limit: 1}\nroster: \"email\\n\"\nexpect: {outcome: completed}\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\noptions: {daily_limit: 1}\nroster: \"email\\n\"\nexpect: {outcome: completed}\n",
			wantErr: "description is required",
		},
		{
			name:    "missing roster",
			content: "name: n\ndescription: d\noptions: {daily_limit: 1}\nexpect: {outcome: completed}\n",
			wantErr: "roster is required",
		},
		{
			name:    "zero limit",
			content: "name: n\ndescription: d\nroster: \"email\\n\"\nexpect: {outcome: completed}\n",
			wantErr: "daily_limit must be positive",
		},
		{
			name:    "bad interval",
			content: "name: n\ndescription: d\noptions: {daily_limit: 1, send_interval: soon}\nroster: \"email\\n\"\nexpect: {outcome: completed}\n",
			wantErr: "options.send_interval",
		},
		{
			name:    "bad now",
			content: "name: n\ndescription: d\nnow: tomorrow\noptions: {daily_limit: 1}\nroster: \"email\\n\"\nexpect: {outcome: completed}\n",
			wantErr: "now:",
		},
		{
			name:    "history day",
			content: "name: n\ndescription: d\noptions: {daily_limit: 1}\nroster: \"email\\n\"\nhistory: [{email: a@example.com, day: yesterday, status: sent}]\nexpect: {outcome: completed}\n",
			wantErr: "history[0]: day",
		},
		{
			name:    "ambiguous failure",
			content: "name: n\ndescription: d\noptions: {daily_limit: 1}\nroster: \"email\\n\"\nfailures: {a@example.com: {status: 500, error: boom}}\nexpect: {outcome: completed}\n",
			wantErr: "exactly one of status or error",
		},
		{
			name:    "missing outcome",
			content: "name: n\ndescription: d\noptions: {daily_limit: 1}\nroster: \"email\\n\"\nexpect: {sent: 1}\n",
			wantErr: "expect.outcome is required",
		},
		{
			name:    "unknown outcome",
			content: "name: n\ndescription: d\noptions: {daily_limit: 1}\nroster: \"email\\n\"\nexpect: {outcome: done}\n",
			wantErr: "unknown outcome",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
