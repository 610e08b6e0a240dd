package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

// envKeys are the variables a test env file may set; they are cleared
// before each test because an existing process value wins over the file.
var envKeys = []string{
	"TENANT_ID", "CLIENT_ID", "SENDER_UPN", "CLIENT_SECRET", "CSV_PATH", "DAILY_LIMIT", "DB_PATH",
	"DATA_DIR", "DB_DIR", "LOG_DIR", "MAX_PER_COMPANY_PER_DAY", "SEND_INTERVAL", "ALLOWED_EMAIL_STATUS",
	"DO_NOT_EMAIL_PATH", "TOKEN_CACHE_PATH", "MAIL_TRANSPORT", "SMTP_HOST", "SMTP_PORT",
	"CAMPAIGN_PATH", "LOGO_PATH", "SENDER_NAME", "SENDER_TITLE", "RECONTACT", "WAIT_FOR_NEXT_DAY",
	"TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "METRICS_ADDR", "notify", "chat_id",
}

type workspace struct {
	root    string
	dataDir string
	dbDir   string
	logDir  string
	envFile string
}

func newWorkspace(t *testing.T, extraEnv ...string) workspace {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	root := t.TempDir()
	w := workspace{
		root:    root,
		dataDir: filepath.Join(root, "data"),
		dbDir:   filepath.Join(root, "db"),
		logDir:  filepath.Join(root, "logs"),
		envFile: filepath.Join(root, ".env"),
	}
	require.NoError(t, os.MkdirAll(w.dataDir, 0o755))

	csv := strings.Join([]string{
		"email,email_status,first_name,organization_name,title,person_id",
		"ada@acme.com,verified,Ada,Acme,Chief Data Officer,p1",
		"bob@globex.com,likely to engage,Bob,Globex,Analyst,p2",
		"cy@initech.com,guessed,Cy,Initech,VP,p3",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(w.dataDir, "mdg_high_intent.csv"), []byte(csv), 0o644))

	env := append([]string{
		"TENANT_ID=tenant-1",
		"CLIENT_ID=client-1",
		"SENDER_UPN=sender@example.com",
		"MAIL_TRANSPORT=smtp",
		"SMTP_HOST=localhost",
		"SEND_INTERVAL=0s",
		"DATA_DIR=" + w.dataDir,
		"DB_DIR=" + w.dbDir,
		"LOG_DIR=" + w.logDir,
	}, extraEnv...)
	require.NoError(t, os.WriteFile(w.envFile, []byte(strings.Join(env, "\n")+"\n"), 0o600))
	return w
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
