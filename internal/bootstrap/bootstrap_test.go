package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outreach/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	dbDir := filepath.Join(root, "db")
	return config.Config{
		DataDir: dataDir,
		DBDir:   dbDir,
		LogDir:  filepath.Join(root, "logs"),
		CSVPath: filepath.Join(dataDir, "targets.csv"),
		DBPath:  filepath.Join(dbDir, "outreach_log.sqlite"),
	}
}

func TestCheck_CreatesWritableMounts(t *testing.T) {
	cfg := testConfig(t)

	report, err := Check(cfg, Options{})
	require.NoError(t, err)
	require.Len(t, report.Mounts, 3)

	assert.Equal(t, RoleData, report.Mounts[0].Role)
	assert.True(t, report.Mounts[0].Readable)

	for _, m := range report.Mounts[1:] {
		assert.True(t, m.Created, "%s should be created", m.Role)
		assert.True(t, m.Writable, "%s should be writable", m.Role)
		info, err := os.Stat(m.Path)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.False(t, report.DBExists)
}

func TestCheck_ReportsExistingDatabase(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.DBDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.DBPath, []byte("x"), 0o644))

	report, err := Check(cfg, Options{})
	require.NoError(t, err)
	assert.True(t, report.DBExists)
	assert.False(t, report.Mounts[1].Created)
}

func TestCheck_MissingDataMount(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataDir = filepath.Join(t.TempDir(), "absent")

	_, err := Check(cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data mount")
}

func TestCheck_DataMountIsFile(t *testing.T) {
	cfg := testConfig(t)
	file := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.DataDir = file

	_, err := Check(cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestCheck_WritableDataMount(t *testing.T) {
	cfg := testConfig(t)

	report, err := Check(cfg, Options{})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "read-only")

	_, err = Check(cfg, Options{Strict: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataWritable))
}

func TestCheck_DBMountIsFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.DBDir, nil, 0o644))

	_, err := Check(cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db mount")
}

func TestCheck_DBPathIsDirectory(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.DBPath, 0o755))

	_, err := Check(cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestCheck_DBPathOutsideDBDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "log.sqlite")

	_, err := Check(cfg, Options{})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(cfg.DBPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCheck_LogMountNotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.LogDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(cfg.LogDir, 0o755) })

	_, err := Check(cfg, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotWritable))
	assert.Contains(t, err.Error(), "logs mount")
}
