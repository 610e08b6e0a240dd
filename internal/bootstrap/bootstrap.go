// Package bootstrap verifies the container volume contract before any send.
//
// The data mount must be readable and is never written to. The db and logs
// mounts must be writable; they are created when absent so local runs outside
// a container work with plain directories.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/roach88/outreach/internal/config"
)

// Mount roles.
const (
	RoleData = "data"
	RoleDB   = "db"
	RoleLogs = "logs"
)

// ErrNotWritable is returned when a read-write mount rejects writes.
var ErrNotWritable = errors.New("not writable")

// ErrDataWritable is returned in strict mode when the data mount accepts writes.
var ErrDataWritable = errors.New("data mount is writable; expected a read-only mount")

// Options controls the check.
type Options struct {
	// Strict turns a writable data mount into a fatal error.
	Strict bool
}

// Mount is the observed state of one mount point.
type Mount struct {
	Role     string `json:"role"`
	Path     string `json:"path"`
	Created  bool   `json:"created,omitempty"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
}

// Report is the outcome of a successful check.
type Report struct {
	Mounts   []Mount  `json:"mounts"`
	CSVPath  string   `json:"csv_path"`
	DBPath   string   `json:"db_path"`
	DBExists bool     `json:"db_exists"`
	Warnings []string `json:"warnings,omitempty"`
}

// Check verifies the mount contract for cfg.
func Check(cfg config.Config, opts Options) (*Report, error) {
	report := &Report{CSVPath: cfg.CSVPath, DBPath: cfg.DBPath}

	data, err := checkData(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	report.Mounts = append(report.Mounts, data)
	if data.Writable {
		if opts.Strict {
			return nil, fmt.Errorf("%s: %w", cfg.DataDir, ErrDataWritable)
		}
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("data mount %s is writable; mount it read-only", cfg.DataDir))
	}

	for _, m := range []struct{ role, path string }{
		{RoleDB, cfg.DBDir},
		{RoleLogs, cfg.LogDir},
	} {
		mount, err := ensureWritable(m.role, m.path)
		if err != nil {
			return nil, err
		}
		report.Mounts = append(report.Mounts, mount)
	}

	dbParent := filepath.Dir(cfg.DBPath)
	if dbParent != cfg.DBDir {
		if _, err := ensureWritable(RoleDB, dbParent); err != nil {
			return nil, err
		}
	}
	if info, err := os.Stat(cfg.DBPath); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("db path %s is a directory", cfg.DBPath)
		}
		report.DBExists = true
	}

	return report, nil
}

func checkData(dir string) (Mount, error) {
	m := Mount{Role: RoleData, Path: dir}
	info, err := os.Stat(dir)
	if err != nil {
		return m, fmt.Errorf("data mount %s: %w", dir, err)
	}
	if !info.IsDir() {
		return m, fmt.Errorf("data mount %s is not a directory", dir)
	}
	if err := unix.Access(dir, unix.R_OK|unix.X_OK); err != nil {
		return m, fmt.Errorf("data mount %s is not readable: %w", dir, err)
	}
	m.Readable = true
	// access(2) reports EROFS for read-only mounts without touching the directory.
	m.Writable = unix.Access(dir, unix.W_OK) == nil
	return m, nil
}

func ensureWritable(role, dir string) (Mount, error) {
	m := Mount{Role: role, Path: dir}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return m, fmt.Errorf("%s mount %s: create: %w", role, dir, err)
		}
		m.Created = true
	case err != nil:
		return m, fmt.Errorf("%s mount %s: %w", role, dir, err)
	case !info.IsDir():
		return m, fmt.Errorf("%s mount %s is not a directory", role, dir)
	}

	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return m, fmt.Errorf("%s mount %s: %w (%v)", role, dir, ErrNotWritable, err)
	}
	m.Readable = unix.Access(dir, unix.R_OK) == nil
	m.Writable = true
	return m, nil
}
