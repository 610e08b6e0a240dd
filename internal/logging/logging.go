// Package logging configures the process-wide slog logger.
//
// Records go to stderr and to an append-only file under the logs mount. The
// file is never truncated, so output from every run accumulates across
// container restarts.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the log file created under the logs directory.
const FileName = "outreach.log"

// Options controls the handler.
type Options struct {
	Dir     string
	Verbose bool
	JSON    bool
	// Console receives a copy of every record; defaults to os.Stderr.
	Console io.Writer
}

// Setup builds a logger writing to the console and to Dir/outreach.log, and
// installs it as the slog default. The returned closer releases the file.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(opts.Dir, FileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	logger := New(io.MultiWriter(console, f), opts.Verbose, opts.JSON)
	slog.SetDefault(logger)
	return logger, f, nil
}

// New returns a logger over w with the level and encoding used by Setup.
func New(w io.Writer, verbose, json bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
