package cli

import (
	"github.com/roach88/outreach/internal/bootstrap"
	"github.com/roach88/outreach/internal/config"
)

// Error codes reported in JSON output.
const (
	CodeConfig    = "E001"
	CodeBootstrap = "E002"
	CodeStore     = "E003"
	CodeRun       = "E004"
	CodeArgs      = "E005"
)

// prepare loads the configuration and verifies the mount contract. Both
// failures map to ExitCommandError: nothing has been sent yet.
func prepare(opts *RootOptions, strict bool) (config.Config, *bootstrap.Report, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return config.Config{}, nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	report, err := bootstrap.Check(cfg, bootstrap.Options{Strict: strict})
	if err != nil {
		return cfg, nil, WrapExitError(ExitCommandError, "volume check failed", err)
	}
	return cfg, report, nil
}
