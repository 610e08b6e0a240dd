package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/outreach/internal/bootstrap"
	"github.com/roach88/outreach/internal/config"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Strict bool
}

// CheckResult is the JSON payload of the check command.
type CheckResult struct {
	EnvFile  string            `json:"env_file"`
	Keys     []string          `json:"keys"`
	Report   *bootstrap.Report `json:"report"`
	Settings map[string]any    `json:"settings"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and mounts without sending",
		Long: `Load the env file and verify the volume contract: the roster exists under
the data directory, and the db and logs directories are writable.

Exit code 0 means a run would start; 2 means it would be refused.

Example:
  outreach check --strict`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when the data mount is writable")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, report, err := prepare(opts.RootOptions, opts.Strict)
	if err != nil {
		code := CodeConfig
		if cfg.EnvFile != "" {
			code = CodeBootstrap
		}
		return out.Fail(code, err)
	}

	result := CheckResult{
		EnvFile: cfg.EnvFile,
		Keys:    cfg.Exported,
		Report:  report,
		Settings: map[string]any{
			"daily_limit":             cfg.DailyLimit,
			"max_per_company_per_day": cfg.MaxPerCompanyPerDay,
			"send_interval":           cfg.SendInterval.String(),
			"transport":               cfg.MailTransport,
			"sender":                  cfg.SenderUPN,
		},
	}
	if opts.Format == "json" {
		return out.Success(result)
	}
	out.Notef("Exported keys: %s", strings.Join(cfg.Exported, ", "))
	writeCheck(cmd.OutOrStdout(), cfg, report)
	return nil
}

func writeCheck(w io.Writer, cfg config.Config, report *bootstrap.Report) {
	fmt.Fprintf(w, "Env file: %s (%d keys)\n", cfg.EnvFile, len(cfg.Exported))
	for _, m := range report.Mounts {
		access := "ro"
		if m.Writable {
			access = "rw"
		}
		created := ""
		if m.Created {
			created = " (created)"
		}
		fmt.Fprintf(w, "  %-5s %s [%s]%s\n", m.Role, m.Path, access, created)
	}
	fmt.Fprintf(w, "Roster:   %s\n", report.CSVPath)
	db := "new"
	if report.DBExists {
		db = "existing"
	}
	fmt.Fprintf(w, "Send log: %s (%s)\n", report.DBPath, db)
	fmt.Fprintf(w, "Limit:    %d per day, %d per company, one every %s\n",
		cfg.DailyLimit, cfg.MaxPerCompanyPerDay, cfg.SendInterval)
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "Warning:  %s\n", warning)
	}
	fmt.Fprintln(w, "OK")
}
