package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/outreach/internal/config"
	"github.com/roach88/outreach/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Date    string
	Records bool

	// Now overrides the current time (for testing).
	Now func() time.Time
}

// StatusResult is the JSON payload of the status command.
type StatusResult struct {
	Stats      store.DayStats     `json:"stats"`
	DailyLimit int                `json:"daily_limit"`
	Remaining  int                `json:"remaining"`
	LastRun    *store.Run         `json:"last_run,omitempty"`
	Records    []store.SendRecord `json:"records,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return newStatusCommand(&StatusOptions{RootOptions: rootOpts})
}

func newStatusCommand(opts *StatusOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the send log for a day",
		Long: `Summarise the send log: attempts, successes and failures for a day, the
slots left under the daily limit, and the last run.

Example:
  outreach status
  outreach status --date 2026-03-09 --records --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "day to report (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&opts.Records, "records", false, "list every record of the day")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	day := opts.Date
	if day == "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		day = store.Day(now())
	} else if _, err := time.Parse(store.DateLayout, day); err != nil {
		msg := fmt.Sprintf("invalid --date %q: expected YYYY-MM-DD", day)
		return out.Fail(CodeArgs, NewExitError(ExitCommandError, msg))
	}

	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return out.Fail(CodeConfig, WrapExitError(ExitCommandError, "failed to load configuration", err))
	}

	// Status never creates the send log.
	if _, err := os.Stat(cfg.DBPath); errors.Is(err, os.ErrNotExist) {
		result := StatusResult{
			Stats:      store.DayStats{Day: day, ByCompany: map[string]int{}},
			DailyLimit: cfg.DailyLimit,
			Remaining:  cfg.DailyLimit,
		}
		if opts.Format == "json" {
			return out.Success(result)
		}
		writeStatus(cmd.OutOrStdout(), result)
		return nil
	}

	st, err := store.OpenReadOnly(cfg.DBPath)
	if err != nil {
		return out.Fail(CodeStore, WrapExitError(ExitCommandError, "failed to open database", err))
	}
	defer st.Close()

	ctx := cmd.Context()
	stats, err := st.Stats(ctx, day)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read send log", err)
	}

	result := StatusResult{
		Stats:      stats,
		DailyLimit: cfg.DailyLimit,
		Remaining:  max(cfg.DailyLimit-stats.Attempts, 0),
	}
	run, err := st.LastRun(ctx)
	switch {
	case err == nil:
		result.LastRun = &run
	case !errors.Is(err, sql.ErrNoRows):
		return WrapExitError(ExitFailure, "failed to read runs", err)
	}
	if opts.Records {
		result.Records, err = st.ListSends(ctx, day)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list records", err)
		}
	}

	if opts.Format == "json" {
		return out.Success(result)
	}
	writeStatus(cmd.OutOrStdout(), result)
	return nil
}

func writeStatus(w io.Writer, r StatusResult) {
	fmt.Fprintf(w, "Day %s: %d attempts (%d sent, %d failed), %d of %d slots left\n",
		r.Stats.Day, r.Stats.Attempts, r.Stats.Sent, r.Stats.Failed, r.Remaining, r.DailyLimit)

	companies := make([]string, 0, len(r.Stats.ByCompany))
	for c := range r.Stats.ByCompany {
		companies = append(companies, c)
	}
	sort.Strings(companies)
	for _, c := range companies {
		fmt.Fprintf(w, "  %-24s %d\n", c, r.Stats.ByCompany[c])
	}

	if r.LastRun != nil {
		fmt.Fprintf(w, "Last run %s: %s, started %s, %d sent, %d failed, %d skipped\n",
			r.LastRun.ID, r.LastRun.Outcome, r.LastRun.StartedAt.Format(time.RFC3339),
			r.LastRun.Sent, r.LastRun.Failed, r.LastRun.Skipped)
	} else {
		fmt.Fprintln(w, "No runs recorded")
	}

	for _, rec := range r.Records {
		fmt.Fprintf(w, "  %s  %-32s %-20s %s\n",
			rec.SentAt.Format("15:04:05"), rec.Email, rec.Company, rec.Status)
	}
}
