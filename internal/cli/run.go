package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/outreach/internal/auth"
	"github.com/roach88/outreach/internal/campaign"
	"github.com/roach88/outreach/internal/config"
	"github.com/roach88/outreach/internal/logging"
	"github.com/roach88/outreach/internal/mailer"
	"github.com/roach88/outreach/internal/message"
	"github.com/roach88/outreach/internal/metrics"
	"github.com/roach88/outreach/internal/notify"
	"github.com/roach88/outreach/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Strict bool

	// Mailer, Clock and IDs override the defaults (for testing).
	Mailer mailer.Mailer
	Clock  campaign.Clock
	IDs    campaign.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one outreach pass",
		Long: `Load the configuration, verify the mounts, then contact every eligible
recipient of the roster until the roster or the daily limit is exhausted.

Every attempt is recorded in the send log, so a restarted container never
exceeds the daily limit or contacts a recipient twice on the same day.

Example:
  outreach run
  outreach run --env-file ./local.env --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaign(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when the data mount is writable")

	return cmd
}

func runCampaign(opts *RunOptions, cmd *cobra.Command) error {
	cfg, report, err := prepare(opts.RootOptions, opts.Strict)
	if err != nil {
		return err
	}

	logger, logFile, err := logging.Setup(logging.Options{
		Dir:     cfg.LogDir,
		Verbose: opts.Verbose,
		JSON:    opts.Format == "json",
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	defer logFile.Close()

	logger.Info("configuration loaded",
		"env_file", cfg.EnvFile,
		"keys", len(cfg.Exported),
		"csv", cfg.CSVPath,
		"db", cfg.DBPath,
		"daily_limit", cfg.DailyLimit,
		"transport", cfg.MailTransport,
	)
	for _, w := range report.Warnings {
		logger.Warn(w)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	composer, err := newComposer(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load campaign", err)
	}

	out := opts.formatter(cmd)
	m := opts.Mailer
	if m == nil {
		m = newMailer(cfg, logger, out.Diagnostics())
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after the current send", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var mx *metrics.Metrics
	if cfg.MetricsAddr != "" {
		mx = metrics.New()
		go func() {
			if err := mx.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	runner, err := campaign.New(campaign.Options{
		CSVPath:        cfg.CSVPath,
		DoNotEmailPath: cfg.DoNotEmailPath,
		AllowedStatus:  cfg.AllowedEmailStatus,
		DailyLimit:     cfg.DailyLimit,
		MaxPerCompany:  cfg.MaxPerCompanyPerDay,
		SendInterval:   cfg.SendInterval,
		Recontact:      cfg.Recontact,
		WaitForNextDay: cfg.WaitForNextDay,
	}, campaign.Deps{
		Store:    st,
		Mailer:   m,
		Composer: composer,
		Notifier: notify.New(notify.TelegramConfig{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
			Logger: logger,
		}),
		Metrics: mx,
		Clock:   opts.Clock,
		IDs:     opts.IDs,
		Logger:  logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create runner", err)
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}

	if opts.Format == "json" {
		return out.Success(summary)
	}
	writeSummary(cmd.OutOrStdout(), summary)
	return nil
}

func newComposer(cfg config.Config) (*message.Composer, error) {
	c := message.DefaultCampaign()
	if cfg.CampaignPath != "" {
		loaded, err := message.LoadCampaign(cfg.CampaignPath)
		if err != nil {
			return nil, err
		}
		c = loaded
	}
	return message.NewComposer(c, message.Options{
		LogoPath:    cfg.LogoPath,
		SenderName:  cfg.SenderName,
		SenderTitle: cfg.SenderTitle,
	})
}

func newMailer(cfg config.Config, logger *slog.Logger, prompt io.Writer) mailer.Mailer {
	if cfg.MailTransport == config.TransportSMTP {
		return mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SenderUPN,
			FromName: cfg.SenderName,
			Logger:   logger,
		})
	}

	provider := auth.NewProvider(auth.Config{
		AuthorityHost: cfg.AuthorityHost,
		TenantID:      cfg.TenantID,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		CachePath:     cfg.TokenCachePath,
		Prompt: func(uri, code string) {
			logger.Warn("interactive sign-in required", "url", uri, "code", code)
			fmt.Fprintf(prompt, "To sign in, open %s and enter the code %s\n", uri, code)
		},
	})
	logger.Info("using Microsoft Graph", "auth", provider.Mode(), "sender", cfg.SenderUPN)
	return mailer.NewGraph(mailer.GraphConfig{
		BaseURL:   cfg.GraphBaseURL,
		SenderUPN: cfg.SenderUPN,
		Tokens:    provider,
		Logger:    logger,
	})
}

func writeSummary(w io.Writer, s campaign.Summary) {
	fmt.Fprintf(w, "Run %s (%s): %s\n", s.RunID, s.Day, s.Outcome)
	fmt.Fprintf(w, "  roster:  %d rows, %d eligible\n", s.Loaded, s.Eligible)
	fmt.Fprintf(w, "  sent:    %d\n", s.Sent)
	fmt.Fprintf(w, "  failed:  %d\n", s.Failed)
	fmt.Fprintf(w, "  skipped: %d\n", s.Skipped)

	reasons := make([]string, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "    %-18s %d\n", r, s.Reasons[r])
	}
}
