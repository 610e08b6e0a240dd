package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/outreach/internal/mailer"
	"github.com/roach88/outreach/internal/message"
	"github.com/roach88/outreach/internal/metrics"
	"github.com/roach88/outreach/internal/notify"
	"github.com/roach88/outreach/internal/roster"
	"github.com/roach88/outreach/internal/store"
)

// Skip reasons recorded by the runner, in addition to the roster filter reasons.
const (
	SkipAttemptedToday   = "attempted_today"
	SkipAlreadyContacted = "already_contacted"
	SkipCompanyCap       = "company_cap"
	SkipComposeError     = "compose_error"
)

// Options are the run parameters taken from configuration.
type Options struct {
	CSVPath        string
	DoNotEmailPath string
	AllowedStatus  []string
	DailyLimit     int
	MaxPerCompany  int
	SendInterval   time.Duration
	Recontact      bool
	WaitForNextDay bool
}

// Deps are the collaborators of a Runner. Notifier, Metrics, Clock, IDs and
// Logger are optional.
type Deps struct {
	Store    *store.Store
	Mailer   mailer.Mailer
	Composer *message.Composer
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Clock    Clock
	IDs      RunIDGenerator
	Logger   *slog.Logger
}

// Summary is the result of one run.
type Summary struct {
	RunID    string         `json:"run_id"`
	Day      string         `json:"day"`
	Outcome  string         `json:"outcome"`
	Loaded   int            `json:"loaded"`
	Eligible int            `json:"eligible"`
	Sent     int            `json:"sent"`
	Failed   int            `json:"failed"`
	Skipped  int            `json:"skipped"`
	Reasons  map[string]int `json:"skip_reasons,omitempty"`
}

func (s *Summary) skip(reason string) {
	s.Skipped++
	if s.Reasons == nil {
		s.Reasons = map[string]int{}
	}
	s.Reasons[reason]++
}

// Runner executes outreach passes.
type Runner struct {
	opts     Options
	store    *store.Store
	mailer   mailer.Mailer
	composer *message.Composer
	notifier notify.Notifier
	metrics  *metrics.Metrics
	clock    Clock
	ids      RunIDGenerator
	logger   *slog.Logger
	quota    *Quota
	limiter  *rate.Limiter
}

// New returns a Runner.
func New(opts Options, deps Deps) (*Runner, error) {
	if deps.Store == nil || deps.Mailer == nil || deps.Composer == nil {
		return nil, errors.New("campaign: store, mailer and composer are required")
	}
	if opts.DailyLimit <= 0 {
		return nil, fmt.Errorf("campaign: daily limit must be positive, got %d", opts.DailyLimit)
	}

	r := &Runner{
		opts:     opts,
		store:    deps.Store,
		mailer:   deps.Mailer,
		composer: deps.Composer,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		ids:      deps.IDs,
		logger:   deps.Logger,
		quota:    NewQuota(deps.Store, opts.DailyLimit, opts.MaxPerCompany),
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}
	if r.clock == nil {
		r.clock = SystemClock{}
	}
	if r.ids == nil {
		r.ids = UUIDv7Generator{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	every := rate.Inf
	if opts.SendInterval > 0 {
		every = rate.Every(opts.SendInterval)
	}
	r.limiter = rate.NewLimiter(every, 1)
	return r, nil
}

// Run performs one pass. The returned error is non-nil only when the run
// could not proceed (unreadable roster, transport not ready, send log
// failure); individual send failures are recorded and counted instead.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := r.clock.Now()
	sum := Summary{RunID: r.ids.Generate(), Day: store.Day(started)}
	logger := r.logger.With("run_id", sum.RunID)

	if err := r.store.StartRun(ctx, sum.RunID, started); err != nil {
		return sum, err
	}
	logger.Info("run started", "day", sum.Day, "daily_limit", r.opts.DailyLimit)

	outcome, err := r.run(ctx, logger, &sum)
	sum.Outcome = outcome

	// The run row is closed even when ctx was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	if ferr := r.store.FinishRun(finishCtx, store.Run{
		ID:         sum.RunID,
		FinishedAt: r.clock.Now(),
		Sent:       sum.Sent,
		Failed:     sum.Failed,
		Skipped:    sum.Skipped,
		Outcome:    outcome,
	}); ferr != nil {
		err = errors.Join(err, ferr)
	}

	logger.Info("run finished",
		"outcome", outcome,
		"sent", sum.Sent,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
	)
	r.notifier.Notify(finishCtx, notification(sum, err))
	return sum, err
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, sum *Summary) (string, error) {
	count, err := r.quota.Check(ctx, sum.Day)
	r.setGauge(count)
	var limitErr *LimitReachedError
	if errors.As(err, &limitErr) {
		logger.Info("daily limit already reached", "day", sum.Day, "count", limitErr.Count, "limit", limitErr.Limit)
		return store.OutcomeLimitReached, nil
	}
	if err != nil {
		return store.OutcomeFailed, err
	}

	recipients, err := roster.Load(r.opts.CSVPath)
	if err != nil {
		return store.OutcomeFailed, err
	}
	suppressed, err := roster.LoadSuppression(r.opts.DoNotEmailPath)
	if err != nil {
		return store.OutcomeFailed, err
	}
	kept, rejected := roster.Filter(recipients, roster.FilterOptions{
		AllowedStatus: r.opts.AllowedStatus,
		Suppressed:    suppressed,
	})
	for _, rej := range rejected {
		logger.Debug("recipient filtered", "email", rej.Recipient.Email, "line", rej.Recipient.Line, "reason", rej.Reason)
		r.skip(sum, rej.Reason)
	}
	ranked := roster.Rank(kept)
	sum.Loaded = len(recipients)
	sum.Eligible = len(ranked)
	logger.Info("roster loaded",
		"path", r.opts.CSVPath,
		"rows", sum.Loaded,
		"eligible", sum.Eligible,
		"suppressed", len(suppressed),
	)

	if p, ok := r.mailer.(mailer.Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return store.OutcomeFailed, fmt.Errorf("prepare transport: %w", err)
		}
	}

	for _, rcpt := range ranked {
		if ctx.Err() != nil {
			return store.OutcomeCancelled, nil
		}

		day, reason, err := r.clear(ctx, rcpt, logger)
		if err != nil {
			if errors.As(err, &limitErr) {
				logger.Info("daily limit reached", "day", limitErr.Day, "limit", limitErr.Limit)
				return store.OutcomeLimitReached, nil
			}
			if ctx.Err() != nil {
				return store.OutcomeCancelled, nil
			}
			return store.OutcomeFailed, err
		}
		if reason != "" {
			logger.Debug("recipient skipped", "email", rcpt.Email, "reason", reason)
			r.skip(sum, reason)
			continue
		}

		msg, err := r.composer.Compose(rcpt)
		if err != nil {
			logger.Warn("compose failed", "email", rcpt.Email, "error", err)
			r.skip(sum, SkipComposeError)
			continue
		}

		began := time.Now()
		sendErr := r.mailer.Send(ctx, msg)
		took := time.Since(began)
		if sendErr != nil && ctx.Err() != nil {
			// Interrupted mid-request; the attempt is not recorded.
			return store.OutcomeCancelled, nil
		}

		status := statusFor(sendErr)
		// Recorded even if ctx is cancelled now: the message already left.
		inserted, err := r.store.RecordSend(context.WithoutCancel(ctx), store.SendRecord{
			RunID:    sum.RunID,
			SendDate: day,
			SentAt:   r.clock.Now(),
			Email:    rcpt.Email,
			PersonID: rcpt.PersonID,
			Company:  rcpt.Company,
			Subject:  msg.Subject,
			Status:   status,
		})
		if err != nil {
			return store.OutcomeFailed, err
		}
		if !inserted {
			logger.Warn("send already recorded for today", "email", rcpt.Email)
		}

		if r.metrics != nil {
			r.metrics.ObserveSend(status, took)
			if inserted {
				r.metrics.SentToday.Inc()
			}
		}
		if sendErr != nil {
			sum.Failed++
			logger.Warn("send failed", "email", rcpt.Email, "company", rcpt.Company, "status", status)
			continue
		}
		sum.Sent++
		logger.Info("sent", "email", rcpt.Email, "company", rcpt.Company, "title", rcpt.Title)
	}

	return store.OutcomeCompleted, nil
}

// clear admits rcpt and waits out the send interval. It returns the day the
// attempt counts against, or the reason rcpt is skipped. When the wait
// crosses midnight the limit and eligibility are checked again for the new
// day.
func (r *Runner) clear(ctx context.Context, rcpt roster.Recipient, logger *slog.Logger) (string, string, error) {
	paced := false
	for {
		day, err := r.admit(ctx, logger)
		if err != nil {
			return day, "", err
		}
		reason, err := r.eligible(ctx, rcpt, day)
		if err != nil || reason != "" {
			return day, reason, err
		}
		if paced {
			return day, "", nil
		}
		if err := r.pace(ctx); err != nil {
			return day, "", err
		}
		paced = true
		if store.Day(r.clock.Now()) == day {
			return day, "", nil
		}
		logger.Debug("day changed while pacing", "email", rcpt.Email, "was", day)
	}
}

// admit returns the day key for the next attempt. When today's limit is
// used up it either waits for the next local day or returns the
// *LimitReachedError.
func (r *Runner) admit(ctx context.Context, logger *slog.Logger) (string, error) {
	for {
		now := r.clock.Now()
		day := store.Day(now)
		count, err := r.quota.Check(ctx, day)
		r.setGauge(count)
		var limitErr *LimitReachedError
		if !errors.As(err, &limitErr) {
			return day, err
		}
		if !r.opts.WaitForNextDay {
			return day, err
		}
		next := NextDay(now)
		logger.Info("daily limit reached, waiting for next day", "day", day, "resume_at", next)
		if err := r.clock.Sleep(ctx, next.Sub(now)); err != nil {
			return day, err
		}
	}
}

// eligible returns the skip reason for rcpt on day, or "" if it may be contacted.
func (r *Runner) eligible(ctx context.Context, rcpt roster.Recipient, day string) (string, error) {
	attempted, err := r.store.Attempted(ctx, rcpt.Email, day)
	if err != nil {
		return "", err
	}
	if attempted {
		return SkipAttemptedToday, nil
	}
	if !r.opts.Recontact {
		sent, err := r.store.EverSent(ctx, rcpt.Email)
		if err != nil {
			return "", err
		}
		if sent {
			return SkipAlreadyContacted, nil
		}
	}
	full, err := r.quota.CompanyFull(ctx, rcpt.Company, day)
	if err != nil {
		return "", err
	}
	if full {
		return SkipCompanyCap, nil
	}
	return "", nil
}

// pace waits for the limiter to release the next send.
func (r *Runner) pace(ctx context.Context) error {
	now := r.clock.Now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() {
		return errors.New("pacing reservation refused")
	}
	if err := r.clock.Sleep(ctx, res.DelayFrom(now)); err != nil {
		res.CancelAt(r.clock.Now())
		return err
	}
	return nil
}

func (r *Runner) skip(sum *Summary, reason string) {
	sum.skip(reason)
	if r.metrics != nil {
		r.metrics.ObserveSkip(reason)
	}
}

func (r *Runner) setGauge(count int) {
	if r.metrics != nil {
		r.metrics.SentToday.Set(float64(count))
	}
}

// statusFor maps a send result to its send log status.
func statusFor(err error) string {
	if err == nil {
		return store.StatusSent
	}
	var sendErr *mailer.SendError
	if errors.As(err, &sendErr) {
		return store.FailureStatus(sendErr.StatusCode, sendErr.Body)
	}
	return store.ExceptionStatus(err)
}

func notification(sum Summary, err error) string {
	switch {
	case err != nil:
		return fmt.Sprintf("[error] Run failed after %d emails: %v", sum.Sent, err)
	case sum.Outcome == store.OutcomeCancelled:
		return fmt.Sprintf("[stopped] Sent %d emails before shutdown", sum.Sent)
	case sum.Outcome == store.OutcomeLimitReached && sum.Sent == 0 && sum.Failed == 0:
		return fmt.Sprintf("[limit] Daily limit already reached for %s", sum.Day)
	default:
		return fmt.Sprintf("[done] Sent %d emails", sum.Sent)
	}
}
