package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/roach88/outreach/internal/campaign"
	"github.com/roach88/outreach/internal/mailer"
	"github.com/roach88/outreach/internal/message"
	"github.com/roach88/outreach/internal/store"
	"github.com/roach88/outreach/internal/testutil"
)

// Subject and body used for every scenario message.
const (
	scenarioSubject = "Master data at {{ .Company }}"
	scenarioBody    = "<p>Hi {{ .FirstName }},</p>"
)

// Result is the observed outcome of a scenario.
type Result struct {
	// Summaries holds one entry per run, in order.
	Summaries []campaign.Summary
	// Records is the send log of every day the scenario touched, in insertion order.
	Records []Record
	// Contacted lists the addresses handed to the mailer, in send order.
	Contacted []string
	// Pauses lists the durations the runner waited.
	Pauses []time.Duration
	// Notices lists the operator notifications.
	Notices []string

	Pass   bool
	Errors []error
}

// Last returns the summary of the final run.
func (r *Result) Last() campaign.Summary {
	if len(r.Summaries) == 0 {
		return campaign.Summary{}
	}
	return r.Summaries[len(r.Summaries)-1]
}

// Record is the comparable part of a send log row.
type Record struct {
	RunID   string `json:"run_id,omitempty"`
	Day     string `json:"day"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Subject string `json:"subject,omitempty"`
	Status  string `json:"status"`
}

type noticeRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (n *noticeRecorder) Notify(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database in its own temporary
// directory. The returned error reports harness problems; a failing run is
// reported through the result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "outreach-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	csvPath := filepath.Join(dir, "targets.csv")
	if err := os.WriteFile(csvPath, []byte(scenario.Roster), 0o644); err != nil {
		return nil, fmt.Errorf("write roster: %w", err)
	}
	suppressionPath := filepath.Join(dir, "do_not_email.txt")
	if len(scenario.Suppressed) > 0 {
		content := strings.Join(scenario.Suppressed, "\n") + "\n"
		if err := os.WriteFile(suppressionPath, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write suppression list: %w", err)
		}
	}

	s, err := store.Open(filepath.Join(dir, "outreach_log.sqlite"))
	if err != nil {
		return nil, err
	}
	defer s.Close()

	ctx := context.Background()
	if err := seedHistory(ctx, s, scenario.History); err != nil {
		return nil, err
	}

	composer, err := message.NewComposer(message.Campaign{
		Subject: scenarioSubject,
		Body:    scenarioBody,
	}, message.Options{})
	if err != nil {
		return nil, err
	}

	start := scenario.start()
	clock := testutil.NewFakeClock(start)
	mail := &testutil.RecordingMailer{Errors: failures(scenario.Failures)}
	notices := &noticeRecorder{}

	runs := scenario.Runs
	if runs == 0 {
		runs = 1
	}
	ids := make([]string, runs)
	for i := range ids {
		ids[i] = fmt.Sprintf("run-%d", i+1)
	}

	runner, err := campaign.New(campaign.Options{
		CSVPath:        csvPath,
		DoNotEmailPath: suppressionPath,
		AllowedStatus:  allowedStatus(scenario.Options.AllowedStatus),
		DailyLimit:     scenario.Options.DailyLimit,
		MaxPerCompany:  scenario.Options.MaxPerCompany,
		SendInterval:   scenario.interval(),
		Recontact:      scenario.Options.Recontact,
		WaitForNextDay: scenario.Options.WaitForNextDay,
	}, campaign.Deps{
		Store:    s,
		Mailer:   mail,
		Composer: composer,
		Notifier: notices,
		Clock:    clock,
		IDs:      campaign.NewFixedGenerator(ids...),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var runErr error
	for i := 0; i < runs; i++ {
		sum, err := runner.Run(ctx)
		result.Summaries = append(result.Summaries, sum)
		if err != nil {
			runErr = err
			break
		}
	}

	result.Records, err = records(ctx, s, start, clock.Now())
	if err != nil {
		return nil, err
	}
	result.Contacted = mail.Recipients()
	result.Pauses = clock.Sleeps()
	result.Notices = notices.texts

	result.Errors = Check(result, scenario.Expect, runErr)
	result.Pass = len(result.Errors) == 0
	return result, nil
}

// seedHistory writes the earlier send log. Rows are stamped at noon UTC of their day.
func seedHistory(ctx context.Context, s *store.Store, history []HistoryRecord) error {
	for _, h := range history {
		day, err := time.Parse(store.DateLayout, h.Day)
		if err != nil {
			return fmt.Errorf("seed history: %w", err)
		}
		if _, err := s.RecordSend(ctx, store.SendRecord{
			SendDate: h.Day,
			SentAt:   day.Add(12 * time.Hour),
			Email:    h.Email,
			Company:  h.Company,
			Status:   h.Status,
		}); err != nil {
			return fmt.Errorf("seed history: %w", err)
		}
	}
	return nil
}

// records collects the send log from the first to the last day of the scenario.
func records(ctx context.Context, s *store.Store, from, to time.Time) ([]Record, error) {
	out := []Record{}
	for day := from; !after(day, to); day = day.AddDate(0, 0, 1) {
		rows, err := s.ListSends(ctx, store.Day(day))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, Record{
				RunID:   row.RunID,
				Day:     row.SendDate,
				Email:   row.Email,
				Company: row.Company,
				Subject: row.Subject,
				Status:  row.Status,
			})
		}
	}
	return out, nil
}

// after reports whether a falls on a later day than b.
func after(a, b time.Time) bool {
	return store.Day(a) > store.Day(b)
}

func failures(configured map[string]Failure) map[string]error {
	if len(configured) == 0 {
		return nil
	}
	out := make(map[string]error, len(configured))
	for email, f := range configured {
		if f.Error != "" {
			out[email] = errors.New(f.Error)
			continue
		}
		out[email] = &mailer.SendError{StatusCode: f.Status, Body: f.Body}
	}
	return out
}

func allowedStatus(values []string) []string {
	if len(values) == 0 {
		return []string{"verified", "likely to engage"}
	}
	return values
}
