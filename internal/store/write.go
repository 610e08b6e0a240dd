package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// StatusSent marks a successful send.
const StatusSent = "sent"

// Run outcomes.
const (
	OutcomeRunning      = "running"
	OutcomeCompleted    = "completed"
	OutcomeLimitReached = "limit_reached"
	OutcomeCancelled    = "cancelled"
	OutcomeFailed       = "failed"
)

// maxStatusBody bounds the response text kept in a failure status.
const maxStatusBody = 200

// SendRecord is one row of the send log.
type SendRecord struct {
	ID       int64     `json:"id"`
	RunID    string    `json:"run_id,omitempty"`
	SendDate string    `json:"send_date"`
	SentAt   time.Time `json:"sent_at"`
	Email    string    `json:"email"`
	PersonID string    `json:"person_id,omitempty"`
	Company  string    `json:"company,omitempty"`
	Subject  string    `json:"subject,omitempty"`
	Status   string    `json:"status"`
}

// Run is one invocation of the campaign runner.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Outcome    string    `json:"outcome"`
}

// FailureStatus formats the status of a rejected send: error:<code>:<body>.
func FailureStatus(code int, body string) string {
	return fmt.Sprintf("error:%d:%s", code, truncate(body, maxStatusBody))
}

// ExceptionStatus formats the status of a send that failed before a response.
func ExceptionStatus(err error) string {
	return "exception:" + truncate(err.Error(), maxStatusBody)
}

// truncate keeps the first n characters of s, never splitting a rune.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// RecordSend inserts a send record. A second record for the same email and
// send_date is ignored; inserted reports whether a row was written.
func (s *Store) RecordSend(ctx context.Context, rec SendRecord) (inserted bool, err error) {
	if rec.Email == "" || rec.SendDate == "" {
		return false, fmt.Errorf("record send: email and send_date are required")
	}
	if rec.SentAt.IsZero() {
		return false, fmt.Errorf("record send: sent_at is required")
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sent
		(run_id, send_date, sent_at, email, person_id, company, subject, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email, send_date) DO NOTHING
	`,
		nullString(rec.RunID),
		rec.SendDate,
		rec.SentAt.UTC().Format(time.RFC3339Nano),
		rec.Email,
		rec.PersonID,
		rec.Company,
		rec.Subject,
		rec.Status,
	)
	if err != nil {
		return false, fmt.Errorf("record send: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record send: rows affected: %w", err)
	}
	return rows > 0, nil
}

// StartRun inserts a run in the running state.
func (s *Store) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, outcome)
		VALUES (?, ?, ?)
	`, id, startedAt.UTC().Format(time.RFC3339Nano), OutcomeRunning)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and outcome of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, sent = ?, failed = ?, skipped = ?, outcome = ?
		WHERE id = ?
	`,
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Sent,
		run.Failed,
		run.Skipped,
		run.Outcome,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("finish run: %w", sql.ErrNoRows)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
