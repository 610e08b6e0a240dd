package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SentCount returns the number of send attempts recorded for day.
// Failed attempts count: each one used a slot of the daily limit.
func (s *Store) SentCount(ctx context.Context, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sent WHERE send_date = ?
	`, day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sent count: %w", err)
	}
	return n, nil
}

// Attempted reports whether email already has a record for day.
func (s *Store) Attempted(ctx context.Context, email, day string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM sent
		WHERE send_date = ? AND email = ? COLLATE NOCASE
		LIMIT 1
	`, day, email).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("attempted: %w", err)
	}
	return true, nil
}

// EverSent reports whether email has ever been sent to successfully.
func (s *Store) EverSent(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM sent
		WHERE email = ? COLLATE NOCASE AND status = ?
		LIMIT 1
	`, email, StatusSent).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ever sent: %w", err)
	}
	return true, nil
}

// CompanyCount returns the number of attempts for company on day.
func (s *Store) CompanyCount(ctx context.Context, company, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sent WHERE send_date = ? AND company = ?
	`, day, company).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("company count: %w", err)
	}
	return n, nil
}

// ListSends returns the records of day ordered by id.
// Returns an empty slice (not nil) when nothing was recorded.
func (s *Store) ListSends(ctx context.Context, day string) ([]SendRecord, error) {
	runID := "run_id"
	if s.noRunID {
		runID = "NULL"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, `+runID+`, send_date, sent_at, email, person_id, company, subject, status
		FROM sent
		WHERE send_date = ?
		ORDER BY id ASC
	`, day)
	if err != nil {
		return nil, fmt.Errorf("list sends: %w", err)
	}
	defer rows.Close()

	records := []SendRecord{}
	for rows.Next() {
		var (
			rec                               SendRecord
			runID, personID, company, subject sql.NullString
			status                            sql.NullString
			sentAt                            string
		)
		if err := rows.Scan(&rec.ID, &runID, &rec.SendDate, &sentAt, &rec.Email, &personID, &company, &subject, &status); err != nil {
			return nil, fmt.Errorf("scan send: %w", err)
		}
		rec.RunID = runID.String
		rec.PersonID = personID.String
		rec.Company = company.String
		rec.Subject = subject.String
		rec.Status = status.String
		rec.SentAt = parseTime(sentAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sends: %w", err)
	}
	return records, nil
}

// DayStats summarises the send log for one day.
type DayStats struct {
	Day       string         `json:"day"`
	Attempts  int            `json:"attempts"`
	Sent      int            `json:"sent"`
	Failed    int            `json:"failed"`
	ByCompany map[string]int `json:"by_company"`
}

// Stats aggregates the records of day.
func (s *Store) Stats(ctx context.Context, day string) (DayStats, error) {
	records, err := s.ListSends(ctx, day)
	if err != nil {
		return DayStats{}, err
	}
	stats := DayStats{Day: day, ByCompany: map[string]int{}}
	for _, rec := range records {
		stats.Attempts++
		if rec.Status == StatusSent {
			stats.Sent++
		} else {
			stats.Failed++
		}
		if rec.Company != "" {
			stats.ByCompany[rec.Company]++
		}
	}
	return stats, nil
}

// LastRun returns the most recently started run.
// Returns sql.ErrNoRows if no run was recorded.
func (s *Store) LastRun(ctx context.Context) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	if s.noRuns {
		return Run{}, sql.ErrNoRows
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, sent, failed, skipped, outcome
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`).Scan(&run.ID, &startedAt, &finishedAt, &run.Sent, &run.Failed, &run.Skipped, &run.Outcome)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}
	return run, nil
}

// parseTime accepts RFC 3339 and the naive ISO timestamps written by earlier
// releases. Unparseable values yield the zero time.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
