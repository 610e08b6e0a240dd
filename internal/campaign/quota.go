package campaign

import (
	"context"
	"fmt"

	"github.com/roach88/outreach/internal/store"
)

// LimitReachedError reports that a day has used all of its send slots.
type LimitReachedError struct {
	Day   string
	Count int
	Limit int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("daily limit reached for %s: %d of %d", e.Day, e.Count, e.Limit)
}

// Quota enforces the daily limit and the per-company cap against the send
// log. It keeps no state of its own; restarts see the same counts.
type Quota struct {
	store      *store.Store
	limit      int
	perCompany int
}

// NewQuota returns a quota over s. perCompany <= 0 disables the company cap.
func NewQuota(s *store.Store, limit, perCompany int) *Quota {
	return &Quota{store: s, limit: limit, perCompany: perCompany}
}

// Check returns the attempts recorded for day, or a *LimitReachedError when
// no slot is left.
func (q *Quota) Check(ctx context.Context, day string) (int, error) {
	n, err := q.store.SentCount(ctx, day)
	if err != nil {
		return 0, err
	}
	if n >= q.limit {
		return n, &LimitReachedError{Day: day, Count: n, Limit: q.limit}
	}
	return n, nil
}

// CompanyFull reports whether company has used its slots for day.
func (q *Quota) CompanyFull(ctx context.Context, company, day string) (bool, error) {
	if q.perCompany <= 0 || company == "" {
		return false, nil
	}
	n, err := q.store.CompanyCount(ctx, company, day)
	if err != nil {
		return false, err
	}
	return n >= q.perCompany, nil
}
