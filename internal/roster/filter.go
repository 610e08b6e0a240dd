package roster

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether email looks like a deliverable address.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return strings.Contains(email, "@") && emailPattern.MatchString(email)
}

// Rejection reasons.
const (
	ReasonInvalidEmail = "invalid_email"
	ReasonStatus       = "status"
	ReasonSuppressed   = "suppressed"
	ReasonDuplicate    = "duplicate"
)

// Rejection is a recipient dropped by Filter.
type Rejection struct {
	Recipient Recipient
	Reason    string
}

// Suppression is a set of case-folded addresses that must never be contacted.
type Suppression map[string]struct{}

// Contains reports whether email is suppressed.
func (s Suppression) Contains(email string) bool {
	_, ok := s[FoldEmail(email)]
	return ok
}

// LoadSuppression reads one address per line. Blank lines and lines starting
// with '#' are ignored. A missing file yields an empty set.
func LoadSuppression(path string) (Suppression, error) {
	set := Suppression{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("open suppression list: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[FoldEmail(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read suppression list: %w", err)
	}
	return set, nil
}

// FilterOptions controls Filter.
type FilterOptions struct {
	// AllowedStatus lists the accepted email_status values, lowercase.
	AllowedStatus []string
	Suppressed    Suppression
}

// Filter splits recipients into eligible ones and rejections, keeping input
// order. The first occurrence of an address wins.
func Filter(recipients []Recipient, opts FilterOptions) ([]Recipient, []Rejection) {
	allowed := make(map[string]struct{}, len(opts.AllowedStatus))
	for _, s := range opts.AllowedStatus {
		allowed[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	var (
		kept     []Recipient
		rejected []Rejection
		seen     = map[string]struct{}{}
	)
	for _, r := range recipients {
		r.Email = strings.TrimSpace(r.Email)
		reason := ""
		switch {
		case !ValidEmail(r.Email):
			reason = ReasonInvalidEmail
		case !statusAllowed(allowed, r.EmailStatus):
			reason = ReasonStatus
		case opts.Suppressed.Contains(r.Email):
			reason = ReasonSuppressed
		}
		if reason == "" {
			if _, dup := seen[r.Key()]; dup {
				reason = ReasonDuplicate
			}
		}
		if reason != "" {
			rejected = append(rejected, Rejection{Recipient: r, Reason: reason})
			continue
		}
		seen[r.Key()] = struct{}{}
		kept = append(kept, r)
	}
	return kept, rejected
}

func statusAllowed(allowed map[string]struct{}, status string) bool {
	_, ok := allowed[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// seniority keywords in match order; the first hit decides the score.
var seniority = []struct {
	keyword string
	score   int
}{
	{"chief", 5},
	{"cdo", 5},
	{"cio", 5},
	{"vp", 4},
	{"director", 3},
	{"head", 3},
	{"manager", 2},
	{"lead", 2},
}

// SeniorityScore scores a job title from 1 (unknown) to 5 (C-level).
func SeniorityScore(title string) int {
	t := strings.ToLower(title)
	for _, s := range seniority {
		if strings.Contains(t, s.keyword) {
			return s.score
		}
	}
	return 1
}

// Rank orders recipients by descending seniority. Equal scores keep their
// input order.
func Rank(recipients []Recipient) []Recipient {
	ranked := make([]Recipient, len(recipients))
	copy(ranked, recipients)
	sort.SliceStable(ranked, func(i, j int) bool {
		return SeniorityScore(ranked[i].Title) > SeniorityScore(ranked[j].Title)
	})
	return ranked
}
