package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/outreach/internal/store"
)

// DefaultNow is the start time of scenarios that do not set one.
const DefaultNow = "2026-03-09T09:00:00Z"

// Scenario is one end-to-end campaign case.
type Scenario struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Now         string             `yaml:"now,omitempty"`
	Options     Options            `yaml:"options"`
	Roster      string             `yaml:"roster"`
	Suppressed  []string           `yaml:"suppressed,omitempty"`
	History     []HistoryRecord    `yaml:"history,omitempty"`
	Failures    map[string]Failure `yaml:"failures,omitempty"`
	// Runs is the number of passes to execute, one after another. Defaults to 1.
	Runs   int         `yaml:"runs,omitempty"`
	Expect Expectation `yaml:"expect"`
}

// Options mirrors the runner options a scenario can set.
type Options struct {
	DailyLimit     int      `yaml:"daily_limit"`
	MaxPerCompany  int      `yaml:"max_per_company,omitempty"`
	SendInterval   string   `yaml:"send_interval,omitempty"`
	AllowedStatus  []string `yaml:"allowed_status,omitempty"`
	Recontact      bool     `yaml:"recontact,omitempty"`
	WaitForNextDay bool     `yaml:"wait_for_next_day,omitempty"`
}

// HistoryRecord is a send log row written before the first run.
type HistoryRecord struct {
	Email   string `yaml:"email"`
	Company string `yaml:"company,omitempty"`
	Day     string `yaml:"day"`
	Status  string `yaml:"status"`
}

// Failure makes the mailer reject one recipient. Status produces a service
// rejection; Error produces a transport error.
type Failure struct {
	Status int    `yaml:"status,omitempty"`
	Body   string `yaml:"body,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Expectation is checked against the last run.
type Expectation struct {
	Outcome   string         `yaml:"outcome"`
	Sent      *int           `yaml:"sent,omitempty"`
	Failed    *int           `yaml:"failed,omitempty"`
	Skipped   *int           `yaml:"skipped,omitempty"`
	Reasons   map[string]int `yaml:"skip_reasons,omitempty"`
	Contacted []string       `yaml:"contacted,omitempty"`
	Notice    string         `yaml:"notice,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// start returns the parsed start time.
func (s *Scenario) start() time.Time {
	now := s.Now
	if now == "" {
		now = DefaultNow
	}
	t, _ := time.Parse(time.RFC3339, now)
	return t
}

// interval returns the parsed send interval.
func (s *Scenario) interval() time.Duration {
	if s.Options.SendInterval == "" {
		return 0
	}
	d, _ := time.ParseDuration(s.Options.SendInterval)
	return d
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Roster == "" {
		return fmt.Errorf("roster is required")
	}
	if s.Now != "" {
		if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
			return fmt.Errorf("now: %w", err)
		}
	}
	if s.Options.DailyLimit <= 0 {
		return fmt.Errorf("options.daily_limit must be positive")
	}
	if s.Options.SendInterval != "" {
		d, err := time.ParseDuration(s.Options.SendInterval)
		if err != nil {
			return fmt.Errorf("options.send_interval: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("options.send_interval must not be negative")
		}
	}
	if s.Runs < 0 {
		return fmt.Errorf("runs must not be negative")
	}

	for i, h := range s.History {
		if h.Email == "" {
			return fmt.Errorf("history[%d]: email is required", i)
		}
		if _, err := time.Parse(store.DateLayout, h.Day); err != nil {
			return fmt.Errorf("history[%d]: day must be YYYY-MM-DD", i)
		}
		if h.Status == "" {
			return fmt.Errorf("history[%d]: status is required", i)
		}
	}

	for email, f := range s.Failures {
		if (f.Status == 0) == (f.Error == "") {
			return fmt.Errorf("failures[%s]: exactly one of status or error is required", email)
		}
	}

	switch s.Expect.Outcome {
	case store.OutcomeCompleted, store.OutcomeLimitReached, store.OutcomeCancelled, store.OutcomeFailed:
	case "":
		return fmt.Errorf("expect.outcome is required")
	default:
		return fmt.Errorf("expect.outcome: unknown outcome %q", s.Expect.Outcome)
	}
	return nil
}
