package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/outreach/internal/campaign"
)

// Snapshot is the golden form of a scenario result.
type Snapshot struct {
	ScenarioName string             `json:"scenario_name"`
	Runs         []campaign.Summary `json:"runs"`
	Contacted    []string           `json:"contacted"`
	Pauses       []string           `json:"pauses"`
	Notices      []string           `json:"notices"`
	Records      []Record           `json:"records"`
}

// NewSnapshot builds the snapshot of result. Durations are rendered with
// time.Duration.String so golden files stay readable.
func NewSnapshot(name string, result *Result) Snapshot {
	snap := Snapshot{
		ScenarioName: name,
		Runs:         result.Summaries,
		Contacted:    result.Contacted,
		Pauses:       make([]string, 0, len(result.Pauses)),
		Notices:      result.Notices,
		Records:      result.Records,
	}
	for _, d := range result.Pauses {
		snap.Pauses = append(snap.Pauses, d.String())
	}
	if snap.Runs == nil {
		snap.Runs = []campaign.Summary{}
	}
	if snap.Contacted == nil {
		snap.Contacted = []string{}
	}
	if snap.Notices == nil {
		snap.Notices = []string{}
	}
	if snap.Records == nil {
		snap.Records = []Record{}
	}
	return snap
}

// MarshalSnapshot renders snap as indented JSON with a trailing newline.
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also inspect the expectations.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(NewSnapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
