package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outreach/internal/campaign"
)

func intPtr(n int) *int { return &n }

func sampleResult() *Result {
	return &Result{
		Summaries: []campaign.Summary{{
			RunID:   "run-1",
			Outcome: "completed",
			Sent:    2,
			Skipped: 1,
			Reasons: map[string]int{"company_cap": 1},
		}},
		Contacted: []string{"a@example.com", "b@example.com"},
		Notices:   []string{"[done] Sent 2 emails"},
		Records:   []Record{{Day: "2026-03-09", Email: "a@example.com", Status: "sent"}},
	}
}

func TestCheck_AllMatch(t *testing.T) {
	errs := Check(sampleResult(), Expectation{
		Outcome:   "completed",
		Sent:      intPtr(2),
		Failed:    intPtr(0),
		Skipped:   intPtr(1),
		Reasons:   map[string]int{"company_cap": 1},
		Contacted: []string{"a@example.com", "b@example.com"},
		Notice:    "[done] Sent 2 emails",
	}, nil)
	assert.Empty(t, errs)
}

func TestCheck_UnsetFieldsAreIgnored(t *testing.T) {
	assert.Empty(t, Check(sampleResult(), Expectation{Outcome: "completed"}, nil))
}

func TestCheck_Mismatches(t *testing.T) {
	errs := Check(sampleResult(), Expectation{
		Outcome:   "limit_reached",
		Sent:      intPtr(3),
		Reasons:   map[string]int{},
		Contacted: []string{"b@example.com", "a@example.com"},
		Notice:    "[stopped] Sent 2 emails before shutdown",
	}, nil)

	var fields []string
	for _, err := range errs {
		var aerr *AssertionError
		require.ErrorAs(t, err, &aerr)
		fields = append(fields, aerr.Field)
	}
	assert.Equal(t, []string{"outcome", "sent", "skip_reasons", "contacted", "notice"}, fields)
}

func TestCheck_RunError(t *testing.T) {
	result := sampleResult()

	errs := Check(result, Expectation{Outcome: "completed"}, errors.New("disk full"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "disk full")

	result.Summaries[0].Outcome = "failed"
	errs = Check(result, Expectation{Outcome: "failed"}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "Expected: run error")
}

func TestAssertionError_IncludesSendLog(t *testing.T) {
	errs := Check(sampleResult(), Expectation{Outcome: "cancelled"}, nil)
	require.Len(t, errs, 1)

	msg := errs[0].Error()
	assert.Contains(t, msg, "Assertion failed: outcome")
	assert.Contains(t, msg, "Expected: cancelled")
	assert.Contains(t, msg, "Actual: completed")
	assert.Contains(t, msg, "[1] 2026-03-09 a@example.com sent")
}

func TestFormatReasons_SortsKeys(t *testing.T) {
	assert.Equal(t, "{a=1, b=2}", formatReasons(map[string]int{"b": 2, "a": 1}))
	assert.Equal(t, "{}", formatReasons(nil))
}
