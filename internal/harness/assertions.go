package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/outreach/internal/store"
)

// AssertionError is returned when an expectation does not hold.
// It includes the run summary to help debug the failure.
type AssertionError struct {
	Field    string
	Expected string
	Actual   string
	Result   *Result
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Field)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Result != nil {
		fmt.Fprintf(&buf, "\nSend log:\n")
		for i, rec := range e.Result.Records {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", i+1, rec.Day, rec.Email, rec.Status)
		}
	}
	return buf.String()
}

// Check compares the last run of result against want. runErr is the error
// returned by the runner, if any; it is expected exactly when the outcome is
// failed.
func Check(result *Result, want Expectation, runErr error) []error {
	var errs []error
	fail := func(field string, expected, actual any) {
		errs = append(errs, &AssertionError{
			Field:    field,
			Expected: fmt.Sprint(expected),
			Actual:   fmt.Sprint(actual),
			Result:   result,
		})
	}

	got := result.Last()
	if got.Outcome != want.Outcome {
		fail("outcome", want.Outcome, got.Outcome)
	}
	switch {
	case want.Outcome == store.OutcomeFailed && runErr == nil:
		fail("error", "run error", "none")
	case want.Outcome != store.OutcomeFailed && runErr != nil:
		fail("error", "none", runErr)
	}

	for _, c := range []struct {
		field string
		want  *int
		got   int
	}{
		{"sent", want.Sent, got.Sent},
		{"failed", want.Failed, got.Failed},
		{"skipped", want.Skipped, got.Skipped},
	} {
		if c.want != nil && *c.want != c.got {
			fail(c.field, *c.want, c.got)
		}
	}

	if want.Reasons != nil && !reflect.DeepEqual(want.Reasons, normalizeReasons(got.Reasons)) {
		fail("skip_reasons", formatReasons(want.Reasons), formatReasons(got.Reasons))
	}

	if want.Contacted != nil && !reflect.DeepEqual(want.Contacted, result.Contacted) {
		fail("contacted", want.Contacted, result.Contacted)
	}

	if want.Notice != "" {
		last := ""
		if n := len(result.Notices); n > 0 {
			last = result.Notices[n-1]
		}
		if last != want.Notice {
			fail("notice", want.Notice, last)
		}
	}
	return errs
}

func normalizeReasons(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

// formatReasons renders m with sorted keys.
func formatReasons(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
