// Package roster reads the outreach recipient list and decides who is eligible.
//
// The CSV lives on the read-only data mount and is only ever opened for
// reading. Filtering drops malformed addresses, statuses outside the allowed
// set, suppressed addresses and duplicates; ranking orders the rest by the
// seniority implied by the job title.
package roster
