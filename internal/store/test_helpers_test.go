package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testNow = time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC)

// createTestRecord creates a successful send record for testNow's day.
func createTestRecord(email, company string) SendRecord {
	return SendRecord{
		RunID:    "run-1",
		SendDate: Day(testNow),
		SentAt:   testNow,
		Email:    email,
		PersonID: "p-" + email,
		Company:  company,
		Subject:  "hello",
		Status:   StatusSent,
	}
}
