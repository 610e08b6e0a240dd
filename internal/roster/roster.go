package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNoEmailColumn is returned when the CSV header lacks an email column.
var ErrNoEmailColumn = errors.New("csv has no email column")

// Recipient is one row of the recipient list.
type Recipient struct {
	Email       string
	EmailStatus string
	FirstName   string
	Company     string
	Title       string
	PersonID    string
	// Extra holds the columns without a dedicated field, keyed by lowercase header.
	Extra map[string]string
	// Line is the 1-based CSV line of the row, header included.
	Line int
}

// Key returns the case-folded address used for comparisons.
func (r Recipient) Key() string {
	return FoldEmail(r.Email)
}

var folder = cases.Fold()

// FoldEmail trims and case-folds an address.
func FoldEmail(email string) string {
	return folder.String(strings.TrimSpace(email))
}

// columns maps header names onto Recipient fields.
var columns = map[string]func(*Recipient, string){
	"email":             func(r *Recipient, v string) { r.Email = v },
	"email_status":      func(r *Recipient, v string) { r.EmailStatus = v },
	"first_name":        func(r *Recipient, v string) { r.FirstName = v },
	"organization_name": func(r *Recipient, v string) { r.Company = v },
	"company":           func(r *Recipient, v string) { r.Company = v },
	"title":             func(r *Recipient, v string) { r.Title = v },
	"person_id":         func(r *Recipient, v string) { r.PersonID = v },
}

// Load reads the recipient list at path.
func Load(path string) ([]Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	recipients, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return recipients, nil
}

// Read parses a recipient CSV. A leading byte order mark is dropped and
// UTF-16 input is decoded when the mark announces it.
func Read(r io.Reader) ([]Recipient, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoEmailColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := make([]string, len(header))
	hasEmail := false
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(h))
		if names[i] == "email" {
			hasEmail = true
		}
	}
	if !hasEmail {
		return nil, ErrNoEmailColumn
	}

	recipients := []Recipient{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)

		rec := Recipient{Line: line}
		for i, value := range record {
			if i >= len(names) {
				break
			}
			value = strings.TrimSpace(value)
			if set, ok := columns[names[i]]; ok {
				set(&rec, value)
				continue
			}
			if value == "" {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = map[string]string{}
			}
			rec.Extra[names[i]] = value
		}
		recipients = append(recipients, rec)
	}
	return recipients, nil
}
