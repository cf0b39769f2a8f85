// Package leads imports contact lists from CSV.
package leads

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// RowError reports a rejected line. Line numbers count the header as 1.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ReadFile is Read on a file path.
func ReadFile(path string) ([]model.Contact, []*RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open contacts: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a CSV with a header row. Header names are lower-cased and
// become attribute keys. Rows without a valid email are skipped and
// reported; the remaining contacts keep their input order.
func Read(r io.Reader) ([]model.Contact, []*RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("contacts file is empty")
		}
		return nil, nil, err
	}
	keys := make([]string, len(header))
	hasEmail := false
	for i, h := range header {
		keys[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		hasEmail = hasEmail || keys[i] == "email"
	}
	if !hasEmail {
		return nil, nil, errors.New(`contacts header has no "email" column`)
	}

	var contacts []model.Contact
	var rejected []*RowError
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		c := model.Contact{}
		for i, v := range rec {
			if i < len(keys) && keys[i] != "" {
				c[keys[i]] = strings.TrimSpace(v)
			}
		}
		if err := Validate(c); err != nil {
			rejected = append(rejected, &RowError{Line: line, Err: err})
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, rejected, nil
}

// Validate checks that the contact carries a parseable email address.
func Validate(c model.Contact) error {
	email := c.Email()
	if email == "" {
		return fmt.Errorf("%w: missing email", appErrors.ErrInvalidContact)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: %q is not an email address", appErrors.ErrInvalidContact, email)
	}
	return nil
}
