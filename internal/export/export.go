// Package export writes ledger rows as CSV and reads them back, so a
// follow-up pass can run from an exported file.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// Columns is the header of every export.
var Columns = []string{"email", "company", "status", "timestamp", "template", "variant", "tier"}

func WriteResults(w io.Writer, rows []model.SendResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Recipient,
			r.Company,
			r.Status,
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.TemplateID,
			r.VariantID,
			r.Tier,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadResults parses an export. Columns are matched by header name;
// variant and tier may be absent in older files.
func ReadResults(r io.Reader) ([]model.SendResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("export is empty")
		}
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"email", "status", "timestamp"} {
		if _, ok := idx[req]; !ok {
			return nil, fmt.Errorf("export header is missing column %q", req)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	rows := []model.SendResult{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, field(rec, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp: %w", line, err)
		}
		rows = append(rows, model.SendResult{
			Recipient:  field(rec, "email"),
			Company:    field(rec, "company"),
			Status:     field(rec, "status"),
			Timestamp:  ts.UTC(),
			TemplateID: field(rec, "template"),
			VariantID:  field(rec, "variant"),
			Tier:       field(rec, "tier"),
		})
	}
	return rows, nil
}
