package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/outreach-backend/internal/db"
)

// store is the common base of the SQL repositories. Queries are written
// with `?` placeholders and rebound for Postgres.
type store struct {
	h *db.Handle
}

func (s store) q(query string) string {
	if s.h.Dialect != db.Postgres {
		return query
	}
	return Rebind(query)
}

// Rebind turns `?` placeholders into `$1..$n`.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeArg encodes a timestamp for the active dialect. SQLite keeps
// RFC3339 text so it sorts and parses the same everywhere.
func (s store) timeArg(t time.Time) any {
	if s.h.Dialect == db.SQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time value %T", v)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
