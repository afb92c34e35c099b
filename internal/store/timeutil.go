package store

import "time"

// isoLayout is the ISO-8601 UTC timestamp format used throughout the
// schema (spec §3: "Timestamps are ISO-8601 UTC strings").
const isoLayout = "2006-01-02T15:04:05.000Z"

// parseTimePtr parses an ISO-8601 timestamp string, returning nil on
// parse failure rather than propagating an error: timestamps are
// diagnostic/display fields here, never used for guard logic (guards
// operate on the database's own CURRENT state via SQL, not parsed Go
// time.Time values).
func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
