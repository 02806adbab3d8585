package repository

import (
	"time"

	repoerrors "focuswatch/internal/infrastructure/errors"
)

const dateLayout = "2006-01-02"

// normalizeDate truncates a timestamp to local midnight of its calendar day
func normalizeDate(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
}

// dateKey renders the canonical date string used as the persisted key
func dateKey(date time.Time) string {
	return normalizeDate(date).Format(dateLayout)
}

// parseDateKey parses a persisted date string back into a local-midnight time
func parseDateKey(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// classifyError classifies database errors into store error codes
func (r *SQLiteRepository) classifyError(err error) repoerrors.ErrorCode {
	return repoerrors.ClassifyError(err)
}

// parseTimestamp parses SQLite timestamp text in either of the formats the
// driver emits. Returns the zero time when the value is unparsable.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
