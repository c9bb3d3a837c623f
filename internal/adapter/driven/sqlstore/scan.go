package sqlstore

import (
	"fmt"
	"time"
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// nullTime scans a DATETIME column from either driver. MySQL with parseTime
// yields time.Time; SQLite may yield time.Time or text depending on the
// declared column type. Valid is false for NULL.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n = nullTime{}
		return nil
	case time.Time:
		*n = nullTime{Time: v.UTC(), Valid: true}
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (n *nullTime) parse(s string) error {
	t, err := parseTime(s)
	if err != nil {
		return err
	}
	*n = nullTime{Time: t.UTC(), Valid: true}
	return nil
}

// parseTime tries multiple SQLite and MySQL datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// dbTime normalizes a time for storage. Zero times are stored as NULL.
func dbTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
