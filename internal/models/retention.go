package models

import "time"

// DateLayout is the fixed-width date embedded in backup object names.
const DateLayout = "20060102"

// Date is a calendar day in UTC.
type Date struct {
	t time.Time
}

// DateOf truncates a time to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYYMMDD string.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

// AddDays returns the date n days later (negative n goes back).
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// String formats the date as YYYYMMDD.
func (d Date) String() string {
	return d.t.Format(DateLayout)
}

// RetentionCandidate is a stored backup discovered during a retention sweep.
type RetentionCandidate struct {
	Key      string
	Database string
	Date     Date
	Size     int64
}

// RetentionResult holds the outcome of a sweep over one database.
type RetentionResult struct {
	Database string
	Cutoff   Date
	Scanned  int
	Ignored  int
	Deleted  []string
	Errors   []error
	Duration time.Duration
}
