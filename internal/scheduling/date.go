package scheduling

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

var dayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// DayName returns the English name for a day_of_week value (0 = Sunday).
func DayName(dayOfWeek int) string {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return ""
	}
	return dayNames[dayOfWeek]
}

// Date is a civil calendar date with no time zone. It is stored as midnight
// UTC so that arithmetic never crosses a DST boundary.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, newValidationError(CodeInvalidDate, "invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Weekday returns 0 for Sunday through 6 for Saturday.
func (d Date) Weekday() int { return int(d.t.Weekday()) }

// Time returns midnight UTC of d, suitable as a DATE query argument.
func (d Date) Time() time.Time { return d.t }

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

func (d Date) String() string { return d.t.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Horizon is the booking window [today, today+Days].
type Horizon struct {
	Days int
}

// Check returns a ValidationError when d falls outside the window that
// starts at today.
func (h Horizon) Check(today, d Date) error {
	if d.Before(today) {
		return newValidationError(CodeDateInPast, "date %s is in the past", d)
	}
	if last := today.AddDays(h.Days); d.After(last) {
		return newValidationError(CodeDateTooFarAhead, "date %s is more than %d days ahead", d, h.Days)
	}
	return nil
}
