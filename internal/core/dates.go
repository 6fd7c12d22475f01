package core

import (
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// Date is a calendar date stored as midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, invalid("date", ErrInvalidDate)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

// AddDays returns the date n days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// FirstOfMonth returns the first day of d's month.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// DateRange bounds a query inclusively; a zero Start or End leaves that side open.
type DateRange struct {
	Start Date
	End   Date
}

func (r DateRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.After(r.End) {
		return invalid("date range", ErrInvalidDateRange)
	}
	return nil
}

// LastDays returns the range from n days before today through today, both
// ends included, so it spans n+1 calendar days.
func LastDays(today Date, n int) DateRange {
	return DateRange{Start: today.AddDays(-n), End: today}
}

// ParseDateRange parses optional start/end strings; blanks leave the side open.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if strings.TrimSpace(start) != "" {
		if r.Start, err = ParseDate(start); err != nil {
			return DateRange{}, invalid("start date", ErrInvalidDate)
		}
	}
	if strings.TrimSpace(end) != "" {
		if r.End, err = ParseDate(end); err != nil {
			return DateRange{}, invalid("end date", ErrInvalidDate)
		}
	}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// MonthSpine lists every calendar month from the month `months` months before
// today through today's month, oldest first, formatted as YYYY-MM.
func MonthSpine(today Date, months int) []string {
	first := today.FirstOfMonth().Time.AddDate(0, -months, 0)
	spine := make([]string, 0, months+1)
	for i := 0; i <= months; i++ {
		spine = append(spine, first.AddDate(0, i, 0).Format(MonthLayout))
	}
	return spine
}

// SpineStart is the first day of the oldest month in MonthSpine(today, months).
func SpineStart(today Date, months int) Date {
	return Date{Time: today.FirstOfMonth().Time.AddDate(0, -months, 0)}
}
