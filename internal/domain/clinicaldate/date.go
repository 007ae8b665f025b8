// Package clinicaldate parses the heterogeneous date expressions found in
// clinical documents into calendar dates that carry their own precision.
package clinicaldate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparseable is returned when text cannot be read as a clinical date.
var ErrUnparseable = errors.New("unparseable clinical date")

// Precision is how much of a Date the source actually stated.
type Precision int

const (
	PrecisionYear Precision = iota + 1
	PrecisionMonth
	PrecisionDay
	PrecisionTime
)

func (p Precision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	case PrecisionTime:
		return "time"
	}
	return "unknown"
}

// Locale selects the default field order for ambiguous numeric dates.
type Locale string

const (
	// LocaleUS reads 03/04/2020 as March 4.
	LocaleUS Locale = "US"
	// LocaleIntl reads 03/04/2020 as 3 April.
	LocaleIntl Locale = "INTL"
)

// ParseLocale accepts "US" or "INTL" in any case.
func ParseLocale(s string) (Locale, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(LocaleUS):
		return LocaleUS, nil
	case string(LocaleIntl):
		return LocaleIntl, nil
	}
	return "", fmt.Errorf("unknown date locale %q", s)
}

// Date is a normalized clinical date. Fields below the precision are zero.
// Time-of-day fields are UTC and only set at PrecisionTime.
type Date struct {
	Year      int       `json:"year"`
	Month     int       `json:"month,omitempty"`
	Day       int       `json:"day,omitempty"`
	Hour      int       `json:"hour,omitempty"`
	Minute    int       `json:"minute,omitempty"`
	Second    int       `json:"second,omitempty"`
	Precision Precision `json:"precision"`

	// LowConfidence marks dates the source stated only as a bare year.
	LowConfidence bool `json:"lowConfidence,omitempty"`
	// Ambiguous marks numeric dates whose day/month order came from the locale.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// IsZero reports whether d holds no date.
func (d Date) IsZero() bool { return d.Precision == 0 }

// Time returns the earliest instant covered by d, in UTC.
func (d Date) Time() time.Time {
	if d.IsZero() {
		return time.Time{}
	}
	month, day := d.Month, d.Day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(d.Year, time.Month(month), day, d.Hour, d.Minute, d.Second, 0, time.UTC)
}

// End returns the last instant covered by d.
func (d Date) End() time.Time {
	start := d.Time()
	switch d.Precision {
	case PrecisionYear:
		return start.AddDate(1, 0, 0).Add(-time.Nanosecond)
	case PrecisionMonth:
		return start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	case PrecisionDay:
		return start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return start
}

// String renders d at its precision: 2020, 2020-03, 2020-03-04 or an RFC 3339
// timestamp.
func (d Date) String() string {
	switch d.Precision {
	case PrecisionYear:
		return fmt.Sprintf("%04d", d.Year)
	case PrecisionMonth:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	case PrecisionDay:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	case PrecisionTime:
		return d.Time().Format(time.RFC3339)
	}
	return ""
}

// Compare returns -1, 0 or +1 ordering d and o by their earliest instants.
// A zero Date sorts before everything else.
func (d Date) Compare(o Date) int {
	a, b := d.Time(), o.Time()
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// Within reports whether d and o are no more than window apart. Both dates
// must be at least day precise; coarser dates never satisfy a window.
func (d Date) Within(o Date, window time.Duration) bool {
	if d.Precision < PrecisionDay || o.Precision < PrecisionDay {
		return false
	}
	delta := d.Time().Sub(o.Time())
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}

// SameDay reports whether d and o fall on the same calendar day.
func (d Date) SameDay(o Date) bool {
	if d.Precision < PrecisionDay || o.Precision < PrecisionDay {
		return false
	}
	return d.Year == o.Year && d.Month == o.Month && d.Day == o.Day
}

// Truncate drops everything below p.
func (d Date) Truncate(p Precision) Date {
	if d.Precision <= p {
		return d
	}
	out := Date{Year: d.Year, Precision: p, LowConfidence: d.LowConfidence, Ambiguous: d.Ambiguous}
	if p >= PrecisionMonth {
		out.Month = d.Month
	}
	if p >= PrecisionDay {
		out.Day = d.Day
	}
	return out
}

// FromTime builds a time-precise Date from t.
func FromTime(t time.Time) Date {
	t = t.UTC()
	return Date{
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		Second:    t.Second(),
		Precision: PrecisionTime,
	}
}
