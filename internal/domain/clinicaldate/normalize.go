package clinicaldate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/clinicalmerge/internal/platform/textnorm"
)

const (
	minYear = 1850
	maxYear = 2200
)

var (
	isoDateRe   = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)
	isoMonthRe  = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	yearRe      = regexp.MustCompile(`^(\d{4})$`)
	hl7Re       = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})?(?:(\d{2})(\d{2})(\d{2})?)?$`)
	numericRe   = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})$`)
	monthYearRe = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{4})$`)
	ordinalRe   = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?$`)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var monthNames = map[string]int{
	"january": 1, "jan": 1,
	"february": 2, "feb": 2,
	"march": 3, "mar": 3,
	"april": 4, "apr": 4,
	"may": 5,
	"june": 6, "jun": 6,
	"july": 7, "jul": 7,
	"august": 8, "aug": 8,
	"september": 9, "sep": 9, "sept": 9,
	"october": 10, "oct": 10,
	"november": 11, "nov": 11,
	"december": 12, "dec": 12,
}

// Normalizer parses clinical date text. The zero value uses the US locale and
// the wall clock for the two-digit year pivot.
type Normalizer struct {
	Locale Locale
	Now    func() time.Time
}

// Normalize parses text with a default Normalizer for locale.
func Normalize(text string, locale Locale) (Date, error) {
	return Normalizer{Locale: locale}.Normalize(text)
}

// Normalize parses text into a Date. It never invents fields the text does
// not state: a bare year comes back year-precise and LowConfidence.
func (n Normalizer) Normalize(text string) (Date, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Date{}, fmt.Errorf("empty date: %w", ErrUnparseable)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return checkYear(FromTime(t), text)
		}
	}
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return buildDay(atoi(m[1]), atoi(m[2]), atoi(m[3]), text)
	}
	if m := isoMonthRe.FindStringSubmatch(s); m != nil {
		return build(atoi(m[1]), atoi(m[2]), 0, text)
	}
	if m := yearRe.FindStringSubmatch(s); m != nil {
		return checkYear(Date{Year: atoi(m[1]), Precision: PrecisionYear, LowConfidence: true}, text)
	}
	if m := hl7Re.FindStringSubmatch(s); m != nil {
		return n.hl7(m, text)
	}
	if m := numericRe.FindStringSubmatch(s); m != nil {
		return n.numeric(atoi(m[1]), atoi(m[2]), m[3], text)
	}
	if m := monthYearRe.FindStringSubmatch(s); m != nil {
		return build(atoi(m[2]), atoi(m[1]), 0, text)
	}
	return n.named(s, text)
}

func (n Normalizer) hl7(m []string, text string) (Date, error) {
	year, month := atoi(m[1]), atoi(m[2])
	if m[3] == "" {
		if m[4] != "" {
			return Date{}, fmt.Errorf("%q: %w", text, ErrUnparseable)
		}
		return build(year, month, 0, text)
	}
	d, err := buildDay(year, month, atoi(m[3]), text)
	if err != nil || m[4] == "" {
		return d, err
	}
	hour, minute, second := atoi(m[4]), atoi(m[5]), 0
	if m[6] != "" {
		second = atoi(m[6])
	}
	if hour > 23 || minute > 59 || second > 59 {
		return Date{}, fmt.Errorf("%q: time out of range: %w", text, ErrUnparseable)
	}
	d.Hour, d.Minute, d.Second = hour, minute, second
	d.Precision = PrecisionTime
	return d, nil
}

// numeric resolves a-b-year where a and b are day and month in unknown order.
func (n Normalizer) numeric(a, b int, yearText, text string) (Date, error) {
	year := atoi(yearText)
	if len(yearText) == 2 {
		year = n.expandYear(year)
	}

	var month, day int
	ambiguous := false
	switch {
	case a > 12 && b > 12:
		return Date{}, fmt.Errorf("%q: no month field: %w", text, ErrUnparseable)
	case a > 12:
		day, month = a, b
	case b > 12:
		month, day = a, b
	case a == b:
		month, day = a, b
	case n.locale() == LocaleIntl:
		day, month = a, b
		ambiguous = true
	default:
		month, day = a, b
		ambiguous = true
	}
	d, err := buildDay(year, month, day, text)
	d.Ambiguous = ambiguous && err == nil
	return d, err
}

// named handles month-name forms: "March 4, 2020", "4 Mar 2020", "Mar 2020".
func (n Normalizer) named(s, text string) (Date, error) {
	fields := strings.Fields(strings.NewReplacer(",", " ", ".", " ", "-", " ").Replace(s))
	var (
		month, day, year int
		sawMonth         bool
	)
	for _, f := range fields {
		if m, ok := monthNames[textnorm.Fold(f)]; ok && !sawMonth {
			month, sawMonth = m, true
			continue
		}
		if len(f) == 4 && year == 0 {
			if y, err := strconv.Atoi(f); err == nil {
				year = y
				continue
			}
		}
		if m := ordinalRe.FindStringSubmatch(strings.ToLower(f)); m != nil && day == 0 && atoi(m[1]) > 0 {
			day = atoi(m[1])
			continue
		}
		if strings.EqualFold(f, "of") {
			continue
		}
		return Date{}, fmt.Errorf("%q: %w", text, ErrUnparseable)
	}
	if !sawMonth || year == 0 {
		return Date{}, fmt.Errorf("%q: %w", text, ErrUnparseable)
	}
	return build(year, month, day, text)
}

// expandYear maps a two-digit year onto the century that keeps it from
// landing in the future.
func (n Normalizer) expandYear(yy int) int {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	current := now().Year()
	if yy <= current%100 {
		return current - current%100 + yy
	}
	return current - current%100 - 100 + yy
}

func (n Normalizer) locale() Locale {
	if n.Locale == "" {
		return LocaleUS
	}
	return n.Locale
}

// build validates the calendar fields. A zero day yields a month-precise Date.
func build(year, month, day int, text string) (Date, error) {
	d := Date{Year: year, Month: month, Day: day, Precision: PrecisionDay}
	if day == 0 {
		d.Precision = PrecisionMonth
	}
	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("%q: month out of range: %w", text, ErrUnparseable)
	}
	if day != 0 {
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day || int(t.Month()) != month {
			return Date{}, fmt.Errorf("%q: day out of range: %w", text, ErrUnparseable)
		}
	}
	return checkYear(d, text)
}

func buildDay(year, month, day int, text string) (Date, error) {
	if day < 1 {
		return Date{}, fmt.Errorf("%q: day out of range: %w", text, ErrUnparseable)
	}
	return build(year, month, day, text)
}

func checkYear(d Date, text string) (Date, error) {
	if d.Year < minYear || d.Year > maxYear {
		return Date{}, fmt.Errorf("%q: year out of range: %w", text, ErrUnparseable)
	}
	return d, nil
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
