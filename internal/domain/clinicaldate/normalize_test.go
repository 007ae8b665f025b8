package clinicaldate

import (
	"errors"
	"testing"
	"time"
)

func fixedNow() time.Time { return time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC) }

func TestNormalize_Forms(t *testing.T) {
	n := Normalizer{Locale: LocaleUS, Now: fixedNow}
	tests := []struct {
		in   string
		want Date
	}{
		{"2020-03-04", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay}},
		{"2020/3/4", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay}},
		{"2020-03", Date{Year: 2020, Month: 3, Precision: PrecisionMonth}},
		{"2020", Date{Year: 2020, Precision: PrecisionYear, LowConfidence: true}},
		{"20200304", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay}},
		{"202003", Date{Year: 2020, Month: 3, Precision: PrecisionMonth}},
		{"202003041530", Date{Year: 2020, Month: 3, Day: 4, Hour: 15, Minute: 30, Precision: PrecisionTime}},
		{"2020-03-04T10:15:00Z", Date{Year: 2020, Month: 3, Day: 4, Hour: 10, Minute: 15, Precision: PrecisionTime}},
		{"2020-03-04T10:15:00-05:00", Date{Year: 2020, Month: 3, Day: 4, Hour: 15, Minute: 15, Precision: PrecisionTime}},
		{"13/04/2020", Date{Year: 2020, Month: 4, Day: 13, Precision: PrecisionDay}},
		{"04/13/2020", Date{Year: 2020, Month: 4, Day: 13, Precision: PrecisionDay}},
		{"03/04/2020", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay, Ambiguous: true}},
		{"3-4-2020", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay, Ambiguous: true}},
		{"05.05.2020", Date{Year: 2020, Month: 5, Day: 5, Precision: PrecisionDay}},
		{"03/2020", Date{Year: 2020, Month: 3, Precision: PrecisionMonth}},
		{"March 4, 2020", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay}},
		{"4 Mar 2020", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay}},
		{"4th of March 2020", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay}},
		{"Sept. 2019", Date{Year: 2019, Month: 9, Precision: PrecisionMonth}},
		{"MARCH 2020", Date{Year: 2020, Month: 3, Precision: PrecisionMonth}},
		{"  2020-03-04  ", Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay}},
	}
	for _, tt := range tests {
		got, err := n.Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_LocaleResolvesAmbiguity(t *testing.T) {
	us, err := Normalizer{Locale: LocaleUS}.Normalize("03/04/2020")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	intl, err := Normalizer{Locale: LocaleIntl}.Normalize("03/04/2020")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if us.Month != 3 || us.Day != 4 {
		t.Errorf("US: got %s, want 2020-03-04", us)
	}
	if intl.Month != 4 || intl.Day != 3 {
		t.Errorf("INTL: got %s, want 2020-04-03", intl)
	}
	if !us.Ambiguous || !intl.Ambiguous {
		t.Error("expected both readings flagged ambiguous")
	}
}

func TestNormalize_TwoDigitYearPivot(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	tests := []struct {
		in   string
		year int
	}{
		{"01/02/26", 2026},
		{"01/02/05", 2005},
		{"01/02/27", 1927},
		{"01/02/99", 1999},
	}
	for _, tt := range tests {
		got, err := n.Normalize(tt.in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", tt.in, err)
		}
		if got.Year != tt.year {
			t.Errorf("Normalize(%q).Year = %d, want %d", tt.in, got.Year, tt.year)
		}
	}
}

func TestNormalize_Unparseable(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"yesterday",
		"2020-13-01",
		"2020-02-30",
		"2020-00",
		"2020-03-00",
		"32/13/2020",
		"0199",
		"March",
		"March 4",
		"Mar 2020 extra",
		"2020031530",
	} {
		_, err := Normalize(in, LocaleUS)
		if !errors.Is(err, ErrUnparseable) {
			t.Errorf("Normalize(%q): expected ErrUnparseable, got %v", in, err)
		}
	}
}

func TestDate_StringAtPrecision(t *testing.T) {
	tests := []struct {
		d    Date
		want string
	}{
		{Date{Year: 2020, Precision: PrecisionYear}, "2020"},
		{Date{Year: 2020, Month: 3, Precision: PrecisionMonth}, "2020-03"},
		{Date{Year: 2020, Month: 3, Day: 4, Precision: PrecisionDay}, "2020-03-04"},
		{Date{Year: 2020, Month: 3, Day: 4, Hour: 9, Precision: PrecisionTime}, "2020-03-04T09:00:00Z"},
		{Date{}, ""},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDate_WithinAndCompare(t *testing.T) {
	a := Date{Year: 2024, Month: 1, Day: 1, Hour: 8, Precision: PrecisionTime}
	b := Date{Year: 2024, Month: 1, Day: 2, Hour: 7, Precision: PrecisionTime}
	if !a.Within(b, 24*time.Hour) {
		t.Error("expected dates 23h apart to be within 24h")
	}
	if a.Within(b, 12*time.Hour) {
		t.Error("expected dates 23h apart not to be within 12h")
	}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Error("unexpected Compare ordering")
	}

	year := Date{Year: 2024, Precision: PrecisionYear}
	if year.Within(a, 365*24*time.Hour) {
		t.Error("year-precise dates must never satisfy a window")
	}
	if !a.SameDay(Date{Year: 2024, Month: 1, Day: 1, Precision: PrecisionDay}) {
		t.Error("expected same calendar day")
	}
}

func TestParseLocale(t *testing.T) {
	if l, err := ParseLocale("intl"); err != nil || l != LocaleIntl {
		t.Errorf("ParseLocale(intl) = %q, %v", l, err)
	}
	if l, err := ParseLocale(""); err != nil || l != LocaleUS {
		t.Errorf("ParseLocale(\"\") = %q, %v", l, err)
	}
	if _, err := ParseLocale("fr"); err == nil {
		t.Error("expected error for unknown locale")
	}
}

func TestDate_End(t *testing.T) {
	d := Date{Year: 2020, Month: 2, Precision: PrecisionMonth}
	want := time.Date(2020, 2, 29, 23, 59, 59, 999999999, time.UTC)
	if !d.End().Equal(want) {
		t.Errorf("End() = %s, want %s", d.End(), want)
	}
	if !(Date{}).End().IsZero() {
		t.Error("zero date should have zero end")
	}
}
