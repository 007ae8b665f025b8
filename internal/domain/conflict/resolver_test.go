package conflict

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
)

func pair(sev Severity, typ Type, in, ex *record.Resource) Conflict {
	return Conflict{ID: uuid.New(), Severity: sev, Type: typ, Field: "value", Incoming: in, Existing: ex, DetectedAt: time.Unix(0, 0).UTC()}
}

func TestResolver_CriticalAlwaysManualReview(t *testing.T) {
	p := Policy{
		Default:    string(NewestWins),
		BySeverity: map[string]string{"critical": string(NewestWins)},
		ByKind:     map[string]string{"medication": string(ConfidenceBased)},
	}
	r, _ := p.Resolver()
	c := pair(SeverityCritical, TypeDosageDiscrepancy, medicationRes(40, "mg"), medicationRes(10, "mg"))

	res := r.Resolve(testBatch, []Conflict{c})
	if res[0].Strategy != ManualReview {
		t.Fatalf("critical conflict resolved via %s", res[0].Strategy)
	}
	if res[0].Supersession != nil {
		t.Error("manual review must not retire either side")
	}
	if !NeedsReview(res) {
		t.Error("NeedsReview should be true")
	}
}

func TestResolver_IdentityMismatchAlwaysManualReview(t *testing.T) {
	r, _ := Policy{Default: string(NewestWins)}.Resolver()
	c := Conflict{Severity: SeverityLow, Type: TypeIdentityMismatch, Field: "mrn"}
	if got := r.Strategy(c); got != ManualReview {
		t.Errorf("Strategy = %s", got)
	}
}

func TestResolver_Precedence(t *testing.T) {
	p := Policy{
		Default:    string(PreserveBoth),
		BySeverity: map[string]string{"medium": string(ConfidenceBased)},
		ByKind:     map[string]string{"condition": string(NewestWins)},
	}
	r, _ := p.Resolver()
	tests := []struct {
		name string
		c    Conflict
		want Strategy
	}{
		{"kind override", pair(SeverityMedium, TypeValueMismatch, conditionRes("a", day(2020, 1, 1)), conditionRes("b", day(2020, 1, 1))), NewestWins},
		{"severity default", pair(SeverityMedium, TypeValueMismatch, heartRate(1, day(2020, 1, 1)), heartRate(2, day(2020, 1, 1))), ConfidenceBased},
		{"global default", pair(SeverityLow, TypeValueMismatch, heartRate(1, day(2020, 1, 1)), heartRate(2, day(2020, 1, 1))), PreserveBoth},
		{"unknown severity", pair(Severity("severe"), TypeValueMismatch, heartRate(1, day(2020, 1, 1)), heartRate(2, day(2020, 1, 1))), ManualReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Strategy(tt.c); got != tt.want {
				t.Errorf("Strategy = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolver_NewestWins(t *testing.T) {
	r, _ := Policy{Default: string(NewestWins)}.Resolver()
	older := heartRate(70, day(2024, 1, 1))
	newer := heartRate(72, day(2024, 2, 1))

	res := r.Resolve(testBatch, []Conflict{pair(SeverityMedium, TypeValueMismatch, older, newer)})
	sp := res[0].Supersession
	if sp == nil || sp.Superseded != older.ID || sp.By != newer.ID || sp.Reason != record.ReasonNewestWins {
		t.Fatalf("unexpected supersession %+v", sp)
	}
}

func TestResolver_NewestWinsTieBreaks(t *testing.T) {
	in := heartRate(70, day(2024, 1, 1))
	ex := heartRate(72, day(2024, 1, 1))
	in.RecordedAt = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	ex.RecordedAt = time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	if w, _ := newest(in, ex); w != ex {
		t.Error("later recorded side should win a date tie")
	}
	ex.RecordedAt = in.RecordedAt
	if w, _ := newest(in, ex); w != in {
		t.Error("incoming side should win a full tie")
	}
}

func TestResolver_ConfidenceBased(t *testing.T) {
	r, _ := Policy{Default: string(ConfidenceBased)}.Resolver()
	in := heartRate(70, day(2024, 2, 1))
	ex := heartRate(72, day(2024, 1, 1))
	in.Provenance.Confidence = 0.7
	ex.Provenance.Confidence = 0.9

	res := r.Resolve(testBatch, []Conflict{pair(SeverityMedium, TypeValueMismatch, in, ex)})
	sp := res[0].Supersession
	if sp == nil || sp.Superseded != in.ID || sp.Reason != record.ReasonConfidenceBased {
		t.Fatalf("higher confidence should win, got %+v", sp)
	}

	ex.Provenance.Confidence = 0.7
	res = r.Resolve(testBatch, []Conflict{pair(SeverityMedium, TypeValueMismatch, in, ex)})
	sp = res[0].Supersession
	if sp == nil || sp.Superseded != ex.ID || sp.Reason != record.ReasonNewestWins {
		t.Fatalf("a tie should fall back to newest_wins, got %+v", sp)
	}
}

func TestResolver_PreserveBothKeepsBothCurrent(t *testing.T) {
	r, _ := DefaultPolicy().Resolver()
	in := &record.Resource{ID: uuid.New(), Kind: extraction.KindAllergy}
	ex := &record.Resource{ID: uuid.New(), Kind: extraction.KindAllergy}

	res := r.Resolve(testBatch, []Conflict{pair(SeverityMedium, TypeValueMismatch, in, ex)})
	if res[0].Strategy != PreserveBoth || res[0].Supersession != nil {
		t.Fatalf("unexpected resolution %+v", res[0])
	}
	if len(Supersessions(res)) != 0 || NeedsReview(res) {
		t.Error("preserve_both neither supersedes nor needs review")
	}
}

func TestResolver_ManualReviewPairDropsOtherSupersessions(t *testing.T) {
	r, _ := DefaultPolicy().Resolver()
	in := medicationRes(40, "mg")
	ex := medicationRes(10, "mg")
	conflicts := []Conflict{
		pair(SeverityMedium, TypeValueMismatch, in, ex),
		pair(SeverityCritical, TypeDosageDiscrepancy, in, ex),
	}
	res := r.Resolve(testBatch, conflicts)
	if len(Supersessions(res)) != 0 {
		t.Fatalf("pair under review must keep both sides current, got %+v", Supersessions(res))
	}
}
