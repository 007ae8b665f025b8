package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type failingSink struct {
	Sink
	err error
}

func (s failingSink) Append(context.Context, *Entry) error { return s.err }

func newTestLogger(sink Sink) *Logger {
	l := NewLogger(sink, zerolog.Nop())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return l
}

func TestLogger_RecordChainsEntries(t *testing.T) {
	sink := NewMemorySink()
	l := newTestLogger(sink)
	ctx := context.Background()
	batch := uuid.New().String()

	l.Record(ctx, EventMergeCompleted, "system", map[string]string{TargetBatch: batch}, Outcome{Status: "success", Counts: map[string]int{"merged": 2}})
	l.Record(ctx, EventReviewAutoApproved, "system", map[string]string{TargetBatch: batch}, Outcome{Status: "auto_approved"})

	items, total, err := l.List(ctx, Filter{}, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 entries, got %d", total)
	}
	if items[0].Sequence != 1 || items[0].PrevHash != GenesisHash {
		t.Errorf("first entry not anchored at genesis: %+v", items[0])
	}
	if items[1].PrevHash != items[0].Hash {
		t.Error("second entry does not link to the first")
	}

	rep, err := l.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !rep.Valid || rep.Entries != 2 {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestLogger_VerifyDetectsTampering(t *testing.T) {
	sink := NewMemorySink().(*memorySink)
	l := newTestLogger(sink)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		l.Record(ctx, EventMergeCompleted, "system", nil, Outcome{Status: "success", Counts: map[string]int{"merged": i}})
	}
	sink.entries[1].Outcome.Counts["merged"] = 99

	rep, err := l.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Valid || rep.BrokenAt != 2 || rep.Problem != "content hash mismatch" {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestLogger_Sanitizes(t *testing.T) {
	sink := NewMemorySink()
	l := newTestLogger(sink)
	ctx := context.Background()
	patient := uuid.New().String()

	l.Record(ctx, EventReviewFlagged, "jane.doe@example.org",
		map[string]string{
			TargetPatient:  patient,
			"condition":    "Hypertension",
			TargetDocument: "scan of Jane Doe's chart.pdf",
		},
		Outcome{
			Status:  "flagged",
			Reasons: []string{"low confidence", "Metformin 500 mg looks wrong", "low confidence"},
			Counts:  map[string]int{"resources": 2, "Lisinopril 10mg": 1},
			Flags:   map[string]bool{"identity_conflict": false},
		})

	items, _, _ := l.List(ctx, Filter{}, 10, 0)
	e := items[0]
	if len(e.Targets) != 1 || e.Targets[TargetPatient] != patient {
		t.Errorf("targets = %v", e.Targets)
	}
	if e.Actor != "redacted" {
		t.Errorf("actor = %q", e.Actor)
	}
	if strings.Join(e.Outcome.Reasons, ",") != "low confidence,unspecified" {
		t.Errorf("reasons = %v", e.Outcome.Reasons)
	}
	if len(e.Outcome.Counts) != 1 || e.Outcome.Counts["resources"] != 2 {
		t.Errorf("counts = %v", e.Outcome.Counts)
	}

	raw, _ := json.Marshal(e)
	for _, leaked := range []string{"Hypertension", "Metformin", "Lisinopril", "Jane", "jane"} {
		if bytes.Contains(raw, []byte(leaked)) {
			t.Errorf("entry leaks %q: %s", leaked, raw)
		}
	}
}

func TestLogger_SinkFailureIsCountedNotPropagated(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(failingSink{Sink: NewMemorySink(), err: errors.New("disk full")}, zerolog.New(&buf))

	l.Record(context.Background(), EventMergeCompleted, "system", nil, Outcome{Status: "success"})

	if l.Failures() != 1 {
		t.Errorf("Failures() = %d", l.Failures())
	}
	if !strings.Contains(buf.String(), `"alert":true`) {
		t.Errorf("expected an alert log line, got %s", buf.String())
	}
}

func TestMemorySink_ListFilters(t *testing.T) {
	sink := NewMemorySink()
	l := newTestLogger(sink)
	ctx := context.Background()
	a, b := uuid.New().String(), uuid.New().String()

	l.Record(ctx, EventMergeCompleted, "system", map[string]string{TargetBatch: a}, Outcome{Status: "success"})
	l.Record(ctx, EventReviewFlagged, "system", map[string]string{TargetBatch: a}, Outcome{Status: "flagged"})
	l.Record(ctx, EventMergeCompleted, "system", map[string]string{TargetBatch: b}, Outcome{Status: "success"})

	tests := []struct {
		f    Filter
		want int
	}{
		{Filter{}, 3},
		{Filter{EventType: EventMergeCompleted}, 2},
		{Filter{BatchID: a}, 2},
		{Filter{EventType: EventReviewFlagged, BatchID: b}, 0},
	}
	for _, tt := range tests {
		_, total, err := sink.List(ctx, tt.f, 10, 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != tt.want {
			t.Errorf("List(%+v) total = %d, want %d", tt.f, total, tt.want)
		}
	}

	page, total, _ := sink.List(ctx, Filter{}, 2, 2)
	if total != 3 || len(page) != 1 || page[0].Sequence != 3 {
		t.Errorf("unexpected page %+v (total %d)", page, total)
	}
}
