package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestHandler_ListEntries(t *testing.T) {
	sink := NewMemorySink()
	l := newTestLogger(sink)
	batch := uuid.New().String()
	l.Record(context.Background(), EventMergeCompleted, "system", map[string]string{TargetBatch: batch}, Outcome{Status: "success"})
	l.Record(context.Background(), EventReviewFlagged, "system", map[string]string{TargetBatch: batch}, Outcome{Status: "flagged"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit?event_type=review.flagged", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewHandler(l).ListEntries(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Entry `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Data[0].EventType != EventReviewFlagged {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHandler_VerifyChain(t *testing.T) {
	sink := NewMemorySink().(*memorySink)
	l := newTestLogger(sink)
	l.Record(context.Background(), EventMergeCompleted, "system", nil, Outcome{Status: "success"})

	verify := func() (*httptest.ResponseRecorder, Report) {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/audit/verify", nil), rec)
		if err := NewHandler(l).VerifyChain(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var rep Report
		if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return rec, rep
	}

	rec, rep := verify()
	if rec.Code != http.StatusOK || !rep.Valid {
		t.Fatalf("expected valid chain, got %d %+v", rec.Code, rep)
	}

	sink.entries[0].Actor = "someone-else"
	rec, rep = verify()
	if rec.Code != http.StatusConflict || rep.Valid {
		t.Errorf("expected broken chain, got %d %+v", rec.Code, rep)
	}
}
