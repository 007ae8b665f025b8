package record

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type pageBody struct {
	Data  []map[string]interface{} `json:"data"`
	Total int                      `json:"total"`
}

func seededStore(t *testing.T) (*MemoryStore, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	patient := uuid.New()
	if err := s.SavePatient(ctx, &Patient{ID: patient, BirthDate: "1970-01-01"}); err != nil {
		t.Fatalf("SavePatient: %v", err)
	}
	old := condition(patient, "I10")
	newer := condition(patient, "I10")
	commit := &Commit{
		DocumentID: uuid.New(),
		PatientID:  patient,
		BatchID:    uuid.New(),
		Resources: []*Resource{
			old, newer,
			condition(patient, "E11.9"),
			encounter(patient, 2023, 5, 1),
			encounter(patient, 2024, 2, 10),
		},
		Supersessions: []Supersession{{Superseded: old.ID, By: newer.ID, Reason: ReasonNewestWins}},
		Result:        json.RawMessage(`{}`),
	}
	if err := s.Commit(ctx, commit); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return s, patient
}

func getRecord(t *testing.T, h *Handler, patient, query string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+patient+"/record"+query, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(patient)
	return rec, h.GetRecord(c)
}

func TestHandler_GetRecord_CurrentView(t *testing.T) {
	s, patient := seededStore(t)
	h := NewHandler(s)

	rec, err := getRecord(t, h, patient.String(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body pageBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 4 {
		t.Errorf("expected 4 current resources, got %d", body.Total)
	}
	if body.Data[0]["resourceType"] != "Condition" {
		t.Errorf("expected FHIR rendering, got %v", body.Data[0]["resourceType"])
	}
}

func TestHandler_GetRecord_CodeSearch(t *testing.T) {
	s, patient := seededStore(t)
	h := NewHandler(s)

	rec, err := getRecord(t, h, patient.String(), "?code=http://hl7.org/fhir/sid/icd-10-cm|I10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body pageBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 {
		t.Errorf("expected only the current I10 condition, got %d", body.Total)
	}

	if _, err := getRecord(t, h, patient.String(), "?code=I10"); err == nil {
		t.Error("expected error for code without system")
	}
}

func TestHandler_GetRecord_Timeline(t *testing.T) {
	s, patient := seededStore(t)
	h := NewHandler(s)

	rec, err := getRecord(t, h, patient.String(), "?from=2024-01&to=2024")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body pageBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 {
		t.Errorf("expected one 2024 encounter, got %d", body.Total)
	}

	_, err = getRecord(t, h, patient.String(), "?from=someday")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad from date, got %v", err)
	}
}

func TestHandler_GetRecord_UnknownPatient(t *testing.T) {
	h := NewHandler(NewMemoryStore())
	_, err := getRecord(t, h, uuid.New().String(), "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_PutPatient(t *testing.T) {
	s := NewMemoryStore()
	h := NewHandler(s)
	id := uuid.New()

	e := echo.New()
	body := `{"birth_date":"1980-02-03","gender":"female","mrn":"A-100"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/patients/"+id.String(), strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	if err := h.PutPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := s.GetPatient(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if p.MRN != "A-100" || p.Gender != "female" {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestHandler_ListConflicts_Empty(t *testing.T) {
	h := NewHandler(NewMemoryStore())
	e := echo.New()
	batch := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+batch+"/conflicts", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("batch_id")
	c.SetParamValues(batch)

	if err := h.ListConflicts(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}
