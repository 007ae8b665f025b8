package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicalmerge/internal/config"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/review"
)

const testBatch = `{
  "batch_id": "aaaaaaaa-0000-0000-0000-000000000001",
  "document_id": "bbbbbbbb-0000-0000-0000-000000000001",
  "patient_id": "cccccccc-0000-0000-0000-000000000001",
  "producer": {"name": "primary"},
  "confidence": 0.9,
  "subject": {"birth_date": "1975-02-11", "gender": "male", "mrn": "MRN-9"},
  "records": [
    {"kind": "condition", "shape": "structured", "confidence": 0.97,
     "payload": {"text": "Hypertension", "clinical_status": "active", "onset": "2021-06-01"}},
    {"kind": "medication", "shape": "structured", "confidence": 0.97,
     "payload": {"medication": {"text": "Lisinopril"}, "status": "active",
                 "dosage": {"dose": 10, "dose_unit": "mg", "frequency": "daily"}}}
  ],
  "extracted_at": "2026-03-01T00:00:00Z"
}`

func testConfig() *config.Config {
	return &config.Config{
		Port:                    "0",
		Env:                     "development",
		Store:                   config.StoreMemory,
		RateLimitRPS:            5,
		RateLimitBurst:          10,
		BodyLimit:               "1M",
		MergeBodyLimit:          "16M",
		MergeTimeBudget:         5 * time.Second,
		MergeMaxAttempts:        2,
		MergeInitialBackoff:     time.Millisecond,
		DateLocale:              "US",
		ValidateResourceCounts:  true,
		ValidateConfidenceRange: true,
	}
}

func testApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := buildApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestBuildApp_MemoryStore(t *testing.T) {
	a := testApp(t, testConfig())
	if a.pool != nil || a.redis != nil {
		t.Error("memory store should not open external connections")
	}
	if len(a.healthChecks()) != 0 {
		t.Errorf("expected no health checks, got %d", len(a.healthChecks()))
	}
}

func TestBuildApp_BadPolicyFile(t *testing.T) {
	cfg := testConfig()
	cfg.MergePolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := buildApp(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for a missing policy file")
	}
}

func TestServer_HealthAndMerge(t *testing.T) {
	a := testApp(t, testConfig())
	e := newServer(a)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id on every response")
	}

	// Unknown patient first.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/merges", strings.NewReader(testBatch))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown patient, got %d: %s", rec.Code, rec.Body.String())
	}

	put := httptest.NewRequest(http.MethodPut, "/api/v1/patients/cccccccc-0000-0000-0000-000000000001",
		strings.NewReader(`{"birth_date":"1975-02-11","gender":"male","mrn":"MRN-9"}`))
	put.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, put)
	if rec.Code >= 300 {
		t.Fatalf("put patient: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/merges", strings.NewReader(testBatch))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("merge: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/patients/cccccccc-0000-0000-0000-000000000001/record", nil))
	if rec.Code != http.StatusOK || !strings.Contains(strings.ToLower(rec.Body.String()), "lisinopril") {
		t.Errorf("record: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_RequiresTokenWithSigningKey(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = strings.Repeat("k", 32)
	e := newServer(testApp(t, cfg))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reviews", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health should stay public, got %d", rec.Code)
	}
}

func TestRunMerge_RegistersPatientAndPrintsResult(t *testing.T) {
	a := testApp(t, testConfig())
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte(testBatch), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runMerge(context.Background(), a, path, true, &out); err != nil {
		t.Fatalf("runMerge: %v", err)
	}
	var got mergeOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if got.Result == nil || got.Result.Merged != 2 {
		t.Errorf("unexpected result %+v", got.Result)
	}
	if got.Review == nil || got.Review.Status != review.StatusAutoApproved {
		t.Errorf("unexpected review %+v", got.Review)
	}
}

func TestRunMerge_DayFirstLocaleReachesIdentityCheck(t *testing.T) {
	cfg := testConfig()
	cfg.DateLocale = "INTL"
	a := testApp(t, cfg)
	ctx := context.Background()
	if err := a.store.SavePatient(ctx, &record.Patient{
		ID:        uuid.MustParse("cccccccc-0000-0000-0000-000000000001"),
		BirthDate: "1975-02-11",
		Gender:    "male",
		MRN:       "MRN-9",
	}); err != nil {
		t.Fatalf("save patient: %v", err)
	}

	batch := strings.Replace(testBatch, `"birth_date": "1975-02-11"`, `"birth_date": "11/02/1975"`, 1)
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte(batch), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runMerge(ctx, a, path, false, &out); err != nil {
		t.Fatalf("runMerge: %v", err)
	}
	var got mergeOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.Result.Gate.IdentityConflict {
		t.Error("11/02/1975 read day-first should match 1975-02-11")
	}
	if got.Review == nil || got.Review.Status != review.StatusAutoApproved {
		t.Errorf("unexpected review %+v", got.Review)
	}
}

func TestRunMerge_UnknownPatientWithoutRegistration(t *testing.T) {
	a := testApp(t, testConfig())
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte(testBatch), 0o600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	err := runMerge(context.Background(), a, path, false, &out)
	if !errors.Is(err, record.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %s", out.String())
	}
}
