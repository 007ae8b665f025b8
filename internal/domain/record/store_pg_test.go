package record

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewStorePG(mock)
}

func TestStorePG_Commit(t *testing.T) {
	mock, store := newMockStore(t)
	patient := uuid.New()
	res := condition(patient, "I10")
	commit := &Commit{
		DocumentID:    uuid.New(),
		PatientID:     patient,
		BatchID:       uuid.New(),
		Resources:     []*Resource{res},
		Supersessions: []Supersession{{Superseded: uuid.New(), By: res.ID, Reason: ReasonNewestWins}},
		Result:        json.RawMessage(`{}`),
		CommittedAt:   time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO merge_commit").
		WithArgs(commit.DocumentID, patient, commit.BatchID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO patient_record").
		WithArgs(patient, int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO clinical_resource").
		WithArgs(res.ID, patient, "condition", res.IdentityKey, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO resource_code_index").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO resource_supersession").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := store.Commit(context.Background(), commit); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStorePG_CommitExists(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO merge_commit").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	err := store.Commit(context.Background(), &Commit{DocumentID: uuid.New(), PatientID: uuid.New()})
	if !errors.Is(err, ErrCommitExists) {
		t.Fatalf("expected ErrCommitExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStorePG_CommitVersionConflict(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO merge_commit").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO patient_record").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := store.Commit(context.Background(), &Commit{DocumentID: uuid.New(), PatientID: uuid.New(), ExpectedVersion: 3})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStorePG_Load(t *testing.T) {
	mock, store := newMockStore(t)
	patient := uuid.New()
	a := condition(patient, "I10")
	b := condition(patient, "I10")
	bodyA, _ := json.Marshal(a)
	bodyB, _ := json.Marshal(b)

	mock.ExpectQuery("SELECT version FROM patient_record").
		WithArgs(patient).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(2)))
	mock.ExpectQuery("SELECT body FROM clinical_resource").
		WithArgs(patient).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(bodyA).AddRow(bodyB))
	mock.ExpectQuery("FROM resource_supersession").
		WithArgs(patient).
		WillReturnRows(pgxmock.NewRows([]string{"superseded_id", "by_id", "reason", "batch_id", "created_at"}).
			AddRow(a.ID, b.ID, "newest_wins", uuid.New(), time.Now()))

	rec, err := store.Load(context.Background(), patient)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Version != 2 || rec.Len() != 2 {
		t.Errorf("expected version 2 with 2 resources, got %d / %d", rec.Version, rec.Len())
	}
	if rec.IsCurrent(a.ID) || !rec.IsCurrent(b.ID) {
		t.Error("expected supersession to be applied on load")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStorePG_GetPatientNotFound(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectQuery("SELECT id, birth_date, gender, mrn FROM patient").WillReturnError(pgx.ErrNoRows)

	if _, err := store.GetPatient(context.Background(), uuid.New()); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestStorePG_LookupCommit(t *testing.T) {
	mock, store := newMockStore(t)
	doc, patient := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT result FROM merge_commit").
		WithArgs(doc, patient).
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow([]byte(`{"status":"completed"}`)))
	mock.ExpectQuery("SELECT result FROM merge_commit").WillReturnError(pgx.ErrNoRows)

	res, err := store.LookupCommit(context.Background(), doc, patient)
	if err != nil || string(res) != `{"status":"completed"}` {
		t.Errorf("LookupCommit = %s, %v", res, err)
	}
	if _, err := store.LookupCommit(context.Background(), uuid.New(), patient); !errors.Is(err, ErrCommitNotFound) {
		t.Errorf("expected ErrCommitNotFound, got %v", err)
	}
}

func TestStorePG_ClaimCompletion(t *testing.T) {
	mock, store := newMockStore(t)
	doc, patient := uuid.New(), uuid.New()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE merge_commit SET completed_at").
		WithArgs(doc, patient, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE merge_commit SET completed_at").
		WithArgs(doc, patient, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(doc, patient).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("UPDATE merge_commit SET completed_at").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	if ok, err := store.ClaimCompletion(context.Background(), doc, patient, at); err != nil || !ok {
		t.Errorf("first claim = %v, %v; want true", ok, err)
	}
	if ok, err := store.ClaimCompletion(context.Background(), doc, patient, at); err != nil || ok {
		t.Errorf("second claim = %v, %v; want false", ok, err)
	}
	if _, err := store.ClaimCompletion(context.Background(), uuid.New(), patient, at); !errors.Is(err, ErrCommitNotFound) {
		t.Errorf("expected ErrCommitNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
