package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/platform/db"
)

type storePG struct{ pool db.Pool }

func NewStorePG(pool db.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *storePG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT id, birth_date, gender, mrn FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.BirthDate, &p.Gender, &p.MRN)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (s *storePG) SavePatient(ctx context.Context, p *Patient) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, birth_date, gender, mrn)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET birth_date = $2, gender = $3, mrn = $4, updated_at = NOW()`,
		p.ID, p.BirthDate, p.Gender, p.MRN)
	if err != nil {
		return fmt.Errorf("save patient: %w", err)
	}
	return nil
}

func (s *storePG) Load(ctx context.Context, patientID uuid.UUID) (*CumulativeRecord, error) {
	rec := NewCumulativeRecord(patientID)

	err := s.conn(ctx).QueryRow(ctx,
		`SELECT version FROM patient_record WHERE patient_id = $1`, patientID).Scan(&rec.Version)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load record version: %w", err)
	}

	resources, err := s.queryResources(ctx,
		`SELECT body FROM clinical_resource WHERE patient_id = $1 ORDER BY seq`, patientID)
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}

	rows, err := s.conn(ctx).Query(ctx, `
		SELECT superseded_id, by_id, reason, batch_id, created_at
		FROM resource_supersession WHERE patient_id = $1 ORDER BY seq`, patientID)
	if err != nil {
		return nil, fmt.Errorf("load supersessions: %w", err)
	}
	defer rows.Close()
	var sups []Supersession
	for rows.Next() {
		var sp Supersession
		var reason string
		if err := rows.Scan(&sp.Superseded, &sp.By, &reason, &sp.BatchID, &sp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supersession: %w", err)
		}
		sp.Reason = SupersessionReason(reason)
		sups = append(sups, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supersessions: %w", err)
	}

	rec.Append(resources, sups)
	return rec, nil
}

func (s *storePG) Commit(ctx context.Context, c *Commit) error {
	return db.InTx(ctx, s.pool, func(ctx context.Context) error {
		q := s.conn(ctx)

		tag, err := q.Exec(ctx, `
			INSERT INTO merge_commit (document_id, patient_id, batch_id, result, committed_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (document_id, patient_id) DO NOTHING`,
			c.DocumentID, c.PatientID, c.BatchID, []byte(c.Result), c.CommittedAt)
		if err != nil {
			return fmt.Errorf("insert merge commit: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCommitExists
		}

		var version int64
		err = q.QueryRow(ctx, `
			INSERT INTO patient_record (patient_id, version) VALUES ($1, 1)
			ON CONFLICT (patient_id) DO UPDATE SET version = patient_record.version + 1
			WHERE patient_record.version = $2
			RETURNING version`, c.PatientID, c.ExpectedVersion).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && version != c.ExpectedVersion+1) {
			return fmt.Errorf("%w: expected %d", ErrVersionConflict, c.ExpectedVersion)
		}
		if err != nil {
			return fmt.Errorf("bump record version: %w", err)
		}

		for _, r := range c.Resources {
			if err := s.insertResource(ctx, q, r); err != nil {
				return err
			}
		}
		for _, sp := range c.Supersessions {
			if _, err := q.Exec(ctx, `
				INSERT INTO resource_supersession (superseded_id, by_id, patient_id, reason, batch_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (superseded_id) DO NOTHING`,
				sp.Superseded, sp.By, c.PatientID, string(sp.Reason), sp.BatchID, sp.CreatedAt); err != nil {
				return fmt.Errorf("insert supersession: %w", err)
			}
		}
		for _, cf := range c.Conflicts {
			if _, err := q.Exec(ctx, `
				INSERT INTO merge_conflict (id, batch_id, patient_id, severity, type, field,
					incoming_id, existing_id, strategy, detected_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				cf.ID, cf.BatchID, c.PatientID, cf.Severity, cf.Type, cf.Field,
				nullUUID(cf.IncomingID), nullUUID(cf.ExistingID), cf.Strategy, cf.DetectedAt); err != nil {
				return fmt.Errorf("insert conflict: %w", err)
			}
		}
		return nil
	})
}

func (s *storePG) insertResource(ctx context.Context, q db.Querier, r *Resource) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode resource: %w", err)
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO clinical_resource (id, patient_id, kind, identity_key, body, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.PatientID, string(r.Kind), r.IdentityKey, body, r.RecordedAt); err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	for _, cd := range r.Codings() {
		if _, err := q.Exec(ctx, `
			INSERT INTO resource_code_index (patient_id, system, code, resource_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING`,
			r.PatientID, cd.System, cd.Code, r.ID); err != nil {
			return fmt.Errorf("index resource code: %w", err)
		}
	}
	if r.Kind == extraction.KindEncounter && !r.Effective.IsZero() {
		if _, err := q.Exec(ctx, `
			INSERT INTO encounter_date_index (patient_id, encounter_at, resource_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			r.PatientID, r.Effective.Time(), r.ID); err != nil {
			return fmt.Errorf("index encounter date: %w", err)
		}
	}
	return nil
}

func (s *storePG) LookupCommit(ctx context.Context, documentID, patientID uuid.UUID) (json.RawMessage, error) {
	var result []byte
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT result FROM merge_commit WHERE document_id = $1 AND patient_id = $2`,
		documentID, patientID).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup merge commit: %w", err)
	}
	return json.RawMessage(result), nil
}

func (s *storePG) ClaimCompletion(ctx context.Context, documentID, patientID uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE merge_commit SET completed_at = $3
		WHERE document_id = $1 AND patient_id = $2 AND completed_at IS NULL`,
		documentID, patientID, at)
	if err != nil {
		return false, fmt.Errorf("claim merge completion: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM merge_commit WHERE document_id = $1 AND patient_id = $2)`,
		documentID, patientID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check merge commit: %w", err)
	}
	if !exists {
		return false, ErrCommitNotFound
	}
	return false, nil
}

func (s *storePG) ListConflicts(ctx context.Context, batchID uuid.UUID) ([]ConflictEntry, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, batch_id, severity, type, field, incoming_id, existing_id, strategy, detected_at
		FROM merge_conflict WHERE batch_id = $1 ORDER BY detected_at, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()
	var items []ConflictEntry
	for rows.Next() {
		var c ConflictEntry
		var incoming, existing *uuid.UUID
		if err := rows.Scan(&c.ID, &c.BatchID, &c.Severity, &c.Type, &c.Field,
			&incoming, &existing, &c.Strategy, &c.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		if incoming != nil {
			c.IncomingID = *incoming
		}
		if existing != nil {
			c.ExistingID = *existing
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (s *storePG) SearchCode(ctx context.Context, patientID uuid.UUID, system, code string) ([]*Resource, error) {
	return s.queryResources(ctx, `
		SELECT r.body FROM resource_code_index i
		JOIN clinical_resource r ON r.id = i.resource_id
		WHERE i.patient_id = $1 AND i.system = $2 AND i.code = $3
		  AND NOT EXISTS (SELECT 1 FROM resource_supersession s WHERE s.superseded_id = r.id)
		ORDER BY r.seq`, patientID, system, code)
}

func (s *storePG) Timeline(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Resource, error) {
	return s.queryResources(ctx, `
		SELECT r.body FROM encounter_date_index e
		JOIN clinical_resource r ON r.id = e.resource_id
		WHERE e.patient_id = $1
		  AND ($2::timestamptz IS NULL OR e.encounter_at >= $2)
		  AND ($3::timestamptz IS NULL OR e.encounter_at <= $3)
		  AND NOT EXISTS (SELECT 1 FROM resource_supersession s WHERE s.superseded_id = r.id)
		ORDER BY e.encounter_at, r.seq`, patientID, nullTime(from), nullTime(to))
}

func (s *storePG) queryResources(ctx context.Context, sql string, args ...any) ([]*Resource, error) {
	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Resource
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r Resource
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("decode resource: %w", err)
		}
		items = append(items, &r)
	}
	return items, rows.Err()
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
