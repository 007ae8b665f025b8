package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/clinicalmerge/internal/platform/db"
)

type repoPG struct{ pool db.Pool }

func NewRepoPG(pool db.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `batch_id, document_id, patient_id, status, flag_reasons, conflict_ids,
	version, reviewed_by, reviewed_at, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.BatchID, &rec.DocumentID, &rec.PatientID, &status, &rec.FlagReasons, &rec.ConflictIDs,
		&rec.Version, &rec.ReviewedBy, &rec.ReviewedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	return &rec, nil
}

func (r *repoPG) Create(ctx context.Context, rec *Record) (*Record, error) {
	if rec.FlagReasons == nil {
		rec.FlagReasons = []string{}
	}
	if rec.ConflictIDs == nil {
		rec.ConflictIDs = []uuid.UUID{}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO review_record (batch_id, document_id, patient_id, status, flag_reasons, conflict_ids, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		ON CONFLICT (batch_id) DO NOTHING`,
		rec.BatchID, rec.DocumentID, rec.PatientID, string(rec.Status), rec.FlagReasons, rec.ConflictIDs, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert review record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.Get(ctx, rec.BatchID)
	}
	rec.Version = 1
	rec.UpdatedAt = rec.CreatedAt
	return rec, nil
}

func (r *repoPG) Get(ctx context.Context, batchID uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM review_record WHERE batch_id = $1`, batchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review record: %w", err)
	}
	return rec, nil
}

func (r *repoPG) Update(ctx context.Context, rec *Record, expectedVersion int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE review_record
		SET status = $2, flag_reasons = $3, conflict_ids = $4, reviewed_by = $5, reviewed_at = $6,
			version = version + 1, updated_at = $7
		WHERE batch_id = $1 AND version = $8`,
		rec.BatchID, string(rec.Status), rec.FlagReasons, rec.ConflictIDs, rec.ReviewedBy, rec.ReviewedAt,
		rec.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update review record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, rec.BatchID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	return nil
}

func (r *repoPG) List(ctx context.Context, status Status, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM review_record WHERE ($1 = '' OR status = $1)`, string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count review records: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recordCols+` FROM review_record
		WHERE ($1 = '' OR status = $1) ORDER BY created_at, batch_id LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list review records: %w", err)
	}
	defer rows.Close()
	items := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review record: %w", err)
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
