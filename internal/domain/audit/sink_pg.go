package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/clinicalmerge/internal/platform/db"
)

// auditLockKey serializes appends across processes sharing the database.
const auditLockKey int64 = 0x61756469

type pgSink struct{ pool db.Pool }

// NewPGSink stores the trail in the audit_entry table.
func NewPGSink(pool db.Pool) Sink {
	return &pgSink{pool: pool}
}

func (s *pgSink) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *pgSink) Append(ctx context.Context, e *Entry) error {
	return db.InTx(ctx, s.pool, func(ctx context.Context) error {
		q := s.conn(ctx)
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, auditLockKey); err != nil {
			return fmt.Errorf("lock audit chain: %w", err)
		}

		prevSeq, prevHash := int64(0), GenesisHash
		err := q.QueryRow(ctx,
			`SELECT sequence, hash FROM audit_entry ORDER BY sequence DESC LIMIT 1`).Scan(&prevSeq, &prevHash)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read audit head: %w", err)
		}
		Seal(e, prevSeq, prevHash)

		targets, err := json.Marshal(e.Targets)
		if err != nil {
			return fmt.Errorf("encode targets: %w", err)
		}
		outcome, err := json.Marshal(e.Outcome)
		if err != nil {
			return fmt.Errorf("encode outcome: %w", err)
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO audit_entry (sequence, id, event_type, actor, targets, outcome, recorded, prev_hash, hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.Sequence, e.ID, string(e.EventType), e.Actor, targets, outcome, e.Recorded, e.PrevHash, e.Hash); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		return nil
	})
}

const entryCols = `sequence, id, event_type, actor, targets, outcome, recorded, prev_hash, hash`

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e                Entry
		eventType        string
		targets, outcome []byte
	)
	if err := row.Scan(&e.Sequence, &e.ID, &eventType, &e.Actor, &targets, &outcome, &e.Recorded, &e.PrevHash, &e.Hash); err != nil {
		return nil, err
	}
	e.EventType = EventType(eventType)
	if err := json.Unmarshal(targets, &e.Targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if err := json.Unmarshal(outcome, &e.Outcome); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	e.Recorded = e.Recorded.UTC()
	return &e, nil
}

func (s *pgSink) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := `WHERE ($1 = '' OR event_type = $1) AND ($2 = '' OR targets->>'batch_id' = $2)`

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM audit_entry `+where,
		string(f.EventType), f.BatchID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM audit_entry `+where+` ORDER BY sequence LIMIT $3 OFFSET $4`,
		string(f.EventType), f.BatchID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	items := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

// Walk pages through the trail so a long chain is never held in memory.
func (s *pgSink) Walk(ctx context.Context, fn func(*Entry) error) error {
	const page = 500
	after := int64(0)
	for {
		rows, err := s.conn(ctx).Query(ctx,
			`SELECT `+entryCols+` FROM audit_entry WHERE sequence > $1 ORDER BY sequence LIMIT $2`, after, page)
		if err != nil {
			return fmt.Errorf("read audit entries: %w", err)
		}
		var batch []*Entry
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan audit entry: %w", err)
			}
			batch = append(batch, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, e := range batch {
			if err := fn(e); err != nil {
				return err
			}
			after = e.Sequence
		}
		if len(batch) < page {
			return nil
		}
	}
}
