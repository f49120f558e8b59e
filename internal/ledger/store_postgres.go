package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists ledger entries via database/sql. Schema:
//
//	CREATE TABLE ledger_entries (
//	    seq           BIGINT PRIMARY KEY,
//	    prev_hash     TEXT NOT NULL,
//	    entry_hash    TEXT NOT NULL,
//	    entry_type    TEXT NOT NULL,
//	    payload       JSONB NOT NULL,
//	    mirror_status TEXT NOT NULL,
//	    recorded_at   TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO ledger_entries (seq, prev_hash, entry_hash, entry_type, payload, mirror_status, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.Seq,
		entry.PrevHash,
		entry.EntryHash,
		string(entry.Type),
		[]byte(entry.Payload),
		string(entry.MirrorStatus),
		entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Head(ctx context.Context) (*Entry, error) {
	query := `
		SELECT seq, prev_hash, entry_hash, entry_type, payload, mirror_status, recorded_at
		FROM ledger_entries ORDER BY seq DESC LIMIT 1
	`
	entry, err := s.scanOne(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func (s *PostgresStore) Range(ctx context.Context, from, to uint64) ([]Entry, error) {
	query := `
		SELECT seq, prev_hash, entry_hash, entry_type, payload, mirror_status, recorded_at
		FROM ledger_entries WHERE seq >= $1 AND seq <= $2 ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query ledger range: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var typ, status string
		if err := rows.Scan(&e.Seq, &e.PrevHash, &e.EntryHash, &typ, (*[]byte)(&e.Payload), &status, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = EntryType(typ)
		e.MirrorStatus = MirrorStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) SetMirrorStatus(ctx context.Context, seq uint64, status MirrorStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_entries SET mirror_status = $1 WHERE seq = $2`,
		string(status), seq,
	)
	if err != nil {
		return fmt.Errorf("update mirror status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown seq %d", seq)
	}
	return nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Entry, error) {
	var e Entry
	var typ, status string
	if err := row.Scan(&e.Seq, &e.PrevHash, &e.EntryHash, &typ, (*[]byte)(&e.Payload), &status, &e.RecordedAt); err != nil {
		return nil, err
	}
	e.Type = EntryType(typ)
	e.MirrorStatus = MirrorStatus(status)
	return &e, nil
}
