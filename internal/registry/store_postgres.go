package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pinksync/pkg/domain"
)

// PostgresStore persists declarations via pgx. Schema:
//
//	CREATE TABLE capability_declarations (
//	    app_id        TEXT PRIMARY KEY,
//	    capabilities  TEXT[] NOT NULL,
//	    level         TEXT NOT NULL,
//	    version       TEXT NOT NULL,
//	    flags         TEXT[] NOT NULL,
//	    status        TEXT NOT NULL,
//	    registered_at TIMESTAMPTZ NOT NULL,
//	    updated_at    TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, appID domain.AppID) (*Declaration, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT app_id, capabilities, level, version, flags, status, registered_at, updated_at
		FROM capability_declarations WHERE app_id = $1
	`, appID.String())

	d, err := scanDeclaration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get declaration: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Put(ctx context.Context, d Declaration) error {
	caps := make([]string, len(d.Capabilities))
	for i, c := range d.Capabilities {
		caps[i] = c.String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO capability_declarations (app_id, capabilities, level, version, flags, status, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (app_id) DO UPDATE SET
			capabilities = EXCLUDED.capabilities,
			level        = EXCLUDED.level,
			version      = EXCLUDED.version,
			flags        = EXCLUDED.flags,
			status       = EXCLUDED.status,
			updated_at   = EXCLUDED.updated_at
	`, d.AppID.String(), caps, d.Level.String(), d.Version, d.Flags, string(d.Status), d.RegisteredAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert declaration: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Declaration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT app_id, capabilities, level, version, flags, status, registered_at, updated_at
		FROM capability_declarations
	`)
	if err != nil {
		return nil, fmt.Errorf("list declarations: %w", err)
	}
	defer rows.Close()

	var out []Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan declaration: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDeclaration(row pgx.Row) (*Declaration, error) {
	var d Declaration
	var appID, level, status string
	var caps []string
	if err := row.Scan(&appID, &caps, &level, &d.Version, &d.Flags, &status, &d.RegisteredAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.AppID = domain.AppID(appID)
	d.Level = domain.Level(level)
	d.Status = Status(status)
	d.Capabilities = make([]domain.Intent, len(caps))
	for i, c := range caps {
		d.Capabilities[i] = domain.Intent(c)
	}
	return &d, nil
}
