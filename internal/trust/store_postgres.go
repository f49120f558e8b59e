package trust

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists identities via pgx. Schema:
//
//	CREATE TABLE trust_identities (
//	    uid           TEXT PRIMARY KEY,
//	    trust_score   BIGINT NOT NULL,
//	    contributions BIGINT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL,
//	    updated_at    TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, uid string) (*Identity, error) {
	var id Identity
	err := s.pool.QueryRow(ctx, `
		SELECT uid, trust_score, contributions, created_at, updated_at
		FROM trust_identities WHERE uid = $1
	`, uid).Scan(&id.UID, &id.TrustScore, &id.Contributions, &id.CreatedAt, &id.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &id, nil
}

func (s *PostgresStore) Put(ctx context.Context, identity Identity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trust_identities (uid, trust_score, contributions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid) DO UPDATE SET
			trust_score   = EXCLUDED.trust_score,
			contributions = EXCLUDED.contributions,
			updated_at    = EXCLUDED.updated_at
	`, identity.UID, identity.TrustScore, identity.Contributions, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}
