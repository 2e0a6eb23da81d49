package featureflags

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainstatus/statuspage/internal/status"
)

const upsertFlagQuery = `
	INSERT INTO feature_flags (key, value, updated_at, updated_by)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at,
		updated_by = EXCLUDED.updated_by
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL feature flags repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetAllFlags retrieves all stored feature flags.
func (r *PostgresRepository) GetAllFlags(ctx context.Context) (map[string]*Flag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT key, value, updated_at, updated_by
		FROM feature_flags
		ORDER BY key
	`)
	if err != nil {
		return nil, status.Storage("list feature flags", err)
	}
	defer rows.Close()

	flags := make(map[string]*Flag)
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, status.Storage("list feature flags", err)
		}
		flags[flag.Key] = flag
	}
	if err := rows.Err(); err != nil {
		return nil, status.Storage("list feature flags", err)
	}
	return flags, nil
}

// SetFlags creates or updates multiple feature flags in one transaction.
func (r *PostgresRepository) SetFlags(ctx context.Context, flags []*Flag) error {
	batch := &pgx.Batch{}
	for _, flag := range flags {
		args, err := flagArgs(flag)
		if err != nil {
			return err
		}
		batch.Queue(upsertFlagQuery, args...)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return status.Storage("set feature flags", err)
	}
	return nil
}

// DeleteFlag removes a feature flag so its default applies again.
func (r *PostgresRepository) DeleteFlag(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`, key); err != nil {
		return status.Storage("delete feature flag", err)
	}
	return nil
}

func flagArgs(flag *Flag) ([]interface{}, error) {
	value, err := json.Marshal(flag.Value)
	if err != nil {
		return nil, fmt.Errorf("encoding flag %s: %w", flag.Key, err)
	}
	return []interface{}{flag.Key, value, flag.UpdatedAt, flag.UpdatedBy}, nil
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		flag  Flag
		value []byte
	)
	if err := row.Scan(&flag.Key, &value, &flag.UpdatedAt, &flag.UpdatedBy); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(value, &flag.Value); err != nil {
		return nil, fmt.Errorf("decoding flag %s: %w", flag.Key, err)
	}
	return &flag, nil
}

var _ Repository = (*PostgresRepository)(nil)
