package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainstatus/statuspage/internal/status"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL service repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const serviceColumns = `
	id, slug, name, category, description, probe_url, public, sort_order,
	status, last_checked_at, last_response_ms, last_status_change_at,
	uptime_day, uptime_week, uptime_month, uptime_all_time,
	created_at, updated_at`

// Get retrieves a service by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Service, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id)
	return scanOne(row)
}

// GetBySlug retrieves a service by its unique slug.
func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*Service, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE slug = $1`, slug)
	return scanOne(row)
}

// List returns services ordered by sort order then slug.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`
	if opts.PublicOnly {
		query += ` WHERE public`
	}
	query += ` ORDER BY sort_order, slug`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, status.Storage("list services", err)
	}
	defer rows.Close()

	var services []*Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, status.Storage("scan service", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, status.Storage("list services", err)
	}
	return services, nil
}

// Upsert creates a service or refreshes its descriptive fields, keyed by slug.
func (r *PostgresRepository) Upsert(ctx context.Context, svc *Service) (bool, error) {
	query := `
		INSERT INTO services (
			id, slug, name, category, description, probe_url, public, sort_order,
			status, last_status_change_at, uptime_day, uptime_week, uptime_month, uptime_all_time,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			probe_url = EXCLUDED.probe_url,
			public = EXCLUDED.public,
			sort_order = EXCLUDED.sort_order,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		svc.ID,
		svc.Slug,
		svc.Name,
		svc.Category,
		svc.Description,
		svc.ProbeURL,
		svc.Public,
		svc.SortOrder,
		svc.Status,
		svc.LastStatusChangeAt,
		svc.Uptime.Day,
		svc.Uptime.Week,
		svc.Uptime.Month,
		svc.Uptime.AllTime,
		svc.CreatedAt,
		svc.UpdatedAt,
	).Scan(&svc.ID, &inserted)
	if err != nil {
		return false, status.Storage("upsert service", err)
	}
	return inserted, nil
}

// RecordCheck stores the last-checked timestamp and response time.
func (r *PostgresRepository) RecordCheck(ctx context.Context, id string, checkedAt time.Time, responseTimeMs *int) error {
	return r.exec(ctx, "record check", `
		UPDATE services
		SET last_checked_at = $2, last_response_ms = $3, updated_at = $2
		WHERE id = $1
	`, id, checkedAt, responseTimeMs)
}

// SetStatus stores a new status and its change timestamp.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, level status.Level, changedAt time.Time) error {
	return r.exec(ctx, "set service status", `
		UPDATE services
		SET status = $2, last_status_change_at = $3, updated_at = $3
		WHERE id = $1
	`, id, level, changedAt)
}

// SetVisibility toggles whether the service is publicly listed.
func (r *PostgresRepository) SetVisibility(ctx context.Context, id string, public bool) error {
	return r.exec(ctx, "set service visibility", `UPDATE services SET public = $2 WHERE id = $1`, id, public)
}

// SetUptime stores recomputed rolling uptime percentages.
func (r *PostgresRepository) SetUptime(ctx context.Context, id string, uptime Uptime) error {
	return r.exec(ctx, "set service uptime", `
		UPDATE services
		SET uptime_day = $2, uptime_week = $3, uptime_month = $4, uptime_all_time = $5
		WHERE id = $1
	`, id, uptime.Day, uptime.Week, uptime.Month, uptime.AllTime)
}

func (r *PostgresRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return status.Storage(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func scanOne(row pgx.Row) (*Service, error) {
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, status.Storage("get service", err)
	}
	return svc, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var svc Service
	err := row.Scan(
		&svc.ID,
		&svc.Slug,
		&svc.Name,
		&svc.Category,
		&svc.Description,
		&svc.ProbeURL,
		&svc.Public,
		&svc.SortOrder,
		&svc.Status,
		&svc.LastCheckedAt,
		&svc.LastResponseTimeMs,
		&svc.LastStatusChangeAt,
		&svc.Uptime.Day,
		&svc.Uptime.Week,
		&svc.Uptime.Month,
		&svc.Uptime.AllTime,
		&svc.CreatedAt,
		&svc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

var _ Repository = (*PostgresRepository)(nil)
