package uptime

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

// NewPostgresRepository creates a new PostgreSQL metric repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// AppendCheck stores a check result.
func (r *PostgresRepository) AppendCheck(ctx context.Context, check *CheckResult) error {
	query := `
		INSERT INTO check_results (id, service_id, status, response_ms, status_code, error, source, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		check.ID,
		check.ServiceID,
		check.Status,
		check.ResponseTimeMs,
		check.StatusCode,
		check.Error,
		check.Source,
		check.CheckedAt,
	)
	return status.Storage("append check", err)
}

// ListChecks returns the most recent checks of a service, newest first.
func (r *PostgresRepository) ListChecks(ctx context.Context, serviceID string, limit int) ([]*CheckResult, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, service_id, status, response_ms, status_code, error, source, checked_at
		FROM check_results
		WHERE service_id = $1
		ORDER BY checked_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, serviceID, limit)
	if err != nil {
		return nil, status.Storage("list checks", err)
	}
	defer rows.Close()

	var checks []*CheckResult
	for rows.Next() {
		var c CheckResult
		if err := rows.Scan(
			&c.ID,
			&c.ServiceID,
			&c.Status,
			&c.ResponseTimeMs,
			&c.StatusCode,
			&c.Error,
			&c.Source,
			&c.CheckedAt,
		); err != nil {
			return nil, status.Storage("scan check", err)
		}
		checks = append(checks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, status.Storage("list checks", err)
	}
	return checks, nil
}

// IncrementBucket adds one sample to its hour bucket with a single
// increment-on-conflict upsert. A bucket that already exists is always
// incremented; a missing bucket is only created when the service has no
// newer one, otherwise the call surfaces ErrStaleHour.
func (r *PostgresRepository) IncrementBucket(ctx context.Context, sample Sample) (*HourBucket, error) {
	query := `
		INSERT INTO hour_buckets (
			service_id, hour, checks_total, checks_success, checks_failed,
			avg_response_ms, response_samples, uptime_percent
		)
		SELECT $1::text, $2::timestamptz, 1, $3::int, 1 - $3::int,
			$4::double precision, CASE WHEN $4::double precision IS NULL THEN 0 ELSE 1 END,
			100.0 * $3::int
		WHERE EXISTS (
			SELECT 1 FROM hour_buckets WHERE service_id = $1::text AND hour = $2::timestamptz
		) OR NOT EXISTS (
			SELECT 1 FROM hour_buckets WHERE service_id = $1::text AND hour > $2::timestamptz
		)
		ON CONFLICT (service_id, hour) DO UPDATE SET
			checks_total = hour_buckets.checks_total + 1,
			checks_success = hour_buckets.checks_success + EXCLUDED.checks_success,
			checks_failed = hour_buckets.checks_failed + EXCLUDED.checks_failed,
			avg_response_ms = CASE
				WHEN EXCLUDED.avg_response_ms IS NULL THEN hour_buckets.avg_response_ms
				WHEN hour_buckets.avg_response_ms IS NULL THEN EXCLUDED.avg_response_ms
				ELSE (hour_buckets.avg_response_ms * hour_buckets.response_samples + EXCLUDED.avg_response_ms)
					/ (hour_buckets.response_samples + 1)
			END,
			response_samples = hour_buckets.response_samples + EXCLUDED.response_samples,
			uptime_percent = 100.0 * (hour_buckets.checks_success + EXCLUDED.checks_success)
				/ (hour_buckets.checks_total + 1)
		RETURNING service_id, hour, checks_total, checks_success, checks_failed,
			avg_response_ms, response_samples, uptime_percent
	`

	success := 0
	if sample.Success {
		success = 1
	}
	var rt *float64
	if sample.ResponseTimeMs != nil {
		v := float64(*sample.ResponseTimeMs)
		rt = &v
	}

	b, err := scanBucket(r.pool.QueryRow(ctx, query, sample.ServiceID, sample.Hour(), success, rt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleHour
		}
		return nil, status.Storage("increment bucket", err)
	}
	return b, nil
}

// ListBuckets returns buckets with from <= hour < to, oldest first.
func (r *PostgresRepository) ListBuckets(ctx context.Context, serviceID string, from, to time.Time) ([]*HourBucket, error) {
	query := `
		SELECT service_id, hour, checks_total, checks_success, checks_failed,
			avg_response_ms, response_samples, uptime_percent
		FROM hour_buckets
		WHERE service_id = $1 AND hour >= $2 AND hour < $3
		ORDER BY hour
	`

	rows, err := r.pool.Query(ctx, query, serviceID, from, to)
	if err != nil {
		return nil, status.Storage("list buckets", err)
	}
	defer rows.Close()

	var buckets []*HourBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, status.Storage("scan bucket", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, status.Storage("list buckets", err)
	}
	return buckets, nil
}

// Totals returns the summed check counters across every bucket of a service.
func (r *PostgresRepository) Totals(ctx context.Context, serviceID string) (int, int, error) {
	query := `
		SELECT COALESCE(SUM(checks_total), 0), COALESCE(SUM(checks_success), 0)
		FROM hour_buckets
		WHERE service_id = $1
	`

	var total, success int
	if err := r.pool.QueryRow(ctx, query, serviceID).Scan(&total, &success); err != nil {
		return 0, 0, status.Storage("sum buckets", err)
	}
	return total, success, nil
}

func scanBucket(row pgx.Row) (*HourBucket, error) {
	var b HourBucket
	err := row.Scan(
		&b.ServiceID,
		&b.Hour,
		&b.ChecksTotal,
		&b.ChecksSuccess,
		&b.ChecksFailed,
		&b.AvgResponseMs,
		&b.ResponseSamples,
		&b.UptimePercent,
	)
	if err != nil {
		return nil, err
	}
	b.Hour = b.Hour.UTC()
	return &b, nil
}

var _ Repository = (*PostgresRepository)(nil)
