package incident

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainstatus/statuspage/internal/status"
)

// createAttempts bounds how often CreateOpen retries when the conflicting
// incident is resolved between the insert and the follow-up read.
const createAttempts = 3

// PostgresRepository is a PostgreSQL implementation of Repository.
// The one-open-incident-per-service rule is enforced by the partial unique
// index incidents_one_open_per_service.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL incident repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const incidentColumns = `
	id, service_id, title, description, severity, status,
	impact_start_at, impact_end_at, resolved_at, postmortem,
	created_by, created_at, updated_at`

// CreateOpen inserts the incident and its first update in one transaction.
func (r *PostgresRepository) CreateOpen(ctx context.Context, inc *Incident, first *Update) (CreateResult, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		created, err := r.insert(ctx, inc, first)
		if err != nil {
			return CreateResult{}, err
		}
		if created {
			return CreateResult{Outcome: Created, Incident: copyIncident(inc)}, nil
		}
		if inc.ServiceID == nil {
			return CreateResult{}, status.Storage("insert incident", errors.New("insert skipped"))
		}

		existing, err := r.GetOpenForService(ctx, *inc.ServiceID)
		if errors.Is(err, ErrIncidentNotFound) {
			// Resolved in between; try the insert again.
			continue
		}
		if err != nil {
			return CreateResult{}, err
		}
		return CreateResult{Outcome: AlreadyOpen, Incident: existing}, nil
	}
	return CreateResult{}, status.Storage("create incident", errors.New("open incident kept changing"))
}

func (r *PostgresRepository) insert(ctx context.Context, inc *Incident, first *Update) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, status.Storage("begin create incident", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	query := `
		INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (service_id) WHERE status <> 'RESOLVED' DO NOTHING
	`
	tag, err := tx.Exec(ctx, query,
		inc.ID,
		inc.ServiceID,
		inc.Title,
		inc.Description,
		inc.Severity,
		inc.Status,
		inc.ImpactStartAt,
		inc.ImpactEndAt,
		inc.ResolvedAt,
		inc.Postmortem,
		inc.CreatedBy,
		inc.CreatedAt,
		inc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, status.Storage("insert incident", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if first != nil {
		if err := insertUpdate(ctx, tx, first); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, status.Storage("commit incident", err)
	}
	return true, nil
}

// Get retrieves an incident by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Incident, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	return scanOne(row)
}

// GetOpenForService returns the open incident of a service.
func (r *PostgresRepository) GetOpenForService(ctx context.Context, serviceID string) (*Incident, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE service_id = $1 AND status <> 'RESOLVED'
	`, serviceID)
	return scanOne(row)
}

// ListOpen returns every open incident, newest impact first.
func (r *PostgresRepository) ListOpen(ctx context.Context) ([]*Incident, error) {
	return r.list(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE status <> 'RESOLVED'
		ORDER BY impact_start_at DESC
	`)
}

// ListResolvedSince returns incidents resolved at or after since, newest first.
func (r *PostgresRepository) ListResolvedSince(ctx context.Context, since time.Time) ([]*Incident, error) {
	return r.list(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE resolved_at >= $1
		ORDER BY resolved_at DESC
	`, since)
}

// AppendUpdate adds an update to an open incident.
func (r *PostgresRepository) AppendUpdate(ctx context.Context, upd *Update, newStatus status.IncidentStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return status.Storage("begin append update", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	tag, err := tx.Exec(ctx, `
		UPDATE incidents
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> 'RESOLVED'
	`, upd.IncidentID, newStatus, upd.CreatedAt)
	if err != nil {
		return status.Storage("update incident status", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrResolved(ctx, upd.IncidentID)
	}

	if err := insertUpdate(ctx, tx, upd); err != nil {
		return err
	}
	return status.Storage("commit update", tx.Commit(ctx))
}

// Resolve marks an open incident resolved and appends the closing update.
func (r *PostgresRepository) Resolve(ctx context.Context, id string, closing *Update, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, status.Storage("begin resolve", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	tag, err := tx.Exec(ctx, `
		UPDATE incidents
		SET status = 'RESOLVED',
			resolved_at = $2,
			impact_end_at = COALESCE(impact_end_at, $2),
			updated_at = $2
		WHERE id = $1 AND status <> 'RESOLVED'
	`, id, at)
	if err != nil {
		return false, status.Storage("resolve incident", err)
	}
	if tag.RowsAffected() == 0 {
		if err := r.missingOrResolved(ctx, id); !errors.Is(err, ErrIncidentResolved) {
			return false, err
		}
		return false, nil
	}

	if closing != nil {
		if err := insertUpdate(ctx, tx, closing); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, status.Storage("commit resolve", err)
	}
	return true, nil
}

// SetPostmortem stores the postmortem text.
func (r *PostgresRepository) SetPostmortem(ctx context.Context, id string, text string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE incidents SET postmortem = $2, updated_at = $3 WHERE id = $1
	`, id, text, at)
	if err != nil {
		return status.Storage("set postmortem", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

// ListUpdates returns an incident's updates in timestamp order.
func (r *PostgresRepository) ListUpdates(ctx context.Context, incidentID string) ([]*Update, error) {
	if _, err := r.Get(ctx, incidentID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, incident_id, status, message, author, created_at
		FROM incident_updates
		WHERE incident_id = $1
		ORDER BY created_at, id
	`, incidentID)
	if err != nil {
		return nil, status.Storage("list updates", err)
	}
	defer rows.Close()

	var updates []*Update
	for rows.Next() {
		var u Update
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.Status, &u.Message, &u.Author, &u.CreatedAt); err != nil {
			return nil, status.Storage("scan update", err)
		}
		updates = append(updates, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, status.Storage("list updates", err)
	}
	return updates, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...interface{}) ([]*Incident, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, status.Storage("list incidents", err)
	}
	defer rows.Close()

	var incidents []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, status.Storage("scan incident", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, status.Storage("list incidents", err)
	}
	return incidents, nil
}

func (r *PostgresRepository) missingOrResolved(ctx context.Context, id string) error {
	inc, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !inc.Open() {
		return ErrIncidentResolved
	}
	return status.Storage("update incident", errors.New("incident changed concurrently"))
}

func insertUpdate(ctx context.Context, tx pgx.Tx, u *Update) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO incident_updates (id, incident_id, status, message, author, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.IncidentID, u.Status, u.Message, u.Author, u.CreatedAt)
	return status.Storage("insert incident update", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanOne(row pgx.Row) (*Incident, error) {
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, status.Storage("get incident", err)
	}
	return inc, nil
}

func scanIncident(row pgx.Row) (*Incident, error) {
	var inc Incident
	err := row.Scan(
		&inc.ID,
		&inc.ServiceID,
		&inc.Title,
		&inc.Description,
		&inc.Severity,
		&inc.Status,
		&inc.ImpactStartAt,
		&inc.ImpactEndAt,
		&inc.ResolvedAt,
		&inc.Postmortem,
		&inc.CreatedBy,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

var _ Repository = (*PostgresRepository)(nil)
