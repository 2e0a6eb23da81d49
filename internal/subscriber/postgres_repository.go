package subscriber

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainstatus/statuspage/internal/status"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL subscriber repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const subscriberColumns = `
	id, email, verified, unsubscribed, notify_all, notify_major, notify_services,
	verify_token, manage_token, created_at, updated_at, verified_at`

// Create stores a new subscriber.
func (r *PostgresRepository) Create(ctx context.Context, sub *Subscriber) error {
	query := `
		INSERT INTO subscribers (` + subscriberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query, subscriberArgs(sub)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return status.Storage("create subscriber", err)
	}
	return nil
}

// Update replaces a stored subscriber.
func (r *PostgresRepository) Update(ctx context.Context, sub *Subscriber) error {
	query := `
		UPDATE subscribers SET
			email = $2,
			verified = $3,
			unsubscribed = $4,
			notify_all = $5,
			notify_major = $6,
			notify_services = $7,
			verify_token = $8,
			manage_token = $9,
			created_at = $10,
			updated_at = $11,
			verified_at = $12
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, subscriberArgs(sub)...)
	if err != nil {
		return status.Storage("update subscriber", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

// GetByEmail retrieves a subscriber by email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Subscriber, error) {
	return r.getOne(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1`, email)
}

// GetByVerifyToken retrieves a subscriber by verification token.
func (r *PostgresRepository) GetByVerifyToken(ctx context.Context, token string) (*Subscriber, error) {
	return r.getOne(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE verify_token = $1`, token)
}

// GetByManageToken retrieves a subscriber by manage token.
func (r *PostgresRepository) GetByManageToken(ctx context.Context, token string) (*Subscriber, error) {
	return r.getOne(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE manage_token = $1`, token)
}

// ListActive returns verified subscribers that have not unsubscribed.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Subscriber, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE verified AND NOT unsubscribed
		ORDER BY created_at
	`)
	if err != nil {
		return nil, status.Storage("list subscribers", err)
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, status.Storage("scan subscriber", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, status.Storage("list subscribers", err)
	}
	return subs, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*Subscriber, error) {
	sub, err := scanSubscriber(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, status.Storage("get subscriber", err)
	}
	return sub, nil
}

func subscriberArgs(sub *Subscriber) []interface{} {
	services := sub.NotifyServices
	if services == nil {
		services = []string{}
	}
	return []interface{}{
		sub.ID,
		sub.Email,
		sub.Verified,
		sub.Unsubscribed,
		sub.NotifyAll,
		sub.NotifyMajor,
		services,
		sub.VerifyToken,
		sub.ManageToken,
		sub.CreatedAt,
		sub.UpdatedAt,
		sub.VerifiedAt,
	}
}

func scanSubscriber(row pgx.Row) (*Subscriber, error) {
	var sub Subscriber
	err := row.Scan(
		&sub.ID,
		&sub.Email,
		&sub.Verified,
		&sub.Unsubscribed,
		&sub.NotifyAll,
		&sub.NotifyMajor,
		&sub.NotifyServices,
		&sub.VerifyToken,
		&sub.ManageToken,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.VerifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

var _ Repository = (*PostgresRepository)(nil)
