package subscriber

import "context"

// Repository defines the interface for subscriber persistence.
type Repository interface {
	// Create stores a new subscriber. Returns ErrEmailTaken if the email is
	// already registered.
	Create(ctx context.Context, sub *Subscriber) error

	// Update replaces a stored subscriber.
	Update(ctx context.Context, sub *Subscriber) error

	// GetByEmail retrieves a subscriber by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*Subscriber, error)

	// GetByVerifyToken retrieves a subscriber by verification token.
	GetByVerifyToken(ctx context.Context, token string) (*Subscriber, error)

	// GetByManageToken retrieves a subscriber by manage token.
	GetByManageToken(ctx context.Context, token string) (*Subscriber, error)

	// ListActive returns verified subscribers that have not unsubscribed.
	ListActive(ctx context.Context) ([]*Subscriber, error)
}
