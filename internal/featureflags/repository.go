package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when a key has no stored value.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores operator overrides of the default flags.
type Repository interface {
	// GetAllFlags returns every stored flag keyed by flag key.
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)

	// SetFlags upserts flags in one transaction.
	SetFlags(ctx context.Context, flags []*Flag) error

	// DeleteFlag removes the stored value so the default applies again.
	// Deleting a missing key is not an error.
	DeleteFlag(ctx context.Context, key string) error
}
