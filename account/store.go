// Package account declares the account collaborator the engine reads
// affiliate ids from and stores access expiries in.
package account

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a user, affiliate id or attribute is absent.
var ErrNotFound = errors.New("affiliate: account not found")

// Store is the account collaborator. Implementations must be safe for
// concurrent use.
type Store interface {
	// FindAffiliateID returns the affiliate id owned by userRef.
	FindAffiliateID(ctx context.Context, userRef string) (string, error)

	// FindUserByAffiliateID returns the user owning affiliateID.
	FindUserByAffiliateID(ctx context.Context, affiliateID string) (string, error)

	GetAttribute(ctx context.Context, userRef, key string) (string, error)
	SetAttribute(ctx context.Context, userRef, key, value string) error

	// DeleteAttribute is a no-op when the attribute is absent.
	DeleteAttribute(ctx context.Context, userRef, key string) error
}

// ActorContext names the parties of a payment explicitly, instead of
// discovering the current user from ambient state.
type ActorContext struct {
	CustomerRef string
	SponsorRef  string
	Campaign    string
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
