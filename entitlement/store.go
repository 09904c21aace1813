package entitlement

import "context"

// Store is the slice of the account store the calculator needs. Expiries
// are kept as "YYYY-MM-DD" attributes; a missing attribute is reported as
// account.ErrNotFound.
type Store interface {
	GetAttribute(ctx context.Context, userRef, key string) (string, error)
	SetAttribute(ctx context.Context, userRef, key, value string) error
}
