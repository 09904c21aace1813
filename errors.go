package affiliate

import (
	"errors"
	"fmt"

	"github.com/xraph/affiliate/account"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/referral"
)

// Sentinel errors for common failure scenarios.
var (
	// Normalization errors
	ErrInvalidPayload  = event.ErrInvalidPayload
	ErrUnsupportedType = event.ErrUnsupportedType

	// Lookup errors
	ErrCommissionNotFound = commission.ErrNotFound
	ErrReferralNotFound   = referral.ErrNotFound
	ErrAccountNotFound    = account.ErrNotFound
	ErrUnknownProduct     = catalog.ErrUnknownProduct

	// Ledger errors
	ErrEmptyFilter = commission.ErrEmptyFilter

	// Store errors
	ErrMigrationFailed = errors.New("affiliate: migration failed")
)

// TransientError wraps a storage or lock failure that left the event
// unprocessed or partially processed. Redelivering the same payload is
// safe.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("affiliate: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCommissionNotFound) ||
		errors.Is(err, ErrReferralNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrUnknownProduct)
}

// IsInvalid returns true if the error rejects a payload permanently.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrUnsupportedType)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	var terr *TransientError
	return errors.As(err, &terr)
}
