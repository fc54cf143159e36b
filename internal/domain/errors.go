package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the cart and notification engines. Callers are
// expected to translate these kinds into user feedback.
var (
	// ErrValidation rejects malformed input before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks mutations against an id the backing store no
	// longer has.
	ErrNotFound = errors.New("not found")

	// ErrAuthRequired marks a remote-mode call attempted without an
	// authenticated session. Mode selection should make it unreachable,
	// but remote paths fail closed instead of downgrading to local mode.
	ErrAuthRequired = errors.New("authentication required")
)

// TransientError wraps retry-eligible failures such as timeouts, transport
// errors and 5xx responses. State is unchanged when one is returned.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retry-eligible. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether any error in the chain is retry-eligible.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
