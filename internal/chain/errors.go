package chain

import "errors"

// Error kinds the Blockchain aggregate surfaces to its callers. Everything
// else — a well-formed block losing the successor or ledger checks, a
// candidate chain losing on accumulated difficulty — is reported as a
// boolean result, never an error.
var (
	// ErrBadRequest wraps a caller mistake: a malformed candidate, an
	// unparseable address, a non-positive amount, a transaction the pool
	// refused. State is never mutated when this is returned.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound wraps a lookup miss by hash or id.
	ErrNotFound = errors.New("not found")
)
