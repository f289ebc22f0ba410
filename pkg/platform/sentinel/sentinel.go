package sentinel

import "errors"

// Sentinel errors shared by the ledger stores, the issuer registry and the
// signing keyring. Adapters wrap them; the trust service maps them onto
// domain error codes.
//
//   - ErrNotFound: no block, issuer or key for the given id
//   - ErrConflict: the credential id is already on the ledger
//   - ErrInvalidState: the ledger is not Active (see ledger.ErrNotInitialized)
//   - ErrUnavailable: the issuer registry or keyring cannot be reached
//
// Bad input is a validation error; use pkg/domain-errors for that.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
