package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and lock backends return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: a compare-and-swap lost against a concurrent writer
//   - ErrDuplicate: a unique identity document is already bound elsewhere
//   - ErrUnavailable: backing service unreachable
//   - ErrLockTimeout: a per-key lock could not be acquired in time
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrDuplicate   = errors.New("duplicate")
	ErrUnavailable = errors.New("unavailable")
	ErrLockTimeout = errors.New("lock timeout")
)
