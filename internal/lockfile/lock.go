// Package lockfile provides OS-level advisory locking for a single store
// directory, so two processes never open the same .filigree database for
// writing at once.
package lockfile

import "errors"

// ErrLocked is returned by Acquire when the store is already locked by
// another process.
var ErrLocked = errStoreLocked

// ErrLockBusy is returned by the lower-level non-blocking primitives when a
// conflicting lock is already held.
var ErrLockBusy = errors.New("filigree: lock busy, held by another process")

// IsLocked reports whether err indicates the store is held by another process.
func IsLocked(err error) bool {
	return err == errStoreLocked
}
