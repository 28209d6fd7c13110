// Package storage defines the Filigree store's public contract: the
// transactional issue/dependency/event/file engine over a single embedded
// database file.
package storage

import "errors"

// Sentinel errors every backend wraps its failures with, so callers can
// use errors.Is regardless of the underlying driver error text.
var (
	ErrNotFound   = errors.New("filigree: not found")
	ErrValidation = errors.New("filigree: validation failed")
	ErrTransition = errors.New("filigree: transition blocked")
	ErrConflict   = errors.New("filigree: conflict")
	ErrCycle      = errors.New("filigree: dependency cycle")
	ErrDependency = errors.New("filigree: invalid dependency")
	ErrMigration  = errors.New("filigree: migration failed")
	ErrLocked     = errors.New("filigree: store locked by another process")
)
