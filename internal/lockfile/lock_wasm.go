//go:build js && wasm

package lockfile

import (
	"errors"
	"os"
)

var errStoreLocked = errors.New("filigree: store already locked by another process")

// FlockExclusiveNonBlocking is a no-op in WASM (single-process environment).
func FlockExclusiveNonBlocking(f *os.File) error {
	return nil
}

// FlockExclusiveBlocking is a no-op in WASM.
func FlockExclusiveBlocking(f *os.File) error {
	return nil
}

// FlockUnlock is a no-op in WASM.
func FlockUnlock(f *os.File) error {
	return nil
}
