package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

// wrapDBError normalizes sql.ErrNoRows to storage.ErrNotFound and wraps
// every other error with the failing operation name, so callers always get
// a sentinel-comparable error regardless of driver wording.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func isNotFound(err error) bool { return errors.Is(err, storage.ErrNotFound) }

// isConflict also matches *types.ConflictError directly: ClaimIssue raises
// that typed error rather than wrapping the storage.ErrConflict sentinel,
// since callers generally want the structured Reason/CurrentAssignee over
// a bare sentinel check — ClaimNext's retry loop needs both forms.
func isConflict(err error) bool {
	if errors.Is(err, storage.ErrConflict) {
		return true
	}
	var ce *types.ConflictError
	return errors.As(err, &ce)
}

func isCycle(err error) bool { return errors.Is(err, storage.ErrCycle) }
