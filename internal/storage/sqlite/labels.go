package sqlite

import (
	"context"
	"fmt"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

// AddLabel attaches label to issueID, rejecting names that collide with a
// registered type name and tolerating a duplicate add as a no-op rather
// than a conflict.
func (s *Store) AddLabel(ctx context.Context, issueID, label, actor string) error {
	if err := types.ValidateLabelName(label, nil); err != nil {
		return err
	}
	if s.registry.IsReservedLabel(label) {
		return fmt.Errorf("%w: label %q collides with a registered type name", storage.ErrValidation, label)
	}
	if _, err := s.getIssueRaw(ctx, s.db, issueID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`, issueID, label); err != nil {
		return wrapDBErrorf(err, "insert label")
	}
	if err := s.appendEvent(ctx, issueID, "label_added", actor, nil, &label, nil); err != nil {
		s.logger.Warn("failed to record label_added event", "issue_id", issueID, "error", err)
	}
	s.notifyMutated()
	return nil
}

// RemoveLabel detaches label from issueID. Removing an absent label is a
// no-op, matching AddLabel's idempotence.
func (s *Store) RemoveLabel(ctx context.Context, issueID, label, actor string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM labels WHERE issue_id = ? AND label = ?`, issueID, label)
	if err != nil {
		return wrapDBErrorf(err, "delete label")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if err := s.appendEvent(ctx, issueID, "label_removed", actor, &label, nil, nil); err != nil {
		s.logger.Warn("failed to record label_removed event", "issue_id", issueID, "error", err)
	}
	s.notifyMutated()
	return nil
}
