package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/tachyon-beep/filigree/internal/types"
)

// querierExec is the subset of querier recordEvent needs; satisfied by both
// *sql.Conn (inside a transaction) and *sql.DB.
type querierExec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// recordEvent appends one audit-log row, relying on the dedup unique index
// to silently absorb an exact repeat (same issue/type/actor/old/new at the
// same timestamp) rather than erroring — two independent code paths
// recording the same fact at the same instant is a feature, not a bug.
func recordEvent(ctx context.Context, q querierExec, issueID, eventType, actor string, oldValue, newValue, comment *string, createdAt string) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (issue_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		issueID, eventType, actor, oldValue, newValue, comment, createdAt)
	if err != nil {
		return wrapDBErrorf(err, "record event %s", eventType)
	}
	return nil
}

func scanEvent(row interface{ Scan(...any) error }) (*types.Event, error) {
	var (
		e                    types.Event
		oldValue, newValue   sql.NullString
		comment              sql.NullString
		createdAt            string
	)
	if err := row.Scan(&e.ID, &e.IssueID, &e.EventType, &e.Actor, &oldValue, &newValue, &comment, &createdAt); err != nil {
		return nil, err
	}
	if oldValue.Valid {
		v := oldValue.String
		e.OldValue = &v
	}
	if newValue.Valid {
		v := newValue.String
		e.NewValue = &v
	}
	if comment.Valid {
		v := comment.String
		e.Comment = &v
	}
	e.CreatedAt, _ = parseTimeLenient(createdAt)
	return &e, nil
}

// GetRecentEvents returns the most recent events across all issues, newest
// first, joined with issue title for display.
func (s *Store) GetRecentEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.issue_id, e.event_type, e.actor, e.old_value, e.new_value, e.comment, e.created_at, i.title
		FROM events e JOIN issues i ON i.id = e.issue_id
		ORDER BY e.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapDBError("recent events", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		var (
			e                  types.Event
			oldValue, newValue sql.NullString
			comment            sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&e.ID, &e.IssueID, &e.EventType, &e.Actor, &oldValue, &newValue, &comment, &createdAt, &e.IssueTitle); err != nil {
			return nil, err
		}
		if oldValue.Valid {
			v := oldValue.String
			e.OldValue = &v
		}
		if newValue.Valid {
			v := newValue.String
			e.NewValue = &v
		}
		if comment.Valid {
			v := comment.String
			e.Comment = &v
		}
		e.CreatedAt, _ = parseTimeLenient(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// GetIssueEvents returns one issue's history, newest first.
func (s *Store) GetIssueEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error) {
	query := `SELECT id, issue_id, event_type, actor, old_value, new_value, comment, created_at FROM events WHERE issue_id = ? ORDER BY id DESC`
	args := []any{issueID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("issue events", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UndoLast reverts the most recent not-yet-undone reversible event on an
// issue. "released" and "created" are deliberately outside
// types.ReversibleEvents: releasing a claim can't restore a stale assignee
// that no longer reflects reality, and undoing creation would leave
// dangling children/dependencies.
func (s *Store) UndoLast(ctx context.Context, issueID, actor string) (*types.Event, error) {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, wrapDBErrorf(err, "undo last")
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	rows, err := conn.QueryContext(ctx, `
		SELECT id, issue_id, event_type, actor, old_value, new_value, comment, created_at
		FROM events WHERE issue_id = ? ORDER BY id DESC`, issueID)
	if err != nil {
		return nil, wrapDBError("load events for undo", err)
	}
	var candidates []*types.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, e)
	}
	rows.Close()

	var target *types.Event
	for _, e := range candidates {
		if !types.ReversibleEvents[e.EventType] {
			continue
		}
		already, err := eventAlreadyUndone(ctx, conn, e.ID)
		if err != nil {
			return nil, err
		}
		if already {
			continue
		}
		target = e
		break
	}
	if target == nil {
		return nil, fmt.Errorf("no reversible, not-yet-undone event found for issue %s", issueID)
	}

	now := nowISO()
	if err := applyUndo(ctx, conn, target, now); err != nil {
		return nil, err
	}
	if target.EventType == "status_changed" {
		restored, err := s.getIssueRaw(ctx, conn, issueID)
		if err != nil {
			return nil, err
		}
		var closedAt any
		if s.registry.GetCategory(restored.Type, restored.Status) == types.CategoryDone {
			closedAt = now
		}
		if _, err := conn.ExecContext(ctx, `UPDATE issues SET closed_at = ? WHERE id = ?`, closedAt, issueID); err != nil {
			return nil, wrapDBErrorf(err, "recompute closed_at after undo")
		}
	}

	undoComment := fmt.Sprintf("reverts event %d", target.ID)
	revertedType := target.EventType
	revertedID := strconv.FormatInt(target.ID, 10)
	if err := recordEvent(ctx, conn, issueID, "undone", actor, &revertedType, &revertedID, &undoComment, now); err != nil {
		return nil, err
	}

	if err := commit(ctx, conn); err != nil {
		return nil, wrapDBErrorf(err, "commit undo")
	}
	committed = true
	s.notifyMutated()
	return target, nil
}

func eventAlreadyUndone(ctx context.Context, conn *sql.Conn, eventID int64) (bool, error) {
	marker := fmt.Sprintf("reverts event %d", eventID)
	var count int
	err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE event_type = 'undone' AND comment = ?`, marker).Scan(&count)
	if err != nil {
		return false, wrapDBError("check undo marker", err)
	}
	return count > 0, nil
}

func applyUndo(ctx context.Context, conn *sql.Conn, e *types.Event, now string) error {
	old := ""
	if e.OldValue != nil {
		old = *e.OldValue
	}
	switch e.EventType {
	case "status_changed", "title_changed", "assignee_changed", "description_changed", "notes_changed":
		column := map[string]string{
			"status_changed":      "status",
			"title_changed":       "title",
			"assignee_changed":    "assignee",
			"description_changed": "description",
			"notes_changed":       "notes",
		}[e.EventType]
		_, err := conn.ExecContext(ctx, fmt.Sprintf(`UPDATE issues SET %s = ?, updated_at = ? WHERE id = ?`, column), old, now, e.IssueID)
		return wrapDBErrorf(err, "undo %s", e.EventType)
	case "priority_changed":
		p, err := strconv.Atoi(old)
		if err != nil {
			p = 2
		}
		_, err = conn.ExecContext(ctx, `UPDATE issues SET priority = ?, updated_at = ? WHERE id = ?`, p, now, e.IssueID)
		return wrapDBErrorf(err, "undo priority_changed")
	case "claimed":
		_, err := conn.ExecContext(ctx, `UPDATE issues SET assignee = ?, updated_at = ? WHERE id = ?`, old, now, e.IssueID)
		return wrapDBErrorf(err, "undo claimed")
	case "dependency_added":
		depID, ok := parseDepValue(ptrOrEmpty(e.NewValue))
		if !ok {
			return fmt.Errorf("malformed dependency_added value %q on event %d", ptrOrEmpty(e.NewValue), e.ID)
		}
		_, err := conn.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?`, e.IssueID, depID)
		return wrapDBErrorf(err, "undo dependency_added")
	case "dependency_removed":
		depID, ok := parseDepValue(ptrOrEmpty(e.OldValue))
		if !ok {
			return fmt.Errorf("malformed dependency_removed value %q on event %d", ptrOrEmpty(e.OldValue), e.ID)
		}
		kind := types.DefaultDependencyKind
		if i := strings.IndexByte(ptrOrEmpty(e.OldValue), ':'); i >= 0 {
			kind = ptrOrEmpty(e.OldValue)[:i]
		}
		_, err := conn.ExecContext(ctx, `INSERT OR IGNORE INTO dependencies (issue_id, depends_on_id, kind, created_at) VALUES (?, ?, ?, ?)`,
			e.IssueID, depID, kind, now)
		return wrapDBErrorf(err, "undo dependency_removed")
	default:
		return fmt.Errorf("event type %q is not reversible", e.EventType)
	}
}

func ptrOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseDepValue(v string) (string, bool) {
	i := strings.IndexByte(v, ':')
	if i < 0 || i == len(v)-1 {
		return "", false
	}
	return v[i+1:], true
}

// ArchiveClosed rewrites the status of issues whose closed_at predates the
// cutoff to "archived", preserving closed_at, and records an archived event
// for each. Issues are never deleted. Returns the ids archived.
func (s *Store) ArchiveClosed(ctx context.Context, daysOld int, actor string) ([]string, error) {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, wrapDBErrorf(err, "archive closed")
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	cutoff := fmt.Sprintf("-%d days", daysOld)
	rows, err := conn.QueryContext(ctx, `
		SELECT id FROM issues
		WHERE closed_at IS NOT NULL AND closed_at <= datetime('now', ?)`, cutoff)
	if err != nil {
		return nil, wrapDBError("select archivable issues", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	now := nowISO()
	for _, id := range ids {
		if _, err := conn.ExecContext(ctx, `UPDATE issues SET status = 'archived', updated_at = ? WHERE id = ?`, now, id); err != nil {
			return nil, wrapDBErrorf(err, "archive issue %s", id)
		}
		if err := recordEvent(ctx, conn, id, "archived", actor, nil, nil, nil, now); err != nil {
			return nil, err
		}
	}

	if err := commit(ctx, conn); err != nil {
		return nil, wrapDBErrorf(err, "commit archive")
	}
	committed = true
	s.notifyMutated()
	return ids, nil
}

// CompactEvents deletes all but the keepRecent most recent events for
// each archived issue, returning the number of rows removed. Non-archived
// issues keep their full event history.
func (s *Store) CompactEvents(ctx context.Context, keepRecent int) (int, error) {
	if keepRecent < 0 {
		keepRecent = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM events WHERE id IN (
			SELECT id FROM (
				SELECT e.id, ROW_NUMBER() OVER (PARTITION BY e.issue_id ORDER BY e.id DESC) AS rn
				FROM events e
				JOIN issues i ON i.id = e.issue_id
				WHERE i.status = 'archived'
			) WHERE rn > ?
		)`, keepRecent)
	if err != nil {
		return 0, wrapDBError("compact events", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Vacuum reclaims disk space freed by deletes (e.g. CompactEvents). Must run
// outside any open transaction, which VACUUM itself requires.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `VACUUM`)
	return wrapDBError("vacuum", err)
}

// Analyze refreshes SQLite's query planner statistics after bulk changes.
func (s *Store) Analyze(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `ANALYZE`)
	return wrapDBError("analyze", err)
}
