package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }

func parseTimeLenient(s string) (time.Time, error) { return time.Parse(time.RFC3339, s) }

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const issueColumns = `id, title, status, priority, type, parent_id, assignee, created_at, updated_at, closed_at, description, notes, fields`

func scanIssue(row interface{ Scan(...any) error }) (*types.Issue, error) {
	var (
		iss        types.Issue
		parentID   sql.NullString
		closedAt   sql.NullString
		fieldsJSON string
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&iss.ID, &iss.Title, &iss.Status, &iss.Priority, &iss.Type, &parentID, &iss.Assignee,
		&createdAt, &updatedAt, &closedAt, &iss.Description, &iss.Notes, &fieldsJSON); err != nil {
		return nil, err
	}
	if parentID.Valid {
		v := parentID.String
		iss.ParentID = &v
	}
	if closedAt.Valid {
		t, err := time.Parse(time.RFC3339, closedAt.String)
		if err == nil {
			iss.ClosedAt = &t
		}
	}
	iss.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	iss.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	iss.Fields = map[string]any{}
	if fieldsJSON != "" {
		json.Unmarshal([]byte(fieldsJSON), &iss.Fields)
	}
	return &iss, nil
}

// CreateIssue validates and inserts a new issue, its labels, its
// dependency edges, and its "created" event in one transaction. Any
// failure rolls everything back — there must be no orphan rows.
func (s *Store) CreateIssue(ctx context.Context, p storage.CreateIssueParams) (*types.Issue, error) {
	if err := types.ValidateTitle(p.Title); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrValidation, err)
	}
	if err := types.ValidatePriority(p.Priority); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrValidation, err)
	}
	issueType := p.Type
	if issueType == "" {
		issueType = "task"
	}

	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, wrapDBErrorf(err, "create issue")
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	if p.ParentID != nil {
		if _, err := s.getIssueRaw(ctx, conn, *p.ParentID); err != nil {
			return nil, fmt.Errorf("%w: parent_id %q", storage.ErrValidation, *p.ParentID)
		}
	}
	for _, dep := range p.Deps {
		if _, err := s.getIssueRaw(ctx, conn, dep); err != nil {
			return nil, fmt.Errorf("%w: dependency %q does not exist", storage.ErrValidation, dep)
		}
	}
	reserved := map[string]bool{}
	for _, l := range p.Labels {
		if err := types.ValidateLabelName(l, reserved); err != nil {
			return nil, err
		}
		if s.registry.IsReservedLabel(l) {
			return nil, fmt.Errorf("%w: label %q collides with a registered type name", storage.ErrValidation, l)
		}
	}

	id := newID(s.prefix)
	now := nowISO()
	status := s.registry.GetInitialState(issueType)
	fieldsJSON, _ := json.Marshal(emptyIfNil(p.Fields))

	_, err = conn.ExecContext(ctx, `
		INSERT INTO issues (id, title, status, priority, type, parent_id, assignee, created_at, updated_at, closed_at, description, notes, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		id, p.Title, status, p.Priority, issueType, p.ParentID, p.Assignee, now, now, p.Description, p.Notes, string(fieldsJSON))
	if err != nil {
		return nil, wrapDBErrorf(err, "insert issue")
	}

	for _, l := range p.Labels {
		if _, err := conn.ExecContext(ctx, `INSERT INTO labels (issue_id, label) VALUES (?, ?)`, id, l); err != nil {
			return nil, wrapDBErrorf(err, "insert label")
		}
	}
	for _, dep := range p.Deps {
		if _, err := conn.ExecContext(ctx, `INSERT INTO dependencies (issue_id, depends_on_id, kind, created_at) VALUES (?, ?, ?, ?)`,
			id, dep, types.DefaultDependencyKind, now); err != nil {
			return nil, wrapDBErrorf(err, "insert dependency")
		}
		if err := recordEvent(ctx, conn, id, "dependency_added", p.Actor, nil, strPtr(types.DefaultDependencyKind+":"+dep), nil, now); err != nil {
			return nil, err
		}
	}
	if err := recordEvent(ctx, conn, id, "created", p.Actor, nil, strPtr(status), nil, now); err != nil {
		return nil, err
	}

	if err := commit(ctx, conn); err != nil {
		return nil, wrapDBErrorf(err, "commit create issue")
	}
	committed = true
	s.notifyMutated()

	return s.GetIssue(ctx, id)
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func strPtr(s string) *string { return &s }

// getIssueRaw fetches a bare issue row (no computed fields) inside an
// existing transaction/connection, for existence checks.
func (s *Store) getIssueRaw(ctx context.Context, q querier, id string) (*types.Issue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	iss, err := scanIssue(row)
	if err != nil {
		return nil, wrapDBError("get issue", err)
	}
	return iss, nil
}

// GetIssue fetches an issue with all computed fields populated.
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	iss, err := s.getIssueRaw(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadComputed(ctx, s.db, iss); err != nil {
		return nil, err
	}
	return iss, nil
}

// loadComputed fills status_category, blocked_by, blocks, is_ready,
// children, and labels for an already-fetched issue.
func (s *Store) loadComputed(ctx context.Context, q querier, iss *types.Issue) error {
	iss.StatusCategory = s.registry.GetCategory(iss.Type, iss.Status)

	rows, err := q.QueryContext(ctx, `SELECT depends_on_id FROM dependencies WHERE issue_id = ?`, iss.ID)
	if err != nil {
		return wrapDBError("load blocked_by", err)
	}
	var blockers []string
	for rows.Next() {
		var blockerID string
		if err := rows.Scan(&blockerID); err != nil {
			rows.Close()
			return err
		}
		blockers = append(blockers, blockerID)
	}
	rows.Close()

	iss.Blocks = nil
	blocksRows, err := q.QueryContext(ctx, `SELECT issue_id FROM dependencies WHERE depends_on_id = ?`, iss.ID)
	if err != nil {
		return wrapDBError("load blocks", err)
	}
	for blocksRows.Next() {
		var blockedID string
		if err := blocksRows.Scan(&blockedID); err != nil {
			blocksRows.Close()
			return err
		}
		iss.Blocks = append(iss.Blocks, blockedID)
	}
	blocksRows.Close()

	iss.BlockedBy = nil
	for _, blockerID := range blockers {
		blocker, err := s.getIssueRaw(ctx, q, blockerID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return err
		}
		cat := s.registry.GetCategory(blocker.Type, blocker.Status)
		if cat != types.CategoryDone {
			iss.BlockedBy = append(iss.BlockedBy, blockerID)
		}
	}
	iss.IsReady = iss.StatusCategory == types.CategoryOpen && len(iss.BlockedBy) == 0

	childRows, err := q.QueryContext(ctx, `SELECT id FROM issues WHERE parent_id = ?`, iss.ID)
	if err != nil {
		return wrapDBError("load children", err)
	}
	for childRows.Next() {
		var childID string
		if err := childRows.Scan(&childID); err != nil {
			childRows.Close()
			return err
		}
		iss.Children = append(iss.Children, childID)
	}
	childRows.Close()

	labelRows, err := q.QueryContext(ctx, `SELECT label FROM labels WHERE issue_id = ?`, iss.ID)
	if err != nil {
		return wrapDBError("load labels", err)
	}
	for labelRows.Next() {
		var l string
		if err := labelRows.Scan(&l); err != nil {
			labelRows.Close()
			return err
		}
		iss.Labels = append(iss.Labels, l)
	}
	labelRows.Close()

	return nil
}

// UpdateIssue applies the given subset of mutable fields, validating and
// recording one event per changed title, status, priority, assignee,
// description or notes in the same transaction as the update, and
// recomputing closed_at from the (possibly new) status. Changes to
// parent_id and fields are written without an event.
func (s *Store) UpdateIssue(ctx context.Context, id string, p storage.UpdateIssueParams) (*types.Issue, error) {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, wrapDBErrorf(err, "update issue")
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	current, err := s.getIssueRaw(ctx, conn, id)
	if err != nil {
		return nil, err
	}

	now := nowISO()
	sets := []string{"updated_at = ?"}
	args := []any{now}

	if p.Title != nil && *p.Title != current.Title {
		if err := types.ValidateTitle(*p.Title); err != nil {
			return nil, err
		}
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
		if err := recordEvent(ctx, conn, id, "title_changed", p.Actor, &current.Title, p.Title, nil, now); err != nil {
			return nil, err
		}
	}

	newStatus := current.Status
	if p.Status != nil && *p.Status != current.Status {
		allowed, enforcement, extra, _ := s.registry.ValidateTransition(current.Type, current.Status, *p.Status, mergedFields(current.Fields, p.Fields))
		if !allowed {
			if enforcement == types.EnforcementHard {
				return nil, &types.TransitionError{IssueID: id, Type: current.Type, From: current.Status, To: *p.Status, MissingFields: extra}
			}
			return nil, &types.TransitionError{IssueID: id, Type: current.Type, From: current.Status, To: *p.Status, ValidTransitions: extra}
		}
		newStatus = *p.Status
		sets = append(sets, "status = ?")
		args = append(args, newStatus)
		if err := recordEvent(ctx, conn, id, "status_changed", p.Actor, &current.Status, p.Status, nil, now); err != nil {
			return nil, err
		}
	}

	if p.Priority != nil && *p.Priority != current.Priority {
		if err := types.ValidatePriority(*p.Priority); err != nil {
			return nil, err
		}
		sets = append(sets, "priority = ?")
		args = append(args, *p.Priority)
		oldP := fmt.Sprintf("%d", current.Priority)
		newP := fmt.Sprintf("%d", *p.Priority)
		if err := recordEvent(ctx, conn, id, "priority_changed", p.Actor, &oldP, &newP, nil, now); err != nil {
			return nil, err
		}
	}

	if p.ParentID != nil {
		newParent := *p.ParentID
		if !samePtr(current.ParentID, newParent) {
			if newParent != nil {
				if *newParent == id {
					return nil, &types.ValidationError{Field: "parent_id", Message: "an issue cannot be its own parent"}
				}
				if _, err := s.getIssueRaw(ctx, conn, *newParent); err != nil {
					return nil, fmt.Errorf("%w: parent_id %q", storage.ErrValidation, *newParent)
				}
			}
			sets = append(sets, "parent_id = ?")
			args = append(args, newParent)
		}
	}

	if p.Assignee != nil && *p.Assignee != current.Assignee {
		sets = append(sets, "assignee = ?")
		args = append(args, *p.Assignee)
		if err := recordEvent(ctx, conn, id, "assignee_changed", p.Actor, &current.Assignee, p.Assignee, nil, now); err != nil {
			return nil, err
		}
	}

	if p.Description != nil && *p.Description != current.Description {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
		if err := recordEvent(ctx, conn, id, "description_changed", p.Actor, &current.Description, p.Description, nil, now); err != nil {
			return nil, err
		}
	}

	if p.Notes != nil && *p.Notes != current.Notes {
		sets = append(sets, "notes = ?")
		args = append(args, *p.Notes)
		if err := recordEvent(ctx, conn, id, "notes_changed", p.Actor, &current.Notes, p.Notes, nil, now); err != nil {
			return nil, err
		}
	}

	if p.Fields != nil {
		merged := mergedFields(current.Fields, p.Fields)
		fieldsJSON, _ := json.Marshal(merged)
		sets = append(sets, "fields = ?")
		args = append(args, string(fieldsJSON))
	}

	category := s.registry.GetCategory(current.Type, newStatus)
	if category == types.CategoryDone {
		sets = append(sets, "closed_at = ?")
		args = append(args, now)
	} else {
		sets = append(sets, "closed_at = NULL")
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE issues SET %s WHERE id = ?`, strings.Join(sets, ", "))
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return nil, wrapDBErrorf(err, "apply update")
	}

	if err := commit(ctx, conn); err != nil {
		return nil, wrapDBErrorf(err, "commit update issue")
	}
	committed = true
	s.notifyMutated()

	return s.GetIssue(ctx, id)
}

func mergedFields(base, overlay map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func samePtr(a *string, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// CloseIssue moves an issue to a done-category state, defaulting to the
// type's first registered done state (or "closed" for unknown types).
func (s *Store) CloseIssue(ctx context.Context, id string, p storage.CloseIssueParams) (*types.Issue, error) {
	current, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	status := s.registry.FirstDoneState(current.Type)
	if p.Status != nil {
		status = *p.Status
	}
	up := storage.UpdateIssueParams{Status: &status, Fields: p.Fields, Actor: p.Actor}
	iss, err := s.UpdateIssue(ctx, id, up)
	if err != nil {
		return nil, err
	}
	if p.Reason != "" {
		reason := p.Reason
		if err := s.appendEvent(ctx, id, "close_reason", p.Actor, nil, &reason, nil); err != nil {
			s.logger.Warn("failed to record close reason", "issue_id", id, "error", err)
		}
	}
	return iss, nil
}

// ReopenIssue moves an issue from a done state back to its type's initial
// state (or first open-category state) and clears closed_at. The move is
// validated like any UpdateIssue status change, so it fails with a
// TransitionError for types that declare no transition from the current
// done state back to that state.
func (s *Store) ReopenIssue(ctx context.Context, id string, actor string) (*types.Issue, error) {
	current, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	status := s.registry.GetInitialState(current.Type)
	if s.registry.GetCategory(current.Type, status) != types.CategoryOpen {
		status = s.registry.FirstOpenState(current.Type)
	}
	return s.UpdateIssue(ctx, id, storage.UpdateIssueParams{Status: &status, Actor: actor})
}

// appendEvent records a single event outside of UpdateIssue's change-set
// loop, in its own short transaction.
func (s *Store) appendEvent(ctx context.Context, issueID, eventType, actor string, oldVal, newVal, comment *string) error {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return err
	}
	if err := recordEvent(ctx, conn, issueID, eventType, actor, oldVal, newVal, comment, nowISO()); err != nil {
		rollback(ctx, conn)
		return err
	}
	return commit(ctx, conn)
}

// ListIssues applies filters with limit/offset.
func (s *Store) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	where, args := buildIssueWhere(filter)
	query := `SELECT ` + issueColumns + ` FROM issues`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY priority ASC, created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list issues", err)
	}
	defer rows.Close()

	// Scan every row before loading computed fields: the pool holds a
	// single connection, which rows keeps busy until it is closed.
	var out []*types.Issue
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for _, iss := range out {
		if err := s.loadComputed(ctx, s.db, iss); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func buildIssueWhere(filter types.IssueFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Type != nil {
		clauses = append(clauses, "type = ?")
		args = append(args, *filter.Type)
	}
	if filter.Priority != nil {
		clauses = append(clauses, "priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.ParentID != nil {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, *filter.ParentID)
	}
	if filter.Assignee != nil {
		clauses = append(clauses, "assignee = ?")
		args = append(args, *filter.Assignee)
	}
	if filter.Label != nil {
		clauses = append(clauses, "id IN (SELECT issue_id FROM labels WHERE label = ?)")
		args = append(args, *filter.Label)
	}
	return strings.Join(clauses, " AND "), args
}

// SearchIssues uses the FTS mirror first, falling back to a
// case-insensitive LIKE scan if the FTS table is unavailable (an older
// file, or one with the extension disabled). Any other storage error
// propagates rather than being swallowed as an empty result.
func (s *Store) SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error) {
	if query == "" {
		return s.ListIssues(ctx, filter)
	}

	where, args := buildIssueWhere(filter)
	ftsQuery := `SELECT ` + issueColumns + ` FROM issues
		WHERE rowid IN (SELECT rowid FROM issues_fts WHERE issues_fts MATCH ?)`
	ftsArgs := append([]any{query}, args...)
	if where != "" {
		ftsQuery += " AND " + where
	}
	ftsQuery += ` ORDER BY priority ASC`

	rows, err := s.db.QueryContext(ctx, ftsQuery, ftsArgs...)
	if err != nil {
		if isFTSUnavailable(err) {
			return s.searchIssuesLike(ctx, query, filter)
		}
		return nil, wrapDBError("search issues", err)
	}
	defer rows.Close()

	var out []*types.Issue
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for _, iss := range out {
		if err := s.loadComputed(ctx, s.db, iss); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func isFTSUnavailable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table: issues_fts") || strings.Contains(msg, "no such module: fts5")
}

func (s *Store) searchIssuesLike(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error) {
	where, args := buildIssueWhere(filter)
	like := "%" + query + "%"
	clause := "(title LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE)"
	args = append([]any{like, like}, args...)
	q := `SELECT ` + issueColumns + ` FROM issues WHERE ` + clause
	if where != "" {
		q += " AND " + where
	}
	q += ` ORDER BY priority ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDBError("search issues (like fallback)", err)
	}
	defer rows.Close()

	var out []*types.Issue
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for _, iss := range out {
		if err := s.loadComputed(ctx, s.db, iss); err != nil {
			return nil, err
		}
	}
	return out, nil
}
