package sqlite

import (
	"context"
	"fmt"
	"sort"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

// AddDependency records that issueID depends on dependsOnID, rejecting
// self-edges and anything that would introduce a cycle. Cycle detection
// is a forward-reachability BFS from dependsOnID over existing
// depends_on_id edges: if that walk reaches issueID, the new edge would
// close a loop.
func (s *Store) AddDependency(ctx context.Context, issueID, dependsOnID, kind, actor string) error {
	if issueID == dependsOnID {
		return &types.DependencyError{IssueID: issueID, DependsOnID: dependsOnID, Reason: "self_edge"}
	}
	if kind == "" {
		kind = types.DefaultDependencyKind
	}

	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return wrapDBErrorf(err, "add dependency")
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	if _, err := s.getIssueRaw(ctx, conn, issueID); err != nil {
		return &types.DependencyError{IssueID: issueID, DependsOnID: dependsOnID, Reason: "not_found"}
	}
	if _, err := s.getIssueRaw(ctx, conn, dependsOnID); err != nil {
		return &types.DependencyError{IssueID: issueID, DependsOnID: dependsOnID, Reason: "not_found"}
	}

	reachable, err := s.reachableFrom(ctx, conn, dependsOnID)
	if err != nil {
		return err
	}
	if reachable[issueID] {
		return fmt.Errorf("%w: %v", storage.ErrCycle, &types.DependencyError{IssueID: issueID, DependsOnID: dependsOnID, Reason: "cycle"})
	}

	now := nowISO()
	if _, err := conn.ExecContext(ctx, `INSERT OR IGNORE INTO dependencies (issue_id, depends_on_id, kind, created_at) VALUES (?, ?, ?, ?)`,
		issueID, dependsOnID, kind, now); err != nil {
		return wrapDBErrorf(err, "insert dependency")
	}
	val := kind + ":" + dependsOnID
	if err := recordEvent(ctx, conn, issueID, "dependency_added", actor, nil, &val, nil, now); err != nil {
		return err
	}

	if err := commit(ctx, conn); err != nil {
		return wrapDBErrorf(err, "commit add dependency")
	}
	committed = true
	s.notifyMutated()
	return nil
}

// reachableFrom walks the depends_on_id graph breadth-first starting at
// root, returning every issue id root's dependency chain can reach
// (including root itself).
func (s *Store) reachableFrom(ctx context.Context, q querier, root string) (map[string]bool, error) {
	visited := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		rows, err := q.QueryContext(ctx, `SELECT depends_on_id FROM dependencies WHERE issue_id = ?`, cur)
		if err != nil {
			return nil, wrapDBError("walk dependency graph", err)
		}
		var next []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return nil, err
			}
			next = append(next, n)
		}
		rows.Close()
		for _, n := range next {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return visited, nil
}

// RemoveDependency deletes the edge if present, returning whether
// anything was removed.
func (s *Store) RemoveDependency(ctx context.Context, issueID, dependsOnID, actor string) (bool, error) {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return false, wrapDBErrorf(err, "remove dependency")
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	var kind string
	err = conn.QueryRowContext(ctx, `SELECT kind FROM dependencies WHERE issue_id = ? AND depends_on_id = ?`, issueID, dependsOnID).Scan(&kind)
	if err != nil {
		if isNotFound(wrapDBError("lookup dependency", err)) {
			if err := commit(ctx, conn); err != nil {
				return false, wrapDBErrorf(err, "commit no-op remove")
			}
			committed = true
			return false, nil
		}
		return false, wrapDBError("lookup dependency", err)
	}

	if _, err := conn.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?`, issueID, dependsOnID); err != nil {
		return false, wrapDBErrorf(err, "delete dependency")
	}
	now := nowISO()
	val := kind + ":" + dependsOnID
	if err := recordEvent(ctx, conn, issueID, "dependency_removed", actor, &val, nil, nil, now); err != nil {
		return false, err
	}

	if err := commit(ctx, conn); err != nil {
		return false, wrapDBErrorf(err, "commit remove dependency")
	}
	committed = true
	s.notifyMutated()
	return true, nil
}

// GetReadyWork lists open-category, unblocked issues matching filter,
// ordered per filter.Sort.
func (s *Store) GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	issueFilter := types.IssueFilter{Type: filter.Type, Assignee: filter.Assignee}
	if filter.Unassigned {
		empty := ""
		issueFilter.Assignee = &empty
	}
	all, err := s.ListIssues(ctx, issueFilter)
	if err != nil {
		return nil, err
	}

	var ready []*types.Issue
	for _, iss := range all {
		if !iss.IsReady {
			continue
		}
		if filter.MinPriority != nil && iss.Priority < *filter.MinPriority {
			continue
		}
		if filter.MaxPriority != nil && iss.Priority > *filter.MaxPriority {
			continue
		}
		if len(filter.Labels) > 0 && !labelsMatch(iss.Labels, filter.Labels, filter.LabelsMatchAny) {
			continue
		}
		ready = append(ready, iss)
	}

	sortReadyWork(ready, filter.Sort)
	if filter.Limit > 0 && len(ready) > filter.Limit {
		ready = ready[:filter.Limit]
	}
	return ready, nil
}

func labelsMatch(have, want []string, matchAny bool) bool {
	haveSet := make(map[string]bool, len(have))
	for _, l := range have {
		haveSet[l] = true
	}
	count := 0
	for _, w := range want {
		if haveSet[w] {
			count++
			if matchAny {
				return true
			}
		}
	}
	if matchAny {
		return false
	}
	return count == len(want)
}

func sortReadyWork(issues []*types.Issue, policy types.SortPolicy) {
	switch policy {
	case types.SortPolicyCreated:
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].CreatedAt.Before(issues[j].CreatedAt) })
	case types.SortPolicyPriority:
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Priority < issues[j].Priority })
	default: // hybrid: priority first, then age as tiebreaker
		sort.SliceStable(issues, func(i, j int) bool {
			if issues[i].Priority != issues[j].Priority {
				return issues[i].Priority < issues[j].Priority
			}
			return issues[i].CreatedAt.Before(issues[j].CreatedAt)
		})
	}
}

// GetBlocked lists every issue with at least one unresolved blocker.
func (s *Store) GetBlocked(ctx context.Context) ([]*types.Issue, error) {
	all, err := s.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		return nil, err
	}
	var blocked []*types.Issue
	for _, iss := range all {
		if iss.StatusCategory != types.CategoryDone && len(iss.BlockedBy) > 0 {
			blocked = append(blocked, iss)
		}
	}
	return blocked, nil
}
