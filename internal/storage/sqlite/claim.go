package sqlite

import (
	"context"
	"fmt"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

// ClaimIssue assigns issue to assignee if it is currently unassigned (or
// already assigned to the same assignee) and in an open-category state, using BEGIN IMMEDIATE to take the write lock
// before checking, so two racing claims against the same issue serialize
// rather than both reading "unassigned".
func (s *Store) ClaimIssue(ctx context.Context, id, assignee string) (*types.Issue, error) {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, wrapDBErrorf(err, "claim issue")
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
	category := s.registry.GetCategory(current.Type, current.Status)
	if category != types.CategoryOpen {
		return nil, &types.ConflictError{IssueID: id, Reason: "wrong_state"}
	}
	if current.Assignee != "" && current.Assignee != assignee {
		return nil, &types.ConflictError{IssueID: id, CurrentAssignee: current.Assignee, Reason: "already_assigned"}
	}

	now := nowISO()
	if _, err := conn.ExecContext(ctx, `UPDATE issues SET assignee = ?, updated_at = ? WHERE id = ?`, assignee, now, id); err != nil {
		return nil, wrapDBErrorf(err, "apply claim")
	}
	oldAssignee := current.Assignee
	if err := recordEvent(ctx, conn, id, "claimed", assignee, &oldAssignee, &assignee, nil, now); err != nil {
		return nil, err
	}

	if err := commit(ctx, conn); err != nil {
		return nil, wrapDBErrorf(err, "commit claim")
	}
	committed = true
	s.notifyMutated()

	return s.GetIssue(ctx, id)
}

// ClaimNext picks the best-ranked ready candidate under filter and claims
// it, retrying against the next candidate if a race loses the claim (the
// candidate list is re-evaluated fresh each attempt, since a concurrent
// claim changes readiness).
func (s *Store) ClaimNext(ctx context.Context, filter types.WorkFilter, assignee string) (*types.Issue, error) {
	const maxAttempts = 25
	tried := map[string]bool{}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidates, err := s.GetReadyWork(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: no ready issues match filter", storage.ErrNotFound)
		}
		var next *types.Issue
		for _, c := range candidates {
			if !tried[c.ID] {
				next = c
				break
			}
		}
		if next == nil {
			break
		}
		tried[next.ID] = true
		iss, err := s.ClaimIssue(ctx, next.ID, assignee)
		if err == nil {
			return iss, nil
		}
		if isConflict(err) {
			continue // another claimant won; re-rank and retry
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: exhausted retries claiming next ready issue", storage.ErrConflict)
}

// ReleaseIssue clears the assignee on an issue claimed by anyone, without
// moving its status. The event is deliberately excluded from
// ReversibleEvents: un-assigning by itself could restore a stale
// assignee that no longer reflects reality.
func (s *Store) ReleaseIssue(ctx context.Context, id, actor string) (*types.Issue, error) {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, wrapDBErrorf(err, "release issue")
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
	if current.Assignee == "" {
		if err := commit(ctx, conn); err != nil {
			return nil, wrapDBErrorf(err, "commit release (no-op)")
		}
		committed = true
		return s.GetIssue(ctx, id)
	}

	now := nowISO()
	if _, err := conn.ExecContext(ctx, `UPDATE issues SET assignee = '', updated_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, wrapDBErrorf(err, "apply release")
	}
	empty := ""
	if err := recordEvent(ctx, conn, id, "released", actor, &current.Assignee, &empty, nil, now); err != nil {
		return nil, err
	}

	if err := commit(ctx, conn); err != nil {
		return nil, wrapDBErrorf(err, "commit release")
	}
	committed = true
	s.notifyMutated()

	return s.GetIssue(ctx, id)
}
