package sqlite

import (
	"context"

	"github.com/tachyon-beep/filigree/internal/types"
)

// AddComment appends a comment and confirms the issue exists first, so a
// typo'd issue id fails with NotFound rather than silently inserting an
// orphan row the FK would otherwise reject anyway.
func (s *Store) AddComment(ctx context.Context, issueID, author, text string) (*types.Comment, error) {
	if _, err := s.getIssueRaw(ctx, s.db, issueID); err != nil {
		return nil, err
	}
	now := nowISO()
	res, err := s.db.ExecContext(ctx, `INSERT INTO comments (issue_id, author, text, created_at) VALUES (?, ?, ?, ?)`,
		issueID, author, text, now)
	if err != nil {
		return nil, wrapDBErrorf(err, "insert comment")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapDBErrorf(err, "comment id")
	}
	s.notifyMutated()
	t, _ := parseTimeLenient(now)
	return &types.Comment{ID: id, IssueID: issueID, Author: author, Text: text, CreatedAt: t}, nil
}

// GetComments returns an issue's comments in creation order.
func (s *Store) GetComments(ctx context.Context, issueID string) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, issue_id, author, text, created_at FROM comments WHERE issue_id = ? ORDER BY created_at ASC, id ASC`, issueID)
	if err != nil {
		return nil, wrapDBError("list comments", err)
	}
	defer rows.Close()

	var out []*types.Comment
	for rows.Next() {
		var c types.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Text, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = parseTimeLenient(createdAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}
