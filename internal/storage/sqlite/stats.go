package sqlite

import (
	"context"

	"github.com/tachyon-beep/filigree/internal/types"
)

// GetStats aggregates the counts used by the summary projection.
func (s *Store) GetStats(ctx context.Context) (*types.Stats, error) {
	stats := &types.Stats{
		ByStatus:   map[string]int{},
		ByType:     map[string]int{},
		ByCategory: map[types.StatusCategory]int{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM issues GROUP BY status`)
	if err != nil {
		return nil, wrapDBError("stats by status", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[status] = n
	}
	rows.Close()

	typeRows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM issues GROUP BY type`)
	if err != nil {
		return nil, wrapDBError("stats by type", err)
	}
	for typeRows.Next() {
		var t string
		var n int
		if err := typeRows.Scan(&t, &n); err != nil {
			typeRows.Close()
			return nil, err
		}
		stats.ByType[t] = n
	}
	typeRows.Close()

	all, err := s.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		return nil, err
	}
	for _, iss := range all {
		stats.ByCategory[iss.StatusCategory]++
		if iss.IsReady {
			stats.ReadyCount++
		}
		if iss.StatusCategory != types.CategoryDone && len(iss.BlockedBy) > 0 {
			stats.BlockedCount++
		}
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dependencies`).Scan(&stats.DepCount); err != nil {
		return nil, wrapDBError("stats dep count", err)
	}

	return stats, nil
}
