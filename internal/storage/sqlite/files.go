package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

// IngestScan upserts one scanner run's findings: each file_records row is
// created or touched, each finding is deduped on
// (file_id, scan_source, rule_id, line_start) and either inserted fresh or
// bumped (seen_count++, last_seen_at refreshed, a stale unseen_in_latest
// finding resurrected to open). When req.MarkUnseen is set, any finding
// for req.ScanSource not touched by req.ScanRunID is swept to
// unseen_in_latest — the scanner's current output is authoritative for
// what's still present.
func (s *Store) IngestScan(ctx context.Context, req storage.ScanIngestRequest) (*storage.ScanIngestResult, error) {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, wrapDBErrorf(err, "ingest scan")
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	result := &storage.ScanIngestResult{}
	now := nowISO()
	seenFiles := map[string]bool{}

	for _, f := range req.Findings {
		path := filepath.ToSlash(f.Path)
		fileID, err := s.upsertFileRecord(ctx, conn, path, now)
		if err != nil {
			return nil, err
		}
		if !seenFiles[fileID] {
			seenFiles[fileID] = true
			result.FilesSeen++
		}

		sev, ok := types.ParseSeverity(f.Severity)
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognized severity %q for %s:%s, coerced to info", f.Severity, path, f.RuleID))
		}

		lineStart := -1
		if f.LineStart != nil {
			lineStart = *f.LineStart
		}

		var existingID, existingStatus string
		err = conn.QueryRowContext(ctx, `
			SELECT id, status FROM scan_findings
			WHERE file_id = ? AND scan_source = ? AND rule_id = ? AND coalesce(line_start, -1) = ?`,
			fileID, req.ScanSource, f.RuleID, lineStart).Scan(&existingID, &existingStatus)
		switch {
		case err == sql.ErrNoRows:
			id := newID("sf")
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO scan_findings (id, file_id, scan_source, rule_id, severity, status, message, suggestion,
					scan_run_id, line_start, line_end, seen_count, first_seen, updated_at, last_seen_at)
				VALUES (?, ?, ?, ?, ?, 'open', ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
				id, fileID, req.ScanSource, f.RuleID, string(sev), f.Message, f.Suggestion,
				req.ScanRunID, f.LineStart, f.LineEnd, now, now, now); err != nil {
				return nil, wrapDBErrorf(err, "insert scan finding")
			}
			result.FindingsNew++
		case err != nil:
			return nil, wrapDBError("lookup scan finding", err)
		default:
			newStatus := existingStatus
			if existingStatus == string(types.FindingUnseenInLatest) {
				newStatus = string(types.FindingOpen)
			}
			if _, err := conn.ExecContext(ctx, `
				UPDATE scan_findings SET
					severity = ?, message = ?, suggestion = ?, scan_run_id = ?,
					line_end = ?, seen_count = seen_count + 1, updated_at = ?, last_seen_at = ?, status = ?
				WHERE id = ?`,
				string(sev), f.Message, f.Suggestion, req.ScanRunID, f.LineEnd, now, now, newStatus, existingID); err != nil {
				return nil, wrapDBErrorf(err, "update scan finding")
			}
			result.FindingsUpdated++
		}
	}

	if req.MarkUnseen && req.ScanSource != "" {
		res, err := conn.ExecContext(ctx, `
			UPDATE scan_findings SET status = 'unseen_in_latest', updated_at = ?
			WHERE scan_source = ? AND scan_run_id != ? AND status NOT IN ('fixed', 'false_positive', 'unseen_in_latest')`,
			now, req.ScanSource, req.ScanRunID)
		if err != nil {
			return nil, wrapDBErrorf(err, "sweep unseen findings")
		}
		n, _ := res.RowsAffected()
		result.FindingsMarkedUnseen = int(n)
	}

	if err := commit(ctx, conn); err != nil {
		return nil, wrapDBErrorf(err, "commit scan ingest")
	}
	committed = true
	s.notifyMutated()
	return result, nil
}

func (s *Store) upsertFileRecord(ctx context.Context, conn querier, path, now string) (string, error) {
	var id string
	err := conn.QueryRowContext(ctx, `SELECT id FROM file_records WHERE path = ?`, path).Scan(&id)
	if err == nil {
		if _, err := conn.ExecContext(ctx, `UPDATE file_records SET updated_at = ? WHERE id = ?`, now, id); err != nil {
			return "", wrapDBErrorf(err, "touch file record")
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", wrapDBError("lookup file record", err)
	}

	id = newID("file")
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO file_records (id, path, language, file_type, metadata, created_at, updated_at)
		VALUES (?, ?, '', '', '{}', ?, ?)`, id, path, now, now); err != nil {
		return "", wrapDBErrorf(err, "insert file record")
	}
	if err := recordFileEvent(ctx, conn, id, "discovered", nil, nil, now); err != nil {
		return "", err
	}
	return id, nil
}

func recordFileEvent(ctx context.Context, conn querierExec, fileID, eventType string, oldValue, newValue *string, now string) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO file_events (file_id, event_type, old_value, new_value, created_at) VALUES (?, ?, ?, ?, ?)`,
		fileID, eventType, oldValue, newValue, now)
	return wrapDBErrorf(err, "record file event")
}

// CleanStaleFindings marks findings untouched for more than days as
// unseen_in_latest, scoped to scanSource when non-empty.
func (s *Store) CleanStaleFindings(ctx context.Context, days int, scanSource string) (int, error) {
	cutoff := fmt.Sprintf("-%d days", days)
	query := `
		UPDATE scan_findings SET status = 'unseen_in_latest', updated_at = datetime('now')
		WHERE last_seen_at <= datetime('now', ?) AND status NOT IN ('fixed', 'false_positive', 'unseen_in_latest')`
	args := []any{cutoff}
	if scanSource != "" {
		query += ` AND scan_source = ?`
		args = append(args, scanSource)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapDBError("clean stale findings", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// AddFileAssociation links a file to an issue (bug_in, task_for, etc.).
func (s *Store) AddFileAssociation(ctx context.Context, fileID, issueID string, assocType types.AssocType) error {
	if !types.ValidAssocType(string(assocType)) {
		return fmt.Errorf("%w: invalid association type %q", storage.ErrValidation, assocType)
	}
	if _, err := s.getIssueRaw(ctx, s.db, issueID); err != nil {
		return err
	}
	now := nowISO()
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO file_associations (file_id, issue_id, assoc_type, created_at) VALUES (?, ?, ?, ?)`,
		fileID, issueID, string(assocType), now); err != nil {
		return wrapDBErrorf(err, "insert file association")
	}
	s.notifyMutated()
	return nil
}

// GetFileTimeline merges file_events, scan_findings activity, and
// associated-issue events into one chronological feed for a file.
func (s *Store) GetFileTimeline(ctx context.Context, fileID string, eventType string, limit, offset int) ([]storage.TimelineEntry, error) {
	var entries []storage.TimelineEntry

	if eventType == "" || eventType == "file_event" {
		rows, err := s.db.QueryContext(ctx, `SELECT event_type, old_value, new_value, created_at FROM file_events WHERE file_id = ?`, fileID)
		if err != nil {
			return nil, wrapDBError("file timeline: file_events", err)
		}
		for rows.Next() {
			var et string
			var oldVal, newVal sql.NullString
			var ts string
			if err := rows.Scan(&et, &oldVal, &newVal, &ts); err != nil {
				rows.Close()
				return nil, err
			}
			entries = append(entries, storage.TimelineEntry{Kind: "file_event", Timestamp: ts, Summary: fmt.Sprintf("%s: %s -> %s", et, oldVal.String, newVal.String)})
		}
		rows.Close()
	}

	if eventType == "" || eventType == "scan_finding" {
		rows, err := s.db.QueryContext(ctx, `SELECT rule_id, severity, status, first_seen FROM scan_findings WHERE file_id = ?`, fileID)
		if err != nil {
			return nil, wrapDBError("file timeline: scan_findings", err)
		}
		for rows.Next() {
			var rule, sev, status, ts string
			if err := rows.Scan(&rule, &sev, &status, &ts); err != nil {
				rows.Close()
				return nil, err
			}
			entries = append(entries, storage.TimelineEntry{Kind: "scan_finding", Timestamp: ts, Summary: fmt.Sprintf("[%s] %s (%s)", sev, rule, status), RefID: rule})
		}
		rows.Close()
	}

	if eventType == "" || eventType == "issue_event" {
		rows, err := s.db.QueryContext(ctx, `
			SELECT e.event_type, e.created_at, i.id, i.title
			FROM file_associations a
			JOIN events e ON e.issue_id = a.issue_id
			JOIN issues i ON i.id = a.issue_id
			WHERE a.file_id = ?`, fileID)
		if err != nil {
			return nil, wrapDBError("file timeline: issue_events", err)
		}
		for rows.Next() {
			var et, ts, issueID, title string
			if err := rows.Scan(&et, &ts, &issueID, &title); err != nil {
				rows.Close()
				return nil, err
			}
			entries = append(entries, storage.TimelineEntry{Kind: "issue_event", Timestamp: ts, Summary: fmt.Sprintf("%s on %s", et, title), RefID: issueID})
		}
		rows.Close()
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp > entries[j].Timestamp })

	if offset > 0 {
		if offset >= len(entries) {
			return nil, nil
		}
		entries = entries[offset:]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetFileHotspots ranks files by their findings not yet fixed or marked
// false positive: most critical first, then most high, then most in total.
func (s *Store) GetFileHotspots(ctx context.Context, limit int) ([]storage.FileHotspot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.path,
			COUNT(*) AS total,
			SUM(CASE WHEN sf.severity = 'critical' THEN 1 ELSE 0 END) AS crit,
			SUM(CASE WHEN sf.severity = 'high' THEN 1 ELSE 0 END) AS high
		FROM scan_findings sf
		JOIN file_records f ON f.id = sf.file_id
		WHERE sf.status NOT IN ('fixed', 'false_positive')
		GROUP BY f.id, f.path
		ORDER BY crit DESC, high DESC, total DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrapDBError("file hotspots", err)
	}
	defer rows.Close()

	var out []storage.FileHotspot
	for rows.Next() {
		var h storage.FileHotspot
		if err := rows.Scan(&h.FileID, &h.Path, &h.FindingCount, &h.CriticalCount, &h.HighCount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
