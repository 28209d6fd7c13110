package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/tachyon-beep/filigree/internal/storage"
)

func TestUndoLastRevertsStatusChange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	iss, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	newStatus := "in_progress"
	if _, err := s.UpdateIssue(ctx, iss.ID, storage.UpdateIssueParams{Status: &newStatus}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	if _, err := s.UndoLast(ctx, iss.ID, "alice"); err != nil {
		t.Fatalf("UndoLast: %v", err)
	}

	got, err := s.GetIssue(ctx, iss.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got.Status != "open" {
		t.Fatalf("expected status reverted to open, got %q", got.Status)
	}
}

func TestUndoLastCannotUndoTwice(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	iss, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	newStatus := "in_progress"
	if _, err := s.UpdateIssue(ctx, iss.ID, storage.UpdateIssueParams{Status: &newStatus}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	if _, err := s.UndoLast(ctx, iss.ID, "alice"); err != nil {
		t.Fatalf("first UndoLast: %v", err)
	}
	if _, err := s.UndoLast(ctx, iss.ID, "alice"); err == nil {
		t.Fatal("expected second undo to find nothing reversible left")
	}
}

func TestUndoLastSkipsNonReversibleReleased(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	iss, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if _, err := s.ClaimIssue(ctx, iss.ID, "alice"); err != nil {
		t.Fatalf("ClaimIssue: %v", err)
	}
	if _, err := s.ReleaseIssue(ctx, iss.ID, "alice"); err != nil {
		t.Fatalf("ReleaseIssue: %v", err)
	}

	undone, err := s.UndoLast(ctx, iss.ID, "alice")
	if err != nil {
		t.Fatalf("UndoLast: %v", err)
	}
	if undone.EventType != "claimed" {
		t.Fatalf("expected undo to skip 'released' and revert 'claimed', got %q", undone.EventType)
	}
}

// backdateClosedAt rewrites an issue's closed_at directly so ArchiveClosed's
// cutoff check has something older than "now" to find.
func backdateClosedAt(t *testing.T, s *Store, issueID string, ts time.Time) {
	t.Helper()
	if _, err := s.db.Exec(`UPDATE issues SET closed_at = ? WHERE id = ?`, ts.Format(time.RFC3339), issueID); err != nil {
		t.Fatalf("backdating closed_at: %v", err)
	}
}

func TestArchiveClosedRewritesStatusAndPreservesClosedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	iss, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if _, err := s.CloseIssue(ctx, iss.ID, storage.CloseIssueParams{Actor: "alice"}); err != nil {
		t.Fatalf("CloseIssue: %v", err)
	}
	backdated := time.Now().UTC().AddDate(0, 0, -30).Truncate(time.Second)
	backdateClosedAt(t, s, iss.ID, backdated)
	wantClosedAt := &backdated

	ids, err := s.ArchiveClosed(ctx, 1, "alice")
	if err != nil {
		t.Fatalf("ArchiveClosed: %v", err)
	}
	if len(ids) != 1 || ids[0] != iss.ID {
		t.Fatalf("expected %s archived, got %v", iss.ID, ids)
	}

	got, err := s.GetIssue(ctx, iss.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got.Status != "archived" {
		t.Fatalf("expected status archived, got %q", got.Status)
	}
	if got.ClosedAt == nil || !got.ClosedAt.Equal(*wantClosedAt) {
		t.Fatalf("expected closed_at preserved as %v, got %v", wantClosedAt, got.ClosedAt)
	}

	events, err := s.GetIssueEvents(ctx, iss.ID, 0)
	if err != nil {
		t.Fatalf("GetIssueEvents: %v", err)
	}
	found := false
	for _, e := range events {
		if e.EventType == "archived" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an 'archived' event, got %+v", events)
	}
}

func TestArchiveClosedSkipsRecentlyClosedIssues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	iss, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if _, err := s.CloseIssue(ctx, iss.ID, storage.CloseIssueParams{Actor: "alice"}); err != nil {
		t.Fatalf("CloseIssue: %v", err)
	}

	ids, err := s.ArchiveClosed(ctx, 30, "alice")
	if err != nil {
		t.Fatalf("ArchiveClosed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no issues archived, got %v", ids)
	}
}

func TestCompactEventsOnlyTouchesArchivedIssues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	live, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "live task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue(live): %v", err)
	}
	for i := 0; i < 5; i++ {
		status := "in_progress"
		if i%2 == 0 {
			status = "open"
		}
		if _, err := s.UpdateIssue(ctx, live.ID, storage.UpdateIssueParams{Status: &status}); err != nil {
			t.Fatalf("UpdateIssue(live): %v", err)
		}
	}
	liveEventCountBefore, err := s.GetIssueEvents(ctx, live.ID, 0)
	if err != nil {
		t.Fatalf("GetIssueEvents(live): %v", err)
	}

	archived, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "archived task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue(archived): %v", err)
	}
	for i := 0; i < 5; i++ {
		status := "in_progress"
		if i%2 == 0 {
			status = "open"
		}
		if _, err := s.UpdateIssue(ctx, archived.ID, storage.UpdateIssueParams{Status: &status}); err != nil {
			t.Fatalf("UpdateIssue(archived): %v", err)
		}
	}
	if _, err := s.db.Exec(`UPDATE issues SET status = 'archived' WHERE id = ?`, archived.ID); err != nil {
		t.Fatalf("marking issue archived: %v", err)
	}

	if _, err := s.CompactEvents(ctx, 2); err != nil {
		t.Fatalf("CompactEvents: %v", err)
	}

	liveEventsAfter, err := s.GetIssueEvents(ctx, live.ID, 0)
	if err != nil {
		t.Fatalf("GetIssueEvents(live): %v", err)
	}
	if len(liveEventsAfter) != len(liveEventCountBefore) {
		t.Fatalf("expected live issue's events untouched: had %d, now %d", len(liveEventCountBefore), len(liveEventsAfter))
	}

	archivedEvents, err := s.GetIssueEvents(ctx, archived.ID, 0)
	if err != nil {
		t.Fatalf("GetIssueEvents(archived): %v", err)
	}
	if len(archivedEvents) != 2 {
		t.Fatalf("expected 2 events to remain for archived issue, got %d", len(archivedEvents))
	}
}
