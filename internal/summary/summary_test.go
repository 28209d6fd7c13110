package summary

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/storage/sqlite"
	"github.com/tachyon-beep/filigree/internal/types"
)

func openTestStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "filigree.db")
	s, err := sqlite.Open(dbPath, sqlite.WithPrefix("fil"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dbPath
}

func TestGenerateSummaryEmptyStore(t *testing.T) {
	s, _ := openTestStore(t)
	out, err := GenerateSummary(context.Background(), s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "Project Pulse") {
		t.Fatalf("missing title: %s", out)
	}
	if !strings.Contains(out, "Open: 0") {
		t.Fatalf("missing vitals: %s", out)
	}
	if !strings.Contains(out, "(none)") {
		t.Fatalf("expected empty-state marker: %s", out)
	}
}

func TestGenerateSummaryInProgressSection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	iss, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "WIP task", Type: "task", Actor: "alice"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	status := "in_progress"
	if _, err := s.UpdateIssue(ctx, iss.ID, storage.UpdateIssueParams{Status: &status, Actor: "alice"}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "## In Progress") || !strings.Contains(out, "WIP task") {
		t.Fatalf("expected WIP task in in-progress section: %s", out)
	}
}

func TestGenerateSummaryBlockedSection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	a, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Blocked task", Type: "task"})
	b, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Blocker", Type: "task"})
	if err := s.AddDependency(ctx, a.ID, b.ID, "", "alice"); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "## Blocked") || !strings.Contains(out, "Blocked task") {
		t.Fatalf("expected Blocked task in blocked section: %s", out)
	}
}

func TestGenerateSummaryActivePlansSection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	result, err := s.CreatePlan(ctx, "Milestone 1", "", []types.PlanPhase{
		{Title: "Phase 1", Steps: []types.PlanStep{{Title: "Step 1"}, {Title: "Step 2"}}},
	}, "alice")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if _, err := s.CloseIssue(ctx, result.StepIDs[0][0], storage.CloseIssueParams{Actor: "alice"}); err != nil {
		t.Fatalf("CloseIssue: %v", err)
	}

	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "## Active Plans") || !strings.Contains(out, "Milestone 1") || !strings.Contains(out, "Phase 1") {
		t.Fatalf("expected milestone/phase in active plans section: %s", out)
	}
}

func TestGenerateSummaryEpicProgressSection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	epic, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Epic A", Type: "epic"})
	if err != nil {
		t.Fatalf("CreateIssue epic: %v", err)
	}
	c1, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Child 1", Type: "task", ParentID: &epic.ID})
	if _, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Child 2", Type: "task", ParentID: &epic.ID}); err != nil {
		t.Fatalf("CreateIssue child2: %v", err)
	}
	if _, err := s.CloseIssue(ctx, c1.ID, storage.CloseIssueParams{Actor: "alice"}); err != nil {
		t.Fatalf("CloseIssue: %v", err)
	}

	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "## Epic Progress") || !strings.Contains(out, "Epic A") {
		t.Fatalf("expected epic progress section: %s", out)
	}
	if !strings.Contains(out, "1/2") {
		t.Fatalf("expected 1/2 completion for epic: %s", out)
	}
}

func TestGenerateSummaryRecentActivitySection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Event source", Type: "task", Actor: "alice"}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "## Recent Activity") || !strings.Contains(out, "CREATED") {
		t.Fatalf("expected a CREATED entry in recent activity: %s", out)
	}
}

func TestGenerateSummaryReadyTruncationAt12(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 14; i++ {
		if _, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Ready", Type: "task"}); err != nil {
			t.Fatalf("CreateIssue %d: %v", i, err)
		}
	}
	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "...and 2 more") {
		t.Fatalf("expected truncation notice for 14 ready issues: %s", out)
	}
}

func TestGenerateSummaryNeedsAttentionSection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	bug, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Missing fields bug", Type: "bug"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	confirmed, fixing := "confirmed", "fixing"
	if _, err := s.UpdateIssue(ctx, bug.ID, storage.UpdateIssueParams{Status: &confirmed, Actor: "alice"}); err != nil {
		t.Fatalf("UpdateIssue to confirmed: %v", err)
	}
	if _, err := s.UpdateIssue(ctx, bug.ID, storage.UpdateIssueParams{Status: &fixing, Actor: "alice"}); err != nil {
		t.Fatalf("UpdateIssue to fixing: %v", err)
	}

	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "## Needs Attention") || !strings.Contains(out, "root_cause") {
		t.Fatalf("expected Needs Attention section naming root_cause: %s", out)
	}
}

func TestGenerateSummaryNeedsAttentionAbsentWhenClean(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	bug, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Clean bug", Type: "bug"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	confirmed, fixing := "confirmed", "fixing"
	if _, err := s.UpdateIssue(ctx, bug.ID, storage.UpdateIssueParams{Status: &confirmed, Actor: "alice"}); err != nil {
		t.Fatalf("UpdateIssue to confirmed: %v", err)
	}
	if _, err := s.UpdateIssue(ctx, bug.ID, storage.UpdateIssueParams{
		Status: &fixing, Fields: map[string]any{"root_cause": "identified"}, Actor: "alice",
	}); err != nil {
		t.Fatalf("UpdateIssue to fixing: %v", err)
	}

	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if strings.Contains(out, "## Needs Attention") {
		t.Fatalf("did not expect Needs Attention section: %s", out)
	}
}

func TestGenerateSummaryStaleSection(t *testing.T) {
	s, dbPath := openTestStore(t)
	ctx := context.Background()
	iss, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Stale task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	status := "in_progress"
	if _, err := s.UpdateIssue(ctx, iss.ID, storage.UpdateIssueParams{Status: &status, Actor: "alice"}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	backdateUpdatedAt(t, dbPath, iss.ID, time.Now().UTC().AddDate(0, 0, -5))

	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if !strings.Contains(out, "## Stale") || !strings.Contains(out, "Stale task") || !strings.Contains(out, "5d stale") {
		t.Fatalf("expected stale entry at 5d: %s", out)
	}
}

func TestGenerateSummaryNoStaleWhenRecent(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	iss, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "Fresh task", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	status := "in_progress"
	if _, err := s.UpdateIssue(ctx, iss.ID, storage.UpdateIssueParams{Status: &status, Actor: "alice"}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	out, err := GenerateSummary(ctx, s)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if strings.Contains(out, "## Stale") {
		t.Fatalf("did not expect a Stale section for a freshly updated issue: %s", out)
	}
}

func TestWriteSummaryAtomicReplace(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	output := filepath.Join(dir, "context.md")

	if err := WriteSummary(ctx, s, output); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(data), "Project Pulse") {
		t.Fatalf("expected generated content, got: %s", data)
	}

	if err := os.WriteFile(output, []byte("old content"), 0o644); err != nil {
		t.Fatalf("seeding old content: %v", err)
	}
	if err := WriteSummary(ctx, s, output); err != nil {
		t.Fatalf("second WriteSummary: %v", err)
	}
	data, err = os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if strings.Contains(string(data), "old content") {
		t.Fatalf("expected old content to be replaced: %s", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("listing dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Fatalf("expected no leftover temp file, found %q", e.Name())
		}
	}
}

// backdateUpdatedAt opens a second raw connection to the same sqlite file
// to rewrite an issue's updated_at column directly, mirroring how the
// original test harness manipulates the timestamp below the API surface.
func backdateUpdatedAt(t *testing.T, dbPath, issueID string, ts time.Time) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("opening raw connection: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`UPDATE issues SET updated_at = ? WHERE id = ?`, ts.Format(time.RFC3339), issueID); err != nil {
		t.Fatalf("backdating updated_at: %v", err)
	}
}
