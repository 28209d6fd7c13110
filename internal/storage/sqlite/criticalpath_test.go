package sqlite

import (
	"context"
	"testing"

	"github.com/tachyon-beep/filigree/internal/storage"
)

func TestGetCriticalPathFindsLongestChain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "a", Type: "task"})
	b, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "b", Type: "task"})
	c, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "c", Type: "task"})
	short, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "short", Type: "task"})

	if err := s.AddDependency(ctx, a.ID, b.ID, "", "alice"); err != nil {
		t.Fatalf("AddDependency a->b: %v", err)
	}
	if err := s.AddDependency(ctx, b.ID, c.ID, "", "alice"); err != nil {
		t.Fatalf("AddDependency b->c: %v", err)
	}
	_ = short

	path, err := s.GetCriticalPath(ctx)
	if err != nil {
		t.Fatalf("GetCriticalPath: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected a 3-issue chain, got %d: %+v", len(path), path)
	}
	if path[0].ID != c.ID || path[2].ID != a.ID {
		t.Fatalf("expected chain c -> b -> a, got %+v", path)
	}
}
