package sqlite

import (
	"context"
	"testing"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

func TestAddDependencyBlocksAndUnblocks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "a", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue a: %v", err)
	}
	b, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "b", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue b: %v", err)
	}

	if err := s.AddDependency(ctx, a.ID, b.ID, "blocks", "alice"); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	got, err := s.GetIssue(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got.IsReady {
		t.Fatal("expected a to be blocked by b")
	}

	if _, err := s.CloseIssue(ctx, b.ID, storage.CloseIssueParams{}); err != nil {
		t.Fatalf("CloseIssue: %v", err)
	}
	got, err = s.GetIssue(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetIssue after close: %v", err)
	}
	if !got.IsReady {
		t.Fatal("expected a to be ready once b is closed")
	}
}

func TestAddDependencyRejectsSelfEdge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "a", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	err = s.AddDependency(ctx, a.ID, a.ID, "", "alice")
	if err == nil {
		t.Fatal("expected self-edge rejection")
	}
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "a", Type: "task"})
	b, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "b", Type: "task"})
	c, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "c", Type: "task"})

	if err := s.AddDependency(ctx, a.ID, b.ID, "", "alice"); err != nil {
		t.Fatalf("AddDependency a->b: %v", err)
	}
	if err := s.AddDependency(ctx, b.ID, c.ID, "", "alice"); err != nil {
		t.Fatalf("AddDependency b->c: %v", err)
	}
	if err := s.AddDependency(ctx, c.ID, a.ID, "", "alice"); err == nil {
		t.Fatal("expected cycle rejection for c->a closing the loop")
	}
}

func TestGetReadyWorkRespectsPriorityFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "low", Type: "task", Priority: 4}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	hi, err := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "hi", Type: "task", Priority: 0})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	maxP := 1
	ready, err := s.GetReadyWork(ctx, types.WorkFilter{MaxPriority: &maxP})
	if err != nil {
		t.Fatalf("GetReadyWork: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != hi.ID {
		t.Fatalf("expected only the high-priority issue, got %+v", ready)
	}
}

func TestGetBlockedListsBlockedIssuesOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "a", Type: "task"})
	b, _ := s.CreateIssue(ctx, storage.CreateIssueParams{Title: "b", Type: "task"})
	if err := s.AddDependency(ctx, a.ID, b.ID, "", "alice"); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	blocked, err := s.GetBlocked(ctx)
	if err != nil {
		t.Fatalf("GetBlocked: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != a.ID {
		t.Fatalf("expected only a to be blocked, got %+v", blocked)
	}
}
