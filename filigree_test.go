package filigree_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tachyon-beep/filigree"
	"github.com/tachyon-beep/filigree/internal/storage"
)

func TestNewSQLiteStorageOpensAndCreates(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "filigree.db")

	store, err := filigree.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	iss, err := store.CreateIssue(ctx, storage.CreateIssueParams{Title: "smoke test issue", Type: "task"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if iss.StatusCategory != filigree.CategoryOpen {
		t.Fatalf("expected a new issue to start in the open category, got %q", iss.StatusCategory)
	}
}

func TestConstants(t *testing.T) {
	if filigree.CategoryOpen != "open" {
		t.Errorf("CategoryOpen = %q, want %q", filigree.CategoryOpen, "open")
	}
	if filigree.CategoryWIP != "wip" {
		t.Errorf("CategoryWIP = %q, want %q", filigree.CategoryWIP, "wip")
	}
	if filigree.CategoryDone != "done" {
		t.Errorf("CategoryDone = %q, want %q", filigree.CategoryDone, "done")
	}
	if filigree.DefaultDependencyKind != "blocks" {
		t.Errorf("DefaultDependencyKind = %q, want %q", filigree.DefaultDependencyKind, "blocks")
	}
}
