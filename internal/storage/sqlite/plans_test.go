package sqlite

import (
	"context"
	"testing"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

func TestCreatePlanWiresIntraAndCrossPhaseDeps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	phases := []types.PlanPhase{
		{
			Title: "phase one",
			Steps: []types.PlanStep{
				{Title: "step 0"},
				{Title: "step 1", Deps: []any{0}},
			},
		},
		{
			Title: "phase two",
			Steps: []types.PlanStep{
				{Title: "step 0", Deps: []any{"0.1"}},
			},
		},
	}

	result, err := s.CreatePlan(ctx, "my milestone", "desc", phases, "alice")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(result.PhaseIDs) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(result.PhaseIDs))
	}

	step1 := result.StepIDs[0][1]
	iss, err := s.GetIssue(ctx, step1)
	if err != nil {
		t.Fatalf("GetIssue step1: %v", err)
	}
	if len(iss.BlockedBy) != 1 || iss.BlockedBy[0] != result.StepIDs[0][0] {
		t.Fatalf("expected phase0/step1 blocked by phase0/step0, got %+v", iss.BlockedBy)
	}

	crossStep := result.StepIDs[1][0]
	iss2, err := s.GetIssue(ctx, crossStep)
	if err != nil {
		t.Fatalf("GetIssue crossStep: %v", err)
	}
	if len(iss2.BlockedBy) != 1 || iss2.BlockedBy[0] != step1 {
		t.Fatalf("expected phase1/step0 blocked by phase0/step1, got %+v", iss2.BlockedBy)
	}
}

func TestGetPlanProgressCountsCompletion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	phases := []types.PlanPhase{
		{Title: "phase one", Steps: []types.PlanStep{{Title: "a"}, {Title: "b"}}},
	}
	result, err := s.CreatePlan(ctx, "milestone", "", phases, "alice")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if _, err := s.CloseIssue(ctx, result.StepIDs[0][0], storage.CloseIssueParams{}); err != nil {
		t.Fatalf("CloseIssue: %v", err)
	}

	progress, err := s.GetPlanProgress(ctx, result.MilestoneID)
	if err != nil {
		t.Fatalf("GetPlanProgress: %v", err)
	}
	if progress.TotalSteps != 2 || progress.CompletedSteps != 1 {
		t.Fatalf("expected 1/2 steps completed, got %d/%d", progress.CompletedSteps, progress.TotalSteps)
	}
}
