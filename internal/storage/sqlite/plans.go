package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

// CreatePlan creates a milestone, its phases, and their steps as a single
// issue tree in one transaction, then resolves each step's Deps (an int
// index into its own phase, or a "phaseIdx.stepIdx" string reaching into
// an earlier phase) into dependency edges between the newly minted ids.
func (s *Store) CreatePlan(ctx context.Context, milestoneTitle, milestoneDescription string, phases []types.PlanPhase, actor string) (*types.PlanResult, error) {
	conn, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, wrapDBErrorf(err, "create plan")
	}
	committed := false
	defer func() {
		if !committed {
			rollback(ctx, conn)
		}
	}()

	now := nowISO()
	milestoneID := newID(s.prefix)
	milestoneStatus := s.registry.GetInitialState("milestone")
	if err := insertIssueRaw(ctx, conn, milestoneID, milestoneTitle, milestoneDescription, milestoneStatus, 2, "milestone", nil, nil, now); err != nil {
		return nil, err
	}
	if err := recordEvent(ctx, conn, milestoneID, "created", actor, nil, &milestoneStatus, nil, now); err != nil {
		return nil, err
	}

	phaseIDs := make([]string, len(phases))
	stepIDs := make([][]string, len(phases))

	for pi, phase := range phases {
		phaseID := newID(s.prefix)
		phaseIDs[pi] = phaseID
		phaseStatus := s.registry.GetInitialState("phase")
		if err := insertIssueRaw(ctx, conn, phaseID, phase.Title, phase.Description, phaseStatus, 2, "phase", &milestoneID, nil, now); err != nil {
			return nil, err
		}
		if err := recordEvent(ctx, conn, phaseID, "created", actor, nil, &phaseStatus, nil, now); err != nil {
			return nil, err
		}

		stepIDs[pi] = make([]string, len(phase.Steps))
		for si, step := range phase.Steps {
			stepID := newID(s.prefix)
			stepIDs[pi][si] = stepID
			stepStatus := s.registry.GetInitialState("step")
			if err := insertIssueRaw(ctx, conn, stepID, step.Title, step.Description, stepStatus, step.Priority, "step", &phaseID, step.Fields, now); err != nil {
				return nil, err
			}
			if err := recordEvent(ctx, conn, stepID, "created", actor, nil, &stepStatus, nil, now); err != nil {
				return nil, err
			}
		}
	}

	for pi, phase := range phases {
		for si, step := range phase.Steps {
			stepID := stepIDs[pi][si]
			for _, rawDep := range step.Deps {
				depID, err := resolveStepDep(rawDep, pi, stepIDs)
				if err != nil {
					return nil, err
				}
				if _, err := conn.ExecContext(ctx, `INSERT OR IGNORE INTO dependencies (issue_id, depends_on_id, kind, created_at) VALUES (?, ?, ?, ?)`,
					stepID, depID, types.DefaultDependencyKind, now); err != nil {
					return nil, wrapDBErrorf(err, "insert plan dependency")
				}
				val := types.DefaultDependencyKind + ":" + depID
				if err := recordEvent(ctx, conn, stepID, "dependency_added", actor, nil, &val, nil, now); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := commit(ctx, conn); err != nil {
		return nil, wrapDBErrorf(err, "commit plan")
	}
	committed = true
	s.notifyMutated()

	return &types.PlanResult{MilestoneID: milestoneID, PhaseIDs: phaseIDs, StepIDs: stepIDs}, nil
}

// resolveStepDep resolves a PlanStep.Deps entry to a concrete step id.
// An int is an index into the current phase's steps (phaseIdx implied by
// the caller). A string "p.s" indexes phase p, step s, for cross-phase
// dependencies on earlier work.
func resolveStepDep(raw any, currentPhase int, stepIDs [][]string) (string, error) {
	switch v := raw.(type) {
	case int:
		if v < 0 || currentPhase >= len(stepIDs) || v >= len(stepIDs[currentPhase]) {
			return "", fmt.Errorf("%w: step dependency index %d out of range in phase %d", storage.ErrValidation, v, currentPhase)
		}
		return stepIDs[currentPhase][v], nil
	case string:
		parts := strings.SplitN(v, ".", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("%w: malformed cross-phase dependency %q (want \"phase.step\")", storage.ErrValidation, v)
		}
		p, err1 := strconv.Atoi(parts[0])
		st, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || p < 0 || p >= len(stepIDs) || st < 0 || st >= len(stepIDs[p]) {
			return "", fmt.Errorf("%w: cross-phase dependency %q out of range", storage.ErrValidation, v)
		}
		return stepIDs[p][st], nil
	default:
		return "", fmt.Errorf("%w: step dependency must be an int index or \"phase.step\" string, got %T", storage.ErrValidation, raw)
	}
}

func insertIssueRaw(ctx context.Context, conn *sql.Conn, id, title, description, status string, priority int, issueType string, parentID *string, fields map[string]any, now string) error {
	fieldsJSON, err := json.Marshal(emptyIfNil(fields))
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO issues (id, title, status, priority, type, parent_id, assignee, created_at, updated_at, closed_at, description, notes, fields)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?, NULL, ?, '', ?)`,
		id, title, status, priority, issueType, parentID, now, now, description, string(fieldsJSON))
	if err != nil {
		return wrapDBErrorf(err, "insert plan issue")
	}
	return nil
}

// GetPlanProgress summarizes completion for a milestone's phases.
func (s *Store) GetPlanProgress(ctx context.Context, milestoneID string) (*types.PlanProgress, error) {
	milestone, err := s.GetIssue(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	progress := &types.PlanProgress{MilestoneID: milestoneID, Title: milestone.Title}
	for _, phaseID := range milestone.Children {
		phase, err := s.GetIssue(ctx, phaseID)
		if err != nil {
			return nil, err
		}
		pp := types.PlanPhaseProgress{
			PhaseID:        phaseID,
			Title:          phase.Title,
			StatusCategory: phase.StatusCategory,
			Total:          len(phase.Children),
		}
		for _, stepID := range phase.Children {
			step, err := s.GetIssue(ctx, stepID)
			if err != nil {
				return nil, err
			}
			progress.TotalSteps++
			if step.StatusCategory == types.CategoryDone {
				pp.Completed++
				progress.CompletedSteps++
			}
			if step.IsReady {
				pp.Ready++
			}
		}
		progress.Phases = append(progress.Phases, pp)
	}
	return progress, nil
}
