package templates

import "github.com/tachyon-beep/filigree/internal/types"

// builtinPacks returns the packs shipped with the binary. They are seeded
// into a fresh registry before any on-disk overrides are applied.
func builtinPacks() []*Pack {
	return []*Pack{corePack(), planningPack()}
}

// corePack defines the default bug/feature/task/epic/chore workflow. The
// "bug" type's state machine matches the literal end-to-end scenario in
// the testable-properties section: triage -> confirmed -> fixing ->
// verifying -> closed, with fix_verification required (hard) to close.
func corePack() *Pack {
	bug := &TypeTemplate{
		Name:        "bug",
		DisplayName: "Bug",
		Description: "A defect in existing behavior.",
		States: []State{
			{Name: "triage", Category: types.CategoryOpen},
			{Name: "confirmed", Category: types.CategoryOpen},
			{Name: "fixing", Category: types.CategoryWIP},
			{Name: "verifying", Category: types.CategoryWIP},
			{Name: "closed", Category: types.CategoryDone},
			{Name: "wont_fix", Category: types.CategoryDone},
		},
		InitialState: "triage",
		Transitions: []Transition{
			{From: "triage", To: "confirmed", Enforcement: types.EnforcementSoft, RequiresFields: []string{"severity"}},
			{From: "triage", To: "wont_fix", Enforcement: types.EnforcementNone},
			{From: "confirmed", To: "fixing", Enforcement: types.EnforcementSoft, RequiresFields: []string{"root_cause"}},
			{From: "fixing", To: "verifying", Enforcement: types.EnforcementSoft, RequiresFields: []string{"fix_verification"}},
			{From: "verifying", To: "closed", Enforcement: types.EnforcementHard, RequiresFields: []string{"fix_verification"}},
			{From: "verifying", To: "fixing", Enforcement: types.EnforcementNone},
			{From: "confirmed", To: "triage", Enforcement: types.EnforcementNone},
		},
		Fields: []FieldSchema{
			{Name: "severity", Type: "enum", Options: []string{"critical", "major", "minor"}, Description: "Impact of the defect.", RequiredAt: set("confirmed")},
			{Name: "root_cause", Type: "text", Description: "Identified root cause.", RequiredAt: set("fixing")},
			{Name: "fix_verification", Type: "text", Description: "Evidence the fix was verified.", RequiredAt: set("verifying", "closed")},
		},
	}

	feature := &TypeTemplate{
		Name:        "feature",
		DisplayName: "Feature",
		Description: "New user-facing capability.",
		States: []State{
			{Name: "open", Category: types.CategoryOpen},
			{Name: "in_progress", Category: types.CategoryWIP},
			{Name: "reviewing", Category: types.CategoryWIP},
			{Name: "closed", Category: types.CategoryDone},
		},
		InitialState: "open",
		Transitions: []Transition{
			{From: "open", To: "in_progress", Enforcement: types.EnforcementNone},
			{From: "in_progress", To: "reviewing", Enforcement: types.EnforcementNone},
			{From: "reviewing", To: "closed", Enforcement: types.EnforcementNone},
			{From: "reviewing", To: "in_progress", Enforcement: types.EnforcementNone},
		},
	}

	task := &TypeTemplate{
		Name:        "task",
		DisplayName: "Task",
		Description: "General unit of work.",
		States: []State{
			{Name: "open", Category: types.CategoryOpen},
			{Name: "in_progress", Category: types.CategoryWIP},
			{Name: "closed", Category: types.CategoryDone},
		},
		InitialState: "open",
		Transitions: []Transition{
			{From: "open", To: "in_progress", Enforcement: types.EnforcementNone},
			{From: "open", To: "closed", Enforcement: types.EnforcementNone},
			{From: "in_progress", To: "closed", Enforcement: types.EnforcementNone},
			{From: "in_progress", To: "open", Enforcement: types.EnforcementNone},
			{From: "closed", To: "open", Enforcement: types.EnforcementNone},
		},
	}

	epic := &TypeTemplate{
		Name:        "epic",
		DisplayName: "Epic",
		Description: "Container for related child issues.",
		States: []State{
			{Name: "open", Category: types.CategoryOpen},
			{Name: "in_progress", Category: types.CategoryWIP},
			{Name: "closed", Category: types.CategoryDone},
		},
		InitialState: "open",
		Transitions: []Transition{
			{From: "open", To: "in_progress", Enforcement: types.EnforcementNone},
			{From: "in_progress", To: "closed", Enforcement: types.EnforcementNone},
		},
	}

	chore := &TypeTemplate{
		Name:        "chore",
		DisplayName: "Chore",
		Description: "Maintenance work with no user-facing effect.",
		States: []State{
			{Name: "open", Category: types.CategoryOpen},
			{Name: "in_progress", Category: types.CategoryWIP},
			{Name: "closed", Category: types.CategoryDone},
		},
		InitialState: "open",
		Transitions: []Transition{
			{From: "open", To: "in_progress", Enforcement: types.EnforcementNone},
			{From: "in_progress", To: "closed", Enforcement: types.EnforcementNone},
		},
	}

	return &Pack{Name: "core", Types: map[string]*TypeTemplate{
		"bug": bug, "feature": feature, "task": task, "epic": epic, "chore": chore,
	}}
}

// planningPack defines the milestone -> phase -> step hierarchy used by CreatePlan.
func planningPack() *Pack {
	simple := func(name, display string) *TypeTemplate {
		return &TypeTemplate{
			Name:        name,
			DisplayName: display,
			States: []State{
				{Name: "open", Category: types.CategoryOpen},
				{Name: "in_progress", Category: types.CategoryWIP},
				{Name: "closed", Category: types.CategoryDone},
			},
			InitialState: "open",
			Transitions: []Transition{
				{From: "open", To: "in_progress", Enforcement: types.EnforcementNone},
				{From: "open", To: "closed", Enforcement: types.EnforcementNone},
				{From: "in_progress", To: "closed", Enforcement: types.EnforcementNone},
				{From: "in_progress", To: "open", Enforcement: types.EnforcementNone},
				{From: "closed", To: "open", Enforcement: types.EnforcementNone},
			},
		}
	}
	return &Pack{Name: "planning", Types: map[string]*TypeTemplate{
		"milestone": simple("milestone", "Milestone"),
		"phase":     simple("phase", "Phase"),
		"step":      simple("step", "Step"),
	}}
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
