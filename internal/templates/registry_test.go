package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tachyon-beep/filigree/internal/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(t.TempDir(), nil, nil)
}

func TestBugWorkflowScenario(t *testing.T) {
	r := newTestRegistry(t)

	if got := r.GetInitialState("bug"); got != "triage" {
		t.Fatalf("initial state = %q, want triage", got)
	}

	// triage -> confirmed requires severity (soft): allowed even if missing, with a warning.
	allowed, _, missing, warnings := r.ValidateTransition("bug", "triage", "confirmed", map[string]any{})
	if !allowed {
		t.Fatal("soft-enforced transition with missing fields should still be allowed")
	}
	if len(missing) != 1 || missing[0] != "severity" {
		t.Fatalf("missing = %v, want [severity]", missing)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a warning for missing soft-required field")
	}

	// verifying -> closed is hard-enforced on fix_verification.
	allowed, _, missing, _ = r.ValidateTransition("bug", "verifying", "closed", map[string]any{})
	if allowed {
		t.Fatal("hard-enforced transition with missing fields must be blocked")
	}
	if len(missing) != 1 || missing[0] != "fix_verification" {
		t.Fatalf("missing = %v, want [fix_verification]", missing)
	}

	allowed, _, _, _ = r.ValidateTransition("bug", "verifying", "closed", map[string]any{"fix_verification": "ok"})
	if !allowed {
		t.Fatal("transition should succeed once required field is supplied")
	}
}

func TestValidateTransitionUnknownTypeIsPermissive(t *testing.T) {
	r := newTestRegistry(t)
	allowed, _, _, _ := r.ValidateTransition("frobnicator", "anything", "else", nil)
	if !allowed {
		t.Fatal("unregistered types must be permissive")
	}
}

func TestValidateTransitionRejectsUndeclaredForKnownType(t *testing.T) {
	r := newTestRegistry(t)
	allowed, _, valid, _ := r.ValidateTransition("bug", "triage", "closed", nil)
	if allowed {
		t.Fatal("undeclared transition on known type must be rejected")
	}
	if len(valid) == 0 {
		t.Fatal("expected list of valid transitions from triage")
	}
}

func TestInferCategoryFallback(t *testing.T) {
	cases := map[string]types.StatusCategory{
		"closed":      types.CategoryDone,
		"resolved":    types.CategoryDone,
		"fixing":      types.CategoryWIP,
		"active":      types.CategoryWIP,
		"whatever":    types.CategoryOpen,
	}
	for status, want := range cases {
		if got := InferCategory(status); got != want {
			t.Errorf("InferCategory(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestGetCategoryUsesRegisteredStateOverHeuristic(t *testing.T) {
	r := newTestRegistry(t)
	// "fixing" is WIP by heuristic and also declared WIP for bug - consistent case.
	if got := r.GetCategory("bug", "fixing"); got != types.CategoryWIP {
		t.Fatalf("GetCategory(bug, fixing) = %q, want wip", got)
	}
	// unregistered type falls back to the heuristic.
	if got := r.GetCategory("widget", "closed"); got != types.CategoryDone {
		t.Fatalf("GetCategory(widget, closed) = %q, want done", got)
	}
}

func TestReservedLabelNames(t *testing.T) {
	r := newTestRegistry(t)
	if !r.IsReservedLabel("Bug") {
		t.Fatal("type names must be reserved case-insensitively")
	}
	if r.IsReservedLabel("urgent") {
		t.Fatal("non-type label should not be reserved")
	}
}

func TestReloadPicksUpOverride(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir, nil, nil)
	if r.GetType("widget") != nil {
		t.Fatal("widget should not exist before override is written")
	}

	override := `{"name": "widget", "initial_state": "open",
		"states": [{"name": "open", "category": "open"}, {"name": "done", "category": "done"}],
		"transitions": [{"from": "open", "to": "done", "enforcement": "none"}]}`
	if err := os.MkdirAll(filepath.Join(dir, "templates"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "templates", "widget.json"), []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	r.Reload()
	if r.GetType("widget") == nil {
		t.Fatal("widget should be registered after Reload picks up the override")
	}
}
