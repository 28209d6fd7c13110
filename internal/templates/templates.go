// Package templates implements the workflow template registry: packs of
// issue types, each with a state machine, transition enforcement, and
// per-state field requirements.
package templates

import "github.com/tachyon-beep/filigree/internal/types"

// State is one named state in a type's state machine.
type State struct {
	Name     string
	Category types.StatusCategory
}

// Transition is one declared state-machine edge.
type Transition struct {
	From           string
	To             string
	Enforcement    types.EnforcementLevel
	RequiresFields []string
}

// FieldSchema declares a type-specific dynamic field.
type FieldSchema struct {
	Name        string
	Type        string // "text" | "enum" | "number" | "bool"
	Options     []string
	Default     any
	Description string
	RequiredAt  map[string]bool // set of state names
}

// TypeTemplate is one registered issue type's full workflow definition.
type TypeTemplate struct {
	Name         string
	DisplayName  string
	Description  string
	States       []State
	InitialState string
	Transitions  []Transition
	Fields       []FieldSchema

	statesByName map[string]State
}

func (t *TypeTemplate) index() {
	t.statesByName = make(map[string]State, len(t.States))
	for _, s := range t.States {
		t.statesByName[s.Name] = s
	}
}

func (t *TypeTemplate) hasState(name string) bool {
	_, ok := t.statesByName[name]
	return ok
}

// Pack groups a set of type templates under a name; packs are enabled or
// disabled per project via config.
type Pack struct {
	Name  string
	Types map[string]*TypeTemplate
}

// ValidTransitionOption is one entry in GetValidTransitions's result.
type ValidTransitionOption struct {
	To             string
	Category       types.StatusCategory
	Enforcement    types.EnforcementLevel
	RequiresFields []string
	MissingFields  []string
	Ready          bool
}
