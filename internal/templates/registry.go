package templates

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tachyon-beep/filigree/internal/types"
)

// Registry resolves type names to their workflow template, across the
// built-in packs plus any on-disk overrides, restricted to the enabled
// pack list. It is read-only after (re)load: Reload swaps the internal
// state atomically so concurrent readers never see a half-built registry.
type Registry struct {
	mu           sync.RWMutex
	types        map[string]*TypeTemplate
	reservedLow  map[string]bool
	projectDir   string
	enabledPacks []string
	logger       *slog.Logger
}

// NewRegistry builds a registry by loading built-in packs plus any on-disk
// overrides under projectDir/templates and projectDir/packs, restricted to
// enabledPacks (empty means "all built-in packs").
func NewRegistry(projectDir string, enabledPacks []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{projectDir: projectDir, enabledPacks: enabledPacks, logger: logger}
	r.Reload()
	return r
}

// Reload clears the cached registry and rebuilds it from built-in pack
// data plus on-disk overrides, so changes under .filigree/templates and
// .filigree/packs take effect without restarting the process.
func (r *Registry) Reload() {
	merged := map[string]*TypeTemplate{}
	enabled := func(pack string) bool {
		if len(r.enabledPacks) == 0 {
			return true
		}
		for _, p := range r.enabledPacks {
			if p == pack {
				return true
			}
		}
		return false
	}

	for _, pack := range builtinPacks() {
		if !enabled(pack.Name) {
			continue
		}
		for name, tpl := range pack.Types {
			if err := validateTemplate(tpl); err != nil {
				r.logger.Warn("skipping malformed built-in template", "type", name, "pack", pack.Name, "error", err)
				continue
			}
			tpl.index()
			merged[name] = tpl
		}
	}

	for _, dir := range []string{filepath.Join(r.projectDir, "packs"), filepath.Join(r.projectDir, "templates")} {
		r.loadOverrideDir(dir, merged)
	}

	reserved := make(map[string]bool, len(merged))
	for name := range merged {
		reserved[strings.ToLower(name)] = true
	}

	r.mu.Lock()
	r.types = merged
	r.reservedLow = reserved
	r.mu.Unlock()
}

func (r *Registry) loadOverrideDir(dir string, merged map[string]*TypeTemplate) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return // missing override directory is not an error
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("failed to read template override", "path", path, "error", err)
			continue
		}
		var raw rawTemplate
		if err := json.Unmarshal(data, &raw); err != nil {
			r.logger.Warn("failed to parse template override", "path", path, "error", err)
			continue
		}
		tpl, err := raw.toTemplate()
		if err != nil {
			r.logger.Warn("malformed template override", "path", path, "error", err)
			continue
		}
		if err := validateTemplate(tpl); err != nil {
			r.logger.Warn("skipping malformed template override", "path", path, "error", err)
			continue
		}
		tpl.index()
		merged[tpl.Name] = tpl
	}
}

// rawTemplate is the on-disk JSON shape for a type override.
type rawTemplate struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	States       []struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	} `json:"states"`
	InitialState string `json:"initial_state"`
	Transitions  []struct {
		From           string   `json:"from"`
		To             string   `json:"to"`
		Enforcement    string   `json:"enforcement"`
		RequiresFields []string `json:"requires_fields"`
	} `json:"transitions"`
	Fields []struct {
		Name        string         `json:"name"`
		Type        string         `json:"type"`
		Options     []string       `json:"options"`
		Default     any            `json:"default"`
		Description string         `json:"description"`
		RequiredAt  []string       `json:"required_at"`
	} `json:"fields"`
}

func (raw rawTemplate) toTemplate() (*TypeTemplate, error) {
	if raw.Name == "" {
		return nil, fmt.Errorf("template missing name")
	}
	tpl := &TypeTemplate{
		Name:         raw.Name,
		DisplayName:  raw.DisplayName,
		Description:  raw.Description,
		InitialState: raw.InitialState,
	}
	for _, s := range raw.States {
		tpl.States = append(tpl.States, State{Name: s.Name, Category: types.StatusCategory(s.Category)})
	}
	for _, t := range raw.Transitions {
		tpl.Transitions = append(tpl.Transitions, Transition{
			From: t.From, To: t.To,
			Enforcement:    types.EnforcementLevel(t.Enforcement),
			RequiresFields: t.RequiresFields,
		})
	}
	for _, f := range raw.Fields {
		tpl.Fields = append(tpl.Fields, FieldSchema{
			Name: f.Name, Type: f.Type, Options: f.Options, Default: f.Default,
			Description: f.Description, RequiredAt: set(f.RequiredAt...),
		})
	}
	return tpl, nil
}

// validateTemplate is the parse-time validation pass described in
// spec.md §4.2: malformed templates are skipped with a warning, never
// crash loading.
func validateTemplate(tpl *TypeTemplate) error {
	if len(tpl.States) == 0 {
		return fmt.Errorf("template %q declares no states", tpl.Name)
	}
	stateNames := make(map[string]bool, len(tpl.States))
	for _, s := range tpl.States {
		switch s.Category {
		case types.CategoryOpen, types.CategoryWIP, types.CategoryDone:
		default:
			return fmt.Errorf("state %q has invalid category %q", s.Name, s.Category)
		}
		stateNames[s.Name] = true
	}
	if !stateNames[tpl.InitialState] {
		return fmt.Errorf("initial_state %q not in declared states", tpl.InitialState)
	}
	for _, t := range tpl.Transitions {
		if !stateNames[t.From] || !stateNames[t.To] {
			return fmt.Errorf("transition %s -> %s references undeclared state", t.From, t.To)
		}
		switch t.Enforcement {
		case types.EnforcementHard, types.EnforcementSoft, types.EnforcementNone:
		default:
			return fmt.Errorf("transition %s -> %s has invalid enforcement %q", t.From, t.To, t.Enforcement)
		}
	}
	for _, f := range tpl.Fields {
		for state := range f.RequiredAt {
			if !stateNames[state] {
				return fmt.Errorf("field %q required_at references undeclared state %q", f.Name, state)
			}
		}
	}
	return nil
}

// GetType returns the registered template, or nil for an unknown type.
func (r *Registry) GetType(name string) *TypeTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[name]
}

// IsReservedLabel reports whether name collides case-insensitively with a
// registered type name.
func (r *Registry) IsReservedLabel(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reservedLow[strings.ToLower(name)]
}

// GetInitialState returns the type's initial state, falling back to the
// literal "open" for an unregistered type.
func (r *Registry) GetInitialState(typeName string) string {
	if tpl := r.GetType(typeName); tpl != nil {
		return tpl.InitialState
	}
	return "open"
}

// GetValidStates returns the ordered state names for a type, or nil for an
// unregistered type (nil means "permissive": any status string is allowed).
func (r *Registry) GetValidStates(typeName string) []string {
	tpl := r.GetType(typeName)
	if tpl == nil {
		return nil
	}
	names := make([]string, len(tpl.States))
	for i, s := range tpl.States {
		names[i] = s.Name
	}
	return names
}

// GetCategory resolves a status to its category for a given type. Unknown
// type or unknown status within a known type both fall back to the
// heuristic name-based inference.
func (r *Registry) GetCategory(typeName, status string) types.StatusCategory {
	tpl := r.GetType(typeName)
	if tpl != nil {
		if s, ok := tpl.statesByName[status]; ok {
			return s.Category
		}
	}
	return InferCategory(status)
}

// GetValidTransitions enumerates the transitions available from the given
// state, annotated with field-readiness.
func (r *Registry) GetValidTransitions(typeName, fromState string, fields map[string]any) []ValidTransitionOption {
	tpl := r.GetType(typeName)
	if tpl == nil {
		return nil
	}
	var out []ValidTransitionOption
	for _, t := range tpl.Transitions {
		if t.From != fromState {
			continue
		}
		missing := missingFields(t.RequiresFields, fields)
		out = append(out, ValidTransitionOption{
			To:             t.To,
			Category:       tpl.statesByName[t.To].Category,
			Enforcement:    t.Enforcement,
			RequiresFields: t.RequiresFields,
			MissingFields:  missing,
			Ready:          len(missing) == 0,
		})
	}
	return out
}

func missingFields(required []string, fields map[string]any) []string {
	var missing []string
	for _, f := range required {
		if !types.IsFieldPopulated(fields[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// ValidateTransition checks whether from->to is allowed for typeName.
// Unregistered types are permissive (always allowed). For registered
// types, the transition must be declared; hard enforcement additionally
// requires every listed field to be populated.
func (r *Registry) ValidateTransition(typeName, from, to string, fields map[string]any) (allowed bool, enforcement types.EnforcementLevel, missing []string, warnings []string) {
	tpl := r.GetType(typeName)
	if tpl == nil {
		return true, types.EnforcementNone, nil, nil
	}
	for _, t := range tpl.Transitions {
		if t.From == from && t.To == to {
			missing = missingFields(t.RequiresFields, fields)
			switch t.Enforcement {
			case types.EnforcementHard:
				if len(missing) > 0 {
					return false, t.Enforcement, missing, nil
				}
				return true, t.Enforcement, nil, nil
			case types.EnforcementSoft:
				if len(missing) > 0 {
					warnings = append(warnings, fmt.Sprintf("missing recommended fields: %v", missing))
				}
				return true, t.Enforcement, missing, warnings
			default:
				return true, t.Enforcement, nil, nil
			}
		}
	}
	var valid []string
	for _, t := range tpl.Transitions {
		if t.From == from {
			valid = append(valid, t.To)
		}
	}
	return false, types.EnforcementNone, valid, nil
}

// ValidateFieldsForState returns the names of fields required at state
// that are currently unpopulated.
func (r *Registry) ValidateFieldsForState(typeName, state string, fields map[string]any) []string {
	tpl := r.GetType(typeName)
	if tpl == nil {
		return nil
	}
	var missing []string
	for _, f := range tpl.Fields {
		if f.RequiredAt[state] && !types.IsFieldPopulated(fields[f.Name]) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// FirstOpenState returns the first open-category state for a type,
// falling back to the initial state when no open state is declared, and
// to the literal "open" for an unregistered type. Used by reopen_issue.
func (r *Registry) FirstOpenState(typeName string) string {
	tpl := r.GetType(typeName)
	if tpl == nil {
		return "open"
	}
	for _, s := range tpl.States {
		if s.Category == types.CategoryOpen {
			return s.Name
		}
	}
	return tpl.InitialState
}

// FirstDoneState returns the first done-category state for a type,
// falling back to the literal "closed" for an unregistered type.
func (r *Registry) FirstDoneState(typeName string) string {
	tpl := r.GetType(typeName)
	if tpl == nil {
		return "closed"
	}
	for _, s := range tpl.States {
		if s.Category == types.CategoryDone {
			return s.Name
		}
	}
	return "closed"
}
