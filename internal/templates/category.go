package templates

import "github.com/tachyon-beep/filigree/internal/types"

// doneNames and wipNames are the heuristic status-category fallback used
// for issue types that have no registered template (or a template missing
// a category for the observed status name).
var doneNames = map[string]bool{
	"closed": true, "done": true, "resolved": true,
	"wont_fix": true, "cancelled": true, "archived": true,
}

var wipNames = map[string]bool{
	"in_progress": true, "fixing": true, "verifying": true,
	"reviewing": true, "testing": true, "active": true,
}

// InferCategory is the fallback used when a status can't be resolved
// through a registered type's declared states: literal name matching
// against the same sets the original implementation hardcodes.
func InferCategory(status string) types.StatusCategory {
	if doneNames[status] {
		return types.CategoryDone
	}
	if wipNames[status] {
		return types.CategoryWIP
	}
	return types.CategoryOpen
}
