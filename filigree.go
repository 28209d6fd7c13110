// Package filigree provides a minimal public API for extending the CLI
// with custom orchestration.
//
// Most extensions should use the Storage interface directly rather than
// reaching into internal/storage/sqlite; this package exports only the
// types and constructor an external Go program needs to open a project's
// database and drive its workflow programmatically.
package filigree

import (
	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/storage/sqlite"
	"github.com/tachyon-beep/filigree/internal/types"
)

// Core types for working with issues and their dependency graph.
type (
	Issue            = types.Issue
	IssueFilter      = types.IssueFilter
	WorkFilter       = types.WorkFilter
	CriticalPathItem = types.CriticalPathItem
	PlanPhase        = types.PlanPhase
	PlanStep         = types.PlanStep
	Event            = types.Event
	Comment          = types.Comment
)

// Status category constants. Filigree has no fixed per-type status enum —
// every type's concrete status names come from its workflow template —
// but every status resolves to one of these three coarse categories.
const (
	CategoryOpen = types.CategoryOpen
	CategoryWIP  = types.CategoryWIP
	CategoryDone = types.CategoryDone
)

// Default dependency kind used when callers don't specify one.
const DefaultDependencyKind = types.DefaultDependencyKind

// Storage is the full programmatic interface over a project's database.
type Storage = storage.Storage

// NewSQLiteStorage opens (creating if necessary) a Filigree SQLite database
// at dbPath for programmatic access, applying the built-in workflow
// templates plus any on-disk overrides found alongside it.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	return sqlite.Open(dbPath)
}
