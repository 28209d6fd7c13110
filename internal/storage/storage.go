package storage

import (
	"context"

	"github.com/tachyon-beep/filigree/internal/types"
)

// CreateIssueParams carries the full input set for Storage.CreateIssue.
type CreateIssueParams struct {
	Title       string
	Type        string
	Priority    int
	ParentID    *string
	Assignee    string
	Description string
	Notes       string
	Labels      []string
	Deps        []string
	Fields      map[string]any
	Actor       string
}

// UpdateIssueParams carries an optional subset of mutable issue fields.
// A nil pointer means "leave unchanged".
type UpdateIssueParams struct {
	Title       *string
	Status      *string
	Priority    *int
	ParentID    **string
	Assignee    *string
	Description *string
	Notes       *string
	Fields      map[string]any
	Actor       string
}

// CloseIssueParams is the convenience wrapper over Update for closing.
type CloseIssueParams struct {
	Status *string // defaults to the type's first done-category state
	Fields map[string]any
	Reason string
	Actor  string
}

// BatchResult is the outcome of a batch_* operation.
type BatchResult struct {
	Succeeded []string
	Errors    []types.BatchError
}

// ScanIngestRequest is the scan-ingest API contract from spec.md §6.
type ScanIngestRequest struct {
	ScanSource  string
	ScanRunID   string
	Findings    []ScanIngestFinding
	MarkUnseen  bool
}

// ScanIngestFinding is one raw finding as submitted by an external scanner.
type ScanIngestFinding struct {
	Path       string
	RuleID     string
	Severity   string
	Message    string
	Suggestion string
	LineStart  *int
	LineEnd    *int
	Metadata   map[string]any
}

// ScanIngestResult mirrors the JSON response shape from spec.md §6.
type ScanIngestResult struct {
	FilesSeen            int      `json:"files_seen"`
	FindingsNew          int      `json:"findings_new"`
	FindingsUpdated      int      `json:"findings_updated"`
	FindingsMarkedUnseen int      `json:"findings_marked_unseen"`
	Warnings             []string `json:"warnings"`
}

// Storage is the full public contract of the persistent issue store and
// its workflow engine. A single implementation (internal/storage/sqlite)
// backs it today; the interface exists so callers depend on behavior, not
// the backing file format.
type Storage interface {
	Close() error

	// Issue engine (spec.md §4.3)
	CreateIssue(ctx context.Context, p CreateIssueParams) (*types.Issue, error)
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	UpdateIssue(ctx context.Context, id string, p UpdateIssueParams) (*types.Issue, error)
	CloseIssue(ctx context.Context, id string, p CloseIssueParams) (*types.Issue, error)
	ReopenIssue(ctx context.Context, id string, actor string) (*types.Issue, error)
	ClaimIssue(ctx context.Context, id, assignee string) (*types.Issue, error)
	ClaimNext(ctx context.Context, filter types.WorkFilter, assignee string) (*types.Issue, error)
	ReleaseIssue(ctx context.Context, id, actor string) (*types.Issue, error)
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error)

	BatchUpdate(ctx context.Context, ids []string, p UpdateIssueParams) (*BatchResult, error)
	BatchClose(ctx context.Context, ids []string, p CloseIssueParams) (*BatchResult, error)
	BatchAddLabel(ctx context.Context, ids []string, label, actor string) (*BatchResult, error)
	BatchAddComment(ctx context.Context, ids []string, author, text string) (*BatchResult, error)

	AddComment(ctx context.Context, issueID, author, text string) (*types.Comment, error)
	GetComments(ctx context.Context, issueID string) ([]*types.Comment, error)
	AddLabel(ctx context.Context, issueID, label, actor string) error
	RemoveLabel(ctx context.Context, issueID, label, actor string) error

	// Dependency engine (spec.md §4.4)
	AddDependency(ctx context.Context, issueID, dependsOnID, kind, actor string) error
	RemoveDependency(ctx context.Context, issueID, dependsOnID, actor string) (bool, error)
	GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error)
	GetBlocked(ctx context.Context) ([]*types.Issue, error)
	GetCriticalPath(ctx context.Context) ([]types.CriticalPathItem, error)
	CreatePlan(ctx context.Context, milestoneTitle, milestoneDescription string, phases []types.PlanPhase, actor string) (*types.PlanResult, error)
	GetPlanProgress(ctx context.Context, milestoneID string) (*types.PlanProgress, error)

	// Event log & undo (spec.md §4.5)
	GetRecentEvents(ctx context.Context, limit int) ([]*types.Event, error)
	GetIssueEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error)
	UndoLast(ctx context.Context, issueID, actor string) (*types.Event, error)
	ArchiveClosed(ctx context.Context, daysOld int, actor string) ([]string, error)
	CompactEvents(ctx context.Context, keepRecent int) (int, error)
	Vacuum(ctx context.Context) error
	Analyze(ctx context.Context) error

	// Files & scan findings (spec.md §4.6)
	IngestScan(ctx context.Context, req ScanIngestRequest) (*ScanIngestResult, error)
	CleanStaleFindings(ctx context.Context, days int, scanSource string) (int, error)
	AddFileAssociation(ctx context.Context, fileID, issueID string, assocType types.AssocType) error
	GetFileTimeline(ctx context.Context, fileID string, eventType string, limit, offset int) ([]TimelineEntry, error)
	GetFileHotspots(ctx context.Context, limit int) ([]FileHotspot, error)

	// Stats & schema (spec.md §4.5/§4.8, supplemented)
	GetStats(ctx context.Context) (*types.Stats, error)
	SchemaVersion(ctx context.Context) (int, error)

	// ValidateFieldsForState exposes the workflow registry's required-field
	// check so the summary projection can flag issues missing fields their
	// current state demands, without reaching around the storage boundary.
	ValidateFieldsForState(ctx context.Context, typeName, state string, fields map[string]any) []string

	// ReloadTemplates clears the cached workflow registry and rebuilds it
	// from the built-in packs plus any on-disk overrides, so edits under
	// .filigree/templates/ and .filigree/packs/ take effect without
	// restarting the process.
	ReloadTemplates(ctx context.Context) error
}

// TimelineEntry is one chronologically-merged row from GetFileTimeline.
type TimelineEntry struct {
	Kind      string // "file_event" | "scan_finding" | "issue_event"
	Timestamp string
	Summary   string
	RefID     string
}

// FileHotspot is one row of the file+severity aggregation.
type FileHotspot struct {
	FileID        string
	Path          string
	FindingCount  int
	CriticalCount int
	HighCount     int
}
