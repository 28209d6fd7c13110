// Package types defines the entities and value objects shared across the
// Filigree storage and engine layers.
package types

import "time"

// StatusCategory is the coarse bucket every per-type status resolves to.
type StatusCategory string

const (
	CategoryOpen StatusCategory = "open"
	CategoryWIP  StatusCategory = "wip"
	CategoryDone StatusCategory = "done"
)

// EnforcementLevel controls how strictly a transition is validated.
type EnforcementLevel string

const (
	EnforcementHard EnforcementLevel = "hard"
	EnforcementSoft EnforcementLevel = "soft"
	EnforcementNone EnforcementLevel = "none"
)

// Severity is the coarse rank of a scan finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity coerces an arbitrary string into a known Severity, returning
// ok=false (and SeverityInfo) when the input isn't recognized.
func ParseSeverity(s string) (sev Severity, ok bool) {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(s), true
	default:
		return SeverityInfo, false
	}
}

// FindingStatus is the lifecycle state of a scan finding.
type FindingStatus string

const (
	FindingOpen            FindingStatus = "open"
	FindingAcknowledged    FindingStatus = "acknowledged"
	FindingFixed           FindingStatus = "fixed"
	FindingFalsePositive   FindingStatus = "false_positive"
	FindingUnseenInLatest  FindingStatus = "unseen_in_latest"
)

// AssocType describes the relationship a file has to an issue.
type AssocType string

const (
	AssocBugIn        AssocType = "bug_in"
	AssocTaskFor       AssocType = "task_for"
	AssocScanFinding   AssocType = "scan_finding"
	AssocMentionedIn   AssocType = "mentioned_in"
)

func ValidAssocType(a string) bool {
	switch AssocType(a) {
	case AssocBugIn, AssocTaskFor, AssocScanFinding, AssocMentionedIn:
		return true
	}
	return false
}

// Issue is a single tracked unit of work.
type Issue struct {
	ID          string
	Title       string
	Status      string
	Priority    int
	Type        string
	ParentID    *string
	Assignee    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
	Description string
	Notes       string
	Fields      map[string]any

	// Computed, not stored.
	StatusCategory StatusCategory
	BlockedBy      []string
	Blocks         []string
	IsReady        bool
	Children       []string
	Labels         []string
}

// Dependency is a directed blocker edge issue_id -> depends_on_id.
type Dependency struct {
	IssueID     string
	DependsOnID string
	Kind        string
}

const DefaultDependencyKind = "blocks"

// Event is one append-only row in the audit/undo log.
type Event struct {
	ID        int64
	IssueID   string
	EventType string
	Actor     string
	OldValue  *string
	NewValue  *string
	Comment   *string
	CreatedAt time.Time

	// IssueTitle is populated by joins for display (e.g. recent-activity feed); not a stored column.
	IssueTitle string
}

// ReversibleEvents is the fixed set of event types undo_last may revert.
var ReversibleEvents = map[string]bool{
	"status_changed":      true,
	"title_changed":       true,
	"priority_changed":    true,
	"assignee_changed":    true,
	"claimed":             true,
	"dependency_added":    true,
	"dependency_removed":  true,
	"description_changed": true,
	"notes_changed":       true,
}

// Comment is a free-text note attached to an issue.
type Comment struct {
	ID        int64
	IssueID   string
	Author    string
	Text      string
	CreatedAt time.Time
}

// FileRecord is a tracked source file.
type FileRecord struct {
	ID        string
	Path      string
	Language  string
	FileType  string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScanFinding is one deduplicated finding from a scan source.
type ScanFinding struct {
	ID          string
	FileID      string
	IssueID     *string
	ScanSource  string
	RuleID      string
	Severity    Severity
	Status      FindingStatus
	Message     string
	Suggestion  string
	ScanRunID   string
	LineStart   *int
	LineEnd     *int
	SeenCount   int
	FirstSeen   time.Time
	UpdatedAt   time.Time
	LastSeenAt  time.Time
}

// FileAssociation links a file to an issue.
type FileAssociation struct {
	ID        int64
	FileID    string
	IssueID   string
	AssocType AssocType
	CreatedAt time.Time
}

// FileEvent is an append-only per-file metadata change record.
type FileEvent struct {
	ID        int64
	FileID    string
	EventType string
	OldValue  *string
	NewValue  *string
	CreatedAt time.Time
}

// IssueFilter narrows list_issues/search_issues queries. Nil fields are unconstrained.
type IssueFilter struct {
	Status   *string
	Type     *string
	Priority *int
	ParentID *string
	Assignee *string
	Label    *string
	Limit    int
	Offset   int
}

// SortPolicy controls ready-work ordering.
type SortPolicy string

const (
	SortPolicyHybrid   SortPolicy = "hybrid"
	SortPolicyPriority SortPolicy = "priority"
	SortPolicyCreated  SortPolicy = "created"
)

// WorkFilter narrows get_ready_work queries.
type WorkFilter struct {
	Type         *string
	MinPriority  *int
	MaxPriority  *int
	Assignee     *string
	Unassigned   bool
	Labels       []string
	LabelsMatchAny bool
	Sort         SortPolicy
	Limit        int
}

// PlanStep is one unit of work inside a phase, as supplied to CreatePlan.
type PlanStep struct {
	Title       string
	Description string
	Priority    int
	Deps        []any // int (intra-phase index) or "phase.step" string (cross-phase)
	Fields      map[string]any
}

// PlanPhase groups steps under a milestone.
type PlanPhase struct {
	Title       string
	Description string
	Steps       []PlanStep
}

// PlanResult is the outcome of CreatePlan.
type PlanResult struct {
	MilestoneID string
	PhaseIDs    []string
	StepIDs     [][]string // StepIDs[phaseIdx][stepIdx]
}

// PlanProgress summarizes a milestone's completion for the summary projection.
type PlanProgress struct {
	MilestoneID   string
	Title         string
	TotalSteps    int
	CompletedSteps int
	Phases        []PlanPhaseProgress
}

// PlanPhaseProgress is the per-phase slice of PlanProgress.
type PlanPhaseProgress struct {
	PhaseID        string
	Title          string
	StatusCategory StatusCategory
	Total          int
	Completed      int
	Ready          int
}

// CriticalPathItem is one entry in the longest-chain result.
type CriticalPathItem struct {
	ID       string
	Title    string
	Type     string
	Priority int
}

// Stats is the aggregate counts computed by GetStats.
type Stats struct {
	ByStatus    map[string]int
	ByType      map[string]int
	ByCategory  map[StatusCategory]int
	ReadyCount  int
	BlockedCount int
	DepCount    int
}
