// Package summary renders the current project state into a compact
// markdown digest an agent can read in a single file read at session
// start, instead of re-querying the store for every fact it needs.
package summary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

const staleThresholdDays = 3

const (
	readyCap     = 12
	attentionCap = 8
	blockedCap   = 10
	epicCap      = 10
	recentCap    = 10
)

type attentionEntry struct {
	issue   *types.Issue
	missing []string
}

// GenerateSummary gathers current store state and formats it into the
// markdown sections agents expect: vitals, active plans, ready-to-work,
// in-progress, needs-attention, stale, blocked, epic progress, critical
// path, and recent activity.
func GenerateSummary(ctx context.Context, store storage.Storage) (string, error) {
	now := time.Now().UTC()

	var (
		stats    *types.Stats
		ready    []*types.Issue
		blocked  []*types.Issue
		all      []*types.Issue
		recent   []*types.Event
		critPath []types.CriticalPathItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { stats, err = store.GetStats(gctx); return })
	g.Go(func() (err error) { ready, err = store.GetReadyWork(gctx, types.WorkFilter{}); return })
	g.Go(func() (err error) { blocked, err = store.GetBlocked(gctx); return })
	g.Go(func() (err error) { all, err = store.ListIssues(gctx, types.IssueFilter{}); return })
	g.Go(func() (err error) { recent, err = store.GetRecentEvents(gctx, recentCap); return })
	g.Go(func() (err error) { critPath, err = store.GetCriticalPath(gctx); return })
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("gathering summary data: %w", err)
	}

	byID := indexByID(all)

	var b strings.Builder
	fmt.Fprintf(&b, "# Project Pulse (auto-generated %s)\n\n", now.Format(time.RFC3339))

	writeVitals(&b, stats)

	milestones := filterIssues(all, func(i *types.Issue) bool {
		return i.Type == "milestone" && i.StatusCategory != types.CategoryDone
	})
	if len(milestones) > 0 {
		if err := writeActivePlans(ctx, &b, store, milestones); err != nil {
			return "", err
		}
	}

	writeReadyToWork(&b, ready, byID)

	inProgress := filterIssues(all, func(i *types.Issue) bool { return i.StatusCategory == types.CategoryWIP })

	writeInProgress(&b, inProgress, byID)
	writeNeedsAttention(&b, store, inProgress)
	writeStale(&b, inProgress, now)
	writeBlocked(&b, blocked)

	epics := filterIssues(all, func(i *types.Issue) bool {
		return i.Type == "epic" && i.StatusCategory != types.CategoryDone
	})
	writeEpicProgress(&b, epics, all)

	writeCriticalPath(&b, critPath)
	writeRecentActivity(&b, recent)

	return b.String(), nil
}

// WriteSummary generates the summary and writes it atomically: render to a
// temp file in the destination directory, then rename over outputPath, so
// a concurrent reader never observes a half-written file.
func WriteSummary(ctx context.Context, store storage.Storage, outputPath string) error {
	content, err := GenerateSummary(ctx, store)
	if err != nil {
		return err
	}

	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp summary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.WriteString(content); err != nil {
		return fmt.Errorf("writing temp summary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp summary file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("replacing summary file: %w", err)
	}
	return nil
}

func indexByID(issues []*types.Issue) map[string]*types.Issue {
	m := make(map[string]*types.Issue, len(issues))
	for _, i := range issues {
		m[i.ID] = i
	}
	return m
}

func filterIssues(issues []*types.Issue, keep func(*types.Issue) bool) []*types.Issue {
	var out []*types.Issue
	for _, i := range issues {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

func writeVitals(b *strings.Builder, stats *types.Stats) {
	open := stats.ByCategory[types.CategoryOpen]
	wip := stats.ByCategory[types.CategoryWIP]
	done := stats.ByCategory[types.CategoryDone]

	b.WriteString("## Vitals\n")
	fmt.Fprintf(b, "Open: %d | In Progress: %d | Done: %d | Ready: %d | Blocked: %d\n\n",
		open, wip, done, stats.ReadyCount, stats.BlockedCount)
}

func writeActivePlans(ctx context.Context, b *strings.Builder, store storage.Storage, milestones []*types.Issue) error {
	b.WriteString("## Active Plans\n")
	for _, ms := range milestones {
		plan, err := store.GetPlanProgress(ctx, ms.ID)
		if err != nil {
			return fmt.Errorf("plan progress for %s: %w", ms.ID, err)
		}

		bar := progressBar(plan.CompletedSteps, plan.TotalSteps, 10)
		fmt.Fprintf(b, "### %s [%s] %d/%d steps\n", ms.Title, bar, plan.CompletedSteps, plan.TotalSteps)

		for _, phase := range plan.Phases {
			marker := "○"
			switch {
			case phase.Total > 0 && phase.Completed == phase.Total:
				marker = "✓"
			case phase.StatusCategory == types.CategoryWIP:
				marker = "▶"
			}
			readyNote := ""
			if phase.Ready > 0 {
				readyNote = fmt.Sprintf(", %d ready", phase.Ready)
			}
			fmt.Fprintf(b, "  %s %s (%d/%d complete%s)\n", marker, phase.Title, phase.Completed, phase.Total, readyNote)
		}
		b.WriteString("\n")
	}
	return nil
}

func progressBar(done, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := done * width / total
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func parentContext(issue *types.Issue, byID map[string]*types.Issue) string {
	if issue.ParentID == nil {
		return ""
	}
	if parent, ok := byID[*issue.ParentID]; ok {
		return fmt.Sprintf(" (%s)", parent.Title)
	}
	return ""
}

func writeReadyToWork(b *strings.Builder, ready []*types.Issue, byID map[string]*types.Issue) {
	b.WriteString("## Ready to Work (no blockers, by priority)\n")
	if len(ready) == 0 {
		b.WriteString("- (none)\n\n")
		return
	}
	shown := ready
	if len(shown) > readyCap {
		shown = shown[:readyCap]
	}
	for _, issue := range shown {
		stateInfo := ""
		if issue.Status != "open" {
			stateInfo = fmt.Sprintf(" (%s)", issue.Status)
		}
		fmt.Fprintf(b, "- P%d %s [%s] %q%s%s\n", issue.Priority, issue.ID, issue.Type, issue.Title, stateInfo, parentContext(issue, byID))
	}
	if len(ready) > readyCap {
		fmt.Fprintf(b, "  ...and %d more\n", len(ready)-readyCap)
	}
	b.WriteString("\n")
}

func writeInProgress(b *strings.Builder, inProgress []*types.Issue, byID map[string]*types.Issue) {
	b.WriteString("## In Progress\n")
	if len(inProgress) == 0 {
		b.WriteString("- (none)\n\n")
		return
	}
	for _, issue := range inProgress {
		stateInfo := ""
		if issue.Status != "in_progress" {
			stateInfo = fmt.Sprintf(" (%s)", issue.Status)
		}
		fmt.Fprintf(b, "- %s [%s] %q%s%s\n", issue.ID, issue.Type, issue.Title, stateInfo, parentContext(issue, byID))
	}
	b.WriteString("\n")
}

func writeNeedsAttention(b *strings.Builder, store storage.Storage, inProgress []*types.Issue) {
	var attention []attentionEntry
	for _, issue := range inProgress {
		missing := store.ValidateFieldsForState(context.Background(), issue.Type, issue.Status, issue.Fields)
		if len(missing) > 0 {
			attention = append(attention, attentionEntry{issue: issue, missing: missing})
		}
	}
	if len(attention) == 0 {
		return
	}

	b.WriteString("## Needs Attention\n")
	shown := attention
	if len(shown) > attentionCap {
		shown = shown[:attentionCap]
	}
	for _, a := range shown {
		fmt.Fprintf(b, "- %s [%s] %q (%s) — missing: %s\n",
			a.issue.ID, a.issue.Type, a.issue.Title, a.issue.Status, strings.Join(a.missing, ", "))
	}
	if len(attention) > attentionCap {
		fmt.Fprintf(b, "  ...and %d more\n", len(attention)-attentionCap)
	}
	b.WriteString("\n")
}

func writeStale(b *strings.Builder, inProgress []*types.Issue, now time.Time) {
	cutoff := now.Add(-staleThresholdDays * 24 * time.Hour)
	var stale []*types.Issue
	for _, issue := range inProgress {
		if issue.UpdatedAt.Before(cutoff) {
			stale = append(stale, issue)
		}
	}
	if len(stale) == 0 {
		return
	}

	b.WriteString("## Stale (in_progress >3 days, no activity)\n")
	for _, issue := range stale {
		daysAgo := int(now.Sub(issue.UpdatedAt).Hours() / 24)
		fmt.Fprintf(b, "- P%d %s [%s] %q (%dd stale)\n", issue.Priority, issue.ID, issue.Type, issue.Title, daysAgo)
	}
	b.WriteString("\n")
}

func writeBlocked(b *strings.Builder, blocked []*types.Issue) {
	b.WriteString("## Blocked (top 10 by priority)\n")
	if len(blocked) == 0 {
		b.WriteString("- (none)\n\n")
		return
	}
	sorted := append([]*types.Issue(nil), blocked...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	shown := sorted
	if len(shown) > blockedCap {
		shown = shown[:blockedCap]
	}
	for _, issue := range shown {
		blockers := "?"
		if len(issue.BlockedBy) > 0 {
			blockers = strings.Join(issue.BlockedBy, ", ")
		}
		fmt.Fprintf(b, "- P%d %s [%s] %q ← blocked by: %s\n", issue.Priority, issue.ID, issue.Type, issue.Title, blockers)
	}
	if len(sorted) > blockedCap {
		fmt.Fprintf(b, "  ...and %d more\n", len(sorted)-blockedCap)
	}
	b.WriteString("\n")
}

func writeEpicProgress(b *strings.Builder, epics []*types.Issue, all []*types.Issue) {
	if len(epics) == 0 {
		return
	}
	b.WriteString("## Epic Progress\n")
	shown := epics
	if len(shown) > epicCap {
		shown = shown[:epicCap]
	}
	for _, epic := range shown {
		children := filterIssues(all, func(i *types.Issue) bool { return i.ParentID != nil && *i.ParentID == epic.ID })
		total := len(children)
		done := 0
		readyCount := 0
		blockedCount := 0
		for _, c := range children {
			if c.StatusCategory == types.CategoryDone {
				done++
			}
			if c.IsReady {
				readyCount++
			} else if c.StatusCategory == types.CategoryOpen {
				blockedCount++
			}
		}

		bar := progressBar(done, total, 8)
		var extra []string
		if readyCount > 0 {
			extra = append(extra, fmt.Sprintf("%d ready", readyCount))
		}
		if blockedCount > 0 {
			extra = append(extra, fmt.Sprintf("%d blocked", blockedCount))
		}
		extraStr := ""
		if len(extra) > 0 {
			extraStr = fmt.Sprintf(" (%s)", strings.Join(extra, ", "))
		}
		fmt.Fprintf(b, "- %-40s [%s] %d/%d%s\n", epic.Title, bar, done, total, extraStr)
	}
	b.WriteString("\n")
}

func writeCriticalPath(b *strings.Builder, path []types.CriticalPathItem) {
	if len(path) == 0 {
		return
	}
	fmt.Fprintf(b, "## Critical Path (%d issues)\n", len(path))
	for i, item := range path {
		arrow := ""
		if i > 0 {
			arrow = " -> "
		}
		fmt.Fprintf(b, "  %sP%d %s [%s] %q\n", arrow, item.Priority, item.ID, item.Type, item.Title)
	}
	b.WriteString("\n")
}

func writeRecentActivity(b *strings.Builder, events []*types.Event) {
	b.WriteString("## Recent Activity (last 10 events)\n")
	if len(events) == 0 {
		b.WriteString("- (no recent activity)\n\n")
		return
	}
	for _, evt := range events {
		evtType := strings.ToUpper(strings.ReplaceAll(evt.EventType, "_", " "))
		title := evt.IssueTitle
		if title == "" {
			title = evt.IssueID
		}
		oldV := truncateValue(derefOrEmpty(evt.OldValue))
		newV := truncateValue(derefOrEmpty(evt.NewValue))

		detail := ""
		switch {
		case oldV != "" && newV != "":
			detail = fmt.Sprintf(" %s→%s", oldV, newV)
		case newV != "":
			detail = fmt.Sprintf(" %s", newV)
		}
		fmt.Fprintf(b, "- %s %s %q%s\n", evtType, evt.IssueID, title, detail)
	}
	b.WriteString("\n")
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncateValue(v string) string {
	const maxLen = 50
	if len(v) <= maxLen {
		return v
	}
	return v[:maxLen-3] + "..."
}
