package sqlite

import (
	"context"

	"github.com/tachyon-beep/filigree/internal/types"
)

// GetCriticalPath finds the longest chain of not-yet-done dependency edges
// in the graph: the sequence of work that, even with infinite parallelism
// elsewhere, bounds how soon the last issue in the chain can finish.
func (s *Store) GetCriticalPath(ctx context.Context) ([]types.CriticalPathItem, error) {
	all, err := s.ListIssues(ctx, types.IssueFilter{})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.Issue, len(all))
	for _, iss := range all {
		if iss.StatusCategory != types.CategoryDone {
			byID[iss.ID] = iss
		}
	}

	adjacency := make(map[string][]string, len(byID))
	for id, iss := range byID {
		for _, dep := range iss.BlockedBy {
			if _, ok := byID[dep]; ok {
				adjacency[id] = append(adjacency[id], dep)
			}
		}
	}

	memo := map[string]int{}
	var chainLen func(id string) int
	chainLen = func(id string) int {
		if v, ok := memo[id]; ok {
			return v
		}
		memo[id] = 1 // guard against any residual cycle surfacing as infinite recursion
		best := 0
		for _, dep := range adjacency[id] {
			if l := chainLen(dep); l > best {
				best = l
			}
		}
		memo[id] = best + 1
		return memo[id]
	}

	var bestID string
	bestLen := 0
	for id := range byID {
		if l := chainLen(id); l > bestLen {
			bestLen = l
			bestID = id
		}
	}
	if bestID == "" {
		return nil, nil
	}

	var reversed []types.CriticalPathItem
	cur := bestID
	for {
		iss := byID[cur]
		reversed = append(reversed, types.CriticalPathItem{ID: iss.ID, Title: iss.Title, Type: iss.Type, Priority: iss.Priority})
		var next string
		nextLen := -1
		for _, dep := range adjacency[cur] {
			if l := memo[dep]; l > nextLen {
				nextLen = l
				next = dep
			}
		}
		if next == "" {
			break
		}
		cur = next
	}

	out := make([]types.CriticalPathItem, len(reversed))
	for i, item := range reversed {
		out[len(reversed)-1-i] = item
	}
	return out, nil
}
