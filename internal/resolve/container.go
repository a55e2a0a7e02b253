// File: internal/resolve/container.go
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// resolveContainer handles "<inner> in <scope>" descriptors: the scope
// resolves to a container element, then the inner descriptor resolves
// restricted to that container's subtree only.
func (r *Resolver) resolveContainer(ctx context.Context, d *schemas.Descriptor, appID string, roots []*schemas.Element, mem schemas.TranslationMemory) (*schemas.Candidate, error) {
	container, err := r.resolveScope(ctx, d, appID, roots, mem)
	if err != nil {
		return nil, remapDescriptor(err, d)
	}

	cand, err := r.resolveIn(ctx, d.Inner, appID, container.Children, mem)
	if err != nil {
		return nil, remapDescriptor(err, d)
	}
	cand.Rule = schemas.MatchContainer
	cand.Rationale = fmt.Sprintf("%s within %s %q", cand.Rationale, container.Role, container.Label)
	return cand, nil
}

// resolveScope locates the container element. Rows are special-cased: a
// positional index counts sibling rows of a table or list, and a labeled row
// matches when any descendant carries the label.
func (r *Resolver) resolveScope(ctx context.Context, d *schemas.Descriptor, appID string, roots []*schemas.Element, mem schemas.TranslationMemory) (*schemas.Element, error) {
	if d.RowIndex > 0 {
		rows := collectRows(roots)
		if d.RowIndex > len(rows) {
			return nil, &schemas.NotFoundError{
				Descriptor:  d.String(),
				Suggestions: []schemas.Suggestion{{Label: fmt.Sprintf("only %d rows visible", len(rows)), Role: schemas.RoleRow}},
			}
		}
		return rows[d.RowIndex-1], nil
	}

	if d.Scope != nil && d.Scope.Role == schemas.RoleRow && d.Scope.Label != "" {
		var matches []*schemas.Element
		for _, row := range collectRows(roots) {
			if rowContainsLabel(row, d.Scope.Label) {
				matches = append(matches, row)
			}
		}
		switch len(matches) {
		case 0:
			return nil, &schemas.NotFoundError{Descriptor: d.String()}
		case 1:
			return matches[0], nil
		default:
			var tied []schemas.Candidate
			for _, m := range matches {
				tied = append(tied, schemas.Candidate{Element: m, Score: scoreExact, Rule: schemas.MatchContainer})
			}
			return nil, &schemas.AmbiguousError{Descriptor: d.String(), Candidates: tied}
		}
	}

	// Generic scope: resolve the scope descriptor as a label. Containers are
	// frequently disabled-for-input groups, so the enabled filter is relaxed
	// here: match on label across every element with visible bounds.
	if d.Scope == nil || d.Scope.Label == "" {
		return nil, &schemas.NotFoundError{Descriptor: d.String()}
	}
	var best *schemas.Element
	for _, root := range roots {
		root.Walk(func(e *schemas.Element) bool {
			if best != nil {
				return false
			}
			if !e.Bounds.IsZero() && strings.EqualFold(e.Label, d.Scope.Label) {
				best = e
				return false
			}
			return true
		})
	}
	if best == nil {
		return nil, &schemas.NotFoundError{Descriptor: d.String()}
	}
	return best, nil
}

// collectRows gathers row-role elements across the forest in visual order
// (top to bottom), which is what "row 2" means to a human reader.
func collectRows(roots []*schemas.Element) []*schemas.Element {
	var rows []*schemas.Element
	for _, r := range roots {
		r.Walk(func(e *schemas.Element) bool {
			if e.Role == schemas.RoleRow && !e.Bounds.IsZero() {
				rows = append(rows, e)
			}
			return true
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Bounds.Y != rows[j].Bounds.Y {
			return rows[i].Bounds.Y < rows[j].Bounds.Y
		}
		return rows[i].Bounds.X < rows[j].Bounds.X
	})
	return rows
}

// rowContainsLabel reports whether the row or any descendant carries the
// label, exact case-insensitive.
func rowContainsLabel(row *schemas.Element, label string) bool {
	found := false
	row.Walk(func(e *schemas.Element) bool {
		if strings.EqualFold(e.Label, label) {
			found = true
			return false
		}
		return !found
	})
	return found
}
