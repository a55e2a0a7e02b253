// File: internal/snapshot/diff.go
package snapshot

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// flatNode pairs an element with the two identity keys used for matching.
// fullID includes the label; posID is role + positional path only, used as a
// second pass so a pure label edit surfaces as a modification instead of a
// remove/add pair.
type flatNode struct {
	el     *schemas.Element
	fullID string
	posID  string
}

// Flatten walks the forest pre-order and assigns structural identities.
// Duplicate role+label siblings are disambiguated left-to-right, so identity
// collisions match in tree order.
func flatten(roots []*schemas.Element) []flatNode {
	var out []flatNode
	var walk func(e *schemas.Element, parentFull, parentPos string, fullSeen, posSeen map[string]int)
	walk = func(e *schemas.Element, parentFull, parentPos string, fullSeen, posSeen map[string]int) {
		fullBase := parentFull + "/" + string(e.Role) + "[" + e.Label + "]"
		posBase := parentPos + "/" + string(e.Role)
		fi := fullSeen[fullBase]
		fullSeen[fullBase] = fi + 1
		pi := posSeen[posBase]
		posSeen[posBase] = pi + 1

		fullID := fmt.Sprintf("%s#%d", fullBase, fi)
		posID := fmt.Sprintf("%s#%d", posBase, pi)
		out = append(out, flatNode{el: e, fullID: fullID, posID: posID})

		childFull := map[string]int{}
		childPos := map[string]int{}
		for _, c := range e.Children {
			walk(c, fullID, posID, childFull, childPos)
		}
	}
	rootFull := map[string]int{}
	rootPos := map[string]int{}
	for _, r := range roots {
		walk(r, "", "", rootFull, rootPos)
	}
	return out
}

func ref(n flatNode) schemas.ElementRef {
	return schemas.ElementRef{
		Identity: n.fullID,
		Role:     n.el.Role,
		Label:    n.el.Label,
		Bounds:   n.el.Bounds,
	}
}

// Diff compares two snapshots of the same application by structural identity.
// Elements present in both with identical identity and identical subtree hash
// are never reported. Runs in O(n) over the combined node count.
func Diff(before, after *schemas.Snapshot) *schemas.DiffResult {
	res := &schemas.DiffResult{}
	if before == nil || after == nil {
		return res
	}

	beforeNodes := flatten(before.Roots)
	afterNodes := flatten(after.Roots)

	beforeByFull := make(map[string]flatNode, len(beforeNodes))
	for _, n := range beforeNodes {
		beforeByFull[n.fullID] = n
	}
	afterByFull := make(map[string]flatNode, len(afterNodes))
	for _, n := range afterNodes {
		afterByFull[n.fullID] = n
	}

	// Pass 1: match on full identity (role + label + path).
	var beforeLeft, afterLeft []flatNode
	for _, n := range beforeNodes {
		other, ok := afterByFull[n.fullID]
		if !ok {
			beforeLeft = append(beforeLeft, n)
			continue
		}
		if n.el.Hash == other.el.Hash {
			continue
		}
		if ch := fieldChanges(n.el, other.el); len(ch.Changed) > 0 {
			ch.Ref = ref(other)
			res.Modified = append(res.Modified, ch)
		}
	}
	for _, n := range afterNodes {
		if _, ok := beforeByFull[n.fullID]; !ok {
			afterLeft = append(afterLeft, n)
		}
	}

	// Pass 2: pair the leftovers on positional identity. A survivor at the
	// same role+path whose label changed is a modification, not a swap.
	afterByPos := make(map[string]flatNode, len(afterLeft))
	for _, n := range afterLeft {
		afterByPos[n.posID] = n
	}
	matchedAfter := make(map[string]bool)
	for _, n := range beforeLeft {
		other, ok := afterByPos[n.posID]
		if ok && other.el.Role == n.el.Role {
			matchedAfter[other.fullID] = true
			ch := fieldChanges(n.el, other.el)
			ch.Ref = ref(other)
			if len(ch.Changed) == 0 {
				continue
			}
			res.Modified = append(res.Modified, ch)
			continue
		}
		res.Removed = append(res.Removed, ref(n))
	}
	for _, n := range afterLeft {
		if !matchedAfter[n.fullID] {
			res.Added = append(res.Added, ref(n))
		}
	}

	return res
}

// fieldChanges lists which of label/bounds/flags differ between two matched
// elements.
func fieldChanges(b, a *schemas.Element) schemas.ElementChange {
	var ch schemas.ElementChange
	if b.Label != a.Label {
		ch.Changed = append(ch.Changed, "label")
		ch.Before = b.Label
		ch.After = a.Label
	}
	if b.Bounds != a.Bounds {
		ch.Changed = append(ch.Changed, "bounds")
	}
	if b.Flags != a.Flags {
		ch.Changed = append(ch.Changed, "flags")
	}
	return ch
}

// Summarize renders a diff as a compact one-line report for journals and
// caller-facing output.
func Summarize(d *schemas.DiffResult) string {
	if d.Empty() {
		return "no observable change"
	}
	var parts []string
	if len(d.Added) > 0 {
		parts = append(parts, fmt.Sprintf("+%d", len(d.Added)))
	}
	if len(d.Removed) > 0 {
		parts = append(parts, fmt.Sprintf("-%d", len(d.Removed)))
	}
	if len(d.Modified) > 0 {
		parts = append(parts, fmt.Sprintf("~%d", len(d.Modified)))
	}
	return strings.Join(parts, " ")
}
