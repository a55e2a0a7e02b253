package snapshot

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// buildSnapshot seals a forest into a snapshot the way the cache would.
func buildSnapshot(roots ...*schemas.Element) *schemas.Snapshot {
	snap := &schemas.Snapshot{
		AppID:      "test-app",
		Roots:      roots,
		CapturedAt: time.Now(),
	}
	Seal(snap)
	return snap
}

func button(label string, x float64) *schemas.Element {
	return &schemas.Element{
		Handle: "h-" + label,
		Role:   schemas.RoleButton,
		Label:  label,
		Bounds: schemas.Rect{X: x, Y: 100, Width: 80, Height: 24},
		Flags:  schemas.Flags{Enabled: true},
	}
}

func window(label string, children ...*schemas.Element) *schemas.Element {
	return &schemas.Element{
		Handle:   "w-" + label,
		Role:     schemas.RoleWindow,
		Label:    label,
		Bounds:   schemas.Rect{X: 0, Y: 0, Width: 800, Height: 600},
		Flags:    schemas.Flags{Enabled: true},
		Children: children,
	}
}

func TestDiffIdenticalContentIsEmpty(t *testing.T) {
	s1 := buildSnapshot(window("Main", button("Save", 200), button("Cancel", 10)))
	s2 := buildSnapshot(window("Main", button("Save", 200), button("Cancel", 10)))

	d := Diff(s1, s2)
	assert.True(t, d.Empty(), "identical content must diff empty, got %+v", d)
}

func TestDiffReportsRemovalExactlyOnce(t *testing.T) {
	s1 := buildSnapshot(window("Main", button("Save", 200), button("Cancel", 10)))
	s2 := buildSnapshot(window("Main", button("Save", 200)))

	d := Diff(s1, s2)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, "Cancel", d.Removed[0].Label)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Modified)
}

func TestDiffReportsAddition(t *testing.T) {
	s1 := buildSnapshot(window("Main", button("Save", 200)))
	s2 := buildSnapshot(window("Main", button("Save", 200), button("Help", 400)))

	d := Diff(s1, s2)
	require.Len(t, d.Added, 1)
	assert.Equal(t, "Help", d.Added[0].Label)
	assert.Empty(t, d.Removed)
}

func TestDiffLabelChangeIsModification(t *testing.T) {
	s1 := buildSnapshot(window("Main", button("Save", 200)))
	s2 := buildSnapshot(window("Main", button("Saved!", 200)))

	d := Diff(s1, s2)
	assert.Empty(t, d.Added, "a label edit at the same position must not look like an add")
	assert.Empty(t, d.Removed)
	require.Len(t, d.Modified, 1)
	assert.Contains(t, d.Modified[0].Changed, "label")
	assert.Equal(t, "Save", d.Modified[0].Before)
	assert.Equal(t, "Saved!", d.Modified[0].After)
}

func TestDiffFlagsAndBoundsChanges(t *testing.T) {
	b1 := button("Save", 200)
	s1 := buildSnapshot(window("Main", b1))

	b2 := button("Save", 200)
	b2.Flags.Enabled = false
	b2.Bounds.X = 220
	s2 := buildSnapshot(window("Main", b2))

	d := Diff(s1, s2)
	require.Len(t, d.Modified, 1)
	assert.ElementsMatch(t, []string{"bounds", "flags"}, d.Modified[0].Changed)
}

func TestDiffDuplicateLabelsMatchLeftToRight(t *testing.T) {
	// Two "Row" cells at the same level: removing the second must report one
	// removal, not a modification storm.
	s1 := buildSnapshot(window("Main", button("Item", 10), button("Item", 100)))
	s2 := buildSnapshot(window("Main", button("Item", 10)))

	d := Diff(s1, s2)
	require.Len(t, d.Removed, 1)
	assert.Empty(t, d.Modified)
}

func TestDiffNestedChangeDoesNotFlagUnchangedParent(t *testing.T) {
	group := func(children ...*schemas.Element) *schemas.Element {
		return &schemas.Element{
			Role: schemas.RoleGroup, Label: "toolbar",
			Bounds:   schemas.Rect{X: 0, Y: 0, Width: 800, Height: 40},
			Flags:    schemas.Flags{Enabled: true},
			Children: children,
		}
	}
	s1 := buildSnapshot(window("Main", group(button("Save", 200))))
	s2 := buildSnapshot(window("Main", group(button("Save", 200), button("Undo", 300))))

	d := Diff(s1, s2)
	require.Len(t, d.Added, 1)
	assert.Equal(t, "Undo", d.Added[0].Label)
	assert.Empty(t, d.Modified, "the parent group's own fields did not change")
}

func TestFlattenIdentitiesAreStable(t *testing.T) {
	roots := []*schemas.Element{window("Main", button("Save", 200), button("Save", 300))}
	a := flatten(roots)
	b := flatten(roots)
	if diff := cmp.Diff(idsOf(a), idsOf(b)); diff != "" {
		t.Fatalf("flatten is not deterministic:\n%s", diff)
	}
	// Duplicate siblings get distinct identities.
	assert.NotEqual(t, a[1].fullID, a[2].fullID)
}

func idsOf(nodes []flatNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.fullID
	}
	return out
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "no observable change", Summarize(&schemas.DiffResult{}))
	assert.Equal(t, "no observable change", Summarize(nil))

	d := &schemas.DiffResult{
		Added:   []schemas.ElementRef{{Label: "a"}},
		Removed: []schemas.ElementRef{{Label: "b"}, {Label: "c"}},
	}
	assert.Equal(t, "+1 -2", Summarize(d))
}
