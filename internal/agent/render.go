package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/snapshot"
)

// maxRenderDepth bounds the perceive report; deep DOM-ish trees add noise
// without adding targets.
const maxRenderDepth = 12

// RenderSnapshot produces the compact text report of a perceive call: the
// element tree, window titles and any change events buffered since the
// previous capture.
func RenderSnapshot(snap *schemas.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "app: %s (captured %s)\n", snap.AppID, snap.CapturedAt.Format("15:04:05.000"))
	for _, w := range snap.Windows {
		fmt.Fprintf(&b, "window: %q %.0fx%.0f\n", w.Title, w.Bounds.Width, w.Bounds.Height)
	}

	if len(snap.Roots) == 0 {
		b.WriteString("tree: empty\n")
	} else {
		b.WriteString("tree:\n")
		for _, root := range snap.Roots {
			renderElement(&b, root, 0)
		}
	}

	if len(snap.Events) > 0 {
		fmt.Fprintf(&b, "buffered events (%d):\n", len(snap.Events))
		for _, ev := range snap.Events {
			fmt.Fprintf(&b, "  [%s] %s\n", ev.Kind, ev.Detail)
		}
	}
	return b.String()
}

func renderElement(b *strings.Builder, el *schemas.Element, depth int) {
	if depth > maxRenderDepth {
		return
	}
	indent := strings.Repeat("  ", depth+1)

	var attrs []string
	if !el.Flags.Enabled {
		attrs = append(attrs, "disabled")
	}
	if el.Flags.Focused {
		attrs = append(attrs, "focused")
	}
	if el.Flags.Selected {
		attrs = append(attrs, "selected")
	}
	suffix := ""
	if len(attrs) > 0 {
		suffix = " [" + strings.Join(attrs, ",") + "]"
	}

	if el.Label != "" || el.Role != schemas.RoleGroup {
		fmt.Fprintf(b, "%s%s %q @(%.0f,%.0f %.0fx%.0f)%s\n",
			indent, el.Role, el.Label,
			el.Bounds.X, el.Bounds.Y, el.Bounds.Width, el.Bounds.Height, suffix)
	}
	for _, c := range el.Children {
		renderElement(b, c, depth+1)
	}
}

// RenderResult produces the compact text report of an act call: one line per
// segment with its diff summary.
func RenderResult(result *schemas.ExecutionResult) string {
	var b strings.Builder

	status := "ok"
	if !result.Succeeded() {
		status = "failed"
	}
	fmt.Fprintf(&b, "operation %s: %s (%d/%d segments)\n",
		result.OperationID, status, result.Completed, result.Total)

	for i, seg := range result.Segments {
		fmt.Fprintf(&b, "%d. %q", i+1, seg.Raw)
		if seg.Candidate != nil {
			fmt.Fprintf(&b, " -> %s %q", seg.Candidate.Role, seg.Candidate.Label)
			if seg.Rule != "" {
				fmt.Fprintf(&b, " (%s)", seg.Rule)
			}
		}
		b.WriteString("\n")
		if seg.Error != "" {
			fmt.Fprintf(&b, "   error: %s\n", seg.Error)
			continue
		}
		fmt.Fprintf(&b, "   change: %s\n", snapshot.Summarize(seg.Diff))
		if seg.Diff != nil {
			for _, added := range seg.Diff.Added {
				fmt.Fprintf(&b, "   + %s %q\n", added.Role, added.Label)
			}
			for _, removed := range seg.Diff.Removed {
				fmt.Fprintf(&b, "   - %s %q\n", removed.Role, removed.Label)
			}
			for _, mod := range seg.Diff.Modified {
				fmt.Fprintf(&b, "   ~ %s %q (%s)\n", mod.Ref.Role, mod.Ref.Label, strings.Join(mod.Changed, ","))
			}
		}
	}
	return b.String()
}
