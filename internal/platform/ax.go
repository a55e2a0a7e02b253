package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// axRoleMap translates Chromium accessibility roles onto the neutral role
// set. Roles not listed fall through NormalizeRole and then to unknown.
var axRoleMap = map[string]schemas.Role{
	"button":           schemas.RoleButton,
	"textbox":          schemas.RoleTextField,
	"textfield":        schemas.RoleTextField,
	"searchbox":        schemas.RoleTextField,
	"link":             schemas.RoleLink,
	"checkbox":         schemas.RoleCheckBox,
	"switch":           schemas.RoleCheckBox,
	"radio":            schemas.RoleRadio,
	"combobox":         schemas.RoleComboBox,
	"listbox":          schemas.RoleComboBox,
	"table":            schemas.RoleTable,
	"grid":             schemas.RoleTable,
	"row":              schemas.RoleRow,
	"cell":             schemas.RoleCell,
	"gridcell":         schemas.RoleCell,
	"columnheader":     schemas.RoleCell,
	"list":             schemas.RoleList,
	"listitem":         schemas.RoleListItem,
	"rootwebarea":      schemas.RoleWindow,
	"window":           schemas.RoleWindow,
	"dialog":           schemas.RoleWindow,
	"alertdialog":      schemas.RoleWindow,
	"menu":             schemas.RoleMenu,
	"menubar":          schemas.RoleMenu,
	"menuitem":         schemas.RoleMenuItem,
	"menulistoption":   schemas.RoleMenuItem,
	"group":            schemas.RoleGroup,
	"genericcontainer": schemas.RoleGroup,
	"form":             schemas.RoleGroup,
	"image":            schemas.RoleImage,
	"img":              schemas.RoleImage,
	"statictext":       schemas.RoleText,
	"text":             schemas.RoleText,
	"paragraph":        schemas.RoleText,
	"heading":          schemas.RoleText,
	"slider":           schemas.RoleSlider,
	"tab":              schemas.RoleTab,
}

// boundedRoles are the roles worth a box-model round trip. Text and generic
// containers are skipped to keep a tree read under one second on busy pages.
var boundedRoles = map[schemas.Role]bool{
	schemas.RoleButton:    true,
	schemas.RoleTextField: true,
	schemas.RoleLink:      true,
	schemas.RoleCheckBox:  true,
	schemas.RoleRadio:     true,
	schemas.RoleComboBox:  true,
	schemas.RoleTable:     true,
	schemas.RoleRow:       true,
	schemas.RoleCell:      true,
	schemas.RoleList:      true,
	schemas.RoleListItem:  true,
	schemas.RoleWindow:    true,
	schemas.RoleMenu:      true,
	schemas.RoleMenuItem:  true,
	schemas.RoleSlider:    true,
	schemas.RoleTab:       true,
	schemas.RoleText:      true,
}

func mapAXRole(raw string) schemas.Role {
	if r, ok := axRoleMap[strings.ToLower(raw)]; ok {
		return r
	}
	return schemas.NormalizeRole(raw)
}

// axString decodes the string payload of an AXValue.
func axString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		return strings.Trim(string(v.Value), `"`)
	}
	return s
}

func axBool(v *accessibility.Value) bool {
	if v == nil || len(v.Value) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(v.Value, &b); err != nil {
		return false
	}
	return b
}

func axFlags(node *accessibility.Node) schemas.Flags {
	flags := schemas.Flags{Enabled: true}
	for _, p := range node.Properties {
		switch p.Name {
		case accessibility.PropertyNameDisabled:
			if axBool(p.Value) {
				flags.Enabled = false
			}
		case accessibility.PropertyNameFocused:
			flags.Focused = axBool(p.Value)
		case accessibility.PropertyNameSelected:
			flags.Selected = axBool(p.Value)
		}
	}
	return flags
}

// ReadTree captures the accessibility tree of the app's tab and converts it
// into the neutral element forest. Every call issues a fresh handle set;
// handles from previous reads become stale.
func (d *Driver) ReadTree(ctx context.Context, appID string) ([]*schemas.Element, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	t, err := d.tabFor(ctx, appID)
	if err != nil {
		return nil, err
	}

	var axNodes []*accessibility.Node
	bounds := map[cdp.BackendNodeID]schemas.Rect{}

	read := chromedp.ActionFunc(func(cctx context.Context) error {
		if err := accessibility.Enable().Do(cctx); err != nil {
			return fmt.Errorf("failed to enable accessibility domain: %w", err)
		}
		nodes, err := accessibility.GetFullAXTree().Do(cctx)
		if err != nil {
			return fmt.Errorf("failed to read accessibility tree: %w", err)
		}
		axNodes = nodes

		for _, n := range nodes {
			if n.Ignored || n.BackendDOMNodeID == 0 {
				continue
			}
			if !boundedRoles[mapAXRole(axString(n.Role))] {
				continue
			}
			box, err := dom.GetBoxModel().WithBackendNodeID(n.BackendDOMNodeID).Do(cctx)
			if err != nil || box == nil || len(box.Content) < 8 {
				// Off-screen or display:none nodes have no box model. A zero
				// rect excludes them from resolution, which is correct.
				continue
			}
			bounds[n.BackendDOMNodeID] = quadToRect(box.Content)
		}
		return nil
	})

	if err := runWithCtx(ctx, t, read); err != nil {
		return nil, err
	}

	roots, fresh := convertForest(appID, axNodes, bounds)
	d.registerHandles(appID, fresh)
	return roots, nil
}

// quadToRect reduces a content quad (four x,y corners) to an axis-aligned
// rectangle.
func quadToRect(quad []float64) schemas.Rect {
	minX, minY := quad[0], quad[1]
	maxX, maxY := quad[0], quad[1]
	for i := 2; i+1 < len(quad); i += 2 {
		if quad[i] < minX {
			minX = quad[i]
		}
		if quad[i] > maxX {
			maxX = quad[i]
		}
		if quad[i+1] < minY {
			minY = quad[i+1]
		}
		if quad[i+1] > maxY {
			maxY = quad[i+1]
		}
	}
	return schemas.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// convertForest turns the flat AX node list into the element forest.
// Ignored nodes are spliced out with their children promoted in place.
func convertForest(appID string, nodes []*accessibility.Node, bounds map[cdp.BackendNodeID]schemas.Rect) ([]*schemas.Element, map[string]handleInfo) {
	index := make(map[accessibility.NodeID]*accessibility.Node, len(nodes))
	isChild := make(map[accessibility.NodeID]bool)
	for _, n := range nodes {
		index[n.NodeID] = n
		for _, c := range n.ChildIDs {
			isChild[c] = true
		}
	}

	fresh := make(map[string]handleInfo)

	var convert func(id accessibility.NodeID) []*schemas.Element
	convert = func(id accessibility.NodeID) []*schemas.Element {
		n, ok := index[id]
		if !ok {
			return nil
		}

		var children []*schemas.Element
		for _, c := range n.ChildIDs {
			children = append(children, convert(c)...)
		}
		if n.Ignored {
			return children
		}

		el := &schemas.Element{
			Handle:   newHandle(),
			Role:     mapAXRole(axString(n.Role)),
			Label:    axString(n.Name),
			Bounds:   bounds[n.BackendDOMNodeID],
			Flags:    axFlags(n),
			Children: children,
		}
		fresh[el.Handle] = handleInfo{appID: appID, bounds: el.Bounds}
		return []*schemas.Element{el}
	}

	var roots []*schemas.Element
	for _, n := range nodes {
		if !isChild[n.NodeID] {
			roots = append(roots, convert(n.NodeID)...)
		}
	}
	return roots, fresh
}
