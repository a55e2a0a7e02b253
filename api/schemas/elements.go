// File: api/schemas/elements.go
package schemas

import (
	"strings"
	"time"
)

// Role classifies an element in the platform-neutral semantic tree.
// The set is closed: resolvers and executors switch over it exhaustively
// instead of comparing raw platform role strings.
type Role string

const (
	RoleButton    Role = "button"
	RoleTextField Role = "textfield"
	RoleLink      Role = "link"
	RoleCheckBox  Role = "checkbox"
	RoleRadio     Role = "radio"
	RoleComboBox  Role = "combobox"
	RoleTable     Role = "table"
	RoleRow       Role = "row"
	RoleCell      Role = "cell"
	RoleList      Role = "list"
	RoleListItem  Role = "listitem"
	RoleWindow    Role = "window"
	RoleMenu      Role = "menu"
	RoleMenuItem  Role = "menuitem"
	RoleGroup     Role = "group"
	RoleImage     Role = "image"
	RoleText      Role = "text"
	RoleSlider    Role = "slider"
	RoleTab       Role = "tab"
	RoleUnknown   Role = "unknown"
)

// roleAliases maps platform role spellings (ARIA, AX API, UIA) onto the
// closed Role set. Lookups are case-insensitive.
var roleAliases = map[string]Role{
	"button":           RoleButton,
	"pushbutton":       RoleButton,
	"textfield":        RoleTextField,
	"textbox":          RoleTextField,
	"searchbox":        RoleTextField,
	"edit":             RoleTextField,
	"link":             RoleLink,
	"checkbox":         RoleCheckBox,
	"radio":            RoleRadio,
	"radiobutton":      RoleRadio,
	"combobox":         RoleComboBox,
	"listbox":          RoleComboBox,
	"table":            RoleTable,
	"grid":             RoleTable,
	"row":              RoleRow,
	"cell":             RoleCell,
	"gridcell":         RoleCell,
	"columnheader":     RoleCell,
	"list":             RoleList,
	"listitem":         RoleListItem,
	"window":           RoleWindow,
	"rootwebarea":      RoleWindow,
	"dialog":           RoleWindow,
	"menu":             RoleMenu,
	"menubar":          RoleMenu,
	"menuitem":         RoleMenuItem,
	"menuitemcheckbox": RoleMenuItem,
	"menuitemradio":    RoleMenuItem,
	"group":            RoleGroup,
	"genericcontainer": RoleGroup,
	"generic":          RoleGroup,
	"form":             RoleGroup,
	"image":            RoleImage,
	"img":              RoleImage,
	"text":             RoleText,
	"statictext":       RoleText,
	"heading":          RoleText,
	"slider":           RoleSlider,
	"tab":              RoleTab,
}

// NormalizeRole maps a raw platform role string onto the closed Role set.
// Unrecognized roles become RoleUnknown rather than leaking platform strings
// into matching logic.
func NormalizeRole(raw string) Role {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return r
	}
	return RoleUnknown
}

// Rect is an axis-aligned bounding rectangle in screen coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether the rectangle has no visible area.
func (r Rect) IsZero() bool {
	return r.Width <= 0 || r.Height <= 0
}

// CenterX returns the horizontal center of the rectangle.
func (r Rect) CenterX() float64 { return r.X + r.Width/2 }

// CenterY returns the vertical center of the rectangle.
func (r Rect) CenterY() float64 { return r.Y + r.Height/2 }

// Flags carries the element state bits the platform reports.
type Flags struct {
	Enabled  bool `json:"enabled"`
	Focused  bool `json:"focused,omitempty"`
	Selected bool `json:"selected,omitempty"`
}

// Element is one node of a captured semantic tree. The Handle is an opaque
// platform identifier valid only within the Snapshot that produced the
// element; it must never be dereferenced against a later capture.
// Elements are owned by exactly one Snapshot and never mutated after capture.
type Element struct {
	Handle   string     `json:"handle"`
	Role     Role       `json:"role"`
	Label    string     `json:"label"`
	Bounds   Rect       `json:"bounds"`
	Flags    Flags      `json:"flags"`
	Children []*Element `json:"children,omitempty"`

	// Hash is the FNV content hash of this subtree, filled in when the
	// owning Snapshot is sealed. Identical hashes mean identical subtrees.
	Hash uint64 `json:"-"`
}

// Walk visits e and every descendant in pre-order. Returning false from fn
// prunes the subtree below the current element.
func (e *Element) Walk(fn func(*Element) bool) {
	if e == nil {
		return
	}
	if !fn(e) {
		return
	}
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// ChangeEventKind tags a buffered host mutation event.
type ChangeEventKind string

const (
	ChangeNodeAdded   ChangeEventKind = "node_added"
	ChangeNodeRemoved ChangeEventKind = "node_removed"
	ChangeAttribute   ChangeEventKind = "attribute"
	ChangeText        ChangeEventKind = "text"
)

// ChangeEvent is one host-reported UI mutation, buffered between captures and
// drained into the next Snapshot. Events are informational; they never mutate
// a Snapshot in place.
type ChangeEvent struct {
	Kind   ChangeEventKind `json:"kind"`
	Detail string          `json:"detail,omitempty"`
	At     time.Time       `json:"at"`
}

// Snapshot is one immutable capture of an application's element forest.
// A newer capture supersedes it; it is never mutated.
type Snapshot struct {
	AppID      string         `json:"app_id"`
	Roots      []*Element     `json:"roots"`
	CapturedAt time.Time      `json:"captured_at"`
	Windows    []WindowInfo   `json:"windows,omitempty"`
	Events     []ChangeEvent  `json:"events,omitempty"`
}

// WindowInfo describes one top-level window of the target application.
type WindowInfo struct {
	Title  string `json:"title"`
	Bounds Rect   `json:"bounds"`
}

// Detection is one labeled region returned by the vision fallback.
type Detection struct {
	Label      string  `json:"label"`
	Bounds     Rect    `json:"bounds"`
	Confidence float64 `json:"confidence"`
}
