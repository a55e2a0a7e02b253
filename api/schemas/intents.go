// File: api/schemas/intents.go
package schemas

// Verb is the action an intent requests. The set is closed; the parser maps
// free-text synonyms onto it before classification.
type Verb string

const (
	VerbClick       Verb = "click"
	VerbDoubleClick Verb = "doubleclick"
	VerbRightClick  Verb = "rightclick"
	VerbType        Verb = "type"
	VerbFill        Verb = "fill"
	VerbDrag        Verb = "drag"
	VerbScroll      Verb = "scroll"
	VerbWait        Verb = "wait"
	VerbPress       Verb = "press"
	VerbFocus       Verb = "focus"
)

// DescriptorKind discriminates the target grammar that produced a Descriptor.
type DescriptorKind string

const (
	DescriptorLabel     DescriptorKind = "label"
	DescriptorOrdinal   DescriptorKind = "ordinal"
	DescriptorSpatial   DescriptorKind = "spatial"
	DescriptorContainer DescriptorKind = "container"
	DescriptorMenu      DescriptorKind = "menu"
)

// SpatialRelation names the geometric relation of a spatial descriptor.
type SpatialRelation string

const (
	RelationNear   SpatialRelation = "near"
	RelationAbove  SpatialRelation = "above"
	RelationBelow  SpatialRelation = "below"
	RelationLeft   SpatialRelation = "left"
	RelationRight  SpatialRelation = "right"
	RelationRegion SpatialRelation = "region"
)

// Descriptor is the parsed target specification inside an Intent. Exactly the
// fields relevant to Kind are populated; the rest stay zero.
type Descriptor struct {
	Kind DescriptorKind `json:"kind"`

	// Label is the free-text label for DescriptorLabel, and the role-free
	// text that seeds recursive resolution elsewhere.
	Label string `json:"label,omitempty"`

	// Role constrains ordinal selection ("the 2nd button") and optionally
	// hints spatial candidates ("button near Cancel").
	Role Role `json:"role,omitempty"`

	// Ordinal is 1-based; FromEnd counts backwards ("last checkbox").
	Ordinal int  `json:"ordinal,omitempty"`
	FromEnd bool `json:"from_end,omitempty"`

	// Relation plus Reference or Region describe a spatial descriptor.
	Relation  SpatialRelation `json:"relation,omitempty"`
	Reference *Descriptor     `json:"reference,omitempty"`
	Region    string          `json:"region,omitempty"`

	// Scope plus Inner describe a container descriptor ("Cancel in row 2").
	Scope *Descriptor `json:"scope,omitempty"`
	Inner *Descriptor `json:"inner,omitempty"`

	// RowIndex is the 1-based positional row for "in row N" scopes.
	RowIndex int `json:"row_index,omitempty"`

	// MenuPath is the ordered label sequence of a menu descriptor
	// ("File > Save As").
	MenuPath []string `json:"menu_path,omitempty"`
}

// String renders a descriptor in the canonical form used as the translation
// memory key. It must be stable across releases: learned entries are keyed
// on it.
func (d *Descriptor) String() string {
	if d == nil {
		return ""
	}
	switch d.Kind {
	case DescriptorOrdinal:
		s := "ordinal:" + string(d.Role)
		if d.FromEnd {
			s += ":last"
		}
		return s
	case DescriptorSpatial:
		if d.Relation == RelationRegion {
			return "region:" + d.Region
		}
		return string(d.Relation) + ":" + d.Reference.String()
	case DescriptorContainer:
		return "in(" + d.Scope.String() + "):" + d.Inner.String()
	case DescriptorMenu:
		out := "menu:"
		for i, p := range d.MenuPath {
			if i > 0 {
				out += ">"
			}
			out += p
		}
		return out
	default:
		if d.Role != "" {
			return string(d.Role) + ":" + d.Label
		}
		return d.Label
	}
}

// FieldValue is one Name=Value payload pair of a fill intent.
type FieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Modifiers carries everything extracted independently of the descriptor
// grammar: key modifiers, the app override, and value payloads.
type Modifiers struct {
	Keys        []string     `json:"keys,omitempty"`
	AppOverride string       `json:"app_override,omitempty"`
	Text        string       `json:"text,omitempty"`
	Fields      []FieldValue `json:"fields,omitempty"`
}

// Intent is the parsed representation of one action request. Created fresh
// per call, immutable once parsed, never persisted.
type Intent struct {
	Verb   Verb        `json:"verb"`
	Target *Descriptor `json:"target,omitempty"`
	Mods   Modifiers   `json:"mods"`
	Raw    string      `json:"raw"`
}
