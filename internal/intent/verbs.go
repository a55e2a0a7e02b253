// File: internal/intent/verbs.go
package intent

import "github.com/xkilldash9x/pilot-cli/api/schemas"

// verbSynonyms maps every accepted verb spelling onto the closed Verb set.
// Resolution happens before classification, so "tap Save" and "click Save"
// parse identically.
var verbSynonyms = map[string]schemas.Verb{
	"click":        schemas.VerbClick,
	"tap":          schemas.VerbClick,
	"hit":          schemas.VerbClick,
	"select":       schemas.VerbClick,
	"choose":       schemas.VerbClick,
	"open":         schemas.VerbClick,
	"doubleclick":  schemas.VerbDoubleClick,
	"double-click": schemas.VerbDoubleClick,
	"rightclick":   schemas.VerbRightClick,
	"right-click":  schemas.VerbRightClick,
	"type":         schemas.VerbType,
	"enter":        schemas.VerbType,
	"input":        schemas.VerbType,
	"write":        schemas.VerbType,
	"fill":         schemas.VerbFill,
	"set":          schemas.VerbFill,
	"drag":         schemas.VerbDrag,
	"scroll":       schemas.VerbScroll,
	"wait":         schemas.VerbWait,
	"pause":        schemas.VerbWait,
	"press":        schemas.VerbPress,
	"focus":        schemas.VerbFocus,
}

// roleWords maps the nouns the descriptor grammar accepts onto roles.
// Plural forms are normalized by the tokenizer before lookup.
var roleWords = map[string]schemas.Role{
	"button":    schemas.RoleButton,
	"checkbox":  schemas.RoleCheckBox,
	"link":      schemas.RoleLink,
	"field":     schemas.RoleTextField,
	"textfield": schemas.RoleTextField,
	"textbox":   schemas.RoleTextField,
	"input":     schemas.RoleTextField,
	"radio":     schemas.RoleRadio,
	"dropdown":  schemas.RoleComboBox,
	"combobox":  schemas.RoleComboBox,
	"table":     schemas.RoleTable,
	"row":       schemas.RoleRow,
	"cell":      schemas.RoleCell,
	"list":      schemas.RoleList,
	"item":      schemas.RoleListItem,
	"window":    schemas.RoleWindow,
	"menu":      schemas.RoleMenu,
	"tab":       schemas.RoleTab,
	"slider":    schemas.RoleSlider,
	"image":     schemas.RoleImage,
	"element":   schemas.Role(""), // any role
}

// namedRegions is the fixed screen partition for "in the top left" style
// descriptors: a 3x3 grid plus whole-edge names.
var namedRegions = map[string]string{
	"top left":      "top-left",
	"top-left":      "top-left",
	"top right":     "top-right",
	"top-right":     "top-right",
	"bottom left":   "bottom-left",
	"bottom-left":   "bottom-left",
	"bottom right":  "bottom-right",
	"bottom-right":  "bottom-right",
	"top":           "top",
	"bottom":        "bottom",
	"left":          "left",
	"right":         "right",
	"center":        "center",
	"middle":        "center",
	"centre":        "center",
	"left edge":     "left",
	"right edge":    "right",
	"top edge":      "top",
	"bottom edge":   "bottom",
	"top center":    "top",
	"bottom center": "bottom",
}
