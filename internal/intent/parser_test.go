package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

func parseOne(t *testing.T, text string) schemas.Intent {
	t.Helper()
	intents, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	return intents[0]
}

func TestParseVerbSynonyms(t *testing.T) {
	cases := map[string]schemas.Verb{
		"click Save":  schemas.VerbClick,
		"tap Save":    schemas.VerbClick,
		"hit Save":    schemas.VerbClick,
		"select Save": schemas.VerbClick,
		"focus Name":  schemas.VerbFocus,
	}
	for text, want := range cases {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, want, parseOne(t, text).Verb)
		})
	}
}

func TestParseRejectsEmptyAndUnknownVerb(t *testing.T) {
	for _, text := range []string{"", "   ", "frobnicate Save"} {
		_, err := Parse(text)
		require.Error(t, err, "input %q", text)
		var pe *schemas.ParseError
		assert.ErrorAs(t, err, &pe)
	}
}

func TestParsePlainLabel(t *testing.T) {
	in := parseOne(t, "click Save")
	require.NotNil(t, in.Target)
	assert.Equal(t, schemas.DescriptorLabel, in.Target.Kind)
	assert.Equal(t, "Save", in.Target.Label)
}

func TestParseOrdinalDescriptors(t *testing.T) {
	t.Run("the 2nd button", func(t *testing.T) {
		in := parseOne(t, "click the 2nd button")
		require.Equal(t, schemas.DescriptorOrdinal, in.Target.Kind)
		assert.Equal(t, schemas.RoleButton, in.Target.Role)
		assert.Equal(t, 2, in.Target.Ordinal)
		assert.False(t, in.Target.FromEnd)
	})
	t.Run("last checkbox", func(t *testing.T) {
		in := parseOne(t, "click the last checkbox")
		require.Equal(t, schemas.DescriptorOrdinal, in.Target.Kind)
		assert.Equal(t, schemas.RoleCheckBox, in.Target.Role)
		assert.Equal(t, 1, in.Target.Ordinal)
		assert.True(t, in.Target.FromEnd)
	})
	t.Run("link 3", func(t *testing.T) {
		in := parseOne(t, "click link 3")
		require.Equal(t, schemas.DescriptorOrdinal, in.Target.Kind)
		assert.Equal(t, schemas.RoleLink, in.Target.Role)
		assert.Equal(t, 3, in.Target.Ordinal)
	})
}

func TestParseSpatialDescriptors(t *testing.T) {
	t.Run("near with role hint", func(t *testing.T) {
		in := parseOne(t, "click button near Cancel")
		require.Equal(t, schemas.DescriptorSpatial, in.Target.Kind)
		assert.Equal(t, schemas.RelationNear, in.Target.Relation)
		assert.Equal(t, schemas.RoleButton, in.Target.Role)
		require.NotNil(t, in.Target.Reference)
		assert.Equal(t, "Cancel", in.Target.Reference.Label)
	})
	t.Run("below", func(t *testing.T) {
		in := parseOne(t, "click Submit below Password")
		require.Equal(t, schemas.DescriptorSpatial, in.Target.Kind)
		assert.Equal(t, schemas.RelationBelow, in.Target.Relation)
		assert.Equal(t, "Submit", in.Target.Label)
	})
	t.Run("named region", func(t *testing.T) {
		in := parseOne(t, "click Close in the top right corner")
		require.Equal(t, schemas.DescriptorSpatial, in.Target.Kind)
		assert.Equal(t, schemas.RelationRegion, in.Target.Relation)
		assert.Equal(t, "top-right", in.Target.Region)
		assert.Equal(t, "Close", in.Target.Label)
	})
	t.Run("to the left of", func(t *testing.T) {
		in := parseOne(t, "click button to the left of Save")
		require.Equal(t, schemas.DescriptorSpatial, in.Target.Kind)
		assert.Equal(t, schemas.RelationLeft, in.Target.Relation)
		assert.Equal(t, schemas.RoleButton, in.Target.Role)
		assert.Empty(t, in.Target.Label)
		require.NotNil(t, in.Target.Reference)
		assert.Equal(t, "Save", in.Target.Reference.Label)
	})
	t.Run("to the right of", func(t *testing.T) {
		in := parseOne(t, "click button to the right of Cancel")
		require.Equal(t, schemas.DescriptorSpatial, in.Target.Kind)
		assert.Equal(t, schemas.RelationRight, in.Target.Relation)
		assert.Equal(t, "Cancel", in.Target.Reference.Label)
	})
}

// Labels may carry runes whose Unicode lowercase form has a different byte
// length (U+023A folds to the three-byte U+2C65). Marker offsets must stay
// valid on the original text for every grammar rule that slices around one.
func TestParseLabelsWithCaseGrowingRunes(t *testing.T) {
	t.Run("spatial", func(t *testing.T) {
		in := parseOne(t, "click ȺȺȺȺȺȺ near Save")
		require.Equal(t, schemas.DescriptorSpatial, in.Target.Kind)
		assert.Equal(t, "ȺȺȺȺȺȺ", in.Target.Label)
		require.NotNil(t, in.Target.Reference)
		assert.Equal(t, "Save", in.Target.Reference.Label)
	})
	t.Run("container", func(t *testing.T) {
		in := parseOne(t, "click ȺȺȺȺȺȺ in Sidebar")
		require.Equal(t, schemas.DescriptorContainer, in.Target.Kind)
		assert.Equal(t, "ȺȺȺȺȺȺ", in.Target.Inner.Label)
		assert.Equal(t, "Sidebar", in.Target.Scope.Label)
	})
	t.Run("type payload", func(t *testing.T) {
		in := parseOne(t, "type ȺȺȺȺȺȺ in Search")
		assert.Equal(t, "ȺȺȺȺȺȺ", in.Mods.Text)
		require.NotNil(t, in.Target)
		assert.Equal(t, "Search", in.Target.Label)
	})
	t.Run("region", func(t *testing.T) {
		in := parseOne(t, "click ȺȺȺȺȺȺ in the top left")
		require.Equal(t, schemas.DescriptorSpatial, in.Target.Kind)
		assert.Equal(t, schemas.RelationRegion, in.Target.Relation)
		assert.Equal(t, "ȺȺȺȺȺȺ", in.Target.Label)
	})
}

func TestParseContainerDescriptors(t *testing.T) {
	t.Run("row by index", func(t *testing.T) {
		in := parseOne(t, "click Cancel in row 2")
		require.Equal(t, schemas.DescriptorContainer, in.Target.Kind)
		assert.Equal(t, 2, in.Target.RowIndex)
		require.NotNil(t, in.Target.Inner)
		assert.Equal(t, "Cancel", in.Target.Inner.Label)
	})
	t.Run("row by label", func(t *testing.T) {
		in := parseOne(t, "click Delete in the row with Alice")
		require.Equal(t, schemas.DescriptorContainer, in.Target.Kind)
		require.NotNil(t, in.Target.Scope)
		assert.Equal(t, schemas.RoleRow, in.Target.Scope.Role)
		assert.Equal(t, "Alice", in.Target.Scope.Label)
		assert.Equal(t, "Delete", in.Target.Inner.Label)
	})
	t.Run("generic container", func(t *testing.T) {
		in := parseOne(t, "click Edit in Sidebar")
		require.Equal(t, schemas.DescriptorContainer, in.Target.Kind)
		assert.Equal(t, "Sidebar", in.Target.Scope.Label)
	})
}

func TestParseMenuPath(t *testing.T) {
	in := parseOne(t, "click File > Save As")
	require.Equal(t, schemas.DescriptorMenu, in.Target.Kind)
	assert.Equal(t, []string{"File", "Save As"}, in.Target.MenuPath)
}

func TestParseTypePayload(t *testing.T) {
	t.Run("quoted with target", func(t *testing.T) {
		in := parseOne(t, `type "hello world" in Search`)
		assert.Equal(t, schemas.VerbType, in.Verb)
		assert.Equal(t, "hello world", in.Mods.Text)
		require.NotNil(t, in.Target)
		assert.Equal(t, "Search", in.Target.Label)
	})
	t.Run("bare without target", func(t *testing.T) {
		in := parseOne(t, "type hello")
		assert.Equal(t, "hello", in.Mods.Text)
		assert.Nil(t, in.Target)
	})
	t.Run("missing payload", func(t *testing.T) {
		_, err := Parse("type")
		require.Error(t, err)
	})
}

func TestParseFillPairs(t *testing.T) {
	in := parseOne(t, "fill Name=Alice, Email=a@x.com")
	assert.Equal(t, schemas.VerbFill, in.Verb)
	require.Len(t, in.Mods.Fields, 2)
	assert.Equal(t, schemas.FieldValue{Field: "Name", Value: "Alice"}, in.Mods.Fields[0])
	assert.Equal(t, schemas.FieldValue{Field: "Email", Value: "a@x.com"}, in.Mods.Fields[1])
}

func TestParsePressKeyCombo(t *testing.T) {
	in := parseOne(t, "press ctrl+shift+s")
	assert.Equal(t, schemas.VerbPress, in.Verb)
	assert.Equal(t, []string{"ctrl", "shift", "s"}, in.Mods.Keys)
}

func TestParseAppOverride(t *testing.T) {
	in := parseOne(t, "click Save in app notepad")
	assert.Equal(t, "notepad", in.Mods.AppOverride)
	require.NotNil(t, in.Target)
	assert.Equal(t, schemas.DescriptorLabel, in.Target.Kind)
	assert.Equal(t, "Save", in.Target.Label)
}

func TestParseChain(t *testing.T) {
	intents, err := Parse("click Save; click Close")
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "Save", intents[0].Target.Label)
	assert.Equal(t, "Close", intents[1].Target.Label)

	intents, err = Parse("click Save then click Close")
	require.NoError(t, err)
	require.Len(t, intents, 2)
}

func TestParseChainRespectsQuotes(t *testing.T) {
	intents, err := Parse(`type "a; b" in Notes`)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "a; b", intents[0].Mods.Text)
}

func TestParseChainFailsOnAnyBadSegment(t *testing.T) {
	_, err := Parse("click Save; frobnicate Close")
	require.Error(t, err)
}

func TestParseWait(t *testing.T) {
	in := parseOne(t, "wait 500ms")
	assert.Equal(t, schemas.VerbWait, in.Verb)
	assert.Equal(t, "500ms", in.Mods.Text)
}

func TestDescriptorStringIsStable(t *testing.T) {
	// Learned translation entries are keyed on this form.
	in := parseOne(t, "click Save")
	assert.Equal(t, "Save", in.Target.String())

	in = parseOne(t, "click the 2nd button")
	assert.Equal(t, "ordinal:button", in.Target.String())

	in = parseOne(t, "click button near Cancel")
	assert.Equal(t, "near:Cancel", in.Target.String())
}
