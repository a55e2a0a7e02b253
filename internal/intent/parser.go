// File: internal/intent/parser.go

// Package intent turns a natural-language action request into structured
// Intents. Parsing is pure text-to-structure: it never touches a snapshot,
// and it fails only on empty input or an unrecognized verb.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

var (
	// ordinalRe matches "the 2nd button", "3rd link", "1st checkbox".
	ordinalRe = regexp.MustCompile(`^(?:the\s+)?(\d+)(?:st|nd|rd|th)\s+(\w+)$`)

	// roleIndexRe matches "link 3", "button 12".
	roleIndexRe = regexp.MustCompile(`^(?:the\s+)?(\w+)\s+(\d+)$`)

	// firstLastRe matches "first button", "the last checkbox".
	firstLastRe = regexp.MustCompile(`^(?:the\s+)?(first|last)\s+(\w+)$`)

	// rowIndexRe matches "row 2" scopes.
	rowIndexRe = regexp.MustCompile(`^(?:the\s+)?row\s+(\d+)$`)

	// appOverrideRe strips a trailing "in app X" / "in application X".
	appOverrideRe = regexp.MustCompile(`\s+in\s+app(?:lication)?\s+(\S+)\s*$`)

	// keyComboRe recognizes key sequences like "ctrl+shift+s".
	keyComboRe = regexp.MustCompile(`^[a-z0-9]+(\+[a-z0-9]+)+$|^(ctrl|alt|shift|cmd|meta|enter|tab|escape|esc|space|backspace|delete|up|down|left|right|f\d{1,2})$`)
)

// Parse splits text on the chain separator and parses each segment into one
// Intent. Later segments are returned in order; execution is fail-fast, so a
// failed earlier segment means the rest never run.
func Parse(text string) ([]schemas.Intent, error) {
	segments := splitChain(text)
	if len(segments) == 0 {
		return nil, &schemas.ParseError{Input: text, Reason: "empty intent"}
	}

	intents := make([]schemas.Intent, 0, len(segments))
	for _, seg := range segments {
		in, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		intents = append(intents, in)
	}
	return intents, nil
}

// splitChain breaks the input on ";" and the word "then". Quoted payloads are
// respected: a separator inside double quotes does not split.
func splitChain(text string) []string {
	var segments []string
	var cur strings.Builder
	inQuote := false
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ';' && !inQuote:
			segments = append(segments, cur.String())
			cur.Reset()
		case !inQuote && r == ' ' && hasWordAt(runes, i+1, "then "):
			segments = append(segments, cur.String())
			cur.Reset()
			i += len("then ") // skip the separator word
		default:
			cur.WriteRune(r)
		}
	}
	segments = append(segments, cur.String())

	out := segments[:0]
	for _, s := range segments {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func hasWordAt(runes []rune, at int, word string) bool {
	if at+len(word) > len(runes) {
		return false
	}
	return string(runes[at:at+len(word)]) == word
}

// parseSegment parses one chain segment: verb, modifiers, then the target
// descriptor in grammar precedence order.
func parseSegment(seg string) (schemas.Intent, error) {
	in := schemas.Intent{Raw: seg}

	fields := strings.Fields(seg)
	if len(fields) == 0 {
		return in, &schemas.ParseError{Input: seg, Reason: "empty segment"}
	}

	verb, ok := verbSynonyms[strings.ToLower(fields[0])]
	if !ok {
		return in, &schemas.ParseError{Input: seg, Reason: "unrecognized verb " + strconv.Quote(fields[0])}
	}
	in.Verb = verb
	rest := strings.TrimSpace(seg[len(fields[0]):])

	// Modifier extraction is independent of the descriptor grammar.
	if m := appOverrideRe.FindStringSubmatch(rest); m != nil {
		in.Mods.AppOverride = m[1]
		rest = strings.TrimSpace(appOverrideRe.ReplaceAllString(rest, ""))
	}

	switch verb {
	case schemas.VerbWait:
		in.Mods.Text = rest
		return in, nil
	case schemas.VerbPress:
		keys := parseKeyCombo(rest)
		if len(keys) == 0 {
			return in, &schemas.ParseError{Input: seg, Reason: "press needs a key sequence"}
		}
		in.Mods.Keys = keys
		return in, nil
	case schemas.VerbFill:
		fieldsKV, leftover := parseFieldValues(rest)
		if len(fieldsKV) == 0 {
			return in, &schemas.ParseError{Input: seg, Reason: "fill needs Name=Value pairs"}
		}
		in.Mods.Fields = fieldsKV
		if leftover != "" {
			in.Target = parseDescriptor(leftover)
		}
		return in, nil
	case schemas.VerbType:
		text, target := splitTypePayload(rest)
		if text == "" {
			return in, &schemas.ParseError{Input: seg, Reason: "type needs a payload"}
		}
		in.Mods.Text = text
		if target != "" {
			in.Target = parseDescriptor(target)
		}
		return in, nil
	case schemas.VerbScroll:
		// "scroll down", "scroll up in Results". Direction rides in Text.
		dir, target := splitFirstWord(rest)
		in.Mods.Text = dir
		if target != "" {
			in.Target = parseDescriptor(target)
		}
		return in, nil
	}

	if rest == "" {
		return in, &schemas.ParseError{Input: seg, Reason: "missing target"}
	}
	in.Target = parseDescriptor(rest)
	return in, nil
}

// parseDescriptor applies the target grammar in precedence order: explicit
// ordinal, spatial relation, container scope, menu path, plain label.
func parseDescriptor(text string) *schemas.Descriptor {
	text = strings.TrimSpace(strings.Trim(text, `"`))

	if d := parseOrdinal(text); d != nil {
		return d
	}
	if d := parseSpatial(text); d != nil {
		return d
	}
	if d := parseContainer(text); d != nil {
		return d
	}
	if strings.Contains(text, ">") {
		parts := strings.Split(text, ">")
		path := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				path = append(path, t)
			}
		}
		if len(path) > 1 {
			return &schemas.Descriptor{Kind: schemas.DescriptorMenu, MenuPath: path}
		}
	}
	return &schemas.Descriptor{Kind: schemas.DescriptorLabel, Label: text}
}

func parseOrdinal(text string) *schemas.Descriptor {
	lower := strings.ToLower(text)
	if m := ordinalRe.FindStringSubmatch(lower); m != nil {
		if role, ok := lookupRole(m[2]); ok {
			n, _ := strconv.Atoi(m[1])
			return &schemas.Descriptor{Kind: schemas.DescriptorOrdinal, Role: role, Ordinal: n}
		}
	}
	if m := firstLastRe.FindStringSubmatch(lower); m != nil {
		if role, ok := lookupRole(m[2]); ok {
			return &schemas.Descriptor{
				Kind:    schemas.DescriptorOrdinal,
				Role:    role,
				Ordinal: 1,
				FromEnd: m[1] == "last",
			}
		}
	}
	if m := roleIndexRe.FindStringSubmatch(lower); m != nil {
		if role, ok := lookupRole(m[1]); ok {
			n, _ := strconv.Atoi(m[2])
			return &schemas.Descriptor{Kind: schemas.DescriptorOrdinal, Role: role, Ordinal: n}
		}
	}
	return nil
}

// spatialMarkers in match order: longer phrasings first, so " left of "
// cannot claim the tail of " to the left of " and leave "to the" stuck in
// the label.
var spatialMarkers = []struct {
	marker   string
	relation schemas.SpatialRelation
}{
	{" near ", schemas.RelationNear},
	{" next to ", schemas.RelationNear},
	{" beside ", schemas.RelationNear},
	{" below ", schemas.RelationBelow},
	{" under ", schemas.RelationBelow},
	{" above ", schemas.RelationAbove},
	{" over ", schemas.RelationAbove},
	{" to the left of ", schemas.RelationLeft},
	{" left of ", schemas.RelationLeft},
	{" to the right of ", schemas.RelationRight},
	{" right of ", schemas.RelationRight},
}

// asciiFold lowercases only ASCII letters, preserving byte length, so an
// index found in the folded string slices the original safely. The grammar's
// marker words are ASCII; labels need not be, and full Unicode lowering can
// change byte offsets.
func asciiFold(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

func parseSpatial(text string) *schemas.Descriptor {
	lower := asciiFold(text)

	for _, sm := range spatialMarkers {
		idx := strings.Index(lower, sm.marker)
		if idx < 0 {
			continue
		}
		pre := strings.TrimSpace(text[:idx])
		ref := strings.TrimSpace(text[idx+len(sm.marker):])
		if ref == "" {
			continue
		}
		d := &schemas.Descriptor{
			Kind:      schemas.DescriptorSpatial,
			Relation:  sm.relation,
			Reference: parseDescriptor(ref),
		}
		if role, ok := lookupRole(strings.ToLower(pre)); ok {
			d.Role = role
		} else if pre != "" {
			// "Save near Cancel": the pre-text is a label constraint, not a
			// role. Keep it as the label the spatial filter scores against.
			d.Label = pre
		}
		return d
	}

	// Named regions: "X in the top left", "X in the center".
	if idx := strings.LastIndex(lower, " in the "); idx >= 0 {
		regionText := normalizeRegion(lower[idx+len(" in the "):])
		if region, ok := namedRegions[regionText]; ok {
			d := &schemas.Descriptor{
				Kind:     schemas.DescriptorSpatial,
				Relation: schemas.RelationRegion,
				Region:   region,
			}
			pre := strings.TrimSpace(text[:idx])
			if role, ok := lookupRole(strings.ToLower(pre)); ok {
				d.Role = role
			} else {
				d.Label = pre
			}
			return d
		}
	}
	return nil
}

func normalizeRegion(s string) string {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{" corner", " of the screen", " area", " region"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

// parseContainer handles "<inner> in row 3", "<inner> in the row with <label>"
// and the generic "<inner> in <container label>" scope.
func parseContainer(text string) *schemas.Descriptor {
	lower := asciiFold(text)
	idx := strings.LastIndex(lower, " in ")
	if idx < 0 {
		return nil
	}
	inner := strings.TrimSpace(text[:idx])
	scopeText := strings.TrimSpace(text[idx+len(" in "):])
	scopeText = strings.TrimPrefix(scopeText, "the ")
	if inner == "" || scopeText == "" {
		return nil
	}

	d := &schemas.Descriptor{
		Kind:  schemas.DescriptorContainer,
		Inner: parseDescriptor(inner),
	}

	lowerScope := asciiFold(scopeText)
	if m := rowIndexRe.FindStringSubmatch(lowerScope); m != nil {
		n, _ := strconv.Atoi(m[1])
		d.RowIndex = n
		d.Scope = &schemas.Descriptor{Kind: schemas.DescriptorLabel, Role: schemas.RoleRow}
		return d
	}
	if rest, ok := strings.CutPrefix(lowerScope, "row with "); ok {
		d.Scope = &schemas.Descriptor{
			Kind:  schemas.DescriptorLabel,
			Role:  schemas.RoleRow,
			Label: strings.TrimSpace(scopeText[len(scopeText)-len(rest):]),
		}
		return d
	}
	d.Scope = &schemas.Descriptor{Kind: schemas.DescriptorLabel, Label: scopeText}
	return d
}

// lookupRole resolves a role noun, tolerating simple plurals.
func lookupRole(word string) (schemas.Role, bool) {
	word = strings.TrimSpace(word)
	if r, ok := roleWords[word]; ok {
		return r, true
	}
	for _, suffix := range []string{"es", "s"} {
		if base, found := strings.CutSuffix(word, suffix); found {
			if r, ok := roleWords[base]; ok {
				return r, true
			}
		}
	}
	return "", false
}

// parseKeyCombo splits "ctrl+shift+s" or "ctrl s" into normalized key names.
func parseKeyCombo(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	var keys []string
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool { return r == '+' || r == ' ' }) {
		if tok == "" {
			continue
		}
		if !keyComboRe.MatchString(tok) && len(tok) > 1 {
			return nil
		}
		keys = append(keys, tok)
	}
	return keys
}

// parseFieldValues extracts Name=Value pairs split on commas. Whatever does
// not look like a pair is returned as leftover target text.
func parseFieldValues(text string) ([]schemas.FieldValue, string) {
	var pairs []schemas.FieldValue
	var leftover []string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			pairs = append(pairs, schemas.FieldValue{
				Field: strings.TrimSpace(k),
				Value: strings.TrimSpace(strings.Trim(v, `"`)),
			})
			continue
		}
		leftover = append(leftover, part)
	}
	return pairs, strings.Join(leftover, " ")
}

// splitTypePayload separates `type "hello world" in Search` into the payload
// and the target descriptor text. An unquoted payload runs to the last
// " in "/" into " marker, or to the end of the segment.
func splitTypePayload(text string) (payload, target string) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, `"`) {
		if end := strings.Index(text[1:], `"`); end >= 0 {
			payload = text[1 : 1+end]
			target = strings.TrimSpace(text[2+end:])
			target = strings.TrimPrefix(target, "into ")
			target = strings.TrimPrefix(target, "in ")
			return payload, strings.TrimSpace(target)
		}
	}
	lower := asciiFold(text)
	for _, marker := range []string{" into ", " in "} {
		if idx := strings.LastIndex(lower, marker); idx >= 0 {
			return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+len(marker):])
		}
	}
	return text, ""
}

func splitFirstWord(text string) (first, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	parts := strings.SplitN(text, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	rest = strings.TrimSpace(parts[1])
	rest = strings.TrimPrefix(rest, "in ")
	return parts[0], strings.TrimSpace(rest)
}
