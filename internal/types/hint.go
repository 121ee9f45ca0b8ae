package types

import "strings"

// HintKind classifies an output-type hint.
type HintKind int

const (
	// KindRaw is the fallback for hints outside the grammar: raw rows if
	// present, else an empty list.
	KindRaw HintKind = iota
	// KindInt requests a single integer.
	KindInt
	// KindFloat requests a single 2-decimal float.
	KindFloat
	// KindObject requests one keyed object built from row 0.
	KindObject
	// KindList requests a list of keyed objects, one per row.
	KindList
)

// Field is one declared key of an object hint. Type is "int", "float" or
// "str"; anything else is treated as "str".
type Field struct {
	Name string
	Type string
}

// Hint is the parsed form of an output-type hint. Grammar:
//
//	int | float | {field:type, ...} | list[{field:type, ...}]
//
// Fields preserve declaration order so synthesized objects are stable.
type Hint struct {
	Kind   HintKind
	Fields []Field
	Raw    string
}

// Scalar reports whether the hint requests a single numeric value.
func (h Hint) Scalar() bool {
	return h.Kind == KindInt || h.Kind == KindFloat
}

// ParseHint parses a raw hint string. It is total: anything that does not
// match the grammar comes back as KindRaw, never an error.
func ParseHint(raw string) Hint {
	s := strings.TrimSpace(raw)
	switch {
	case s == "int":
		return Hint{Kind: KindInt, Raw: raw}
	case s == "float":
		return Hint{Kind: KindFloat, Raw: raw}
	case strings.HasPrefix(s, "list[") && strings.HasSuffix(s, "]"):
		inner := strings.TrimSpace(s[len("list[") : len(s)-1])
		if strings.HasPrefix(inner, "{") && strings.HasSuffix(inner, "}") {
			return Hint{Kind: KindList, Fields: parseFields(inner), Raw: raw}
		}
		// list of something we don't model: stringified rows
		return Hint{Kind: KindList, Raw: raw}
	case strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && strings.Contains(s, ":"):
		return Hint{Kind: KindObject, Fields: parseFields(s), Raw: raw}
	default:
		return Hint{Kind: KindRaw, Raw: raw}
	}
}

// parseFields turns "{product:str, revenue:float}" into ordered Fields.
// Malformed parts (no colon) are dropped rather than failing.
func parseFields(spec string) []Field {
	spec = strings.TrimSpace(spec)
	spec = strings.TrimPrefix(spec, "{")
	spec = strings.TrimSuffix(spec, "}")

	var fields []Field
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		typ = strings.TrimSpace(typ)
		if name == "" {
			continue
		}
		switch typ {
		case "int", "float", "str":
		default:
			typ = "str"
		}
		fields = append(fields, Field{Name: name, Type: typ})
	}
	return fields
}
