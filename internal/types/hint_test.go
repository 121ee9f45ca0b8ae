package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseHint(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Hint
	}{
		{
			name: "Int",
			raw:  "int",
			want: Hint{Kind: KindInt, Raw: "int"},
		},
		{
			name: "Float With Whitespace",
			raw:  "  float ",
			want: Hint{Kind: KindFloat, Raw: "  float "},
		},
		{
			name: "Object",
			raw:  "{category:str, quantity:int}",
			want: Hint{
				Kind:   KindObject,
				Fields: []Field{{Name: "category", Type: "str"}, {Name: "quantity", Type: "int"}},
				Raw:    "{category:str, quantity:int}",
			},
		},
		{
			name: "List Of Objects",
			raw:  "list[{product:str, revenue:float}]",
			want: Hint{
				Kind:   KindList,
				Fields: []Field{{Name: "product", Type: "str"}, {Name: "revenue", Type: "float"}},
				Raw:    "list[{product:str, revenue:float}]",
			},
		},
		{
			name: "List Without Object",
			raw:  "list[str]",
			want: Hint{Kind: KindList, Raw: "list[str]"},
		},
		{
			name: "Unknown Type Falls Back To Str",
			raw:  "{when:date}",
			want: Hint{
				Kind:   KindObject,
				Fields: []Field{{Name: "when", Type: "str"}},
				Raw:    "{when:date}",
			},
		},
		{
			name: "Garbage Is Raw",
			raw:  "whatever",
			want: Hint{Kind: KindRaw, Raw: "whatever"},
		},
		{
			name: "Empty Is Raw",
			raw:  "",
			want: Hint{Kind: KindRaw, Raw: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHint(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseHint(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestHintScalar(t *testing.T) {
	if !ParseHint("int").Scalar() {
		t.Error("int hint should be scalar")
	}
	if !ParseHint("float").Scalar() {
		t.Error("float hint should be scalar")
	}
	if ParseHint("list[{a:int}]").Scalar() {
		t.Error("list hint should not be scalar")
	}
}

func TestParseFieldsDropsMalformedParts(t *testing.T) {
	h := ParseHint("{good:int, noseparator, :float}")
	if len(h.Fields) != 1 || h.Fields[0].Name != "good" {
		t.Errorf("expected only the well-formed field, got %+v", h.Fields)
	}
}
