package synth

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailcopilot/internal/config"
	"retailcopilot/internal/types"
)

func newTestSynthesizer() *Synthesizer {
	return New(config.DefaultConfig().Synthesis)
}

func okAttempt(cols []string, rows ...map[string]any) types.Attempt {
	return types.Attempt{
		SQL:     "SELECT something FROM [Order Details] od JOIN Orders o;",
		OK:      true,
		Columns: cols,
		Rows:    rows,
	}
}

func TestSynthesizeFloat(t *testing.T) {
	s := newTestSynthesizer()

	out := s.Synthesize(Input{
		Attempt: okAttempt([]string{"aov"}, map[string]any{"aov": 523.4567}),
		Hint:    types.Hint{Kind: types.KindFloat},
		Tables:  []string{"Orders", "Order Details"},
	})
	assert.Equal(t, 523.46, out.Value)
	assert.Equal(t, []string{"Order Details", "Orders"}, out.Citations)
}

func TestSynthesizeIntRounds(t *testing.T) {
	s := newTestSynthesizer()

	out := s.Synthesize(Input{
		Attempt: okAttempt([]string{"days"}, map[string]any{"days": 13.6}),
		Hint:    types.Hint{Kind: types.KindInt},
	})
	assert.Equal(t, int64(14), out.Value)
}

func TestSynthesizeIntFromText(t *testing.T) {
	s := newTestSynthesizer()

	// text affinity columns still count as numeric when parseable
	out := s.Synthesize(Input{
		Attempt: okAttempt([]string{"days"}, map[string]any{"days": "14"}),
		Hint:    types.Hint{Kind: types.KindInt},
	})
	assert.Equal(t, int64(14), out.Value)
}

func TestSynthesizeObject(t *testing.T) {
	s := newTestSynthesizer()
	hint := types.ParseHint("{customer:str, margin:float}")

	out := s.Synthesize(Input{
		Attempt: okAttempt(
			[]string{"Customer", "Margin"},
			map[string]any{"Customer": "QUICK-Stop", "Margin": 29073.459},
		),
		Hint: hint,
	})
	want := map[string]any{"customer": "QUICK-Stop", "margin": 29073.46}
	if diff := cmp.Diff(want, out.Value); diff != "" {
		t.Errorf("object mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizeObjectMissingColumn(t *testing.T) {
	s := newTestSynthesizer()
	hint := types.ParseHint("{customer:str, margin:float, rank:int}")

	out := s.Synthesize(Input{
		Attempt: okAttempt([]string{"customer"}, map[string]any{"customer": "QUICK-Stop"}),
		Hint:    hint,
	})
	obj, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "QUICK-Stop", obj["customer"])
	assert.Equal(t, 0.0, obj["margin"])
	assert.Equal(t, int64(0), obj["rank"])
}

func TestSynthesizeList(t *testing.T) {
	s := newTestSynthesizer()
	hint := types.ParseHint("list[{product:str, revenue:float}]")

	out := s.Synthesize(Input{
		Attempt: okAttempt(
			[]string{"product", "revenue"},
			map[string]any{"product": "Côte de Blaye", "revenue": 141396.735},
			map[string]any{"product": "Thüringer Rostbratwurst", "revenue": 80368.672},
		),
		Hint: hint,
	})
	list, ok := out.Value.([]map[string]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "Côte de Blaye", list[0]["product"])
	rev, ok := list[0]["revenue"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 141396.74, rev, 0.011)
}

func TestSynthesizeListEmptyRows(t *testing.T) {
	s := newTestSynthesizer()
	hint := types.ParseHint("list[{product:str}]")

	out := s.Synthesize(Input{
		Attempt: okAttempt([]string{"product"}),
		Hint:    hint,
	})
	list, ok := out.Value.([]map[string]any)
	require.True(t, ok)
	assert.Empty(t, list)
}

func TestSynthesizeRawFallback(t *testing.T) {
	s := newTestSynthesizer()

	rows := []map[string]any{{"anything": 1}}
	out := s.Synthesize(Input{
		Attempt: okAttempt([]string{"anything"}, rows...),
		Hint:    types.ParseHint("something unrecognized"),
	})
	assert.Equal(t, rows, out.Value)
}

func TestSynthesizeFailureZeroValues(t *testing.T) {
	s := newTestSynthesizer()
	failed := types.Attempt{SQL: "SELECT broken", Err: "no such table: Missing"}

	tests := []struct {
		hint string
		want any
	}{
		{"int", int64(0)},
		{"float", 0.0},
		{"list[{product:str}]", []map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			out := s.Synthesize(Input{Attempt: failed, Hint: types.ParseHint(tt.hint)})
			assert.Equal(t, tt.want, out.Value)
			assert.Contains(t, out.Explanation, "no such table")
		})
	}
}

func TestConfidenceHeuristic(t *testing.T) {
	s := newTestSynthesizer()
	longSQL := "SELECT ROUND(SUM(x), 2) AS r FROM [Order Details];"

	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{
			name: "all bonuses",
			in: Input{
				Attempt: types.Attempt{SQL: longSQL, OK: true, Rows: []map[string]any{{"r": 1.0}}},
			},
			want: 1.0, // 0.3 + 0.4 + 0.2 + 0.1, then clamped
		},
		{
			name: "repairs forfeit the clean bonus",
			in: Input{
				Attempt: types.Attempt{SQL: longSQL, OK: true, Rows: []map[string]any{{"r": 1.0}}},
				Repairs: 1,
			},
			want: 0.9,
		},
		{
			name: "failure keeps only base and query bonus",
			in: Input{
				Attempt: types.Attempt{SQL: longSQL, Err: "boom"},
				Repairs: 2,
			},
			want: 0.5,
		},
		{
			name: "total failure floors at base",
			in: Input{
				Attempt: types.Attempt{Err: "empty query"},
				Repairs: 1,
			},
			want: 0.3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Synthesize(tt.in)
			if tt.want == 1.0 {
				assert.InDelta(t, 0.99, out.Confidence, 1e-9)
				return
			}
			assert.InDelta(t, tt.want, out.Confidence, 1e-9)
		})
	}
}

func TestConfidenceClampedToBand(t *testing.T) {
	s := New(config.SynthesisConfig{
		BaseConfidence: 0.0,
		MinConfidence:  0.1,
		MaxConfidence:  0.99,
	})
	out := s.Synthesize(Input{Attempt: types.Attempt{Err: "x"}, Repairs: 1})
	assert.Equal(t, 0.1, out.Confidence)
}

func TestMergeCitations(t *testing.T) {
	got := MergeCitations(
		[]string{"Orders", "Order Details", "Orders"},
		[]string{"product_policy::chunk0", "", "Order Details"},
	)
	assert.Equal(t, []string{"Order Details", "Orders", "product_policy::chunk0"}, got)
}

func TestMergeCitationsEmpty(t *testing.T) {
	got := MergeCitations(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
