package logging

import (
	"testing"
)

func TestRecorderDisabledIsNoOp(t *testing.T) {
	// No config loaded: debug mode off, recording must silently drop events.
	r := NewRecorder(t.TempDir())
	r.Reset("q1")
	r.Log(TraceRoute, map[string]interface{}{"route": "combined"})
	r.Dump()

	if r.enabled {
		t.Error("recorder should be disabled without debug config")
	}
	if len(r.events) != 0 {
		t.Errorf("expected no events recorded, got %d", len(r.events))
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Reset("q1")
	r.Log(TraceStart, nil)
	r.Dump()
}

func TestSanitizeQID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"q1", "q1"},
		{"a/b:c", "a_b_c"},
		{"", "unknown"},
		{"A-ok_2", "A-ok_2"},
	}
	for _, tt := range tests {
		if got := sanitizeQID(tt.in); got != tt.want {
			t.Errorf("sanitizeQID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
