package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// TRACE EVENT TYPES
// =============================================================================

// TraceEventType identifies a pipeline stage event in a question trace.
type TraceEventType string

const (
	TraceStart    TraceEventType = "start"
	TraceRoute    TraceEventType = "route"
	TraceRetrieve TraceEventType = "retrieve"
	TracePlan     TraceEventType = "plan"
	TraceGenerate TraceEventType = "generate"
	TraceExecute  TraceEventType = "execute"
	TraceRepair   TraceEventType = "repair"
	TraceSynth    TraceEventType = "synth"
	TraceFinal    TraceEventType = "final"
)

// TraceEvent is one structured entry in a question's trace.
type TraceEvent struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	QID       string                 `json:"qid"`
	Event     TraceEventType         `json:"event"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// =============================================================================
// TRACE RECORDER
// =============================================================================

// Recorder accumulates trace events for a single question and dumps them to
// .copilot/logs/trace_<qid>.json for auditing. Recording is a no-op unless
// debug mode and trace_dump are both enabled, so the pipeline can call it
// unconditionally.
type Recorder struct {
	mu      sync.Mutex
	qid     string
	events  []TraceEvent
	dir     string
	enabled bool
}

// NewRecorder creates a recorder writing under the given workspace.
func NewRecorder(ws string) *Recorder {
	configMu.RLock()
	enabled := config.DebugMode && config.TraceDump
	configMu.RUnlock()

	return &Recorder{
		dir:     filepath.Join(ws, ".copilot", "logs"),
		enabled: enabled,
	}
}

// Reset clears accumulated events and binds the recorder to a new question.
// No state is shared across questions.
func (r *Recorder) Reset(qid string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qid = qid
	r.events = r.events[:0]
}

// Log appends one event. Fields may be nil.
func (r *Recorder) Log(event TraceEventType, fields map[string]interface{}) {
	if r == nil || !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, TraceEvent{
		Timestamp: time.Now().UnixMilli(),
		QID:       r.qid,
		Event:     event,
		Fields:    fields,
	})
	Get(CategoryTrace).Debug("%s qid=%s", event, r.qid)
}

// Dump writes the accumulated events as pretty JSON. Failures are swallowed;
// tracing must never fail a question.
func (r *Recorder) Dump() {
	if r == nil || !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.qid == "" || len(r.events) == 0 {
		return
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return
	}
	data, err := json.MarshalIndent(r.events, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(r.dir, fmt.Sprintf("trace_%s.json", sanitizeQID(r.qid)))
	_ = os.WriteFile(path, data, 0644)
}

// sanitizeQID keeps trace filenames safe for arbitrary question ids.
func sanitizeQID(qid string) string {
	out := make([]rune, 0, len(qid))
	for _, r := range qid {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
