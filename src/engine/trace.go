package engine

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moonbitlang/moon/src/plan"
)

// Tracer accumulates Chrome trace-event entries for one invocation, written
// to a JSON file a browser's chrome://tracing (or Perfetto) can load,
// grounded on the teacher's output/trace.go but adapted from per-target
// begin/end pairs to per-node ones plus a run id disambiguating concurrent
// invocations sharing a target directory.
type Tracer struct {
	mutex  sync.Mutex
	events []traceEvent
	RunID  string
}

// NewTracer starts a trace with a fresh run id.
func NewTracer() *Tracer {
	return &Tracer{RunID: uuid.NewString()}
}

type traceEvent struct {
	Name string `json:"name"`
	Cat  string `json:"cat"`
	Ph   string `json:"ph"` // "B" begin, "E" end
	Pid  int    `json:"pid"`
	Tid  int    `json:"tid"`
	Ts   int64  `json:"ts"` // microseconds
	Args struct {
		Err string `json:"err,omitempty"`
	} `json:"args,omitempty"`
}

// Begin records the start of a node's execution on a given worker slot.
func (t *Tracer) Begin(key plan.NodeKey, worker int) {
	t.record(key, worker, "B", nil)
}

// End records the end of a node's execution, with its error if it failed.
func (t *Tracer) End(key plan.NodeKey, worker int, err error) {
	t.record(key, worker, "E", err)
}

func (t *Tracer) record(key plan.NodeKey, worker int, phase string, err error) {
	e := traceEvent{
		Name: key.String(),
		Cat:  key.Kind.String(),
		Ph:   phase,
		Pid:  0,
		Tid:  worker,
		Ts:   time.Now().UnixNano() / 1000,
	}
	if err != nil {
		e.Args.Err = err.Error()
	}
	t.mutex.Lock()
	t.events = append(t.events, e)
	t.mutex.Unlock()
}

// Write serialises the trace to path in the Chrome trace-event format.
func (t *Tracer) Write(path string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := struct {
		TraceEvents []traceEvent `json:"traceEvents"`
		OtherData   struct {
			RunID string `json:"runId"`
		} `json:"otherData"`
	}{TraceEvents: t.events}
	out.OtherData.RunID = t.RunID

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
