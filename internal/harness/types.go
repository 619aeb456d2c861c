package harness

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Replica string `json:"replica"`
	Op      string `json:"op"`

	// Target is the storage id ("collection#id") the step wrote to, or the
	// source replica of a sync.
	Target string `json:"target,omitempty"`

	// Clock is the replica clock after the step as "seq@origin". Empty for
	// sync_all, which touches every replica.
	Clock string `json:"clock,omitempty"`

	// Applied counts entity triples that changed state during a sync.
	Applied int `json:"applied,omitempty"`

	// Error is the error code of a step that failed as expected.
	Error string `json:"error,omitempty"`
}

// State holds the live documents of every replica:
// replica -> collection -> documents in id order.
type State map[string]map[string][]map[string]any

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final plain state of every replica.
	State State `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(State),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
