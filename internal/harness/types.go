package harness

import "github.com/roach88/factset/internal/ir"

// LogEntry is one audit log row written by a scenario step.
type LogEntry struct {
	Step      string       `json:"step"`
	Operation ir.Operation `json:"operation"`
}

// StepOutcome summarizes one step of a scenario run.
type StepOutcome struct {
	Label      string `json:"label"`
	OwnerID    int64  `json:"owner_id,omitempty"`
	Operations int    `json:"operations"`
	// ErrorCode is the code of the error the step ended with, if any.
	ErrorCode string `json:"error_code,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Log holds the operations of every committed step, in commit order.
	Log []LogEntry `json:"log"`

	// Steps holds one outcome per scenario step.
	Steps []StepOutcome `json:"steps"`

	// Bindings maps every wildcard seen during the run to its uuid.
	Bindings map[string]string `json:"bindings"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Log:      []LogEntry{},
		Steps:    []StepOutcome{},
		Bindings: make(map[string]string),
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOperations appends the operations a step committed to the log.
func (r *Result) AddOperations(step string, ops []ir.Operation) {
	for _, op := range ops {
		r.Log = append(r.Log, LogEntry{Step: step, Operation: op})
	}
}
