package harness

// StepTrace is the observable outcome of one step.
type StepTrace struct {
	Step    int64 `json:"step"`
	Bound   int   `json:"bound"`
	Changed bool  `json:"changed"`

	// Cells maps each non-zero canonical position to its decimal value.
	Cells map[string]string `json:"cells"`

	// AllCompliant is set when the scenario tracks compliance and at least
	// one step has been taken.
	AllCompliant *bool `json:"all_compliant,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one entry per step, starting with step 0.
	Trace []StepTrace `json:"trace"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Snapshots lists the ids of snapshots taken during the run.
	Snapshots []string `json:"snapshots,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Step returns the trace entry for step, if the run reached it.
func (r *Result) Step(step int64) (StepTrace, bool) {
	for _, st := range r.Trace {
		if st.Step == step {
			return st, true
		}
	}
	return StepTrace{}, false
}
