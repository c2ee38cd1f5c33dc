package harness

// Step outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeNetwork    = "network"
	OutcomeError      = "error"
)

// StepEvent records one executed step.
type StepEvent struct {
	Seq     int    `json:"seq"`
	Op      string `json:"op"`
	Outcome string `json:"outcome"`

	// Result is the step's return value decoded into generic JSON shapes.
	Result any `json:"result,omitempty"`

	// Error is the error text when Outcome is not ok.
	Error string `json:"error,omitempty"`
}

// RequestEvent is one backend request attributed to the step that caused it.
type RequestEvent struct {
	Step          int            `json:"step"`
	Method        string         `json:"method"`
	Path          string         `json:"path"`
	Query         map[string]any `json:"query,omitempty"`
	Body          any            `json:"body,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	Authorization string         `json:"-"`
}

// Route returns "METHOD /path".
func (r RequestEvent) Route() string {
	return r.Method + " " + r.Path
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	Steps    []StepEvent    `json:"steps"`
	Requests []RequestEvent `json:"requests"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// State is every persisted key after the last step.
	State map[string]string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Steps:    []StepEvent{},
		Requests: []RequestEvent{},
		Errors:   []string{},
		State:    make(map[string]string),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
