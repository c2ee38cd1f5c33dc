package harness

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario drives a client through a sequence of operations and asserts on
// the backend requests those operations produced.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend queues canned responses per route.
	Backend []Stub `yaml:"backend,omitempty"`

	// Steps are executed in order against one client.
	Steps []Step `yaml:"steps"`

	// Assertions validate the request trace and final persisted state.
	Assertions []Assertion `yaml:"assertions"`
}

// Stub queues responses for one route. The last response repeats.
type Stub struct {
	// Route is "METHOD /path", e.g. "GET /api/cart".
	Route     string         `yaml:"route"`
	Responses []StubResponse `yaml:"responses"`
}

// StubResponse is one canned reply. Status below 300 (or zero) wraps Data in
// a success envelope; anything else becomes an error envelope.
type StubResponse struct {
	Status  int    `yaml:"status,omitempty"`
	Data    any    `yaml:"data,omitempty"`
	Code    string `yaml:"code,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Step is one client operation.
type Step struct {
	// Op names the operation, e.g. add_item or load_notification.
	Op string `yaml:"op"`

	// Args are the operation arguments. Keys are snake_case.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Expect validates the outcome. Nil means the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected step outcome.
type ExpectClause struct {
	// Outcome is ok, validation or network. Empty means ok.
	Outcome string `yaml:"outcome,omitempty"`

	// Result is a subset match against the step's return value.
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates the request trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Route is used by request_contains and request_count.
	Route string `yaml:"route,omitempty"`

	// Query and Body are subset matches (request_contains).
	Query map[string]interface{} `yaml:"query,omitempty"`
	Body  map[string]interface{} `yaml:"body,omitempty"`

	// Bearer, when set, must equal the request's bearer token
	// (request_contains).
	Bearer string `yaml:"bearer,omitempty"`

	// Count is the expected number of requests (request_count).
	Count int `yaml:"count,omitempty"`

	// Routes is the expected order (request_order).
	Routes []string `yaml:"routes,omitempty"`

	// State maps persisted keys to expected values. A null value means the
	// key must be absent (final_state).
	State map[string]interface{} `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertRequestContains = "request_contains"
	AssertRequestOrder    = "request_order"
	AssertRequestCount    = "request_count"
	AssertFinalState      = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(bytes.NewReader(data))
}

// ParseScenario parses a scenario. Unknown fields are rejected so typos like
// "assertion:" fail loudly.
func ParseScenario(r io.Reader) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, stub := range s.Backend {
		if !validRoute(stub.Route) {
			return fmt.Errorf("backend[%d]: route must be \"METHOD /path\", got %q", i, stub.Route)
		}
		if len(stub.Responses) == 0 {
			return fmt.Errorf("backend[%d]: responses is required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Op == "" {
			return fmt.Errorf("steps[%d]: op is required", i)
		}
		if _, ok := ops[step.Op]; !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Expect != nil {
			switch step.Expect.Outcome {
			case "", OutcomeOK, OutcomeValidation, OutcomeNetwork:
			default:
				return fmt.Errorf("steps[%d].expect: unknown outcome %q", i, step.Expect.Outcome)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRequestContains:
		if !validRoute(a.Route) {
			return fmt.Errorf("assertions[%d]: route is required for request_contains", index)
		}
	case AssertRequestOrder:
		if len(a.Routes) == 0 {
			return fmt.Errorf("assertions[%d]: routes list is required for request_order", index)
		}
	case AssertRequestCount:
		if !validRoute(a.Route) {
			return fmt.Errorf("assertions[%d]: route is required for request_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for request_count", index)
		}
	case AssertFinalState:
		if len(a.State) == 0 {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validRoute(route string) bool {
	method, path, ok := strings.Cut(route, " ")
	return ok && method != "" && strings.HasPrefix(path, "/")
}
