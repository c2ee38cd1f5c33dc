package harness

import (
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the request trace to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Requests []RequestEvent // Full request trace for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nRequests:\n")
	for i, req := range e.Requests {
		fmt.Fprintf(&buf, "  [%d] step %d %s %v %v\n", i+1, req.Step, req.Route(), req.Query, req.Body)
	}

	return buf.String()
}

// assertRequestContains checks that some request to the route matches the
// expected query and body (subset match).
func assertRequestContains(requests []RequestEvent, assertion Assertion) error {
	for _, req := range requests {
		if req.Route() != assertion.Route {
			continue
		}
		if assertion.Bearer != "" && req.Authorization != "Bearer "+assertion.Bearer {
			continue
		}
		if matchArgs(req.Query, assertion.Query) && matchArgs(req.Body, assertion.Body) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertRequestContains,
		Expected: fmt.Sprintf("%s with query %v body %v", assertion.Route, assertion.Query, assertion.Body),
		Actual:   "not found in requests",
		Requests: requests,
	}
}

// assertRequestOrder checks that routes were first requested in the given
// order. Intervening requests are allowed.
func assertRequestOrder(requests []RequestEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, req := range requests {
		route := req.Route()
		if positions[route] == 0 {
			positions[route] = i + 1 // 1-indexed for readability
		}
	}

	for _, route := range assertion.Routes {
		if positions[route] == 0 {
			return &AssertionError{
				Type:     AssertRequestOrder,
				Expected: fmt.Sprintf("all routes present: %v", assertion.Routes),
				Actual:   fmt.Sprintf("missing route: %s", route),
				Requests: requests,
			}
		}
	}

	for i := 1; i < len(assertion.Routes); i++ {
		prev := assertion.Routes[i-1]
		curr := assertion.Routes[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertRequestOrder,
				Expected: fmt.Sprintf("routes in order: %v", assertion.Routes),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Requests: requests,
			}
		}
	}
	return nil
}

// assertRequestCount checks that the route was requested exactly Count times.
func assertRequestCount(requests []RequestEvent, assertion Assertion) error {
	count := 0
	for _, req := range requests {
		if req.Route() == assertion.Route {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRequestCount,
			Expected: fmt.Sprintf("%d requests to %s", assertion.Count, assertion.Route),
			Actual:   fmt.Sprintf("%d requests", count),
			Requests: requests,
		}
	}
	return nil
}

// assertFinalState checks persisted keys. A nil expectation means the key
// must be absent.
func assertFinalState(state map[string]string, assertion Assertion) error {
	for key, want := range assertion.State {
		got, present := state[key]
		if want == nil {
			if present {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("%s absent", key),
					Actual:   fmt.Sprintf("%s = %q", key, got),
				}
			}
			continue
		}
		wantStr := fmt.Sprint(want)
		if !present || got != wantStr {
			actual := "absent"
			if present {
				actual = fmt.Sprintf("%q", got)
			}
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s = %q", key, wantStr),
				Actual:   fmt.Sprintf("%s %s", key, actual),
			}
		}
	}
	return nil
}

// matchArgs checks if actual contains all expected keys (subset match).
// Values are compared after normalizing both sides to generic JSON shapes so
// YAML ints match decoded json.Number and float64 values.
func matchArgs(actual any, expected map[string]interface{}) bool {
	if len(expected) == 0 {
		return true
	}
	a, err := toGeneric(actual)
	if err != nil {
		return false
	}
	e, err := toGeneric(expected)
	if err != nil {
		return false
	}
	return matchSubset(a, e)
}

// matchSubset reports whether actual contains expected. Maps match when every
// expected key matches; slices must have equal length and match elementwise;
// other values must be equal.
func matchSubset(actual, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range exp {
			av, exists := act[k]
			if !exists {
				return false
			}
			if !matchSubset(av, v) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchSubset(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(actual, expected)
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRequestContains:
			err = assertRequestContains(result.Requests, assertion)
		case AssertRequestOrder:
			err = assertRequestOrder(result.Requests, assertion)
		case AssertRequestCount:
			err = assertRequestCount(result.Requests, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
