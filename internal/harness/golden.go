package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cartctx/internal/model"
)

// TraceSnapshot is the golden form of a run: step outcomes and every backend
// request, without step results.
type TraceSnapshot struct {
	ScenarioName string
	Steps        []StepEvent
	Requests     []RequestEvent
}

// toCanonicalMap converts the snapshot into the generic shapes accepted by
// model.MarshalCanonical.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, step := range s.Steps {
		steps[i] = map[string]any{
			"seq":     step.Seq,
			"op":      step.Op,
			"outcome": step.Outcome,
		}
	}

	requests := make([]any, len(s.Requests))
	for i, req := range s.Requests {
		m := map[string]any{
			"step":           req.Step,
			"method":         req.Method,
			"path":           req.Path,
			"correlation_id": req.CorrelationID,
		}
		if len(req.Query) > 0 {
			m["query"] = req.Query
		}
		if req.Body != nil {
			m["body"] = req.Body
		}
		requests[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"requests":      requests,
	}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t, scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
		Requests:     result.Requests,
	}
	traceJSON, err := model.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
