package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roach88/cartctx"
	"github.com/roach88/cartctx/internal/config"
	"github.com/roach88/cartctx/internal/store"
	"github.com/roach88/cartctx/internal/testutil"
)

// Harness executes one scenario against a fresh client and backend.
type Harness struct {
	client  *cartctx.Client
	backend *testutil.FakeBackend
	clock   *testutil.FakeClock
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets its own database file and fake backend, both released
// at test cleanup. Execution flow:
//  1. Queue backend stubs
//  2. Open the client with deterministic clock, suffixes and correlation ids
//  3. Execute steps, attributing each backend request to its step
//  4. Snapshot persisted state and evaluate assertions
func Run(t testing.TB, scenario *Scenario) (*Result, error) {
	t.Helper()

	fb := testutil.NewFakeBackend(t)
	for _, stub := range scenario.Backend {
		fb.On(stub.Route, stubResponses(stub.Responses)...)
	}

	cfg := config.Default()
	cfg.BaseURL = fb.URL()
	cfg.DBPath = filepath.Join(t.TempDir(), "harness.db")
	cfg.MaxRetries = 0

	clock := testutil.NewFakeClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := cartctx.Open(cfg,
		cartctx.WithLogger(logger),
		cartctx.WithClock(clock),
		cartctx.WithSessionSuffix(testutil.NewSequenceGenerator("hns")),
		cartctx.WithCorrelationIDs(newCorrelationSequence()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open client: %w", err)
	}

	h := &Harness{client: client, backend: fb, clock: clock, logger: logger}
	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		h.executeStep(ctx, i+1, step, result)
	}

	if err := client.Close(); err != nil {
		return nil, fmt.Errorf("failed to close client: %w", err)
	}
	state, err := dumpState(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	result.State = state

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step, records it and its requests, and checks its
// expect clause.
func (h *Harness) executeStep(ctx context.Context, seq int, step Step, result *Result) {
	before := len(h.backend.Requests())

	value, err := ops[step.Op](ctx, h, args(step.Args))

	event := StepEvent{Seq: seq, Op: step.Op, Outcome: outcomeOf(err)}
	if err != nil {
		event.Error = err.Error()
	} else if value != nil {
		generic, convErr := toGeneric(value)
		if convErr != nil {
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", seq, step.Op, convErr))
		}
		event.Result = generic
	}
	result.Steps = append(result.Steps, event)

	for _, req := range h.backend.Requests()[before:] {
		result.Requests = append(result.Requests, requestEvent(seq, req))
	}

	h.logger.Debug("step executed", "seq", seq, "op", step.Op, "outcome", event.Outcome)

	if msg := checkExpect(seq, step, event); msg != "" {
		result.AddError(msg)
	}
}

func checkExpect(seq int, step Step, event StepEvent) string {
	want := OutcomeOK
	if step.Expect != nil && step.Expect.Outcome != "" {
		want = step.Expect.Outcome
	}
	if event.Outcome != want {
		return fmt.Sprintf("steps[%d] %s: expected outcome %s, got %s (%s)", seq, step.Op, want, event.Outcome, event.Error)
	}
	if step.Expect == nil || len(step.Expect.Result) == 0 {
		return ""
	}
	expected, err := toGeneric(step.Expect.Result)
	if err != nil {
		return fmt.Sprintf("steps[%d] %s: bad expected result: %v", seq, step.Op, err)
	}
	if !matchSubset(event.Result, expected) {
		return fmt.Sprintf("steps[%d] %s: result %v does not match %v", seq, step.Op, event.Result, expected)
	}
	return ""
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case cartctx.IsValidation(err):
		return OutcomeValidation
	case cartctx.IsNetwork(err):
		return OutcomeNetwork
	default:
		return OutcomeError
	}
}

func requestEvent(step int, req testutil.RecordedRequest) RequestEvent {
	ev := RequestEvent{
		Step:          step,
		Method:        req.Method,
		Path:          req.Path,
		Body:          req.Body,
		CorrelationID: req.Header.Get("X-Correlation-Id"),
		Authorization: req.Header.Get("Authorization"),
	}
	if len(req.Query) > 0 {
		ev.Query = make(map[string]any, len(req.Query))
		for k := range req.Query {
			ev.Query[k] = req.Query.Get(k)
		}
	}
	return ev
}

func stubResponses(in []StubResponse) []testutil.Response {
	out := make([]testutil.Response, len(in))
	for i, r := range in {
		if r.Status == 0 || r.Status < 300 {
			data := r.Data
			if data == nil {
				data = testutil.EmptyCartData()
			}
			out[i] = testutil.OK(data)
			if r.Status != 0 {
				out[i].Status = r.Status
			}
			continue
		}
		out[i] = testutil.Fail(r.Status, r.Code, r.Message)
	}
	return out
}

// dumpState reopens the closed database and reads every persisted key.
func dumpState(ctx context.Context, path string) (map[string]string, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen store: %w", err)
	}
	defer st.Close()
	state, err := st.Dump(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to dump store: %w", err)
	}
	return state, nil
}

// toGeneric round-trips v through JSON so results compare as plain maps,
// slices, strings, float64 and bool.
func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func newCorrelationSequence() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("corr-%04d", n)
	}
}

// advance moves the fake clock, e.g. to expire the notification debounce.
func (h *Harness) advance(ms int) {
	h.clock.Advance(time.Duration(ms) * time.Millisecond)
}
