package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one step"
steps:
  - op: identity
assertions:
  - type: request_count
    route: GET /api/cart
    count: 0
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario(strings.NewReader(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "identity", s.Steps[0].Op)
	assert.Nil(t, s.Steps[0].Expect)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertRequestCount, s.Assertions[0].Type)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario(strings.NewReader(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{op: identity}]\nassertions: [{type: request_count, route: GET /x}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{op: identity}]\nassertions: [{type: request_count, route: GET /x}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nassertions: [{type: request_count, route: GET /x}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: n\ndescription: d\nsteps: [{op: identity}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\nsteps: [{op: checkout}]\nassertions: [{type: request_count, route: GET /x}]\n",
			wantErr: `unknown op "checkout"`,
		},
		{
			name:    "unknown outcome",
			yaml:    "name: n\ndescription: d\nsteps: [{op: identity, expect: {outcome: boom}}]\nassertions: [{type: request_count, route: GET /x}]\n",
			wantErr: `unknown outcome "boom"`,
		},
		{
			name:    "bad stub route",
			yaml:    "name: n\ndescription: d\nbackend: [{route: /api/cart, responses: [{status: 200}]}]\nsteps: [{op: identity}]\nassertions: [{type: request_count, route: GET /x}]\n",
			wantErr: "backend[0]: route",
		},
		{
			name:    "stub without responses",
			yaml:    "name: n\ndescription: d\nbackend: [{route: GET /api/cart}]\nsteps: [{op: identity}]\nassertions: [{type: request_count, route: GET /x}]\n",
			wantErr: "backend[0]: responses is required",
		},
		{
			name:    "unknown assertion type",
			yaml:    "name: n\ndescription: d\nsteps: [{op: identity}]\nassertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "request_contains without route",
			yaml:    "name: n\ndescription: d\nsteps: [{op: identity}]\nassertions: [{type: request_contains}]\n",
			wantErr: "route is required for request_contains",
		},
		{
			name:    "request_order without routes",
			yaml:    "name: n\ndescription: d\nsteps: [{op: identity}]\nassertions: [{type: request_order}]\n",
			wantErr: "routes list is required",
		},
		{
			name:    "negative count",
			yaml:    "name: n\ndescription: d\nsteps: [{op: identity}]\nassertions: [{type: request_count, route: GET /x, count: -1}]\n",
			wantErr: "count must be non-negative",
		},
		{
			name:    "final_state without state",
			yaml:    "name: n\ndescription: d\nsteps: [{op: identity}]\nassertions: [{type: final_state}]\n",
			wantErr: "state is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_AllTestdataScenariosParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	names := map[string]string{}
	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		base := strings.TrimSuffix(filepath.Base(path), ".yaml")
		assert.Equal(t, base, s.Name, "scenario name should match file name")
		if prev, dup := names[s.Name]; dup {
			t.Fatalf("scenario %q defined in %s and %s", s.Name, prev, path)
		}
		names[s.Name] = path
	}
}

func TestParseScenario_NullStateMeansAbsent(t *testing.T) {
	s, err := ParseScenario(strings.NewReader(`
name: n
description: d
steps: [{op: identity}]
assertions:
  - type: final_state
    state: { is_notification_cart: ~, sessionId: abc }
`))
	require.NoError(t, err)
	state := s.Assertions[0].State
	v, present := state["is_notification_cart"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, "abc", state["sessionId"])
}

func TestLoadScenario_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
}
