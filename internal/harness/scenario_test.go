package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one empty step"
steps:
  - label: noop
    changes: {}
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "noop", s.Steps[0].Label)
	assert.NotNil(t, s.Steps[0].Changes)
	assert.Nil(t, s.Steps[0].Expect)
}

func TestParseScenario_Full(t *testing.T) {
	data := `
name: full
description: "every field"
seed:
  assets: ["?a"]
  groups:
    - ref: "?g"
      name: shelf
  facts:
    - subject: "?a"
      predicate: color
      object: Red
  memberships:
    - group: "?g"
      assets: ["?a"]
steps:
  - label: one
    default_group: "?g"
    changes:
      add_facts:
        - ["?a", "size", "L"]
    merge:
      - set_errors: ["nope"]
    expect:
      error: APPLY_ABORTED
      operations: 0
assertions:
  - type: facts
    subject: "?a"
    predicate: color
    values: [Red]
`
	s, err := ParseScenario([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"?a"}, s.Seed.Assets)
	assert.Equal(t, []SeedGroup{{Ref: "?g", Name: "shelf"}}, s.Seed.Groups)
	assert.Equal(t, []SeedFact{{Subject: "?a", Predicate: "color", Object: "Red"}}, s.Seed.Facts)
	assert.Equal(t, []SeedMembership{{Group: "?g", Assets: []string{"?a"}}}, s.Seed.Memberships)

	step := s.Steps[0]
	assert.Equal(t, "?g", step.DefaultGroup)
	assert.Equal(t, []any{[]any{"?a", "size", "L"}}, step.Changes["add_facts"])
	require.Len(t, step.Merge, 1)
	require.NotNil(t, step.Expect)
	assert.Equal(t, "APPLY_ABORTED", step.Expect.Error)
	require.NotNil(t, step.Expect.Operations)
	assert.Equal(t, 0, *step.Expect.Operations)

	assert.Equal(t, []string{"Red"}, s.Assertions[0].Values)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    minimalScenario + "assertion: []\n",
			wantErr: "field assertion not found",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{label: a, changes: {}}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{label: a, changes: {}}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "step without label",
			yaml:    "name: n\ndescription: d\nsteps: [{changes: {}}]\n",
			wantErr: "steps[0]: label is required",
		},
		{
			name:    "step without changes",
			yaml:    "name: n\ndescription: d\nsteps: [{label: a}]\n",
			wantErr: "steps[0]: changes is required",
		},
		{
			name:    "negative operations",
			yaml:    "name: n\ndescription: d\nsteps: [{label: a, changes: {}, expect: {operations: -1}}]\n",
			wantErr: "operations must be non-negative",
		},
		{
			name:    "seed group without ref",
			yaml:    "name: n\ndescription: d\nseed: {groups: [{name: x}]}\nsteps: [{label: a, changes: {}}]\n",
			wantErr: "seed.groups[0]: ref is required",
		},
		{
			name:    "seed fact without predicate",
			yaml:    "name: n\ndescription: d\nseed: {facts: [{subject: '?a'}]}\nsteps: [{label: a, changes: {}}]\n",
			wantErr: "seed.facts[0]",
		},
		{
			name:    "seed membership without assets",
			yaml:    "name: n\ndescription: d\nseed: {memberships: [{group: '?g'}]}\nsteps: [{label: a, changes: {}}]\n",
			wantErr: "seed.memberships[0]",
		},
		{
			name:    "unknown assertion",
			yaml:    minimalScenario + "assertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "assertion without type",
			yaml:    minimalScenario + "assertions: [{table: facts}]\n",
			wantErr: "assertions[0]: type is required",
		},
		{
			name:    "log_contains without action",
			yaml:    minimalScenario + "assertions: [{type: log_contains}]\n",
			wantErr: "action is required for log_contains",
		},
		{
			name:    "log_order without actions",
			yaml:    minimalScenario + "assertions: [{type: log_order}]\n",
			wantErr: "actions list is required",
		},
		{
			name:    "log_count without action",
			yaml:    minimalScenario + "assertions: [{type: log_count, count: 1}]\n",
			wantErr: "action is required for log_count",
		},
		{
			name:    "facts without predicate",
			yaml:    minimalScenario + "assertions: [{type: facts, subject: '?a'}]\n",
			wantErr: "subject and predicate are required",
		},
		{
			name:    "count without table",
			yaml:    minimalScenario + "assertions: [{type: count, count: 1}]\n",
			wantErr: "table is required",
		},
		{
			name:    "member without asset",
			yaml:    minimalScenario + "assertions: [{type: member, group: '?g'}]\n",
			wantErr: "group and asset are required",
		},
		{
			name:    "malformed yaml",
			yaml:    "name: [unclosed\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "nested/c.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(minimalScenario), 0644))
	}

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, paths)
}

func TestFindScenarios_Empty(t *testing.T) {
	_, err := FindScenarios(t.TempDir())
	require.Error(t, err)
	assert.True(t, IsScenarioNotFound(err))
}
