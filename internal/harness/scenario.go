package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/factset/internal/wire"
)

// Scenario is a scripted sequence of commits against a fresh store.
// Entity references anywhere in a scenario may be uuids or wildcard
// tokens; a token keeps its uuid for the whole run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed is written to the store before the first step.
	Seed Seed `yaml:"seed,omitempty"`

	// Steps are committed in order, one owner record per step.
	Steps []Step `yaml:"steps"`

	// Assertions validate the audit log and the final store state.
	Assertions []Assertion `yaml:"assertions"`
}

// Seed describes the initial store content.
type Seed struct {
	Assets      []string         `yaml:"assets,omitempty"`
	Groups      []SeedGroup      `yaml:"groups,omitempty"`
	Facts       []SeedFact       `yaml:"facts,omitempty"`
	Memberships []SeedMembership `yaml:"memberships,omitempty"`
}

// SeedGroup is a stored asset group.
type SeedGroup struct {
	Ref  string `yaml:"ref"`
	Name string `yaml:"name"`
}

// SeedFact is a stored fact. Object is parsed like a wire object: a token
// or uuid makes a relation, anything else a literal.
type SeedFact struct {
	Subject   string `yaml:"subject"`
	Predicate string `yaml:"predicate"`
	Object    string `yaml:"object"`
}

// SeedMembership links assets to a stored group.
type SeedMembership struct {
	Group  string   `yaml:"group"`
	Assets []string `yaml:"assets"`
}

// Step decodes a wire document, merges any further documents into it and
// commits the result.
type Step struct {
	// Label is the owner record label of this step's commit.
	Label string `yaml:"label"`

	// Changes is the wire document, written as YAML.
	Changes map[string]any `yaml:"changes"`

	// Merge lists documents merged into Changes before the commit.
	Merge []map[string]any `yaml:"merge,omitempty"`

	// DefaultGroup is the owner's default group, for memberships whose
	// group is null.
	DefaultGroup string `yaml:"default_group,omitempty"`

	// Expect checks how the step ends. If nil, the step must commit.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies how a step ends.
type ExpectClause struct {
	// Error is the expected error code (REFERENCE, VALIDATION,
	// APPLY_ABORTED, STORE, WILDCARD_CONFLICT or SCHEMA). Empty means
	// the commit must succeed.
	Error string `yaml:"error,omitempty"`

	// Operations is the expected number of operations written.
	Operations *int `yaml:"operations,omitempty"`
}

// Assertion validates the audit log or the final store state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is an operation action type (log_contains, log_count).
	Action string `yaml:"action,omitempty"`

	// Subject, Predicate and Object filter operations (log_contains) or
	// name the fact to read (facts). Object may be a token.
	Subject   string `yaml:"subject,omitempty"`
	Predicate string `yaml:"predicate,omitempty"`
	Object    string `yaml:"object,omitempty"`

	// Actions is the expected subsequence of action types (log_order).
	Actions []string `yaml:"actions,omitempty"`

	// Values are the expected fact values in insertion order (facts).
	Values []string `yaml:"values,omitempty"`

	// Table is a store table name (count).
	Table string `yaml:"table,omitempty"`

	// Count is the expected number of rows or operations.
	Count int `yaml:"count,omitempty"`

	// Group and Asset name a membership edge (member).
	Group string `yaml:"group,omitempty"`
	Asset string `yaml:"asset,omitempty"`

	// Absent inverts a member assertion.
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion types.
const (
	AssertLogContains = "log_contains"
	AssertLogOrder    = "log_order"
	AssertLogCount    = "log_count"
	AssertFacts       = "facts"
	AssertCount       = "count"
	AssertMember      = "member"
)

// ErrCodeSchema is the expect code of a document rejected by the wire schema.
const ErrCodeSchema = "SCHEMA"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the scenario files under dir, sorted by path.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && wire.IsYAML(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find scenarios in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, &ScenarioNotFoundError{Dir: dir}
	}
	sort.Strings(paths)
	return paths, nil
}

// ScenarioNotFoundError is returned when a directory holds no scenario files.
type ScenarioNotFoundError struct {
	Dir string
}

func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("no scenario files (*.yaml, *.yml) under %s", e.Dir)
}

// IsScenarioNotFound reports whether err is a ScenarioNotFoundError.
func IsScenarioNotFound(err error) bool {
	var target *ScenarioNotFoundError
	return errors.As(err, &target)
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

	for i, g := range s.Seed.Groups {
		if g.Ref == "" {
			return fmt.Errorf("seed.groups[%d]: ref is required", i)
		}
	}
	for i, f := range s.Seed.Facts {
		if f.Subject == "" || f.Predicate == "" {
			return fmt.Errorf("seed.facts[%d]: subject and predicate are required", i)
		}
	}
	for i, m := range s.Seed.Memberships {
		if m.Group == "" || len(m.Assets) == 0 {
			return fmt.Errorf("seed.memberships[%d]: group and assets are required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Label == "" {
			return fmt.Errorf("steps[%d]: label is required", i)
		}
		if step.Changes == nil {
			return fmt.Errorf("steps[%d]: changes is required (use {} for an empty document)", i)
		}
		if step.Expect != nil && step.Expect.Operations != nil && *step.Expect.Operations < 0 {
			return fmt.Errorf("steps[%d].expect: operations must be non-negative", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
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
	case AssertLogContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for log_contains", index)
		}
	case AssertLogOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for log_order", index)
		}
	case AssertLogCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for log_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	case AssertFacts:
		if a.Subject == "" || a.Predicate == "" {
			return fmt.Errorf("assertions[%d]: subject and predicate are required for facts", index)
		}
	case AssertCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertMember:
		if a.Group == "" || a.Asset == "" {
			return fmt.Errorf("assertions[%d]: group and asset are required for member", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
