package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/factset/internal/ir"
)

// Snapshot renders a result as canonical JSON: wildcard bindings, step
// outcomes and the audit log. Operation store IDs are left out, so the
// same scenario yields the same bytes on every store.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	bindings := make(ir.Map, len(result.Bindings))
	for token, uuid := range result.Bindings {
		bindings[token] = ir.String(uuid)
	}

	steps := make(ir.Array, len(result.Steps))
	for i, s := range result.Steps {
		step := ir.Map{
			"label":      ir.String(s.Label),
			"operations": ir.Int(s.Operations),
		}
		if s.OwnerID != 0 {
			step["owner_id"] = ir.Int(s.OwnerID)
		}
		if s.ErrorCode != "" {
			step["error_code"] = ir.String(s.ErrorCode)
		}
		steps[i] = step
	}

	log := make(ir.Array, len(result.Log))
	for i, entry := range result.Log {
		op := entry.Operation.Canonical()
		op["step"] = ir.String(entry.Step)
		log[i] = op
	}

	return ir.MarshalCanonical(ir.Map{
		"scenario_name": ir.String(scenarioName),
		"bindings":      bindings,
		"steps":         steps,
		"log":           log,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
