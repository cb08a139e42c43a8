// Package harness runs scenario files: scripted sequences of wire documents
// committed against a fresh store, followed by assertions on the audit log
// and the final store state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	seed:
//	  assets: ["?a"]
//	  groups:
//	    - ref: "?shelf"
//	  facts:
//	    - subject: "?a"
//	      predicate: color
//	      object: Red
//	  memberships:
//	    - group: "?shelf"
//	      assets: ["?a"]
//	steps:
//	  - label: recolor
//	    default_group: "?shelf"
//	    changes:
//	      remove_facts: [["?a", "color", "Red"]]
//	    merge:
//	      - add_facts: [["?a", "color", "Blue"]]
//	    expect:
//	      operations: 2
//	assertions:
//	  - type: facts
//	    subject: "?a"
//	    predicate: color
//	    values: [Blue]
//
// Step changes use the wire document sections. A step with an expect.error
// clause passes when the commit fails with that code (REFERENCE,
// VALIDATION, APPLY_ABORTED, STORE, WILDCARD_CONFLICT, or SCHEMA for
// documents the wire schema rejects).
//
// # Assertion Types
//
//   - log_contains: an operation with the action and the given fields was logged
//   - log_order: actions appear in the log in the given order
//   - log_count: an action appears exactly N times
//   - facts: the stored values of (subject, predicate), in insertion order
//   - count: the number of rows in a store table
//   - member: an asset is (or with absent: true, is not) in a group
//
// # Deterministic Testing
//
// Each scenario runs with a sequential uuid generator, so the same scenario
// always binds the same wildcards to the same uuids and writes the same
// audit log, whichever store backs it. Snapshot renders that log as
// canonical JSON for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/plate_lifecycle.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
