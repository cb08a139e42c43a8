package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/factset/internal/harness"
	"github.com/roach88/factset/internal/store"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	SQLite   bool // run against a fresh SQLite database instead of memory
	Snapshot bool // include the canonical snapshot of each run
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name     string          `json:"name"`
	Pass     bool            `json:"pass"`
	Errors   []string        `json:"errors,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// ScenarioReport holds the overall result.
type ScenarioReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenario-file|dir>",
		Short: "Run harness scenarios",
		Long: `Run scenario files against a fresh store.

Each scenario seeds the store, commits its steps in order and checks
the expected outcomes and assertions. A directory runs every YAML
scenario below it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  factset scenario ./testdata/scenarios
  factset scenario plate_lifecycle.yaml --snapshot
  factset scenario ./testdata/scenarios --sqlite --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.SQLite, "sqlite", false, "run each scenario against a fresh SQLite database")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "print the canonical snapshot of each run")

	return cmd
}

func runScenarios(ctx context.Context, opts *ScenarioOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return formatter.Fail(&inputError{Code: ErrCodeNotFound, Exit: ExitCommandError, Err: fmt.Errorf("scenario path not found: %s", path)})
	}
	if err != nil {
		return formatter.Fail(err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = harness.FindScenarios(path)
		if harness.IsScenarioNotFound(err) {
			files = nil
		} else if err != nil {
			return formatter.Fail(err)
		}
	}

	report := ScenarioReport{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		res := runScenarioFile(ctx, opts, file, cmd)
		report.Scenarios = append(report.Scenarios, res)
		if res.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	if opts.Format == "json" {
		if err := outputScenarioJSON(formatter, report); err != nil {
			return err
		}
	} else {
		outputScenarioText(formatter, report)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", report.Failed, report.Total))
	}
	return nil
}

// runScenarioFile loads and runs one scenario. Load and execution errors
// are reported as a failed scenario.
func runScenarioFile(ctx context.Context, opts *ScenarioOptions, file string, cmd *cobra.Command) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	runOpts := []harness.Option{harness.WithLogger(opts.Logger(cmd.ErrOrStderr()))}
	if opts.SQLite {
		dir, err := os.MkdirTemp("", "factset-scenario-")
		if err != nil {
			return ScenarioResult{Name: scenario.Name, Errors: []string{err.Error()}}
		}
		defer os.RemoveAll(dir)

		s, err := store.Open(filepath.Join(dir, "scenario.db"))
		if err != nil {
			return ScenarioResult{Name: scenario.Name, Errors: []string{err.Error()}}
		}
		defer s.Close()
		runOpts = append(runOpts, harness.WithStore(s))
	}

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	res := ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}
	if opts.Snapshot {
		data, err := harness.Snapshot(scenario.Name, result)
		if err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, fmt.Sprintf("snapshot failed: %v", err))
		} else {
			res.Snapshot = data
		}
	}
	return res
}

// outputScenarioJSON outputs the report as JSON.
func outputScenarioJSON(formatter *OutputFormatter, report ScenarioReport) error {
	status := "ok"
	if report.Failed > 0 {
		status = "error"
	}
	encoder := json.NewEncoder(formatter.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: status, Data: report})
}

// outputScenarioText outputs the report as text.
func outputScenarioText(formatter *OutputFormatter, report ScenarioReport) {
	w := formatter.Writer
	if report.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}

	for _, res := range report.Scenarios {
		if res.Pass {
			fmt.Fprintf(w, "✓ %s\n", res.Name)
		} else {
			fmt.Fprintf(w, "✗ %s\n", res.Name)
			for _, e := range res.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		if len(res.Snapshot) > 0 {
			fmt.Fprintf(w, "  %s\n", res.Snapshot)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", report.Passed, report.Failed, report.Total)
}
