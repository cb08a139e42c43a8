package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/factset/internal/changeset"
	"github.com/roach88/factset/internal/wire"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	DB string // resolve references against this database
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Resolved bool     `json:"resolved"` // references were checked against a database
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <changes-file>",
		Short: "Check a changeset document without committing it",
		Long: `Check a JSON or YAML changeset document against the wire schema.

With --db the document is also decoded against the database, so uuid
references to missing entities and ill-typed entries are reported.
Nothing is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database")

	return cmd
}

func runValidate(ctx context.Context, opts *ValidateOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	doc, err := readDocument(path)
	var schemaErr *wire.SchemaError
	if errors.As(err, &schemaErr) {
		return outputValidationErrors(formatter, ErrCodeSchema, schemaErr.Problems)
	}
	if err != nil {
		return formatter.Fail(err)
	}
	formatter.VerboseLog("Schema check passed: %s", path)

	if opts.DB == "" {
		return outputValidateSuccess(formatter, false)
	}

	s, err := openStore(opts.DB, true)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	if _, err := changeset.FromDocument(ctx, s, doc); err != nil {
		var csErr *changeset.Error
		if errors.As(err, &csErr) && csErr.Code != changeset.ErrCodeStore {
			return outputValidationErrors(formatter, string(csErr.Code), []string{err.Error()})
		}
		return formatter.Fail(err)
	}
	formatter.VerboseLog("References resolved against %s", opts.DB)
	return outputValidateSuccess(formatter, true)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, resolved bool) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Resolved: resolved})
	}

	fmt.Fprintln(formatter.Writer, "✓ Document valid")
	return nil
}

// outputValidationErrors outputs every problem found in the document.
func outputValidationErrors(formatter *OutputFormatter, code string, problems []string) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: problems},
			Error: &CLIError{
				Code:    code,
				Message: problems[0],
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, p := range problems {
		fmt.Fprintf(formatter.Writer, "  %s\n", p)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(problems)))
}
