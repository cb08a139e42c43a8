package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/factset/internal/ir"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	DB    string // path to SQLite database
	Owner int64  // only this owner's operations; 0 means all
}

// LogResult is the JSON payload of the log command.
type LogResult struct {
	Owner      *ir.OwnerRecord `json:"owner,omitempty"`
	Operations []ir.Operation  `json:"operations"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the audit log of a database",
		Long: `Print persisted audit operations, ordered by owner then sequence.

With --owner only that owner's operations are printed, preceded by the
owner's label and recorded errors.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.Owner, "owner", 0, "only show operations of this owner id")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLog(ctx context.Context, opts *LogOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	s, err := openStore(opts.DB, true)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	result := LogResult{Operations: []ir.Operation{}}
	if opts.Owner != 0 {
		owner, err := s.Owner(ctx, opts.Owner)
		if err != nil {
			return formatter.Fail(&inputError{Code: ErrCodeNotFound, Exit: ExitCommandError, Err: err})
		}
		result.Owner = owner
	}

	ops, err := s.Operations(ctx, opts.Owner)
	if err != nil {
		return formatter.Fail(&inputError{Code: ErrCodeStore, Exit: ExitCommandError, Err: err})
	}
	result.Operations = append(result.Operations, ops...)

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if result.Owner != nil {
		fmt.Fprintf(w, "Owner %d: %s\n", result.Owner.ID, result.Owner.Label)
		for _, e := range result.Owner.Errors {
			fmt.Fprintf(w, "  error: %s\n", e)
		}
	}
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operations.")
		return nil
	}
	for _, op := range ops {
		fmt.Fprintln(w, formatOperation(op))
	}
	return nil
}
