package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/factset/internal/changeset"
	"github.com/roach88/factset/internal/ir"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	DB           string // path to SQLite database
	Label        string // owner record label
	DefaultGroup string // uuid of the group for memberships with a null group
	MetricsFile  string // write commit metrics in Prometheus text format
}

// ApplyResult is the JSON payload of a successful apply.
type ApplyResult struct {
	OwnerID    int64          `json:"owner_id"`
	Operations []ir.Operation `json:"operations"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <changes-file>",
		Short: "Commit a changeset document to a database",
		Long: `Decode a JSON or YAML changeset document and commit it.

The document is checked against the wire schema, its references are
resolved against the database, and the effective mutations are written
together with their audit operations in one transaction. The database
is created when missing.

Examples:
  factset apply changes.json --db ./facts.db
  factset apply changes.yaml --db ./facts.db --label import --default-group <uuid>`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "owner label (defaults to the file name)")
	cmd.Flags().StringVar(&opts.DefaultGroup, "default-group", "", "uuid of the default group")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write commit metrics to this file")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runApply(ctx context.Context, opts *ApplyOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.Logger(cmd.ErrOrStderr())

	doc, err := readDocument(path)
	if err != nil {
		return formatter.Fail(err)
	}

	s, err := openStore(opts.DB, false)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	cs, err := changeset.FromDocument(ctx, s, doc)
	if err != nil {
		return formatter.Fail(err)
	}
	formatter.VerboseLog("Decoded %s: %d fact(s) to add, %d to remove",
		path, len(cs.FactsToAdd()), len(cs.FactsToDestroy()))

	owner := &ir.OwnerRecord{Label: opts.Label}
	if owner.Label == "" {
		owner.Label = filepath.Base(path)
	}
	if opts.DefaultGroup != "" {
		if !ir.IsUUID(opts.DefaultGroup) {
			return formatter.Fail(&inputError{
				Code: ErrCodeGeneric,
				Exit: ExitCommandError,
				Err:  fmt.Errorf("--default-group must be a uuid, got %q", opts.DefaultGroup),
			})
		}
		group, err := s.FindByUUID(ctx, ir.KindGroup, opts.DefaultGroup)
		if err != nil {
			return formatter.Fail(&inputError{Code: ErrCodeStore, Exit: ExitCommandError, Err: err})
		}
		if group == nil {
			return formatter.Fail(changeset.NewReferenceError(opts.DefaultGroup))
		}
		owner.DefaultGroup = group
	}

	registry := prometheus.NewRegistry()
	applier := changeset.NewApplier(s,
		changeset.WithLogger(logger),
		changeset.WithMetrics(changeset.NewMetrics(registry)),
	)
	ops, err := applier.Commit(ctx, cs, owner)
	if opts.MetricsFile != "" {
		if werr := prometheus.WriteToTextfile(opts.MetricsFile, registry); werr != nil {
			logger.Warn("failed to write metrics", "path", opts.MetricsFile, "error", werr)
		}
	}
	if err != nil {
		return formatter.Fail(err)
	}

	if opts.Format == "json" {
		if ops == nil {
			ops = []ir.Operation{}
		}
		return formatter.Success(ApplyResult{OwnerID: owner.ID, Operations: ops})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Committed %d operation(s) (owner %d)\n", len(ops), owner.ID)
	for _, op := range ops {
		fmt.Fprintf(w, "  %s\n", formatOperation(op))
	}
	return nil
}
