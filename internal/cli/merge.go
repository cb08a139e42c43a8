package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/factset/internal/changeset"
	"github.com/roach88/factset/internal/ir"
	"github.com/roach88/factset/internal/memstore"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	DB string // resolve uuid references against this database
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge <changes-file> <changes-file>...",
		Short: "Merge changeset documents into one",
		Long: `Decode each document into its own changeset and merge them in
argument order. Opposite staged facts cancel. The result is printed
in canonical wire form.

A wildcard used in several documents names the same entity, but each
document must stage the entities it refers to. Without --db, uuid
references can only name entities created in the same document.

Examples:
  factset merge a.json b.yaml
  factset merge a.json b.json --db ./facts.db > merged.json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database")

	return cmd
}

func runMerge(ctx context.Context, opts *MergeOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	var reader ir.Reader = memstore.New()
	if opts.DB != "" {
		s, err := openStore(opts.DB, true)
		if err != nil {
			return formatter.Fail(err)
		}
		defer s.Close()
		reader = s
	}

	var merged *changeset.ChangeSet
	for _, path := range paths {
		next, err := decodeFile(ctx, reader, path, merged)
		if err != nil {
			return formatter.Fail(err)
		}
		if merged == nil {
			merged = next
			continue
		}
		if err := merged.Merge(next); err != nil {
			return formatter.Fail(fmt.Errorf("merge %s: %w", path, err))
		}
		formatter.VerboseLog("Merged %s", path)
	}

	data, err := changeset.MarshalCanonical(merged)
	if err != nil {
		return formatter.Fail(err)
	}
	if opts.Format == "json" {
		return formatter.Success(json.RawMessage(data))
	}
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}

// decodeFile reads path into a new changeset. Wildcards already bound in
// prior keep their uuids.
func decodeFile(ctx context.Context, reader ir.Reader, path string, prior *changeset.ChangeSet) (*changeset.ChangeSet, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	cs := changeset.New(reader)
	if prior != nil {
		for _, token := range prior.Resolver().Tokens() {
			uuid, _ := prior.Resolver().UUIDFor(token)
			if err := cs.Resolver().Bind(token, uuid); err != nil {
				return nil, err
			}
		}
	}

	if err := changeset.Decode(ctx, cs, doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cs, nil
}
