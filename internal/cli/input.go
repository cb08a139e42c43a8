package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/roach88/factset/internal/ir"
	"github.com/roach88/factset/internal/store"
	"github.com/roach88/factset/internal/wire"
)

// readDocument reads a JSON or YAML wire file and checks it against the
// wire schema before decoding its sections.
func readDocument(path string) (*wire.Document, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, &inputError{Code: ErrCodeNotFound, Exit: ExitCommandError, Err: fmt.Errorf("file not found: %s", path)}
	}
	v, err := wire.ReadValue(path)
	if err != nil {
		return nil, &inputError{Code: ErrCodeReadFailed, Exit: ExitCommandError, Err: err}
	}
	if err := wire.ValidateValue(v); err != nil {
		return nil, err
	}
	doc, err := wire.FromValue(v)
	if err != nil {
		return nil, &wire.SchemaError{Problems: []string{err.Error()}}
	}
	return doc, nil
}

// openStore opens the SQLite database at path. With mustExist, a missing
// file is an error instead of a new empty database.
func openStore(path string, mustExist bool) (*store.Store, error) {
	if mustExist {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, &inputError{Code: ErrCodeNotFound, Exit: ExitCommandError, Err: fmt.Errorf("database not found: %s", path)}
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, &inputError{Code: ErrCodeStore, Exit: ExitCommandError, Err: err}
	}
	return s, nil
}

// formatOperation renders an audit operation on one line for text output.
func formatOperation(op ir.Operation) string {
	parts := []string{fmt.Sprintf("%d.%d", op.OwnerID, op.Seq), string(op.ActionType)}
	if op.SubjectUUID != "" {
		parts = append(parts, op.SubjectUUID)
	}
	if op.Predicate != "" {
		parts = append(parts, op.Predicate)
	}
	if op.ObjectUUID != "" {
		parts = append(parts, op.ObjectUUID)
	} else if op.Object != "" {
		parts = append(parts, fmt.Sprintf("%q", op.Object))
	}
	return strings.Join(parts, " ")
}
