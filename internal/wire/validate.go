package wire

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/factset/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// SchemaError lists every problem CUE found in a document.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("wire document does not match schema: %s", strings.Join(e.Problems, "; "))
}

// Validate checks a JSON wire payload against the embedded schema.
// It checks shape only; references are resolved when the document is
// decoded into a changeset.
func Validate(data []byte) error {
	expr, err := cuejson.Extract("document.json", data)
	if err != nil {
		return fmt.Errorf("parse json: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build document: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Document")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range cueerrors.Errors(err) {
			problems = append(problems, e.Error())
		}
		return &SchemaError{Problems: problems}
	}
	return nil
}

// ValidateValue checks an already parsed value (e.g. from YAML).
func ValidateValue(v ir.Value) error {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return err
	}
	return Validate(data)
}
