package store

import (
	"fmt"

	"github.com/roach88/factset/internal/ir"
)

// marshalErrors converts owner diagnostics to a canonical JSON array for storage.
func marshalErrors(errs []string) (string, error) {
	arr := make(ir.Array, len(errs))
	for i, e := range errs {
		arr[i] = ir.String(e)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal errors: %w", err)
	}
	return string(data), nil
}

// unmarshalErrors parses the stored JSON array back into diagnostics.
func unmarshalErrors(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	v, err := ir.ParseValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	arr, ok := v.(ir.Array)
	if !ok {
		return nil, fmt.Errorf("unmarshal errors: expected array, got %T", v)
	}
	out := make([]string, len(arr))
	for i, item := range arr {
		s, ok := item.(ir.String)
		if !ok {
			return nil, fmt.Errorf("unmarshal errors: [%d]: expected string, got %T", i, item)
		}
		out[i] = string(s)
	}
	return out, nil
}

// boolToInt maps a flag to its INTEGER column value.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// inClause returns "(?, ?, ...)" and the matching arguments.
func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	buf := make([]byte, 0, 2+3*len(ids))
	buf = append(buf, '(')
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, '?')
		args[i] = id
	}
	buf = append(buf, ')')
	return string(buf), args
}
