package changeset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes changeset errors.
type ErrorCode string

const (
	// ErrCodeReference indicates a uuid or wildcard that resolves to nothing.
	ErrCodeReference ErrorCode = "REFERENCE"

	// ErrCodeValidation indicates a staging call got an empty or ill-typed
	// entry where a resolved reference was required.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeApplyAborted indicates a commit refused because the changeset
	// carries diagnostics.
	ErrCodeApplyAborted ErrorCode = "APPLY_ABORTED"

	// ErrCodeStore indicates a persistence failure reported by the store.
	ErrCodeStore ErrorCode = "STORE"

	// ErrCodeWildcardConflict indicates two changesets bind the same
	// wildcard to different uuids.
	ErrCodeWildcardConflict ErrorCode = "WILDCARD_CONFLICT"
)

// Error is the structured error returned by staging, merge and commit.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Ref is the offending reference, if any.
	Ref string

	// Errors holds the diagnostics that aborted a commit.
	Errors []string

	// Err is the underlying cause (store failures).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Ref != "" {
		fmt.Fprintf(&b, " (ref=%s)", e.Ref)
	}
	if len(e.Errors) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Errors, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsReferenceError reports whether err is an unresolved reference.
func IsReferenceError(err error) bool { return hasCode(err, ErrCodeReference) }

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsApplyAborted reports whether a commit was refused because of diagnostics.
func IsApplyAborted(err error) bool { return hasCode(err, ErrCodeApplyAborted) }

// IsStoreError reports whether err came from the store.
func IsStoreError(err error) bool { return hasCode(err, ErrCodeStore) }

// IsWildcardConflict reports whether a merge hit incompatible wildcard bindings.
func IsWildcardConflict(err error) bool { return hasCode(err, ErrCodeWildcardConflict) }

// NewReferenceError creates an Error for a reference that resolves to nothing.
func NewReferenceError(ref string) *Error {
	return &Error{
		Code:    ErrCodeReference,
		Message: "element should be declared before using it",
		Ref:     ref,
	}
}

// NewValidationError creates an Error for a malformed staging entry.
func NewValidationError(ref, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
		Ref:     ref,
	}
}

// NewApplyAbortedError creates an Error carrying the diagnostics that blocked a commit.
func NewApplyAbortedError(diagnostics []string) *Error {
	return &Error{
		Code:    ErrCodeApplyAborted,
		Message: "changeset has errors",
		Errors:  append([]string(nil), diagnostics...),
	}
}

// NewStoreError wraps a store failure. A nil err yields nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Code: ErrCodeStore, Message: op, Err: err}
}

// NewWildcardConflictError creates an Error for a binding disagreement.
func NewWildcardConflictError(token, have, got string) *Error {
	return &Error{
		Code:    ErrCodeWildcardConflict,
		Message: fmt.Sprintf("wildcard bound to %s, other changeset binds %s", have, got),
		Ref:     token,
	}
}
