package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/factset/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the audit log to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Log      []LogEntry // Full audit log for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Log) > 0 {
		fmt.Fprintf(&buf, "\nAudit log:\n")
		for i, entry := range e.Log {
			fmt.Fprintf(&buf, "  [%d] %s: %s\n", i+1, entry.Step, describeOperation(entry.Operation))
		}
	}
	return buf.String()
}

// describeOperation renders an operation on one line.
func describeOperation(op ir.Operation) string {
	parts := []string{string(op.ActionType)}
	if op.SubjectUUID != "" {
		parts = append(parts, op.SubjectUUID)
	}
	if op.Predicate != "" {
		parts = append(parts, op.Predicate)
	}
	if op.Object != "" {
		parts = append(parts, fmt.Sprintf("%q", op.Object))
	}
	if op.ObjectUUID != "" {
		parts = append(parts, op.ObjectUUID)
	}
	return strings.Join(parts, " ")
}

// AssertionContext provides what assertions read besides the result.
type AssertionContext struct {
	Store    Store
	Bindings map[string]string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertLogContains:
			err = assertLogContains(result.Log, assertion, actx)
		case AssertLogOrder:
			err = assertLogOrder(result.Log, assertion)
		case AssertLogCount:
			err = assertLogCount(result.Log, assertion)
		case AssertFacts, AssertCount, AssertMember:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a store", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertFacts:
				err = assertFacts(ctx, assertion, actx)
			case AssertCount:
				err = assertCount(ctx, assertion, actx)
			default:
				err = assertMember(ctx, assertion, actx)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func bindingsOf(actx *AssertionContext) map[string]string {
	if actx == nil {
		return nil
	}
	return actx.Bindings
}

// assertLogContains checks that some operation has the action and matches
// every given subject, predicate and object. Object matches a literal or a
// relation target.
func assertLogContains(log []LogEntry, a Assertion, actx *AssertionContext) error {
	bindings := bindingsOf(actx)
	subject, err := optionalRef(bindings, a.Subject)
	if err != nil {
		return err
	}
	object, err := optionalRef(bindings, a.Object)
	if err != nil {
		return err
	}

	for _, entry := range log {
		op := entry.Operation
		if string(op.ActionType) != a.Action {
			continue
		}
		if subject != "" && op.SubjectUUID != subject {
			continue
		}
		if a.Predicate != "" && op.Predicate != a.Predicate {
			continue
		}
		if object != "" && op.Object != object && op.ObjectUUID != object {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertLogContains,
		Expected: describeOperation(ir.Operation{ActionType: ir.ActionType(a.Action), SubjectUUID: subject, Predicate: a.Predicate, ObjectUUID: object}),
		Actual:   "no matching operation",
		Log:      log,
	}
}

// optionalRef resolves a token; empty stays empty.
func optionalRef(bindings map[string]string, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	return resolveRef(bindings, ref)
}

// assertLogOrder checks that the actions appear in the given order.
// Other operations may appear in between.
func assertLogOrder(log []LogEntry, a Assertion) error {
	next := 0
	for _, entry := range log {
		if next < len(a.Actions) && string(entry.Operation.ActionType) == a.Actions[next] {
			next++
		}
	}
	if next == len(a.Actions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertLogOrder,
		Expected: strings.Join(a.Actions, " -> "),
		Actual:   fmt.Sprintf("stopped before %s (matched %d of %d)", a.Actions[next], next, len(a.Actions)),
		Log:      log,
	}
}

// assertLogCount checks that the action appears exactly Count times.
func assertLogCount(log []LogEntry, a Assertion) error {
	n := 0
	for _, entry := range log {
		if string(entry.Operation.ActionType) == a.Action {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertLogCount,
		Expected: fmt.Sprintf("%s x%d", a.Action, a.Count),
		Actual:   fmt.Sprintf("%s x%d", a.Action, n),
		Log:      log,
	}
}

// assertFacts checks the stored values of (subject, predicate), in
// insertion order. Relation values are compared by uuid; expected values
// may be tokens.
func assertFacts(ctx context.Context, a Assertion, actx *AssertionContext) error {
	subject, err := findEntity(ctx, actx.Store, ir.KindAsset, actx.Bindings, a.Subject)
	if err != nil {
		return fmt.Errorf("facts: %w", err)
	}
	facts, err := actx.Store.FactsOf(ctx, subject.ID, a.Predicate)
	if err != nil {
		return fmt.Errorf("facts: %w", err)
	}

	got := make([]string, len(facts))
	for i, f := range facts {
		got[i] = f.Object.Value()
	}
	want := make([]string, len(a.Values))
	for i, v := range a.Values {
		if ir.IsWildcard(v) {
			if want[i], err = resolveRef(actx.Bindings, v); err != nil {
				return fmt.Errorf("facts: %w", err)
			}
			continue
		}
		want[i] = ir.Unquote(v)
	}

	if equalStrings(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFacts,
		Expected: fmt.Sprintf("%s %s = %q", a.Subject, a.Predicate, want),
		Actual:   fmt.Sprintf("%q", got),
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// assertCount checks the number of rows in a store table.
func assertCount(ctx context.Context, a Assertion, actx *AssertionContext) error {
	n, err := actx.Store.Count(ctx, a.Table)
	if err != nil {
		return err
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCount,
		Expected: fmt.Sprintf("%s has %d rows", a.Table, a.Count),
		Actual:   fmt.Sprintf("%d rows", n),
	}
}

// assertMember checks that the asset is (or, with Absent, is not) a
// member of the group.
func assertMember(ctx context.Context, a Assertion, actx *AssertionContext) error {
	var found bool
	err := actx.Store.RunInTransaction(ctx, func(tx ir.Tx) error {
		group, err := findEntity(ctx, tx, ir.KindGroup, actx.Bindings, a.Group)
		if err != nil {
			return err
		}
		asset, err := findEntity(ctx, tx, ir.KindAsset, actx.Bindings, a.Asset)
		if err != nil {
			return err
		}
		edge, err := tx.FindMembership(ctx, group.ID, asset.ID)
		found = edge != nil
		return err
	})
	if err != nil {
		return fmt.Errorf("member: %w", err)
	}
	if found != a.Absent {
		return nil
	}

	want := "member"
	if a.Absent {
		want = "not a member"
	}
	return &AssertionError{
		Type:     AssertMember,
		Expected: fmt.Sprintf("%s %s of %s", a.Asset, want, a.Group),
		Actual:   fmt.Sprintf("found=%t", found),
	}
}
