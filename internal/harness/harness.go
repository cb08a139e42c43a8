package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/factset/internal/changeset"
	"github.com/roach88/factset/internal/ir"
	"github.com/roach88/factset/internal/memstore"
	"github.com/roach88/factset/internal/testutil"
	"github.com/roach88/factset/internal/wire"
)

// Store is what a scenario runs against. Both memstore.Store and
// store.Store satisfy it.
type Store interface {
	ir.Store
	Count(ctx context.Context, table string) (int, error)
}

// Harness is the scenario execution engine.
type Harness struct {
	store  Store
	gen    *testutil.SequentialUUIDGenerator
	logger *slog.Logger
	hooks  []changeset.Hook
}

// Option configures a run.
type Option func(*Harness)

// WithStore runs the scenario against s instead of a fresh memstore.
// s should be empty.
func WithStore(s Store) Option {
	return func(h *Harness) { h.store = s }
}

// WithLogger sets the logger for the harness and its applier.
// Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithHook adds an applier hook to every step's commit.
func WithHook(hook changeset.Hook) Option {
	return func(h *Harness) { h.hooks = append(h.hooks, hook) }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Seed the store
//  2. For each step: decode and validate its documents, merge, commit
//  3. Check each step's expect clause
//  4. Evaluate assertions against the log and the store
//
// Failed expectations and assertions are reported in the result. An error
// is returned only when the scenario cannot run at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		gen:    testutil.NewSequentialUUIDGenerator(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.store == nil {
		h.store = memstore.New()
	}

	result := NewResult()
	if err := h.seed(ctx, scenario.Seed, result.Bindings); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.runStep(ctx, i, step, result)
	}

	actx := &AssertionContext{Store: h.store, Bindings: result.Bindings}
	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"operations", len(result.Log),
	)
	return result, nil
}

// bindRef returns the uuid ref stands for, allocating one for an unbound
// wildcard.
func (h *Harness) bindRef(bindings map[string]string, ref string) string {
	if !ir.IsWildcard(ref) {
		return ref
	}
	if uuid, ok := bindings[ref]; ok {
		return uuid
	}
	uuid := h.gen.Generate()
	bindings[ref] = uuid
	return uuid
}

// seed writes the initial store content in one transaction.
func (h *Harness) seed(ctx context.Context, seed Seed, bindings map[string]string) error {
	assets := make([]*ir.Entity, len(seed.Assets))
	for i, ref := range seed.Assets {
		assets[i] = ir.NewEntity(ir.KindAsset, h.bindRef(bindings, ref))
	}
	groups := make([]*ir.Entity, len(seed.Groups))
	for i, g := range seed.Groups {
		groups[i] = ir.NewEntity(ir.KindGroup, h.bindRef(bindings, g.Ref))
		groups[i].Name = g.Name
		if groups[i].Name == "" && ir.IsWildcard(g.Ref) {
			groups[i].Name = ir.GroupNameFor(g.Ref)
		}
	}

	return h.store.RunInTransaction(ctx, func(tx ir.Tx) error {
		if len(assets) > 0 {
			if err := tx.ImportEntities(ctx, ir.KindAsset, assets); err != nil {
				return err
			}
		}
		if len(groups) > 0 {
			if err := tx.ImportEntities(ctx, ir.KindGroup, groups); err != nil {
				return err
			}
		}

		for i, sf := range seed.Facts {
			subject, err := findEntity(ctx, tx, ir.KindAsset, bindings, sf.Subject)
			if err != nil {
				return fmt.Errorf("facts[%d]: %w", i, err)
			}
			f := &ir.Fact{Subject: subject, Predicate: sf.Predicate}
			switch ref := ir.ParseRef(sf.Object); ref.Kind() {
			case ir.RefWildcard, ir.RefUUID:
				object, err := findEntity(ctx, tx, ir.KindAsset, bindings, sf.Object)
				if err != nil {
					return fmt.Errorf("facts[%d]: %w", i, err)
				}
				f.Object = ir.EntityObject(object)
			default:
				f.Object = ir.LiteralObject(ref.Text())
			}
			if err := tx.ImportFacts(ctx, []*ir.Fact{f}); err != nil {
				return fmt.Errorf("facts[%d]: %w", i, err)
			}
		}

		for i, sm := range seed.Memberships {
			group, err := findEntity(ctx, tx, ir.KindGroup, bindings, sm.Group)
			if err != nil {
				return fmt.Errorf("memberships[%d]: %w", i, err)
			}
			for _, ref := range sm.Assets {
				asset, err := findEntity(ctx, tx, ir.KindAsset, bindings, ref)
				if err != nil {
					return fmt.Errorf("memberships[%d]: %w", i, err)
				}
				if err := tx.ImportMemberships(ctx, []*ir.Membership{{Group: group, Asset: asset}}); err != nil {
					return fmt.Errorf("memberships[%d]: %w", i, err)
				}
			}
		}
		return nil
	})
}

// resolveRef maps a token to its bound uuid. Other refs are returned as is.
func resolveRef(bindings map[string]string, ref string) (string, error) {
	if !ir.IsWildcard(ref) {
		return ref, nil
	}
	uuid, ok := bindings[ref]
	if !ok {
		return "", fmt.Errorf("wildcard %s is not bound", ref)
	}
	return uuid, nil
}

// findEntity returns the stored entity ref names.
func findEntity(ctx context.Context, r ir.Reader, kind ir.Kind, bindings map[string]string, ref string) (*ir.Entity, error) {
	uuid, err := resolveRef(bindings, ref)
	if err != nil {
		return nil, err
	}
	e, err := r.FindByUUID(ctx, kind, uuid)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%s %s not found", kind, ref)
	}
	return e, nil
}

// runStep commits one step and checks its expect clause.
func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) {
	ops, owner, err := h.commitStep(ctx, step, result.Bindings)

	outcome := StepOutcome{Label: step.Label, Operations: len(ops)}
	if owner != nil {
		outcome.OwnerID = owner.ID
	}
	if err != nil {
		outcome.ErrorCode = errorCode(err)
	}
	result.Steps = append(result.Steps, outcome)
	result.AddOperations(step.Label, ops)

	var want string
	if step.Expect != nil {
		want = step.Expect.Error
	}
	switch {
	case want == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %q: unexpected error: %v", index, step.Label, err))
	case want != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d] %q: expected error %s, commit succeeded", index, step.Label, want))
	case want != "" && outcome.ErrorCode != want:
		result.AddError(fmt.Sprintf("steps[%d] %q: expected error %s, got %v", index, step.Label, want, err))
	}
	if step.Expect != nil && step.Expect.Operations != nil && *step.Expect.Operations != len(ops) {
		result.AddError(fmt.Sprintf("steps[%d] %q: expected %d operations, got %d",
			index, step.Label, *step.Expect.Operations, len(ops)))
	}

	if err != nil {
		h.logger.Info("step failed", "step", step.Label, "code", outcome.ErrorCode, "error", err)
		return
	}
	h.logger.Info("step committed", "step", step.Label, "owner_id", outcome.OwnerID, "operations", len(ops))
}

func (h *Harness) commitStep(ctx context.Context, step Step, bindings map[string]string) ([]ir.Operation, *ir.OwnerRecord, error) {
	cs, err := h.decode(ctx, step.Changes, bindings)
	if err != nil {
		return nil, nil, err
	}
	for i, doc := range step.Merge {
		other, err := h.decode(ctx, doc, bindings)
		if err != nil {
			return nil, nil, fmt.Errorf("merge[%d]: %w", i, err)
		}
		if err := cs.Merge(other); err != nil {
			return nil, nil, fmt.Errorf("merge[%d]: %w", i, err)
		}
	}

	for _, token := range cs.Resolver().Tokens() {
		if uuid, ok := cs.Resolver().UUIDFor(token); ok {
			bindings[token] = uuid
		}
	}

	owner := &ir.OwnerRecord{Label: step.Label}
	if step.DefaultGroup != "" {
		group, err := findEntity(ctx, h.store, ir.KindGroup, bindings, step.DefaultGroup)
		if err != nil {
			return nil, nil, fmt.Errorf("default group: %w", err)
		}
		owner.DefaultGroup = group
	}

	opts := []changeset.ApplierOption{changeset.WithLogger(h.logger)}
	for _, hook := range h.hooks {
		opts = append(opts, changeset.WithHook(hook))
	}
	ops, err := changeset.NewApplier(h.store, opts...).Commit(ctx, cs, owner)
	return ops, owner, err
}

// decode validates a step document against the wire schema and stages it
// into a changeset that already knows every wildcard bound so far.
func (h *Harness) decode(ctx context.Context, changes map[string]any, bindings map[string]string) (*changeset.ChangeSet, error) {
	v, err := ir.FromAny(changes)
	if err != nil {
		return nil, &wire.SchemaError{Problems: []string{err.Error()}}
	}
	if err := wire.ValidateValue(v); err != nil {
		return nil, err
	}
	doc, err := wire.FromValue(v)
	if err != nil {
		return nil, &wire.SchemaError{Problems: []string{err.Error()}}
	}

	cs := changeset.New(h.store, changeset.WithUUIDGenerator(h.gen))
	tokens := make([]string, 0, len(bindings))
	for token := range bindings {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		if err := cs.Resolver().Bind(token, bindings[token]); err != nil {
			return nil, err
		}
	}

	if err := changeset.Decode(ctx, cs, doc); err != nil {
		return nil, err
	}
	return cs, nil
}

// errorCode classifies a step error for expect clauses.
func errorCode(err error) string {
	var csErr *changeset.Error
	if errors.As(err, &csErr) {
		return string(csErr.Code)
	}
	var schemaErr *wire.SchemaError
	if errors.As(err, &schemaErr) {
		return ErrCodeSchema
	}
	return "UNKNOWN"
}
