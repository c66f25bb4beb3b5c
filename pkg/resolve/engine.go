// Package resolve is the public surface of the lazy symbol-resolution and
// dependency-tracking engine. A compiler front end submits parsed
// declarations, asks for them to be resolved, and reads back fine-grained,
// declaration-level dependency edges. Parsing is an injected collaborator;
// the engine never touches source text.
package resolve

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"declimp/internal/core/errors"
	"declimp/internal/engine/depgraph"
	"declimp/internal/engine/gate"
	"declimp/internal/engine/registry"
	"declimp/internal/engine/resolver"
	"declimp/internal/engine/symtab"
	"declimp/internal/lang"
	"declimp/internal/shared/observability"
)

// Handle identifies a submitted declaration for the lifetime of the engine.
type Handle string

// Dependency is one entry of a declaration's ordered dependency sequence.
type Dependency struct {
	Module lang.ModulePath
	Reason depgraph.Reason
}

// ResolvedDeclaration is the result of resolving a declaration handle. Two
// resolutions of the same handle return identical content.
type ResolvedDeclaration struct {
	Handle       Handle
	Module       lang.ModulePath
	Name         string
	Kind         lang.DeclKind
	State        gate.State
	Dependencies []Dependency
}

type declEntry struct {
	decl     *resolver.Declaration
	handle   Handle
	instKeys []string // Instantiation source keys in arrival order
	failure  error    // Terminal failure of the base resolution
}

// Engine wires the registry, resolver, dependency graph and instantiation
// gate together behind one facade.
type Engine struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	graph    *depgraph.Builder
	gate     *gate.Gate
	global   *symtab.Table

	mu    sync.RWMutex
	decls map[Handle]*declEntry
	byID  map[string]*declEntry
	order []Handle
}

type Option func(*Engine)

// WithGlobalSymbols seeds the implicit global scope, the outermost table of
// every declaration's chain.
func WithGlobalSymbols(define func(*symtab.Table)) Option {
	return func(e *Engine) {
		if define != nil {
			define(e.global)
		}
	}
}

func New(parse registry.ParseFunc, regOpts []registry.Option, opts ...Option) *Engine {
	reg := registry.New(parse, regOpts...)
	graph := depgraph.NewBuilder()
	e := &Engine{
		registry: reg,
		resolver: resolver.New(reg, graph),
		graph:    graph,
		gate:     gate.New(),
		global:   symtab.NewTable("global"),
		decls:    make(map[Handle]*declEntry),
		byID:     make(map[string]*declEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the module registry for drivers that pre-register or
// inspect modules.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Graph exposes the dependency graph builder for closure queries.
func (e *Engine) Graph() *depgraph.Builder {
	return e.graph
}

// SubmitDeclaration registers a declaration under its owning module and
// builds its scope chain. No free name resolves here: generics stay fully
// deferred and plain declarations resolve on the first Resolve call. A name
// already defined at the module top level is a duplicate definition.
func (e *Engine) SubmitDeclaration(ctx context.Context, owner lang.ModulePath, tree lang.Declaration) (Handle, error) {
	if tree.Name == "" {
		return "", errors.New(errors.CodeValidationError, "declaration name must not be empty")
	}
	mod, err := e.registry.Ensure(owner)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	local := symtab.NewTable("decl:" + owner.String() + "." + tree.Name)
	for _, tp := range tree.TypeParams {
		if err := local.Define(tp, &symtab.Symbol{
			Name:   tp,
			Module: owner,
			Kind:   symtab.KindTypeParam,
		}); err != nil {
			return "", err
		}
	}
	for _, imp := range tree.LocalImports {
		alias := imp.Alias
		if alias == "" && len(imp.Module) > 0 {
			alias = imp.Module[len(imp.Module)-1]
		}
		if alias == "" {
			continue
		}
		if err := local.Define(alias, &symtab.Symbol{
			Name:   alias,
			Module: owner,
			Kind:   symtab.KindModuleAlias,
			Target: imp.Module,
		}); err != nil {
			return "", err
		}
	}

	if err := mod.Table.Define(tree.Name, &symtab.Symbol{
		Name:    tree.Name,
		Module:  owner,
		Kind:    symtab.KindDecl,
		Generic: tree.Kind == lang.KindGeneric,
		DeclID:  id,
	}); err != nil {
		return "", errors.AddContext(err, errors.CtxDeclaration, tree.Name)
	}

	decl := &resolver.Declaration{
		ID:    id,
		Owner: mod,
		Tree:  tree,
		Local: local,
		Chain: symtab.Chain{local, mod.Table, e.global},
	}
	entry := &declEntry{decl: decl, handle: Handle(id)}

	e.mu.Lock()
	e.decls[entry.handle] = entry
	e.byID[id] = entry
	e.order = append(e.order, entry.handle)
	e.mu.Unlock()

	slog.Debug("declaration submitted", "module", owner.String(), "decl", tree.Name, "kind", tree.Kind.String())
	return entry.handle, nil
}

func (e *Engine) entry(h Handle) (*declEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.decls[h]
	if !ok {
		return nil, errors.Newf(errors.CodeValidationError, "unknown declaration handle %q", string(h))
	}
	return entry, nil
}

// Resolve resolves a plain declaration's free names, loading modules on
// demand and recording direct-use edges. A generic declaration is not
// resolved here: it reports Deferred and contributes no dependency edges
// until instantiated or forced by direct use. Resolving an already resolved
// handle returns identical content without re-walking anything.
func (e *Engine) Resolve(ctx context.Context, h Handle) (*ResolvedDeclaration, error) {
	entry, err := e.entry(h)
	if err != nil {
		return nil, err
	}
	decl := entry.decl

	if !e.gate.ShouldResolveNow(decl, false) {
		return e.view(entry), nil
	}

	switch e.gate.StateOf(decl.ID) {
	case gate.StateResolved:
		return e.view(entry), nil
	case gate.StateFailed:
		// failure is written under e.mu before the gate publishes Failed.
		e.mu.RLock()
		failure := entry.failure
		e.mu.RUnlock()
		return nil, failure
	}

	ctx, span := observability.Tracer.Start(ctx, "engine.Resolve")
	span.SetAttributes(attribute.String("decl", decl.QualifiedName()))
	defer span.End()

	start := time.Now()
	err = e.resolveBody(ctx, decl, refGroup{
		refs: decl.Tree.Refs,
		sink: resolver.Sink{Source: decl.ID, Reason: depgraph.ReasonDirectUse},
	})
	observability.ResolutionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		observability.DeclarationsResolved.WithLabelValues("failed").Inc()
		slog.Warn("declaration failed to resolve", "decl", decl.QualifiedName(), "error", err)
		return nil, err
	}
	observability.DeclarationsResolved.WithLabelValues("resolved").Inc()
	slog.Debug("declaration resolved", "decl", decl.QualifiedName(), "edges", len(e.graph.EdgesFor(decl.ID)))
	return e.view(entry), nil
}

type refGroup struct {
	refs []lang.Ref
	sink resolver.Sink
}

// resolveBody runs one gated resolution attempt over grouped references.
// All groups share the attempt key of the first group's sink; any single
// unresolved name fails the whole attempt.
func (e *Engine) resolveBody(ctx context.Context, decl *resolver.Declaration, groups ...refGroup) error {
	if len(groups) == 0 {
		return nil
	}
	attempt := groups[0].sink.Source
	if err := e.gate.Begin(attempt); err != nil {
		return err
	}
	var firstErr error
loop:
	for _, g := range groups {
		for _, ref := range g.refs {
			sym, err := e.resolver.ResolveRef(ctx, decl, ref, g.sink)
			if err != nil {
				firstErr = err
				break loop
			}
			if err := e.maybeForce(ctx, sym, ref); err != nil {
				firstErr = err
				break loop
			}
		}
	}
	if firstErr != nil {
		// The failure must be stored before the gate publishes Failed, so a
		// reader that observes Failed always sees the error behind it.
		e.mu.Lock()
		if entry, ok := e.byID[attempt]; ok {
			entry.failure = firstErr
		}
		e.mu.Unlock()
	}
	e.gate.Finish(attempt, firstErr)
	return firstErr
}

// maybeForce resolves a generic declaration that a plain body used as a
// value. The generic's own free names resolve under its own handle, so its
// dependency cost lands on it and not on the caller.
func (e *Engine) maybeForce(ctx context.Context, sym *symtab.Symbol, ref lang.Ref) error {
	if sym == nil || !ref.ForceEval || sym.Kind != symtab.KindDecl || !sym.Generic || sym.DeclID == "" {
		return nil
	}
	e.mu.RLock()
	target := e.byID[sym.DeclID]
	e.mu.RUnlock()
	if target == nil {
		return nil
	}
	switch e.gate.StateOf(target.decl.ID) {
	case gate.StateResolved:
		return nil
	case gate.StateFailed:
		e.mu.RLock()
		failure := target.failure
		e.mu.RUnlock()
		return failure
	}
	return e.resolveBody(ctx, target.decl, refGroup{
		refs: target.decl.Tree.Refs,
		sink: resolver.Sink{Source: target.decl.ID, Reason: depgraph.ReasonDirectUse},
	})
}

// Instantiate resolves a generic declaration against concrete arguments.
// Each distinct argument list is its own attempt with its own edge
// bookkeeping; a failed attempt is terminal but does not taint attempts
// with different arguments.
func (e *Engine) Instantiate(ctx context.Context, h Handle, args []lang.Ref) (*ResolvedDeclaration, error) {
	entry, err := e.entry(h)
	if err != nil {
		return nil, err
	}
	decl := entry.decl
	if !decl.Generic() {
		return nil, errors.AddContext(
			errors.Newf(errors.CodeValidationError, "declaration %s is not generic", decl.QualifiedName()),
			errors.CtxDeclaration, decl.QualifiedName(),
		)
	}
	if len(args) != len(decl.Tree.TypeParams) {
		return nil, errors.Newf(errors.CodeValidationError,
			"instantiation of %s expects %d arguments, got %d",
			decl.QualifiedName(), len(decl.Tree.TypeParams), len(args))
	}

	key := gate.InstKey(decl.ID, args)
	if e.gate.StateOf(key) == gate.StateResolved {
		return e.view(entry), nil
	}

	ctx, span := observability.Tracer.Start(ctx, "engine.Instantiate")
	span.SetAttributes(
		attribute.String("decl", decl.QualifiedName()),
		attribute.String("instantiation", key),
	)
	defer span.End()

	subst := make(map[string]lang.Ref, len(args))
	for i, tp := range decl.Tree.TypeParams {
		subst[tp] = args[i]
	}

	refs := make([]lang.Ref, 0, len(decl.Tree.Refs)+len(args))
	for _, ref := range decl.Tree.Refs {
		if !ref.Qualified() {
			if concrete, ok := subst[ref.Name]; ok {
				refs = append(refs, concrete)
				continue
			}
		}
		refs = append(refs, ref)
	}
	for _, a := range args {
		refs = append(refs, a)
	}

	constraints := make([]lang.Ref, 0, len(decl.Tree.Constraints))
	for _, c := range decl.Tree.Constraints {
		if !c.Qualified() {
			if concrete, ok := subst[c.Name]; ok {
				constraints = append(constraints, concrete)
				continue
			}
		}
		constraints = append(constraints, c)
	}

	err = e.resolveBody(ctx, decl,
		refGroup{refs: refs, sink: resolver.Sink{Source: key, Reason: depgraph.ReasonInstantiation}},
		refGroup{refs: constraints, sink: resolver.Sink{Source: key, Reason: depgraph.ReasonConstraintCheck}},
	)

	if err != nil {
		observability.InstantiationsTotal.WithLabelValues("failed").Inc()
		slog.Warn("instantiation failed", "decl", decl.QualifiedName(), "instantiation", key, "error", err)
		return nil, err
	}

	observability.InstantiationsTotal.WithLabelValues("resolved").Inc()
	e.mu.Lock()
	known := false
	for _, k := range entry.instKeys {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		entry.instKeys = append(entry.instKeys, key)
	}
	e.mu.Unlock()

	return e.view(entry), nil
}

// DependenciesOf returns the declaration's dependency sequence in insertion
// order: the base resolution's edges first, then each instantiation's edges
// in arrival order, deduplicated by (module, reason).
func (e *Engine) DependenciesOf(h Handle) []Dependency {
	entry, err := e.entry(h)
	if err != nil {
		return nil
	}

	e.mu.RLock()
	sources := make([]string, 0, 1+len(entry.instKeys))
	sources = append(sources, entry.decl.ID)
	sources = append(sources, entry.instKeys...)
	e.mu.RUnlock()

	seen := make(map[string]bool)
	deps := make([]Dependency, 0)
	for _, src := range sources {
		for _, edge := range e.graph.EdgesFor(src) {
			key := edge.Target.String() + "|" + string(edge.Reason)
			if seen[key] {
				continue
			}
			seen[key] = true
			deps = append(deps, Dependency{Module: edge.Target, Reason: edge.Reason})
		}
	}
	return deps
}

func (e *Engine) view(entry *declEntry) *ResolvedDeclaration {
	decl := entry.decl
	state := e.gate.StateOf(decl.ID)
	if decl.Generic() && state == gate.StateDeferred {
		// A generic with at least one resolved instantiation reports resolved.
		e.mu.RLock()
		keys := append([]string(nil), entry.instKeys...)
		e.mu.RUnlock()
		for _, k := range keys {
			if e.gate.StateOf(k) == gate.StateResolved {
				state = gate.StateResolved
				break
			}
		}
	}
	return &ResolvedDeclaration{
		Handle:       entry.handle,
		Module:       decl.Owner.Path,
		Name:         decl.Tree.Name,
		Kind:         decl.Tree.Kind,
		State:        state,
		Dependencies: e.DependenciesOf(entry.handle),
	}
}

// Handles returns every submitted handle in submission order.
func (e *Engine) Handles() []Handle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Handle, len(e.order))
	copy(out, e.order)
	return out
}

// Lookup finds the handle for module.name, if submitted.
func (e *Engine) Lookup(module lang.ModulePath, name string) (Handle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, h := range e.order {
		entry := e.decls[h]
		if entry.decl.Tree.Name == name && entry.decl.Owner.Path.Equal(module) {
			return h, true
		}
	}
	return "", false
}
