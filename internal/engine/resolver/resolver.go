package resolver

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"declimp/internal/core/errors"
	"declimp/internal/engine/depgraph"
	"declimp/internal/engine/registry"
	"declimp/internal/engine/symtab"
	"declimp/internal/lang"
	"declimp/internal/shared/observability"
)

// Declaration is the runtime state for one submitted declaration: its syntax
// tree, owning module, and the scope chain its free names resolve through
// (declaration-local scope, module top level, implicit global).
type Declaration struct {
	ID    string
	Owner *registry.Module
	Tree  lang.Declaration
	Local *symtab.Table
	Chain symtab.Chain
}

func (d *Declaration) Generic() bool {
	return d.Tree.Kind == lang.KindGeneric
}

func (d *Declaration) QualifiedName() string {
	return d.Owner.Path.String() + "." + d.Tree.Name
}

// Sink directs where resolution records its dependency edges. The base
// resolution of a declaration records under its own handle with direct-use;
// each instantiation gets its own source key and reason.
type Sink struct {
	Source string
	Reason depgraph.Reason
}

// Resolver resolves free-name references lazily, loading modules through the
// registry on first touch. Results are memoized per (declaration, normalized
// reference): a repeat resolution returns the cached symbol without walking
// scopes or touching the registry, though it still records an edge for the
// requesting sink (the graph deduplicates).
type Resolver struct {
	registry *registry.Registry
	graph    *depgraph.Builder

	mu   sync.Mutex
	memo map[string]*symtab.Symbol
}

func New(reg *registry.Registry, graph *depgraph.Builder) *Resolver {
	return &Resolver{
		registry: reg,
		graph:    graph,
		memo:     make(map[string]*symtab.Symbol),
	}
}

func memoKey(declID string, ref lang.Ref) string {
	return declID + "\x00" + ref.Normalized()
}

// ResolveRef resolves one free-name reference from decl, recording a
// dependency edge under sink when the resolved symbol lives outside the
// declaring module.
func (r *Resolver) ResolveRef(ctx context.Context, decl *Declaration, ref lang.Ref, sink Sink) (*symtab.Symbol, error) {
	key := memoKey(decl.ID, ref)

	r.mu.Lock()
	cached, hit := r.memo[key]
	r.mu.Unlock()
	if hit {
		observability.MemoHits.Inc()
		r.recordEdge(decl, cached, sink)
		return cached, nil
	}
	observability.MemoMisses.Inc()

	ctx, span := observability.Tracer.Start(ctx, "resolver.ResolveRef")
	span.SetAttributes(
		attribute.String("decl", decl.QualifiedName()),
		attribute.String("ref", ref.Normalized()),
	)
	defer span.End()

	var (
		sym *symtab.Symbol
		err error
	)
	if ref.Qualified() {
		sym, err = r.resolveQualified(ctx, decl, ref)
	} else {
		sym, err = r.resolveUnqualified(decl, ref)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.memo[key] = sym
	r.mu.Unlock()

	r.recordEdge(decl, sym, sink)
	return sym, nil
}

// resolveQualified handles inline-import references. The qualifier is split
// against the registry by longest prefix first: for time.Clock.currTime the
// candidates are module time.Clock (symbol currTime) and module time (symbol
// Clock, member currTime). The first prefix that loads wins; segments beyond
// the anchor symbol are member selections outside symbol resolution.
func (r *Resolver) resolveQualified(ctx context.Context, decl *Declaration, ref lang.Ref) (*symtab.Symbol, error) {
	segments := append(append(lang.ModulePath{}, ref.Module...), ref.Name)

	// Local and module-level import aliases rebind the leading segment.
	if alias, ok := decl.Chain.Resolve(segments[0]); ok && alias.Kind == symtab.KindModuleAlias {
		segments = append(append(lang.ModulePath{}, alias.Target...), segments[1:]...)
	}

	var firstErr error
	for cut := len(segments) - 1; cut >= 1; cut-- {
		modPath := lang.ModulePath(segments[:cut])
		anchor := segments[cut]

		mod, err := r.registry.GetOrLoad(ctx, modPath)
		if err != nil {
			if errors.IsCode(err, errors.CodeModuleNotFound) {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			// Parse and duplicate-definition failures propagate as-is.
			return nil, errors.AddContext(err, errors.CtxReference, ref.Normalized())
		}

		if mod.Intrinsic {
			return &symtab.Symbol{
				Name:   anchor,
				Module: mod.Path,
				Kind:   symtab.KindIntrinsic,
			}, nil
		}

		sym, ok := mod.Table.Lookup(anchor)
		if !ok {
			return nil, errors.AddContext(errors.AddContext(
				errors.Newf(errors.CodeUnresolvedSymbol, "module %s has no symbol %q", mod.Path, anchor),
				errors.CtxScopesSearched, []string{mod.Path.String()},
			), errors.CtxReference, ref.Normalized())
		}
		return sym, nil
	}

	if firstErr != nil {
		return nil, errors.AddContext(firstErr, errors.CtxReference, ref.Normalized())
	}
	return nil, errors.AddContext(
		errors.Newf(errors.CodeUnresolvedSymbol, "unresolvable qualified reference %q", ref.Normalized()),
		errors.CtxReference, ref.Normalized(),
	)
}

// resolveUnqualified walks the scope chain innermost to outermost. The first
// table containing the name wins; that is the shadowing tie-break, matching
// lexical scoping rather than load order.
func (r *Resolver) resolveUnqualified(decl *Declaration, ref lang.Ref) (*symtab.Symbol, error) {
	if sym, ok := decl.Chain.Resolve(ref.Name); ok {
		return sym, nil
	}
	searched := decl.Chain.ScopeNames()
	slog.Debug("unresolved symbol", "decl", decl.QualifiedName(), "ref", ref.Name, "scopes", strings.Join(searched, " -> "))
	return nil, errors.AddContext(errors.AddContext(
		errors.Newf(errors.CodeUnresolvedSymbol, "name %q not found in any enclosing scope", ref.Name),
		errors.CtxScopesSearched, searched,
	), errors.CtxDeclaration, decl.QualifiedName())
}

// recordEdge measures dependency by what resolution actually reached: a
// symbol owned by another module produces an edge against that module, even
// when it arrived through the ambient scope chain.
func (r *Resolver) recordEdge(decl *Declaration, sym *symtab.Symbol, sink Sink) {
	if sink.Source == "" || sym == nil {
		return
	}
	target := sym.Module
	if sym.Kind == symtab.KindModuleAlias {
		target = sym.Target
	}
	if len(target) == 0 || target.Equal(decl.Owner.Path) {
		return
	}
	r.graph.Record(depgraph.Edge{
		Source: sink.Source,
		Owner:  decl.Owner.Path,
		Target: target,
		Symbol: sym.Name,
		Reason: sink.Reason,
	})
}
