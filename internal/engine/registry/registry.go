package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"declimp/internal/core/errors"
	"declimp/internal/engine/symtab"
	"declimp/internal/lang"
	"declimp/internal/shared/observability"
)

type State int

const (
	StateUnparsed State = iota
	StateParsed
)

func (s State) String() string {
	if s == StateParsed {
		return "parsed"
	}
	return "unparsed"
}

// Module is a registered compilation unit. Table is the module's top-level
// symbol table; it is fully built before the module is published, so readers
// never observe a partially built table. Intrinsic modules have no tree and
// satisfy any lookup.
type Module struct {
	Path      lang.ModulePath
	State     State
	Tree      *lang.Module
	Table     *symtab.Table
	Intrinsic bool
}

// ParseFunc is the injected collaborator that turns a module path into a
// syntax tree. The registry invokes it at most once per distinct path.
type ParseFunc func(ctx context.Context, path lang.ModulePath) (*lang.Module, error)

type loadResult struct {
	module *Module
	err    error
}

// Registry tracks every module the process has seen. It grows monotonically:
// once loaded (or failed), a path's result is cached for the registry's
// lifetime, which is what makes repeated imports as cheap as the first.
type Registry struct {
	mu         sync.RWMutex
	modules    map[string]*loadResult
	group      singleflight.Group
	parse      ParseFunc
	limiter    *rate.Limiter
	intrinsics []glob.Glob
}

type Option func(*Registry)

// WithIntrinsicPatterns marks module paths as built in: paths matching any
// pattern resolve against a synthetic scope without invoking the loader.
func WithIntrinsicPatterns(patterns []string) Option {
	return func(r *Registry) {
		for _, p := range patterns {
			g, err := glob.Compile(p, '.')
			if err != nil {
				slog.Warn("skipping invalid intrinsic pattern", "pattern", p, "error", err)
				continue
			}
			r.intrinsics = append(r.intrinsics, g)
		}
	}
}

// WithLoaderLimit throttles parse-callback invocations to r tokens per
// second with the given burst.
func WithLoaderLimit(perSecond float64, burst int) Option {
	return func(reg *Registry) {
		if perSecond > 0 && burst > 0 {
			reg.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func New(parse ParseFunc, opts ...Option) *Registry {
	r := &Registry{
		modules: make(map[string]*loadResult),
		parse:   parse,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrLoad returns the cached module for path or loads it through the parse
// callback. Concurrent requests for the same path share one load; a failed
// load is cached and propagated, not retried.
func (r *Registry) GetOrLoad(ctx context.Context, path lang.ModulePath) (*Module, error) {
	if len(path) == 0 {
		return nil, errors.New(errors.CodeValidationError, "module path must not be empty")
	}
	key := path.String()

	r.mu.RLock()
	cached, ok := r.modules[key]
	r.mu.RUnlock()
	if ok {
		return cached.module, cached.err
	}

	ctx, span := observability.Tracer.Start(ctx, "registry.GetOrLoad")
	defer span.End()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a concurrent Ensure may have won.
		r.mu.RLock()
		cached, ok := r.modules[key]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		res := r.load(ctx, path)
		r.mu.Lock()
		r.modules[key] = res
		observability.RegistryModules.Set(float64(len(r.modules)))
		r.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	res := v.(*loadResult)
	return res.module, res.err
}

func (r *Registry) load(ctx context.Context, path lang.ModulePath) *loadResult {
	key := path.String()

	for _, g := range r.intrinsics {
		if g.Match(key) {
			slog.Debug("registering intrinsic module", "module", key)
			return &loadResult{module: &Module{
				Path:      path,
				State:     StateParsed,
				Table:     symtab.NewTable(key),
				Intrinsic: true,
			}}
		}
	}

	if r.parse == nil {
		return &loadResult{err: errors.AddContext(
			errors.Newf(errors.CodeModuleNotFound, "module %s not found: no loader configured", key),
			errors.CtxModule, key,
		)}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return &loadResult{err: errors.Wrap(err, errors.CodeInternal, "loader throttle interrupted")}
		}
	}

	tree, err := r.parse(ctx, path)
	if err != nil {
		observability.ModuleLoadFailures.WithLabelValues(failureKind(err)).Inc()
		if errors.IsCode(err, errors.CodeModuleNotFound) || errors.IsCode(err, errors.CodeParseError) {
			return &loadResult{err: errors.AddContext(err, errors.CtxModule, key)}
		}
		return &loadResult{err: errors.AddContext(
			errors.Wrap(err, errors.CodeParseError, "module parse failed"),
			errors.CtxModule, key,
		)}
	}
	if tree == nil {
		return &loadResult{err: errors.AddContext(
			errors.Newf(errors.CodeModuleNotFound, "module %s not found", key),
			errors.CtxModule, key,
		)}
	}

	mod := &Module{
		Path:  path,
		State: StateParsed,
		Tree:  tree,
		Table: symtab.NewTable(key),
	}
	if err := populateTable(mod); err != nil {
		observability.ModuleLoadFailures.WithLabelValues("duplicate_definition").Inc()
		return &loadResult{err: err}
	}

	observability.ModulesLoaded.Inc()
	slog.Debug("module loaded", "module", key, "declarations", len(tree.Declarations))
	return &loadResult{module: mod}
}

func failureKind(err error) string {
	if errors.IsCode(err, errors.CodeModuleNotFound) {
		return "not_found"
	}
	return "parse_error"
}

// populateTable builds a loaded module's top-level table: one symbol per
// declaration plus an alias per module-level import.
func populateTable(mod *Module) error {
	key := mod.Path.String()
	for _, imp := range mod.Tree.Imports {
		alias := imp.Alias
		if alias == "" && len(imp.Module) > 0 {
			alias = imp.Module[len(imp.Module)-1]
		}
		if alias == "" {
			continue
		}
		if err := mod.Table.Define(alias, &symtab.Symbol{
			Name:   alias,
			Module: mod.Path,
			Kind:   symtab.KindModuleAlias,
			Target: imp.Module,
		}); err != nil {
			return errors.AddContext(err, errors.CtxModule, key)
		}
	}
	for i := range mod.Tree.Declarations {
		decl := &mod.Tree.Declarations[i]
		if err := mod.Table.Define(decl.Name, &symtab.Symbol{
			Name:    decl.Name,
			Module:  mod.Path,
			Kind:    symtab.KindDecl,
			Generic: decl.Kind == lang.KindGeneric,
		}); err != nil {
			return errors.AddContext(err, errors.CtxModule, key)
		}
	}
	return nil
}

// Ensure registers an empty client-owned module for path without invoking
// the loader. Submitted declarations land in modules created this way.
func (r *Registry) Ensure(path lang.ModulePath) (*Module, error) {
	if len(path) == 0 {
		return nil, errors.New(errors.CodeValidationError, "module path must not be empty")
	}
	key := path.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.modules[key]; ok {
		if cached.err != nil {
			return nil, cached.err
		}
		return cached.module, nil
	}
	mod := &Module{
		Path:  path,
		State: StateParsed,
		Table: symtab.NewTable(key),
	}
	r.modules[key] = &loadResult{module: mod}
	observability.RegistryModules.Set(float64(len(r.modules)))
	return mod, nil
}

// Peek returns a module if it is already registered, without loading.
func (r *Registry) Peek(path lang.ModulePath) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.modules[path.String()]
	if !ok || res.module == nil {
		return nil, false
	}
	return res.module, true
}

// Paths lists every successfully registered module path, sorted.
func (r *Registry) Paths() []lang.ModulePath {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]lang.ModulePath, 0, len(r.modules))
	for _, res := range r.modules {
		if res.module != nil {
			out = append(out, res.module.Path)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
