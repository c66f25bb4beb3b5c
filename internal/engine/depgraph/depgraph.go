package depgraph

import (
	"sync"

	"declimp/internal/lang"
	"declimp/internal/shared/observability"
)

type Reason string

const (
	ReasonDirectUse       Reason = "direct-use"
	ReasonInstantiation   Reason = "instantiation"
	ReasonConstraintCheck Reason = "constraint-check"
)

// Edge records that resolving Source required Target. Source is either a
// declaration handle or a handle qualified with an instantiation key; Owner
// is the module the source declaration lives in.
type Edge struct {
	Source string
	Owner  lang.ModulePath
	Target lang.ModulePath
	Symbol string
	Reason Reason
}

// Builder accumulates declaration-level dependency edges as resolution
// proceeds. Edges are deduplicated by (source, target module) and kept in
// insertion order so diagnostics output is deterministic.
type Builder struct {
	mu         sync.RWMutex
	edges      map[string][]Edge
	seen       map[string]map[string]bool
	moduleDeps map[string]map[string]lang.ModulePath
}

func NewBuilder() *Builder {
	return &Builder{
		edges:      make(map[string][]Edge),
		seen:       make(map[string]map[string]bool),
		moduleDeps: make(map[string]map[string]lang.ModulePath),
	}
}

// Record adds an edge unless an edge from the same source to the same target
// module exists already. Repeated lookups of one module from one declaration
// collapse to a single edge.
func (b *Builder) Record(e Edge) {
	if e.Source == "" || len(e.Target) == 0 {
		return
	}
	target := e.Target.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seen[e.Source] == nil {
		b.seen[e.Source] = make(map[string]bool)
	}
	if b.seen[e.Source][target] {
		return
	}
	b.seen[e.Source][target] = true
	b.edges[e.Source] = append(b.edges[e.Source], e)

	if len(e.Owner) > 0 {
		owner := e.Owner.String()
		if owner != target {
			if b.moduleDeps[owner] == nil {
				b.moduleDeps[owner] = make(map[string]lang.ModulePath)
			}
			b.moduleDeps[owner][target] = e.Target
		}
	}

	edgeCount := 0
	for _, list := range b.edges {
		edgeCount += len(list)
	}
	observability.GraphEdges.Set(float64(edgeCount))
	observability.GraphSources.Set(float64(len(b.edges)))
}

// EdgesFor returns the recorded edges for one source in insertion order.
func (b *Builder) EdgesFor(source string) []Edge {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.edges[source]
	out := make([]Edge, len(list))
	copy(out, list)
	return out
}

// Sources returns every source that has at least one recorded edge.
func (b *Builder) Sources() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.edges))
	for src := range b.edges {
		out = append(out, src)
	}
	return out
}

// ModuleDeps returns the modules a module has been found to depend on,
// aggregated over its declarations.
func (b *Builder) ModuleDeps(module lang.ModulePath) []lang.ModulePath {
	b.mu.RLock()
	defer b.mu.RUnlock()
	deps := b.moduleDeps[module.String()]
	out := make([]lang.ModulePath, 0, len(deps))
	for _, p := range deps {
		out = append(out, p)
	}
	lang.SortModulePaths(out)
	return out
}

// TransitiveClosure follows the source's edges into the aggregate dependency
// sets of every module they touch. A module reachable again through the
// closure is not re-expanded, which keeps mutually dependent modules from
// looping the walk.
func (b *Builder) TransitiveClosure(source string) []lang.ModulePath {
	b.mu.RLock()
	defer b.mu.RUnlock()

	visited := make(map[string]bool)
	queue := make([]lang.ModulePath, 0)
	for _, e := range b.edges[source] {
		key := e.Target.String()
		if !visited[key] {
			visited[key] = true
			queue = append(queue, e.Target)
		}
	}

	result := make([]lang.ModulePath, 0, len(queue))
	for len(queue) > 0 {
		mod := queue[0]
		queue = queue[1:]
		result = append(result, mod)

		for key, next := range b.moduleDeps[mod.String()] {
			if visited[key] {
				continue
			}
			visited[key] = true
			queue = append(queue, next)
		}
	}

	lang.SortModulePaths(result)
	return result
}
