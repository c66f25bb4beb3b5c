package gate

import (
	"sort"
	"strings"
	"sync"

	"declimp/internal/core/errors"
	"declimp/internal/engine/resolver"
	"declimp/internal/lang"
)

// State is the explicit resolution state machine for a declaration or one
// instantiation of a generic declaration.
//
//	Deferred -> Resolving -> Resolved | Failed
//
// Failed is terminal for its key; a different instantiation of the same
// generic gets its own key and its own attempt.
type State int

const (
	StateDeferred State = iota
	StateResolving
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "deferred"
	}
}

// InstKey identifies one instantiation attempt: the declaration handle plus
// the normalized concrete arguments.
func InstKey(declID string, args []lang.Ref) string {
	if len(args) == 0 {
		return declID
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.Normalized())
	}
	return declID + "#" + strings.Join(parts, ",")
}

// Gate decides when a declaration's free names resolve and tracks each
// attempt's state. Plain declarations resolve as soon as they are asked to;
// generic declarations stay deferred, contributing zero dependency cost,
// until instantiated or forced by direct non-generic use.
type Gate struct {
	mu     sync.Mutex
	states map[string]State
}

func New() *Gate {
	return &Gate{states: make(map[string]State)}
}

// ShouldResolveNow reports whether decl's free names should resolve at this
// point. forced marks direct use from a plain declaration's body that
// requires evaluation without instantiation.
func (g *Gate) ShouldResolveNow(decl *resolver.Declaration, forced bool) bool {
	if !decl.Generic() {
		return true
	}
	return forced
}

// Begin moves key into Resolving. Re-entering a key that is already
// resolving means the instantiation reached itself through its own
// dependencies; that attempt fails with CyclicInstantiation.
func (g *Gate) Begin(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.states[key] {
	case StateResolving:
		return errors.AddContext(
			errors.Newf(errors.CodeCyclicInstantiation, "instantiation %q re-entered while resolving", key),
			errors.CtxInstantiation, key,
		)
	case StateResolved:
		return nil
	case StateFailed:
		return errors.AddContext(
			errors.Newf(errors.CodeValidationError, "instantiation %q already failed; not retried", key),
			errors.CtxInstantiation, key,
		)
	}
	g.states[key] = StateResolving
	return nil
}

// Finish records the outcome of an attempt started with Begin. A resolved
// key stays resolved on repeat attempts.
func (g *Gate) Finish(key string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.states[key] == StateResolved {
		return
	}
	if err != nil {
		g.states[key] = StateFailed
		return
	}
	g.states[key] = StateResolved
}

// Abandon discards an in-progress attempt without marking it failed, for
// cancelled compiles. Attempt-local state simply never becomes Resolved, so
// nothing partial leaks into shared tables.
func (g *Gate) Abandon(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.states[key] == StateResolving {
		delete(g.states, key)
	}
}

func (g *Gate) StateOf(key string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[key]
}

// Attempts returns every known attempt key for a declaration handle, sorted,
// including the base key itself when present.
func (g *Gate) Attempts(declID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0)
	for key := range g.states {
		if key == declID || strings.HasPrefix(key, declID+"#") {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
