package lang

import (
	"sort"
	"strings"
	"time"
)

// Module is the parsed-but-unresolved syntax tree for one compilation unit.
// It is what the injected parse callback hands to the registry; the engine
// never reads source text itself.
type Module struct {
	Path         ModulePath
	Imports      []Import      // Module-level imports
	Declarations []Declaration // In source order
	ParsedAt     time.Time
}

type Import struct {
	Module   ModulePath
	Alias    string // Optional local alias
	Location Location
}

type Declaration struct {
	Name         string
	Kind         DeclKind
	TypeParams   []string // Generic parameter names, empty for plain decls
	LocalImports []Import // Imports scoped to this declaration only
	Refs         []Ref    // Free name references in body and signature
	Constraints  []Ref    // Generic constraint references, resolved per instantiation
	Location     Location
}

// Ref is a free-name reference: either a bare identifier resolved through
// the ambient scope chain, or an inline-qualified path naming its module at
// the point of use.
type Ref struct {
	Name      string     // Local name being referenced
	Module    ModulePath // Empty for unqualified references
	ForceEval bool       // Used as a value, forcing generic targets to resolve
	Location  Location
}

func (r Ref) Qualified() bool {
	return len(r.Module) > 0
}

// Normalized returns the canonical memoization key form of the reference.
func (r Ref) Normalized() string {
	if r.Qualified() {
		return r.Module.String() + "." + r.Name
	}
	return r.Name
}

type DeclKind int

const (
	KindPlain DeclKind = iota
	KindGeneric
)

func (k DeclKind) String() string {
	if k == KindGeneric {
		return "generic"
	}
	return "plain"
}

type Location struct {
	File   string
	Line   int
	Column int
}

// ModulePath is a fully qualified dotted module identity, stored segmented
// so callers cannot confuse it with a plain name. Opaque beyond equality
// and ordering.
type ModulePath []string

func ParseModulePath(s string) ModulePath {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if parts[i] == "" {
			return nil
		}
	}
	return ModulePath(parts)
}

func (p ModulePath) String() string {
	return strings.Join(p, ".")
}

func (p ModulePath) Equal(other ModulePath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// SplitRef splits a dotted reference string into its module path and local
// name. "time.Clock.currTime" yields (time.Clock, currTime); a bare name
// yields an empty path.
func SplitRef(s string) (ModulePath, string) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return nil, s
	}
	return ParseModulePath(s[:idx]), s[idx+1:]
}

// SortModulePaths orders paths lexicographically for deterministic output.
func SortModulePaths(paths []ModulePath) {
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].String() < paths[j].String()
	})
}
