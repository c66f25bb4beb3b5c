package symtab

import (
	"declimp/internal/core/errors"
	"declimp/internal/lang"
)

// SymbolKind distinguishes what a name is bound to. Module aliases come from
// import statements; intrinsic symbols are synthesized for built-in modules.
type SymbolKind int

const (
	KindDecl SymbolKind = iota
	KindModuleAlias
	KindTypeParam
	KindIntrinsic
)

// Symbol is a resolved binding of a local name to a concrete entity inside a
// specific module. Identity is (owning module, local name, discriminant).
type Symbol struct {
	Name         string
	Module       lang.ModulePath // Owning module
	Kind         SymbolKind
	Generic      bool
	DeclID       string          // Handle of the defining declaration, if any
	Target       lang.ModulePath // For module aliases: the imported module
	Discriminant string          // Overload discriminant, empty when unambiguous
}

func (s *Symbol) ID() string {
	id := s.Module.String() + "." + s.Name
	if s.Discriminant != "" {
		id += "#" + s.Discriminant
	}
	return id
}

// Table is a single scope's name bindings. Tables are built serially by their
// owner and published read-only, so they carry no lock; the registry only
// hands out a module's table after its build completes.
type Table struct {
	owner string
	syms  map[string]*Symbol
	order []string
}

func NewTable(owner string) *Table {
	return &Table{
		owner: owner,
		syms:  make(map[string]*Symbol),
	}
}

func (t *Table) Owner() string {
	return t.owner
}

// Define binds name in this table. Rebinding a name already bound here is a
// duplicate definition; shadowing happens across tables, never within one.
func (t *Table) Define(name string, sym *Symbol) error {
	if name == "" {
		return errors.New(errors.CodeValidationError, "symbol name must not be empty")
	}
	if _, exists := t.syms[name]; exists {
		return errors.AddContext(
			errors.Newf(errors.CodeDuplicateDefinition, "name %q already defined in scope %s", name, t.owner),
			errors.CtxReference, name,
		)
	}
	t.syms[name] = sym
	t.order = append(t.order, name)
	return nil
}

// Lookup is a pure read: it never mutates and never triggers loading.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	sym, ok := t.syms[name]
	return sym, ok
}

func (t *Table) Len() int {
	return len(t.syms)
}

// Names returns the bound names in definition order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Chain is an ordered scope chain, innermost first. Resolution walks it in
// order; the first table containing the name wins, which is what makes inner
// definitions shadow outer ones.
type Chain []*Table

func (c Chain) Resolve(name string) (*Symbol, bool) {
	for _, t := range c {
		if t == nil {
			continue
		}
		if sym, ok := t.Lookup(name); ok {
			return sym, true
		}
	}
	return nil, false
}

// ScopeNames lists the owners of every table in the chain, for the search
// trace carried by unresolved-symbol errors.
func (c Chain) ScopeNames() []string {
	names := make([]string, 0, len(c))
	for _, t := range c {
		if t == nil {
			continue
		}
		names = append(names, t.owner)
	}
	return names
}
