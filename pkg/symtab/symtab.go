// Package symtab implements lexically scoped symbol tables with
// recursive lookup through the parent chain.
package symtab

import (
	"fmt"
	"io"

	"github.com/ncc-lang/ncc/pkg/types"
)

type SymbolKind int

const (
	SymFunction SymbolKind = iota
	SymVariable
	SymType
)

var kindNames = map[SymbolKind]string{
	SymFunction: "function",
	SymVariable: "variable",
	SymType:     "type",
}

func (k SymbolKind) String() string { return kindNames[k] }

// Symbol is one named entity: a function, variable, or type. Storage
// for variables is either a virtual register (Vreg >= 0) or a byte
// offset within the enclosing function's frame (Offset >= 0 when
// OnStack is set).
type Symbol struct {
	Kind         SymbolKind
	Name         string
	Type         *types.Type
	Table        *SymbolTable
	IsDefined    bool
	AddressTaken bool
	OnStack      bool
	Vreg         int
	Offset       int
	// FrameSize is recorded on function symbols once the storage
	// planner has finished with the function's locals.
	FrameSize int
}

// SymbolTable is one lexical scope: an ordered vector of symbols plus a
// name index, with an optional parent scope. Function scopes are named
// after the function so that a return statement can locate the
// enclosing function's type by scope-name lookup.
type SymbolTable struct {
	Parent  *SymbolTable
	Name    string
	symbols []*Symbol
	index   map[string]*Symbol
}

func NewSymbolTable(parent *SymbolTable, name string) *SymbolTable {
	return &SymbolTable{Parent: parent, Name: name, index: make(map[string]*Symbol)}
}

// HasSymbolLocal reports whether name is bound in this scope, ignoring
// the parent chain.
func (st *SymbolTable) HasSymbolLocal(name string) bool {
	_, ok := st.index[name]
	return ok
}

// Define inserts a symbol unconditionally; callers must check
// HasSymbolLocal first to diagnose duplicates.
func (st *SymbolTable) Define(kind SymbolKind, name string, typ *types.Type) *Symbol {
	sym := &Symbol{Kind: kind, Name: name, Type: typ, Table: st, IsDefined: true, Vreg: -1, Offset: -1}
	st.symbols = append(st.symbols, sym)
	st.index[name] = sym
	return sym
}

// Declare inserts a symbol marked as declared but not yet defined.
func (st *SymbolTable) Declare(kind SymbolKind, name string, typ *types.Type) *Symbol {
	sym := st.Define(kind, name, typ)
	sym.IsDefined = false
	return sym
}

// LookupLocal finds a symbol in this scope only.
func (st *SymbolTable) LookupLocal(name string) *Symbol {
	return st.index[name]
}

// LookupRecursive walks the parent chain looking for name.
func (st *SymbolTable) LookupRecursive(name string) *Symbol {
	for s := st; s != nil; s = s.Parent {
		if sym := s.index[name]; sym != nil {
			return sym
		}
	}
	return nil
}

// LookupRecursiveKind walks the parent chain looking for name with the
// given symbol kind.
func (st *SymbolTable) LookupRecursiveKind(name string, kind SymbolKind) *Symbol {
	for s := st; s != nil; s = s.Parent {
		if sym := s.index[name]; sym != nil && sym.Kind == kind {
			return sym
		}
	}
	return nil
}

// LookupScopeName walks the scope chain looking for a scope with the
// given name and returns it, or nil.
func (st *SymbolTable) LookupScopeName(name string) *SymbolTable {
	for s := st; s != nil; s = s.Parent {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Symbols returns the symbols in definition order.
func (st *SymbolTable) Symbols() []*Symbol { return st.symbols }

// Depth returns the nesting depth of the scope (0 for the global scope).
func (st *SymbolTable) Depth() int {
	d := 0
	for s := st.Parent; s != nil; s = s.Parent {
		d++
	}
	return d
}

// Dump writes the table's symbols in definition order, one per line,
// for the -a mode of the driver.
func (st *SymbolTable) Dump(w io.Writer) {
	for _, sym := range st.symbols {
		fmt.Fprintf(w, "%d|%s|%s|%s\n", st.Depth(), sym.Name, sym.Kind, sym.Type)
	}
}
