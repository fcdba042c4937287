package compiler

import (
	"fmt"
	"sort"
	"strings"
)

type ScopeType int

const (
	ScopeGlobal ScopeType = iota
	ScopeLocal
	ScopeParam
)

func (s ScopeType) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	case ScopeParam:
		return "param"
	}
	return fmt.Sprintf("ScopeType(%d)", int(s))
}

// wordSize is the size of every Imp value: a signed 64-bit integer or a
// string address.
const wordSize = 8

type Symbol struct {
	Name   string
	Offset int    // offset from %rbp for locals and params; ignored for globals
	Label  string // data label for globals
	Scope  ScopeType
	Str    bool // holds a string address
}

// Operand returns the AT&T memory operand addressing the symbol.
func (s Symbol) Operand() string {
	if s.Scope == ScopeGlobal {
		return s.Label + "(%rip)"
	}
	return fmt.Sprintf("%d(%%rbp)", s.Offset)
}

// SymbolTable maps variable names to storage locations.
// Globals live in the data section under a G_ label.
// Locals are assigned negative offsets from %rbp; parameters sit above the
// saved frame pointer and return address.
type SymbolTable struct {
	globals     map[string]Symbol
	globalOrder []string

	// Stack of local scopes. Scope 0 is the function scope holding
	// parameters and the body's top-level declarations.
	locals []map[string]Symbol

	// Next available local offset (monotonically decreasing).
	nextLocal int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		globals: make(map[string]Symbol),
	}
}

func (s *SymbolTable) EnterFunction() {
	s.locals = []map[string]Symbol{make(map[string]Symbol)}
	s.nextLocal = 0
}

func (s *SymbolTable) EnterScope() {
	if len(s.locals) == 0 {
		panic("EnterScope called outside function")
	}
	s.locals = append(s.locals, make(map[string]Symbol))
}

func (s *SymbolTable) ExitScope() {
	if len(s.locals) > 0 {
		s.locals = s.locals[:len(s.locals)-1]
	}
}

func (s *SymbolTable) ExitFunction() {
	s.locals = nil
}

// DefineParam registers parameter index of count. Arguments are pushed
// left to right, so the last one sits nearest the frame pointer at 16(%rbp).
// It reports false when the name is already a parameter.
func (s *SymbolTable) DefineParam(name string, index, count int) (Symbol, bool) {
	if len(s.locals) == 0 {
		panic("DefineParam called outside function scope")
	}
	if _, ok := s.locals[0][name]; ok {
		return Symbol{}, false
	}
	sym := Symbol{
		Name:   name,
		Offset: 2*wordSize + (count-1-index)*wordSize,
		Scope:  ScopeParam,
	}
	s.locals[0][name] = sym
	return sym, true
}

// Allocate assigns the next free stack slot to name in the CURRENT scope,
// or declares a global when no function is active.
// If name is already in the current scope, the existing symbol is returned
// with exists set.
func (s *SymbolTable) Allocate(name string) (sym Symbol, exists bool) {
	if s.inFunction() {
		currentScope := s.locals[len(s.locals)-1]
		if sym, ok := currentScope[name]; ok {
			return sym, true
		}

		s.nextLocal -= wordSize
		sym := Symbol{
			Name:   name,
			Offset: s.nextLocal,
			Scope:  ScopeLocal,
		}
		currentScope[name] = sym
		return sym, false
	}
	return s.DeclareGlobal(name)
}

// DeclareGlobal registers name in the global data section regardless of
// the active function.
func (s *SymbolTable) DeclareGlobal(name string) (sym Symbol, exists bool) {
	if sym, ok := s.globals[name]; ok {
		return sym, true
	}
	sym = Symbol{
		Name:  name,
		Label: "G_" + name,
		Scope: ScopeGlobal,
	}
	s.globals[name] = sym
	s.globalOrder = append(s.globalOrder, name)
	return sym, false
}

// Lookup returns the symbol and whether it was found.
func (s *SymbolTable) Lookup(name string) (Symbol, bool) {
	// Search locals from top of stack down
	for i := len(s.locals) - 1; i >= 0; i-- {
		if sym, ok := s.locals[i][name]; ok {
			return sym, true
		}
	}

	sym, ok := s.globals[name]
	return sym, ok
}

// SetString records whether the innermost binding of name now holds a
// string address.
func (s *SymbolTable) SetString(name string, str bool) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if sym, ok := s.locals[i][name]; ok {
			sym.Str = str
			s.locals[i][name] = sym
			return
		}
	}
	if sym, ok := s.globals[name]; ok {
		sym.Str = str
		s.globals[name] = sym
	}
}

// Globals returns the global symbols in declaration order.
func (s *SymbolTable) Globals() []Symbol {
	out := make([]Symbol, 0, len(s.globalOrder))
	for _, name := range s.globalOrder {
		out = append(out, s.globals[name])
	}
	return out
}

// FrameSize returns the bytes of locals allocated since EnterFunction.
func (s *SymbolTable) FrameSize() int {
	return -s.nextLocal
}

// inFunction returns true if we are inside a function.
func (s *SymbolTable) inFunction() bool {
	return len(s.locals) > 0
}

// String returns a deterministically ordered dump of the table.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	if len(s.globals) > 0 {
		sb.WriteString("Globals:\n")
		for _, sym := range s.Globals() {
			fmt.Fprintf(&sb, "  %-20s  Label: %s\n", sym.Name, sym.Label)
		}
	} else {
		sb.WriteString("Globals: (empty)\n")
	}

	if len(s.locals) > 0 {
		sb.WriteString("Locals (Active Stack):\n")
		for i, scope := range s.locals {
			fmt.Fprintf(&sb, "  Scope %d:\n", i)
			names := make([]string, 0, len(scope))
			for name := range scope {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				sym := scope[name]
				fmt.Fprintf(&sb, "    %-20s  Offset: %d (%s)\n", name, sym.Offset, sym.Scope)
			}
		}
	}
	return sb.String()
}
