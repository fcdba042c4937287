package compiler

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// Options control cosmetic aspects of the generated listing.
type Options struct {
	// Comments interleaves "# ..." lines describing the source construct
	// each instruction group implements.
	Comments bool
}

// DefaultOptions are used by Compile when no options are given.
var DefaultOptions = Options{Comments: true}

// CodeGen walks a labeled AST and emits x86-64 GNU assembler (AT&T) text.
//
// Every expression leaves its value in %rax. Binary operators park the
// left operand on the machine stack while the right one is evaluated;
// depth counts those parked words so calls can keep %rsp 16-byte aligned.
type CodeGen struct {
	syms    *SymbolTable
	labels  *Labeled
	opts    Options
	out     strings.Builder
	strs    []string       // string pool in first-use order
	strIdx  map[string]int // content -> index into strs
	funcs   map[string]int // function name -> arity
	depth   int
	current FuncLabels

	// Top-level globals whose var the entry routine has not reached yet.
	pending map[string]bool
}

func newCodeGen(labels *Labeled, opts Options) *CodeGen {
	return &CodeGen{
		syms:   NewSymbolTable(),
		labels: labels,
		opts:   opts,
		strIdx: make(map[string]int),
		funcs:  make(map[string]int),
	}
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	if !cg.opts.Comments {
		return
	}
	cg.line("    # "+format, args...)
}

func (cg *CodeGen) label(l Label) {
	cg.line("%s:", l)
}

func (cg *CodeGen) push() {
	cg.line("    pushq %%rax")
	cg.depth++
}

func (cg *CodeGen) pop(reg string) {
	cg.line("    popq %s", reg)
	cg.depth--
}

// functionSymbol maps an Imp function name to its assembler symbol. main
// keeps its name so the C runtime can find it; everything else is prefixed
// so user names cannot collide with libc.
func functionSymbol(name string) string {
	if name == "main" {
		return "main"
	}
	return "F_" + name
}

// countLocals returns the number of variable declarations nested anywhere
// in the statements. Slots are not reused across sibling blocks.
func countLocals(stmts []Stmt) int {
	count := 0
	for _, s := range stmts {
		switch n := s.(type) {
		case *VarDecl:
			count++
		case *Block:
			count += countLocals(n.Stmts)
		case *IfStmt:
			count += countLocals(n.Then.Stmts)
			if n.Else != nil {
				count += countLocals([]Stmt{n.Else})
			}
		case *WhileStmt:
			count += countLocals(n.Body.Stmts)
		}
	}
	return count
}

// frameSize rounds the local area up to keep %rsp 16-byte aligned.
func frameSize(locals int) int {
	size := locals * wordSize
	if size%16 != 0 {
		size += 16 - size%16
	}
	return size
}

// genFunction emits one routine: symbol, entry label, prologue, body, exit
// label, epilogue. Falling off the end returns 0.
func (cg *CodeGen) genFunction(symbol string, labels FuncLabels, params []string, body []Stmt, locals int, pos Pos) error {
	cg.syms.EnterFunction()
	defer cg.syms.ExitFunction()

	for i, param := range params {
		if _, ok := cg.syms.DefineParam(param, i, len(params)); !ok {
			return codegenErrorf(pos, "duplicate parameter %q", param)
		}
	}

	cg.current = labels
	cg.depth = 0

	cg.line("")
	if symbol == "main" {
		cg.line("    .globl main")
	}
	cg.line("%s:", symbol)
	cg.label(labels.Entry)
	cg.line("    pushq %%rbp")
	cg.line("    movq %%rsp, %%rbp")
	if size := frameSize(locals); size > 0 {
		cg.line("    subq $%d, %%rsp", size)
	}

	for _, s := range body {
		if err := cg.genStmt(s); err != nil {
			return err
		}
	}
	if used := cg.syms.FrameSize(); used > frameSize(locals) {
		return codegenErrorf(pos, "internal error: %d bytes of locals exceed the %d byte frame", used, frameSize(locals))
	}

	cg.line("    movq $0, %%rax")
	cg.label(labels.Exit)
	cg.line("    movq %%rbp, %%rsp")
	cg.line("    popq %%rbp")
	cg.line("    ret")
	return nil
}

// genEntry emits main from the top-level statements. Top-level variables
// were declared as globals up front, so here they only get initialized,
// and reading one before its var is still an undeclared name.
func (cg *CodeGen) genEntry(stmts []Stmt) error {
	cg.syms.EnterFunction()
	defer cg.syms.ExitFunction()

	cg.current = cg.labels.entry
	cg.depth = 0

	cg.pending = make(map[string]bool)
	defer func() { cg.pending = nil }()
	for _, s := range stmts {
		if decl, ok := s.(*VarDecl); ok {
			cg.pending[decl.Name] = true
		}
	}

	var nested []Stmt
	for _, s := range stmts {
		switch s.(type) {
		case *VarDecl, *FunctionDecl:
		default:
			nested = append(nested, s)
		}
	}

	cg.line("")
	cg.line("    .globl main")
	cg.line("main:")
	cg.label(cg.current.Entry)
	cg.line("    pushq %%rbp")
	cg.line("    movq %%rsp, %%rbp")
	if size := frameSize(countLocals(nested)); size > 0 {
		cg.line("    subq $%d, %%rsp", size)
	}

	for _, s := range stmts {
		if _, ok := s.(*FunctionDecl); ok {
			continue
		}
		decl, ok := s.(*VarDecl)
		if !ok {
			if err := cg.genStmt(s); err != nil {
				return err
			}
			continue
		}
		if decl.Init == nil {
			delete(cg.pending, decl.Name)
			continue
		}
		cg.comment("var %s = %s", decl.Name, decl.Init)
		if err := cg.genExpr(decl.Init); err != nil {
			return err
		}
		str := cg.isString(decl.Init)
		delete(cg.pending, decl.Name)
		sym, _ := cg.syms.Lookup(decl.Name)
		cg.syms.SetString(decl.Name, str)
		cg.line("    movq %%rax, %s", sym.Operand())
	}

	cg.line("    movq $0, %%rax")
	cg.label(cg.current.Exit)
	cg.line("    movq %%rbp, %%rsp")
	cg.line("    popq %%rbp")
	cg.line("    ret")
	return nil
}

func (cg *CodeGen) genStmt(s Stmt) error {
	switch n := s.(type) {

	case *VarDecl:
		if n.Init != nil {
			cg.comment("var %s = %s", n.Name, n.Init)
			if err := cg.genExpr(n.Init); err != nil {
				return err
			}
		} else {
			cg.comment("var %s", n.Name)
			cg.line("    movq $0, %%rax")
		}
		str := n.Init != nil && cg.isString(n.Init)
		sym, exists := cg.syms.Allocate(n.Name)
		if exists {
			return codegenErrorf(n.Pos, "redeclaration of %q in the same scope", n.Name)
		}
		cg.syms.SetString(n.Name, str)
		cg.line("    movq %%rax, %s", sym.Operand())

	case *Block:
		cg.syms.EnterScope()
		defer cg.syms.ExitScope()
		for _, child := range n.Stmts {
			if err := cg.genStmt(child); err != nil {
				return err
			}
		}

	case *IfStmt:
		labels, err := cg.labels.ifStmt(n)
		if err != nil {
			return err
		}
		cg.comment("if %s", n.Cond)
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		cg.line("    cmpq $0, %%rax")
		cg.line("    je %s", labels.Else)
		if err := cg.genStmt(n.Then); err != nil {
			return err
		}
		cg.line("    jmp %s", labels.End)
		cg.label(labels.Else)
		if n.Else != nil {
			if err := cg.genStmt(n.Else); err != nil {
				return err
			}
		}
		cg.label(labels.End)

	case *WhileStmt:
		labels, err := cg.labels.loop(n)
		if err != nil {
			return err
		}
		cg.comment("while %s", n.Cond)
		cg.label(labels.Test)
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		cg.line("    cmpq $0, %%rax")
		cg.line("    je %s", labels.Exit)
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		cg.line("    jmp %s", labels.Test)
		cg.label(labels.Exit)

	case *ReturnStmt:
		if n.Value != nil {
			cg.comment("return %s", n.Value)
			if err := cg.genExpr(n.Value); err != nil {
				return err
			}
		} else {
			cg.comment("return")
			cg.line("    movq $0, %%rax")
		}
		cg.line("    jmp %s", cg.current.Exit)

	case *PrintStmt:
		cg.comment("print %s", n.Value)
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		format := ".Lfmt_int"
		if cg.isString(n.Value) {
			format = ".Lfmt_str"
		}
		cg.line("    movq %%rax, %%rsi")
		cg.line("    leaq %s(%%rip), %%rdi", format)
		cg.line("    xorl %%eax, %%eax")
		cg.callAligned("printf", 0)

	case *ExprStmt:
		cg.comment("%s", n.Expr)
		if err := cg.genExpr(n.Expr); err != nil {
			return err
		}

	case *FunctionDecl:
		return codegenErrorf(n.Pos, "function %q declared inside a block", n.Name)

	default:
		return codegenErrorf(s.Position(), "unknown statement node %T", s)
	}
	return nil
}

// callAligned emits a call whose nargs arguments are already pushed,
// padding the stack first when needed, and pops the arguments afterwards.
// For nargs > 0 the caller must have reserved the padding with alignArgs.
func (cg *CodeGen) callAligned(symbol string, nargs int) {
	pad := 0
	if nargs == 0 && cg.depth%2 != 0 {
		pad = 1
		cg.line("    subq $8, %%rsp")
		cg.depth++
	}
	cg.line("    call %s", symbol)
	if words := nargs + pad; words > 0 {
		cg.line("    addq $%d, %%rsp", words*wordSize)
		cg.depth -= words
	}
}

// alignArgs pads the stack so that after nargs pushes %rsp is 16-byte
// aligned. It returns the number of padding words.
func (cg *CodeGen) alignArgs(nargs int) int {
	if (cg.depth+nargs)%2 == 0 {
		return 0
	}
	cg.line("    subq $8, %%rsp")
	cg.depth++
	return 1
}

func (cg *CodeGen) genExpr(e Expr) error {
	switch n := e.(type) {

	case *Literal:
		if n.Kind == StringLiteral {
			cg.line("    leaq %s(%%rip), %%rax", cg.stringLabel(n.Str))
			return nil
		}
		if n.Int < math.MinInt32 || n.Int > math.MaxInt32 {
			cg.line("    movabsq $%d, %%rax", n.Int)
		} else {
			cg.line("    movq $%d, %%rax", n.Int)
		}

	case *Identifier:
		sym, ok := cg.syms.Lookup(n.Name)
		if !ok || (sym.Scope == ScopeGlobal && cg.pending[n.Name]) {
			return codegenErrorf(n.Pos, "undeclared name %q", n.Name)
		}
		cg.line("    movq %s, %%rax", sym.Operand())

	case *Assign:
		if err := cg.genExpr(n.Value); err != nil {
			return err
		}
		sym, ok := cg.syms.Lookup(n.Name)
		if !ok {
			// Assigning an unknown name declares a global.
			sym, _ = cg.syms.DeclareGlobal(n.Name)
		}
		if sym.Scope == ScopeGlobal {
			// Assigning ahead of the var declares the global implicitly.
			delete(cg.pending, n.Name)
		}
		cg.syms.SetString(n.Name, cg.isString(n.Value))
		cg.line("    movq %%rax, %s", sym.Operand())

	case *UnaryOp:
		if err := cg.genExpr(n.Operand); err != nil {
			return err
		}
		switch n.Op {
		case MINUS:
			cg.line("    negq %%rax")
		case NOT:
			cg.line("    cmpq $0, %%rax")
			cg.line("    sete %%al")
			cg.line("    movzbq %%al, %%rax")
		default:
			return codegenErrorf(n.Pos, "unknown unary operator %s", n.Op)
		}

	case *BinaryOp:
		if err := cg.genExpr(n.Left); err != nil {
			return err
		}
		cg.push()
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.line("    movq %%rax, %%rcx")
		cg.pop("%rax")
		return cg.genBinaryOp(n)

	case *Call:
		arity, ok := cg.funcs[n.Callee]
		if !ok {
			return codegenErrorf(n.Pos, "call to undeclared function %q", n.Callee)
		}
		if arity != len(n.Args) {
			return codegenErrorf(n.Pos, "function %q expects %d argument(s), got %d", n.Callee, arity, len(n.Args))
		}
		pad := cg.alignArgs(len(n.Args))
		for _, arg := range n.Args {
			if err := cg.genExpr(arg); err != nil {
				return err
			}
			cg.push()
		}
		cg.line("    call %s", functionSymbol(n.Callee))
		if words := len(n.Args) + pad; words > 0 {
			cg.line("    addq $%d, %%rsp", words*wordSize)
			cg.depth -= words
		}

	default:
		return codegenErrorf(e.Position(), "unknown expression node %T", e)
	}
	return nil
}

var setcc = map[TokenType]string{
	EQUALS:     "sete",
	NOT_EQ:     "setne",
	LESS:       "setl",
	LESS_EQ:    "setle",
	GREATER:    "setg",
	GREATER_EQ: "setge",
}

// genBinaryOp combines %rax (left) and %rcx (right) into %rax.
// isString reports whether e yields a string address: a string literal, or
// a variable whose latest binding in emission order was one. Parameters and
// call results are integers.
func (cg *CodeGen) isString(e Expr) bool {
	switch n := e.(type) {
	case *Literal:
		return n.Kind == StringLiteral
	case *Identifier:
		sym, ok := cg.syms.Lookup(n.Name)
		return ok && sym.Str
	case *Assign:
		return cg.isString(n.Value)
	}
	return false
}

func (cg *CodeGen) genBinaryOp(n *BinaryOp) error {
	switch n.Op {
	case PLUS:
		cg.line("    addq %%rcx, %%rax")
	case MINUS:
		cg.line("    subq %%rcx, %%rax")
	case STAR:
		cg.line("    imulq %%rcx, %%rax")
	case SLASH:
		cg.line("    cqto")
		cg.line("    idivq %%rcx")
	case PERCENT:
		cg.line("    cqto")
		cg.line("    idivq %%rcx")
		cg.line("    movq %%rdx, %%rax")
	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		cg.line("    cmpq %%rcx, %%rax")
		cg.line("    %s %%al", setcc[n.Op])
		cg.line("    movzbq %%al, %%rax")
	case AND_LOGICAL, OR_LOGICAL:
		// Both operands are already evaluated; normalise each to 0/1.
		cg.line("    cmpq $0, %%rax")
		cg.line("    setne %%al")
		cg.line("    cmpq $0, %%rcx")
		cg.line("    setne %%cl")
		if n.Op == AND_LOGICAL {
			cg.line("    andb %%cl, %%al")
		} else {
			cg.line("    orb %%cl, %%al")
		}
		cg.line("    movzbq %%al, %%rax")
	default:
		return codegenErrorf(n.Pos, "unknown binary operator %s", n.Op)
	}
	return nil
}

func (cg *CodeGen) stringLabel(s string) string {
	idx, ok := cg.strIdx[s]
	if !ok {
		idx = len(cg.strs)
		cg.strIdx[s] = idx
		cg.strs = append(cg.strs, s)
	}
	return fmt.Sprintf(".Lstr%d", idx)
}

// quoteAsm renders s as a GNU as string literal. Non-printable and
// non-ASCII bytes are written as octal escapes.
func quoteAsm(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\%03o`, c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// Generate emits the listing for a labeled program to w. Nothing is written
// unless generation succeeds as a whole.
func Generate(w io.Writer, labeled *Labeled, opts Options) error {
	if labeled == nil || labeled.prog == nil {
		return codegenErrorf(Pos{}, "unresolved labels: program was not passed through ResolveLabels")
	}
	prog := labeled.prog
	cg := newCodeGen(labeled, opts)

	// 1. PRE-PASS: function arities, so calls may precede declarations.
	var hasTopLevel bool
	for _, s := range prog.Decls {
		f, ok := s.(*FunctionDecl)
		if !ok {
			// A bare global declaration needs no code of its own.
			if d, isDecl := s.(*VarDecl); !isDecl || d.Init != nil {
				hasTopLevel = true
			}
			continue
		}
		if _, dup := cg.funcs[f.Name]; dup {
			return codegenErrorf(f.Pos, "function %q redefined", f.Name)
		}
		if f.Name == "main" && len(f.Params) > 0 {
			return codegenErrorf(f.Pos, "main cannot take parameters")
		}
		cg.funcs[f.Name] = len(f.Params)
	}
	_, userMain := cg.funcs["main"]
	if userMain && hasTopLevel {
		return codegenErrorf(Pos{}, "top-level statements conflict with function main")
	}

	// 2. PRE-PASS: top-level variables are globals visible to every function.
	for _, s := range prog.Decls {
		if decl, ok := s.(*VarDecl); ok {
			if _, exists := cg.syms.DeclareGlobal(decl.Name); exists {
				return codegenErrorf(decl.Pos, "redeclaration of global %q", decl.Name)
			}
		}
	}

	// 3. Routines.
	cg.line("    .text")
	if !userMain {
		if err := cg.genEntry(prog.Decls); err != nil {
			return err
		}
	}
	for _, s := range prog.Decls {
		f, ok := s.(*FunctionDecl)
		if !ok {
			continue
		}
		labels, err := labeled.function(f)
		if err != nil {
			return err
		}
		locals := countLocals(f.Body.Stmts)
		if err := cg.genFunction(functionSymbol(f.Name), labels, f.Params, f.Body.Stmts, locals, f.Pos); err != nil {
			return err
		}
	}

	// 4. Data sections, now that implicit globals and strings are known.
	var head strings.Builder
	if globals := cg.syms.Globals(); len(globals) > 0 {
		head.WriteString("    .data\n")
		for _, sym := range globals {
			fmt.Fprintf(&head, "%s:\n    .quad 0\n", sym.Label)
		}
	}
	head.WriteString("    .section .rodata\n")
	head.WriteString(".Lfmt_int:\n    .string \"%ld\\n\"\n")
	head.WriteString(".Lfmt_str:\n    .string \"%s\\n\"\n")
	for i, s := range cg.strs {
		fmt.Fprintf(&head, ".Lstr%d:\n    .string %s\n", i, quoteAsm(s))
	}

	var listing strings.Builder
	listing.WriteString(head.String())
	listing.WriteString(cg.out.String())
	listing.WriteString("\n    .section .note.GNU-stack,\"\",@progbits\n")

	_, err := io.WriteString(w, listing.String())
	return err
}
