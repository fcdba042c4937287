package compiler

import (
	"fmt"
	"strings"
)

// Node is implemented by every AST node.
type Node interface {
	Position() Pos
	String() string
}

//  Expression nodes

// Expr is implemented by every node that produces a value.
// genExpr always leaves the result in %rax.
type Expr interface {
	Node
	exprNode()
}

// LiteralKind distinguishes integer and string literals.
type LiteralKind int

const (
	IntLiteral LiteralKind = iota
	StringLiteral
)

// Literal is a compile-time constant. true and false parse as the
// integers 1 and 0.
//
//	var x = 10;
//	        ^^  Literal{Kind: IntLiteral, Int: 10}
type Literal struct {
	Kind LiteralKind
	Int  int64
	Str  string
	Pos  Pos
}

func (*Literal) exprNode()       {}
func (l *Literal) Position() Pos { return l.Pos }
func (l *Literal) String() string {
	if l.Kind == StringLiteral {
		return fmt.Sprintf("%q", l.Str)
	}
	return fmt.Sprintf("%d", l.Int)
}

// Identifier is a read of a named variable.
//
//	return x;
//	       ^  Identifier{Name: "x"}
type Identifier struct {
	Name string
	Pos  Pos
}

func (*Identifier) exprNode()        {}
func (i *Identifier) Position() Pos  { return i.Pos }
func (i *Identifier) String() string { return i.Name }

// UnaryOp represents Op Operand (-x, !x).
type UnaryOp struct {
	Op      TokenType
	Operand Expr
	Pos     Pos
}

func (*UnaryOp) exprNode()        {}
func (u *UnaryOp) Position() Pos  { return u.Pos }
func (u *UnaryOp) String() string { return fmt.Sprintf("(%s %s)", u.Op.Symbol(), u.Operand) }

// BinaryOp represents a binary operation: Left Op Right.
//
//	x + 1
//	^ ^ ^
//	| | |
//	| | Right
//	| Op
//	Left
type BinaryOp struct {
	Op    TokenType
	Left  Expr
	Right Expr
	Pos   Pos
}

func (*BinaryOp) exprNode()       {}
func (b *BinaryOp) Position() Pos { return b.Pos }
func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op.Symbol(), b.Right)
}

// Assign represents Name = Value. It is an expression so that chained
// assignments nest to the right; its value is the stored value.
type Assign struct {
	Name  string
	Value Expr
	Pos   Pos
}

func (*Assign) exprNode()       {}
func (a *Assign) Position() Pos { return a.Pos }
func (a *Assign) String() string {
	return fmt.Sprintf("Assign(%s = %s)", a.Name, a.Value)
}

// Call represents callee(args).
type Call struct {
	Callee string
	Args   []Expr
	Pos    Pos
}

func (*Call) exprNode()       {}
func (c *Call) Position() Pos { return c.Pos }
func (c *Call) String() string {
	return fmt.Sprintf("Call(%s, args=%v)", c.Callee, c.Args)
}

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	Node
	stmtNode()
}

// Program is the root of one translation unit.
type Program struct {
	Decls []Stmt
}

func (p *Program) Position() Pos { return Pos{Line: 1, Col: 1} }
func (p *Program) String() string {
	return fmt.Sprintf("Program(len=%d)", len(p.Decls))
}

// FunctionDecl represents fun name(params) { body }
type FunctionDecl struct {
	Name   string
	Params []string
	Body   *Block
	Pos    Pos
}

func (*FunctionDecl) stmtNode()       {}
func (f *FunctionDecl) Position() Pos { return f.Pos }
func (f *FunctionDecl) String() string {
	return fmt.Sprintf("FunctionDecl(%s(%s), body=%s)", f.Name, strings.Join(f.Params, ", "), f.Body)
}

// VarDecl represents var name [= init];
type VarDecl struct {
	Name string
	Init Expr // may be nil
	Pos  Pos
}

func (*VarDecl) stmtNode()       {}
func (d *VarDecl) Position() Pos { return d.Pos }
func (d *VarDecl) String() string {
	if d.Init == nil {
		return fmt.Sprintf("VarDecl(%s)", d.Name)
	}
	return fmt.Sprintf("VarDecl(%s = %s)", d.Name, d.Init)
}

// Block represents { statement; ... } and opens a lexical scope.
type Block struct {
	Stmts []Stmt
	Pos   Pos
}

func (*Block) stmtNode()       {}
func (b *Block) Position() Pos { return b.Pos }
func (b *Block) String() string {
	return fmt.Sprintf("Block(len=%d)", len(b.Stmts))
}

// IfStmt represents if (cond) then [else else].
// Else is nil, a *Block, or an *IfStmt for an else-if chain.
type IfStmt struct {
	Cond Expr
	Then *Block
	Else Stmt
	Pos  Pos
}

func (*IfStmt) stmtNode()       {}
func (i *IfStmt) Position() Pos { return i.Pos }
func (i *IfStmt) String() string {
	if i.Else != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Cond, i.Then, i.Else)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Cond, i.Then)
}

// WhileStmt represents while (cond) body
type WhileStmt struct {
	Cond Expr
	Body *Block
	Pos  Pos
}

func (*WhileStmt) stmtNode()       {}
func (w *WhileStmt) Position() Pos { return w.Pos }
func (w *WhileStmt) String() string {
	return fmt.Sprintf("WhileStmt(while %s do %s)", w.Cond, w.Body)
}

// ReturnStmt represents return [expr];
type ReturnStmt struct {
	Value Expr // may be nil
	Pos   Pos
}

func (*ReturnStmt) stmtNode()       {}
func (r *ReturnStmt) Position() Pos { return r.Pos }
func (r *ReturnStmt) String() string {
	return fmt.Sprintf("ReturnStmt(%v)", r.Value)
}

// PrintStmt represents print(expr);
type PrintStmt struct {
	Value Expr
	Pos   Pos
}

func (*PrintStmt) stmtNode()       {}
func (p *PrintStmt) Position() Pos { return p.Pos }
func (p *PrintStmt) String() string {
	return fmt.Sprintf("PrintStmt(%s)", p.Value)
}

// ExprStmt represents an expression evaluated for its side effects
// (an assignment or a call).
type ExprStmt struct {
	Expr Expr
	Pos  Pos
}

func (*ExprStmt) stmtNode()       {}
func (e *ExprStmt) Position() Pos { return e.Pos }
func (e *ExprStmt) String() string {
	return fmt.Sprintf("ExprStmt(%s)", e.Expr)
}
