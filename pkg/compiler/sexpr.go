package compiler

import (
	"strconv"
	"strings"
)

// ToSExpr renders a node as a one-line s-expression, e.g.
//
//	(var "x" (binary "+" (integer 1) (ident "y")))
//
// The format is stable and used by the markdown test cases.
func ToSExpr(node Node) string {
	var sb strings.Builder
	writeSExpr(&sb, node)
	return sb.String()
}

func writeSExpr(sb *strings.Builder, node Node) {
	switch n := node.(type) {
	case *Program:
		sb.WriteString("(program")
		for _, d := range n.Decls {
			sb.WriteByte(' ')
			writeSExpr(sb, d)
		}
		sb.WriteByte(')')

	case *FunctionDecl:
		sb.WriteString("(fun " + strconv.Quote(n.Name) + " (params")
		for _, p := range n.Params {
			sb.WriteString(" " + strconv.Quote(p))
		}
		sb.WriteString(") ")
		writeSExpr(sb, n.Body)
		sb.WriteByte(')')

	case *VarDecl:
		sb.WriteString("(var " + strconv.Quote(n.Name))
		if n.Init != nil {
			sb.WriteByte(' ')
			writeSExpr(sb, n.Init)
		}
		sb.WriteByte(')')

	case *Block:
		sb.WriteString("(block")
		for _, s := range n.Stmts {
			sb.WriteByte(' ')
			writeSExpr(sb, s)
		}
		sb.WriteByte(')')

	case *IfStmt:
		sb.WriteString("(if ")
		writeSExpr(sb, n.Cond)
		sb.WriteByte(' ')
		writeSExpr(sb, n.Then)
		if n.Else != nil {
			sb.WriteByte(' ')
			writeSExpr(sb, n.Else)
		}
		sb.WriteByte(')')

	case *WhileStmt:
		sb.WriteString("(while ")
		writeSExpr(sb, n.Cond)
		sb.WriteByte(' ')
		writeSExpr(sb, n.Body)
		sb.WriteByte(')')

	case *ReturnStmt:
		if n.Value == nil {
			sb.WriteString("(return)")
			return
		}
		sb.WriteString("(return ")
		writeSExpr(sb, n.Value)
		sb.WriteByte(')')

	case *PrintStmt:
		sb.WriteString("(print ")
		writeSExpr(sb, n.Value)
		sb.WriteByte(')')

	case *ExprStmt:
		writeSExpr(sb, n.Expr)

	case *Literal:
		if n.Kind == StringLiteral {
			sb.WriteString("(string " + strconv.Quote(n.Str) + ")")
		} else {
			sb.WriteString("(integer " + strconv.FormatInt(n.Int, 10) + ")")
		}

	case *Identifier:
		sb.WriteString("(ident " + strconv.Quote(n.Name) + ")")

	case *UnaryOp:
		sb.WriteString("(unary " + strconv.Quote(n.Op.Symbol()) + " ")
		writeSExpr(sb, n.Operand)
		sb.WriteByte(')')

	case *BinaryOp:
		sb.WriteString("(binary " + strconv.Quote(n.Op.Symbol()) + " ")
		writeSExpr(sb, n.Left)
		sb.WriteByte(' ')
		writeSExpr(sb, n.Right)
		sb.WriteByte(')')

	case *Assign:
		sb.WriteString("(assign " + strconv.Quote(n.Name) + " ")
		writeSExpr(sb, n.Value)
		sb.WriteByte(')')

	case *Call:
		sb.WriteString("(call " + strconv.Quote(n.Callee))
		for _, a := range n.Args {
			sb.WriteByte(' ')
			writeSExpr(sb, a)
		}
		sb.WriteByte(')')
	}
}
