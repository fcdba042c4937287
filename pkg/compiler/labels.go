package compiler

import "fmt"

// Label is a jump target number, unique within one compilation.
// The zero Label is never allocated.
type Label int

func (l Label) String() string { return fmt.Sprintf(".L%d", int(l)) }

// IfLabels are the targets of one if statement: the false branch jumps to
// Else, the true branch jumps over the else part to End.
type IfLabels struct {
	Else Label
	End  Label
}

// LoopLabels are the targets of one while loop.
type LoopLabels struct {
	Test Label
	Exit Label
}

// FuncLabels bracket one routine. Exit is placed after the body and before
// the epilogue rather than after it, so the jump emitted for a return
// statement still restores the frame and returns.
type FuncLabels struct {
	Entry Label
	Exit  Label
}

// Labeled is a Program together with the jump targets of every
// label-bearing node. Only ResolveLabels produces a usable value; the AST
// itself is never modified.
type Labeled struct {
	prog   *Program
	entry  FuncLabels // the routine synthesized from top-level statements
	funcs  map[*FunctionDecl]FuncLabels
	ifs    map[*IfStmt]IfLabels
	whiles map[*WhileStmt]LoopLabels
	count  int
}

// Program returns the labeled program.
func (l *Labeled) Program() *Program { return l.prog }

// Count returns the number of labels allocated.
func (l *Labeled) Count() int { return l.count }

func (l *Labeled) function(f *FunctionDecl) (FuncLabels, error) {
	labels, ok := l.funcs[f]
	if !ok {
		return FuncLabels{}, codegenErrorf(f.Pos, "unresolved label for function %q", f.Name)
	}
	return labels, nil
}

func (l *Labeled) ifStmt(s *IfStmt) (IfLabels, error) {
	labels, ok := l.ifs[s]
	if !ok {
		return IfLabels{}, codegenErrorf(s.Pos, "unresolved label for if statement")
	}
	return labels, nil
}

func (l *Labeled) loop(s *WhileStmt) (LoopLabels, error) {
	labels, ok := l.whiles[s]
	if !ok {
		return LoopLabels{}, codegenErrorf(s.Pos, "unresolved label for while loop")
	}
	return labels, nil
}

// labeler carries the label counter through one pre-order walk.
type labeler struct {
	out  *Labeled
	next int
}

func (lb *labeler) newLabel() Label {
	lb.next++
	return Label(lb.next)
}

// ResolveLabels walks prog in pre-order and allocates every jump target the
// code generator will need. Each call starts a fresh counter at 1, so the
// numbering depends only on the shape of the tree.
func ResolveLabels(prog *Program) *Labeled {
	lb := &labeler{out: &Labeled{
		prog:   prog,
		funcs:  make(map[*FunctionDecl]FuncLabels),
		ifs:    make(map[*IfStmt]IfLabels),
		whiles: make(map[*WhileStmt]LoopLabels),
	}}
	lb.out.entry = FuncLabels{Entry: lb.newLabel(), Exit: lb.newLabel()}
	for _, s := range prog.Decls {
		lb.visitStmt(s)
	}
	lb.out.count = lb.next
	return lb.out
}

func (lb *labeler) visitStmt(s Stmt) {
	switch n := s.(type) {
	case *FunctionDecl:
		lb.out.funcs[n] = FuncLabels{Entry: lb.newLabel(), Exit: lb.newLabel()}
		lb.visitStmt(n.Body)

	case *IfStmt:
		lb.out.ifs[n] = IfLabels{Else: lb.newLabel(), End: lb.newLabel()}
		lb.visitStmt(n.Then)
		if n.Else != nil {
			lb.visitStmt(n.Else)
		}

	case *WhileStmt:
		lb.out.whiles[n] = LoopLabels{Test: lb.newLabel(), Exit: lb.newLabel()}
		lb.visitStmt(n.Body)

	case *Block:
		for _, child := range n.Stmts {
			lb.visitStmt(child)
		}

	case *VarDecl, *ReturnStmt, *PrintStmt, *ExprStmt:
		// Expressions carry no jump targets.
	}
}
