package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
	"github.com/nalgeon/be"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	be.Err(t, err, nil)
	return prog
}

var labelSource = heredoc.Doc(`
	fun f(n) {
		while (n > 0) {
			if (n % 2 == 0) { print(n); } else { print(0); }
			n = n - 1;
		}
		return n;
	}
	var x = 3;
	if (x) { x = f(x); }
	while (x < 10) { x = x + 1; }
`)

func collectLabels(l *Labeled) []Label {
	labels := []Label{l.entry.Entry, l.entry.Exit}
	for _, fl := range l.funcs {
		labels = append(labels, fl.Entry, fl.Exit)
	}
	for _, il := range l.ifs {
		labels = append(labels, il.Else, il.End)
	}
	for _, ll := range l.whiles {
		labels = append(labels, ll.Test, ll.Exit)
	}
	return labels
}

func TestResolveLabelsUnique(t *testing.T) {
	labeled := ResolveLabels(mustParse(t, labelSource))

	labels := collectLabels(labeled)
	be.Equal(t, len(labels), labeled.Count())

	seen := make(map[Label]bool)
	for _, l := range labels {
		be.Equal(t, l > 0, true)
		be.Equal(t, seen[l], false)
		seen[l] = true
	}
	// entry routine, f, two ifs, two whiles
	be.Equal(t, labeled.Count(), 12)
}

func TestResolveLabelsPreOrder(t *testing.T) {
	prog := mustParse(t, labelSource)
	labeled := ResolveLabels(prog)

	be.Equal(t, labeled.entry, FuncLabels{Entry: 1, Exit: 2})

	f := prog.Decls[0].(*FunctionDecl)
	fl, err := labeled.function(f)
	be.Err(t, err, nil)
	be.Equal(t, fl, FuncLabels{Entry: 3, Exit: 4})

	loop := f.Body.Stmts[0].(*WhileStmt)
	ll, err := labeled.loop(loop)
	be.Err(t, err, nil)
	be.Equal(t, ll, LoopLabels{Test: 5, Exit: 6})

	inner := loop.Body.Stmts[0].(*IfStmt)
	il, err := labeled.ifStmt(inner)
	be.Err(t, err, nil)
	be.Equal(t, il, IfLabels{Else: 7, End: 8})

	top := prog.Decls[2].(*IfStmt)
	il, err = labeled.ifStmt(top)
	be.Err(t, err, nil)
	be.Equal(t, il, IfLabels{Else: 9, End: 10})
}

// Two resolutions of equal trees agree, and a second run does not continue
// the first run's numbering.
func TestResolveLabelsDeterministic(t *testing.T) {
	first := ResolveLabels(mustParse(t, labelSource))
	second := ResolveLabels(mustParse(t, labelSource))
	be.Equal(t, first.Count(), second.Count())

	var a, b strings.Builder
	be.Err(t, Generate(&a, first, DefaultOptions), nil)
	be.Err(t, Generate(&b, second, DefaultOptions), nil)
	be.Equal(t, a.String(), b.String())
}

func TestResolveLabelsDoesNotModifyAST(t *testing.T) {
	prog := mustParse(t, labelSource)
	before := ToSExpr(prog)
	ResolveLabels(prog)
	be.Equal(t, ToSExpr(prog), before)
}

func TestGenerateRejectsUnresolvedProgram(t *testing.T) {
	var sb strings.Builder

	err := Generate(&sb, nil, DefaultOptions)
	var cgErr *CodeGenError
	be.Equal(t, errors.As(err, &cgErr), true)

	err = Generate(&sb, &Labeled{}, DefaultOptions)
	be.Equal(t, errors.As(err, &cgErr), true)
	be.Equal(t, sb.Len(), 0)
}

// Labels resolved for one tree do not cover the nodes of another.
func TestGenerateRejectsForeignLabels(t *testing.T) {
	prog := mustParse(t, labelSource)
	labeled := ResolveLabels(mustParse(t, labelSource))
	labeled.prog = prog

	var sb strings.Builder
	err := Generate(&sb, labeled, DefaultOptions)
	var cgErr *CodeGenError
	be.Equal(t, errors.As(err, &cgErr), true)
	be.Equal(t, strings.Contains(cgErr.Msg, "unresolved label"), true)
	be.Equal(t, sb.Len(), 0)
}
