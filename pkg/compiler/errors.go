package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ArgumentError reports a malformed command line.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return e.Msg }

// IOError reports a failure to read the source or write the listing.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// LexicalError reports input that no token production matches.
type LexicalError struct {
	Text string // offending character or substring
	Msg  string
	Pos  Pos
}

func (e *LexicalError) Error() string {
	return fmt.Sprintf("lexical error at %s: %s (%q)", e.Pos, e.Msg, e.Text)
}

// SyntaxError reports the first token that cannot extend the current production.
type SyntaxError struct {
	Expected string
	Found    Token
	Pos      Pos
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s: expected %s, found %s", e.Pos, e.Expected, e.Found.describe())
}

// CodeGenError reports an undeclared reference, an arity mismatch or an
// unresolved label. Pos is the zero Pos when no source node applies.
type CodeGenError struct {
	Msg string
	Pos Pos
}

func (e *CodeGenError) Error() string {
	if e.Pos.Line == 0 {
		return "codegen error: " + e.Msg
	}
	return fmt.Sprintf("codegen error at %s: %s", e.Pos, e.Msg)
}

func codegenErrorf(pos Pos, format string, args ...any) error {
	return &CodeGenError{Msg: fmt.Sprintf(format, args...), Pos: pos}
}

// WithSnippet decorates lexical and syntax errors with the offending source
// line and a caret under the column. Other errors are returned unchanged.
func WithSnippet(err error, src string) error {
	var pos Pos
	var lexErr *LexicalError
	var synErr *SyntaxError
	switch {
	case errors.As(err, &lexErr):
		pos = lexErr.Pos
	case errors.As(err, &synErr):
		pos = synErr.Pos
	default:
		return err
	}

	lines := strings.Split(src, "\n")
	if pos.Line < 1 || pos.Line > len(lines) {
		return err
	}
	line := strings.TrimRight(lines[pos.Line-1], "\r")
	col := pos.Col
	if col < 1 {
		col = 1
	}
	gutter := fmt.Sprintf("%4d | ", pos.Line)
	caret := strings.Repeat(" ", len(gutter)+col-1) + "^"
	return &snippetError{err: err, snippet: gutter + line + "\n" + caret}
}

type snippetError struct {
	err     error
	snippet string
}

func (e *snippetError) Error() string { return e.err.Error() + "\n" + e.snippet }
func (e *snippetError) Unwrap() error { return e.err }
