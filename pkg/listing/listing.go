// Package listing parses the x86-64 GNU assembler text emitted by the
// compiler and checks it for the mistakes an assembler would only report
// later: duplicate labels, jumps to labels that were never defined and
// mnemonics outside the emitted subset.
package listing

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// jumpOps transfer control to a label operand.
var jumpOps = map[string]bool{
	"jmp": true, "je": true, "jne": true, "call": true,
}

// instructionOps lists every instruction mnemonic the code generator uses.
var instructionOps = map[string]bool{
	"pushq": true, "popq": true, "movq": true, "movabsq": true, "movzbq": true,
	"leaq": true, "addq": true, "subq": true, "imulq": true, "idivq": true,
	"negq": true, "cqto": true, "cmpq": true, "xorl": true, "andb": true,
	"orb": true, "sete": true, "setne": true, "setl": true, "setle": true,
	"setg": true, "setge": true, "ret": true,
}

var directives = map[string]bool{
	".text": true, ".data": true, ".section": true, ".globl": true,
	".quad": true, ".string": true,
}

// DefaultExternals are symbols resolved by the linker rather than the
// listing itself.
var DefaultExternals = []string{"printf"}

// Line is one parsed source line.
type Line struct {
	No       int
	Labels   []string
	Mnemonic string
	Operands []string
}

// Listing is a parsed assembly file.
type Listing struct {
	Lines  []Line
	Labels map[string]int // label -> defining line
}

// Error locates a problem in the listing.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("listing line %d: %s", e.Line, e.Msg)
}

func errorf(lineNo int, format string, args ...any) error {
	return &Error{Line: lineNo, Msg: fmt.Sprintf(format, args...)}
}

// Parse splits code into lines and records every label definition,
// rejecting duplicates.
func Parse(code string) (*Listing, error) {
	l := &Listing{Labels: make(map[string]int)}
	for i, raw := range strings.Split(code, "\n") {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}
		for _, lbl := range p.Labels {
			if prev, exists := l.Labels[lbl]; exists {
				return nil, errorf(lineNo, "duplicate label %q (first defined on line %d)", lbl, prev)
			}
			l.Labels[lbl] = lineNo
		}
		if p.Mnemonic != "" || len(p.Labels) > 0 {
			l.Lines = append(l.Lines, p)
		}
	}
	return l, nil
}

// Check parses code and verifies every symbol reference resolves to a
// label in the listing or to one of externals.
func Check(code string, externals ...string) error {
	l, err := Parse(code)
	if err != nil {
		return err
	}
	if len(externals) == 0 {
		externals = DefaultExternals
	}
	return l.Verify(externals)
}

// Verify checks mnemonics and symbol references.
func (l *Listing) Verify(externals []string) error {
	external := make(map[string]bool, len(externals))
	for _, name := range externals {
		external[name] = true
	}

	for _, p := range l.Lines {
		if p.Mnemonic == "" {
			continue
		}
		if strings.HasPrefix(p.Mnemonic, ".") {
			if !directives[p.Mnemonic] {
				return errorf(p.No, "unknown directive %s", p.Mnemonic)
			}
			continue
		}
		if !instructionOps[p.Mnemonic] && !jumpOps[p.Mnemonic] {
			return errorf(p.No, "unknown instruction %q", p.Mnemonic)
		}

		for _, op := range p.Operands {
			sym := symbolRef(p.Mnemonic, op)
			if sym == "" {
				continue
			}
			if _, ok := l.Labels[sym]; ok || external[sym] {
				continue
			}
			return errorf(p.No, "undefined label %q", sym)
		}
	}
	return nil
}

// Instructions counts instruction lines, ignoring directives and labels.
func (l *Listing) Instructions() int {
	n := 0
	for _, p := range l.Lines {
		if p.Mnemonic != "" && !strings.HasPrefix(p.Mnemonic, ".") {
			n++
		}
	}
	return n
}

// symbolRef returns the label an operand refers to, or "".
func symbolRef(mnemonic, op string) string {
	if strings.HasSuffix(op, "(%rip)") {
		return strings.TrimSuffix(op, "(%rip)")
	}
	if jumpOps[mnemonic] && isIdentifier(op) {
		return op
	}
	return ""
}

func parseLine(raw string, lineNo int) (Line, error) {
	p := Line{No: lineNo}

	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}
		beforeColon := line[:colon]
		if strings.ContainsAny(beforeColon, " \t\"") {
			break
		}
		if !isIdentifier(beforeColon) {
			return p, errorf(lineNo, "invalid label %q", beforeColon)
		}
		p.Labels = append(p.Labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	mnemonic, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		mnemonic, rest = line[:i], strings.TrimSpace(line[i+1:])
	}
	p.Mnemonic = strings.ToLower(mnemonic)

	if p.Mnemonic == ".string" {
		s, err := parseString(rest)
		if err != nil {
			return p, errorf(lineNo, "%v", err)
		}
		p.Operands = []string{s}
		return p, nil
	}

	rest = strings.TrimSpace(stripComment(rest))
	if rest != "" {
		p.Operands = splitOperands(rest)
	}
	return p, nil
}

// parseString unquotes a .string operand. GNU as octal escapes are also Go
// escapes.
func parseString(operand string) (string, error) {
	operand = strings.TrimSpace(operand)
	if len(operand) < 2 || operand[0] != '"' || operand[len(operand)-1] != '"' {
		return "", fmt.Errorf("invalid string literal %s", operand)
	}
	s, err := strconv.Unquote(operand)
	if err != nil {
		return "", fmt.Errorf("invalid string literal %s: %v", operand, err)
	}
	return s, nil
}

func stripComment(s string) string {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return s[:i]
			}
		}
	}
	return s
}

// splitOperands splits on commas outside parentheses and quotes.
func splitOperands(s string) []string {
	var ops []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 && !inQuote {
				ops = append(ops, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(ops, strings.TrimSpace(s[start:]))
}

// isIdentifier accepts assembler symbol names: letters, digits, '_' and
// '.', not starting with a digit.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}
	return true
}
