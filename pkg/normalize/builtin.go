package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// Builtin substitutes object-like #define macros and then folds constant
// integer expressions line by line. String literals and comments are
// never rewritten.
type Builtin struct {
	Logger *slog.Logger
}

func (b *Builtin) Normalize(_ context.Context, path string) (string, error) {
	src, err := readSource("open", path)
	if err != nil {
		return "", err
	}
	return b.Source(src)
}

// Source normalizes already-loaded text.
func (b *Builtin) Source(src string) (string, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	expanded, err := expandDefines(src)
	if err != nil {
		return "", err
	}

	lines := strings.Split(expanded, "\n")
	inComment := false
	for i, line := range lines {
		var segs []segment
		segs, inComment = split(line, inComment)
		var sb strings.Builder
		for _, seg := range segs {
			if seg.code {
				sb.WriteString(foldConstants(seg.text))
			} else {
				sb.WriteString(seg.text)
			}
		}
		if folded := sb.String(); folded != line {
			logger.Debug("constant folded", "line", i+1, "from", strings.TrimSpace(line), "to", strings.TrimSpace(folded))
			lines[i] = folded
		}
	}
	return strings.Join(lines, "\n"), nil
}

// expandDefines removes #define lines, keeping the line count intact, and
// substitutes each macro at identifier boundaries in the lines after it.
func expandDefines(src string) (string, error) {
	defines := make(map[string]string)
	lines := strings.Split(src, "\n")
	inComment := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inComment && strings.HasPrefix(trimmed, "#") {
			if !strings.HasPrefix(trimmed, "#define") {
				return "", &PreprocessingError{Err: fmt.Errorf("line %d: unsupported directive %q", i+1, firstWord(trimmed))}
			}
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "#define"))
			nameEnd := 0
			for nameEnd < len(rest) && isIdentPart(rest[nameEnd]) {
				nameEnd++
			}
			name := rest[:nameEnd]
			if name == "" || !isIdentStart(name[0]) {
				return "", &PreprocessingError{Err: fmt.Errorf("line %d: #define needs a name", i+1)}
			}
			rest = rest[nameEnd:]
			if strings.HasPrefix(rest, "(") {
				return "", &PreprocessingError{Err: fmt.Errorf("line %d: function-like macro %s is not supported", i+1, name)}
			}
			// The body is expanded now so later redefinitions do not leak in.
			defines[name] = applyDefines(strings.TrimSpace(rest), defines)
			lines[i] = ""
			continue
		}

		if len(defines) == 0 {
			_, inComment = split(line, inComment)
			continue
		}
		var segs []segment
		segs, inComment = split(line, inComment)
		var sb strings.Builder
		for _, seg := range segs {
			if seg.code {
				sb.WriteString(applyDefines(seg.text, defines))
			} else {
				sb.WriteString(seg.text)
			}
		}
		lines[i] = sb.String()
	}
	return strings.Join(lines, "\n"), nil
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

// applyDefines replaces whole identifiers found in defines. The input must
// be code only; split strips strings and comments beforehand.
func applyDefines(input string, defines map[string]string) string {
	if len(defines) == 0 {
		return input
	}
	var sb strings.Builder
	n := len(input)
	i := 0
	for i < n {
		if !isIdentStart(input[i]) {
			// Digits glued to letters ("2x") are not identifiers.
			if isIdentPart(input[i]) {
				for i < n && isIdentPart(input[i]) {
					sb.WriteByte(input[i])
					i++
				}
				continue
			}
			sb.WriteByte(input[i])
			i++
			continue
		}
		start := i
		for i < n && isIdentPart(input[i]) {
			i++
		}
		word := input[start:i]
		if body, ok := defines[word]; ok {
			sb.WriteString(body)
		} else {
			sb.WriteString(word)
		}
	}
	return sb.String()
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// segment is a piece of one line: either code or an opaque string literal
// or comment.
type segment struct {
	text string
	code bool
}

// split cuts line into code and opaque segments. inComment reports whether
// the line starts inside a block comment; the second result reports
// whether it ends inside one.
func split(line string, inComment bool) ([]segment, bool) {
	var segs []segment
	n := len(line)
	start := 0
	i := 0

	flush := func(end int, code bool) {
		if end > start {
			segs = append(segs, segment{text: line[start:end], code: code})
		}
		start = end
	}

	if inComment {
		end := strings.Index(line, "*/")
		if end < 0 {
			return []segment{{text: line}}, true
		}
		i = end + 2
		flush(i, false)
	}

	for i < n {
		switch {
		case line[i] == '"':
			flush(i, true)
			i++
			for i < n {
				c := line[i]
				i++
				if c == '\\' && i < n {
					i++
				} else if c == '"' {
					break
				}
			}
			flush(i, false)

		case strings.HasPrefix(line[i:], "//"):
			flush(i, true)
			i = n
			flush(i, false)

		case strings.HasPrefix(line[i:], "/*"):
			flush(i, true)
			end := strings.Index(line[i+2:], "*/")
			if end < 0 {
				flush(n, false)
				return segs, true
			}
			i += 2 + end + 2
			flush(i, false)

		default:
			i++
		}
	}
	flush(n, true)
	return segs, false
}

// Folding

type foldKind int

const (
	foldSpace foldKind = iota
	foldInt
	foldIdent
	foldOp
	foldOther
)

type foldToken struct {
	kind foldKind
	text string
}

var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

func scanFold(code string) []foldToken {
	var toks []foldToken
	n := len(code)
	i := 0
	for i < n {
		c := code[i]
		start := i
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			for i < n && (code[i] == ' ' || code[i] == '\t' || code[i] == '\r') {
				i++
			}
			toks = append(toks, foldToken{foldSpace, code[start:i]})
		case c >= '0' && c <= '9':
			for i < n && isIdentPart(code[i]) {
				i++
			}
			kind := foldInt
			if _, err := strconv.ParseInt(code[start:i], 10, 64); err != nil {
				kind = foldOther
			}
			toks = append(toks, foldToken{kind, code[start:i]})
		case isIdentStart(c):
			for i < n && isIdentPart(code[i]) {
				i++
			}
			toks = append(toks, foldToken{foldIdent, code[start:i]})
		default:
			width := 1
			for _, op := range twoCharOps {
				if strings.HasPrefix(code[i:], op) {
					width = 2
					break
				}
			}
			i += width
			kind := foldOther
			if precedence[code[start:i]] > 0 {
				kind = foldOp
			}
			toks = append(toks, foldToken{kind, code[start:i]})
		}
	}
	return toks
}

// precedence of Imp operators. Higher binds tighter; unknown text is 0.
var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
	"!": 7,
}

func precedenceOf(t foldToken) int {
	if t.kind != foldOp {
		return 0
	}
	return precedence[t.text]
}

// foldConstants repeatedly replaces "INT op INT" with its value for the
// operators + - * / and <, folding only where neither neighbour binds its
// operand tighter.
func foldConstants(code string) string {
	toks := scanFold(code)
	for {
		var sig []int
		for i, t := range toks {
			if t.kind != foldSpace {
				sig = append(sig, i)
			}
		}

		folded := false
		for k := 0; k+2 < len(sig); k++ {
			a, op, b := toks[sig[k]], toks[sig[k+1]], toks[sig[k+2]]
			if a.kind != foldInt || op.kind != foldOp || b.kind != foldInt {
				continue
			}
			p := precedence[op.text]
			if k > 0 && precedenceOf(toks[sig[k-1]]) >= p {
				continue
			}
			if k+3 < len(sig) && precedenceOf(toks[sig[k+3]]) > p {
				continue
			}
			v, ok := evaluate(op.text, a.text, b.text)
			if !ok {
				continue
			}
			replaced := append([]foldToken{}, toks[:sig[k]]...)
			replaced = append(replaced, foldToken{foldInt, strconv.FormatInt(v, 10)})
			toks = append(replaced, toks[sig[k+2]+1:]...)
			folded = true
			break
		}
		if !folded {
			break
		}
	}

	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.text)
	}
	return sb.String()
}

// evaluate applies op, reporting false on overflow, division by zero or
// an operator that is not folded.
func evaluate(op, lhs, rhs string) (int64, bool) {
	x, err := strconv.ParseInt(lhs, 10, 64)
	if err != nil {
		return 0, false
	}
	y, err := strconv.ParseInt(rhs, 10, 64)
	if err != nil {
		return 0, false
	}
	switch op {
	case "+":
		if (y > 0 && x > math.MaxInt64-y) || (y < 0 && x < math.MinInt64-y) {
			return 0, false
		}
		return x + y, true
	case "-":
		if (y < 0 && x > math.MaxInt64+y) || (y > 0 && x < math.MinInt64+y) {
			return 0, false
		}
		return x - y, true
	case "*":
		if x == 0 || y == 0 {
			return 0, true
		}
		r := x * y
		if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
			return 0, false
		}
		return r, true
	case "/":
		// Floor and truncating division agree only for non-negative operands.
		if y == 0 || x < 0 || y < 0 {
			return 0, false
		}
		return x / y, true
	case "<":
		if x < y {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
