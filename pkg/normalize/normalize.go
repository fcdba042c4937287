// Package normalize rewrites Imp source before it reaches the lexer.
//
// Three normalizers are provided: Builtin (object-like #define substitution
// followed by constant folding), Command (an external program that writes
// its result to a fixed intermediate file) and None.
package normalize

import (
	"context"
	"fmt"
	"os"
	"strings"

	"impc/pkg/compiler"
)

// Normalizer turns the file at path into the source text handed to the
// lexer.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

// Mode names a normalizer in configuration and on the command line.
type Mode string

const (
	ModeBuiltin Mode = "builtin"
	ModeCommand Mode = "command"
	ModeNone    Mode = "none"
)

// DefaultIntermediate is the file the external normalizer is expected to
// write into the working directory.
const DefaultIntermediate = "preop1_optimized.txt"

// ParseMode validates a mode name. The empty string selects ModeBuiltin.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeBuiltin, nil
	case ModeBuiltin, ModeCommand, ModeNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown normalizer %q (want builtin, command or none)", s)
}

// New builds the normalizer for mode. argv and intermediate are only used
// by ModeCommand.
func New(mode Mode, argv []string, intermediate string) (Normalizer, error) {
	switch mode {
	case ModeBuiltin, "":
		return &Builtin{}, nil
	case ModeNone:
		return None{}, nil
	case ModeCommand:
		if len(argv) == 0 {
			return nil, fmt.Errorf("normalizer %q needs a command", mode)
		}
		return &Command{Argv: argv, Intermediate: intermediate}, nil
	}
	return nil, fmt.Errorf("unknown normalizer %q", mode)
}

// PreprocessingError reports a failed normalization step.
type PreprocessingError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *PreprocessingError) Error() string {
	var sb strings.Builder
	sb.WriteString("preprocessing failed")
	if e.Command != "" {
		fmt.Fprintf(&sb, ": %s", e.Command)
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&sb, " exited with status %d", e.ExitCode)
	}
	if e.Err != nil && e.ExitCode == 0 {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		fmt.Fprintf(&sb, ": %s", firstLine(msg))
	}
	return sb.String()
}

func (e *PreprocessingError) Unwrap() error { return e.Err }

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// None hands the file to the lexer unchanged.
type None struct{}

func (None) Normalize(_ context.Context, path string) (string, error) {
	return readSource("open", path)
}

func readSource(op, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &compiler.IOError{Op: op, Path: path, Err: err}
	}
	return string(data), nil
}
