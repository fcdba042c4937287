package normalize

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"

	"impc/pkg/compiler"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func writeSource(t *testing.T, dir, src string) string {
	t.Helper()
	path := filepath.Join(dir, "prog.imp")
	be.Err(t, os.WriteFile(path, []byte(src), 0o644), nil)
	return path
}

func TestCommandReadsIntermediate(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "x = 1 + 2;\n")

	// $1 is the source path appended by Command.
	c := &Command{
		Argv: []string{"sh", "-c", `sed 's/1 + 2/3/' "$1" > ` + DefaultIntermediate, "sh"},
		Dir:  dir,
	}
	out, err := c.Normalize(context.Background(), path)
	be.Err(t, err, nil)
	be.Equal(t, out, "x = 3;\n")
}

func TestCommandCustomIntermediate(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "print(1);\n")

	c := &Command{
		Argv:         []string{"sh", "-c", `cp "$1" normalized.imp`, "sh"},
		Intermediate: "normalized.imp",
		Dir:          dir,
	}
	out, err := c.Normalize(context.Background(), path)
	be.Err(t, err, nil)
	be.Equal(t, out, "print(1);\n")
}

func TestCommandFailure(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "x = 1;\n")

	c := &Command{Argv: []string{"sh", "-c", "echo 'bad input' >&2; exit 3", "sh"}, Dir: dir}
	_, err := c.Normalize(context.Background(), path)

	var perr *PreprocessingError
	be.Equal(t, errors.As(err, &perr), true)
	be.Equal(t, perr.ExitCode, 3)
	be.Equal(t, perr.Stderr, "bad input\n")
	be.Err(t, err, "exited with status 3: bad input")
}

func TestCommandMissingIntermediate(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "x = 1;\n")

	c := &Command{Argv: []string{"sh", "-c", "true", "sh"}, Dir: dir}
	_, err := c.Normalize(context.Background(), path)

	var ioErr *compiler.IOError
	be.Equal(t, errors.As(err, &ioErr), true)
	be.Equal(t, ioErr.Op, "read intermediate")
	be.Equal(t, ioErr.Path, filepath.Join(dir, DefaultIntermediate))
}

func TestCommandNotFound(t *testing.T) {
	c := &Command{Argv: []string{"impc-no-such-normalizer"}}
	_, err := c.Normalize(context.Background(), "prog.imp")

	var perr *PreprocessingError
	be.Equal(t, errors.As(err, &perr), true)
	be.Equal(t, perr.ExitCode, 0)
	be.Err(t, err, exec.ErrNotFound)
}

func TestCommandCancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Command{Argv: []string{"sh", "-c", "sleep 5", "sh"}, Dir: t.TempDir()}
	_, err := c.Normalize(ctx, "prog.imp")

	var perr *PreprocessingError
	be.Equal(t, errors.As(err, &perr), true)
}

func TestCommandEmptyArgv(t *testing.T) {
	_, err := (&Command{}).Normalize(context.Background(), "prog.imp")
	be.Err(t, err, "no command configured")
}
