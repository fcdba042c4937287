package normalize

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
)

// Command runs an external normalizer. The input path is appended to Argv
// and the program is expected to write its output to Intermediate inside
// Dir (the current directory when Dir is empty).
type Command struct {
	Argv         []string
	Intermediate string
	Dir          string
}

func (c *Command) Normalize(ctx context.Context, path string) (string, error) {
	if len(c.Argv) == 0 {
		return "", &PreprocessingError{Err: errors.New("no command configured")}
	}

	args := append(append([]string{}, c.Argv[1:]...), path)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)
	cmd.Dir = c.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		perr := &PreprocessingError{
			Command: strings.Join(c.Argv, " "),
			Stderr:  stderr.String(),
			Err:     err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		return "", perr
	}

	name := c.Intermediate
	if name == "" {
		name = DefaultIntermediate
	}
	if !filepath.IsAbs(name) && c.Dir != "" {
		name = filepath.Join(c.Dir, name)
	}
	return readSource("read intermediate", name)
}
