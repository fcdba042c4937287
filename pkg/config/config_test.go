package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
	"github.com/nalgeon/be"
)

func noEnv(string) string { return "" }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaultsWhenNothingExists(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, src, err := Load("", noEnv)
	be.Err(t, err, nil)
	be.Equal(t, cfg, Default())
	be.Equal(t, src.Path, "")
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "impc.toml", heredoc.Doc(`
		[output]
		suffix = ".asm"

		[normalizer]
		mode = "command"
		command = ["python3", "preopt1.py"]

		[log]
		level = "debug"
	`))

	cfg, src, err := Load("", noEnv)
	be.Err(t, err, nil)
	be.Equal(t, src.Format, FormatTOML)
	be.Equal(t, cfg.Output.Suffix, ".asm")
	be.Equal(t, cfg.Output.Comments, true) // default kept
	be.Equal(t, cfg.Normalizer.Mode, "command")
	be.Equal(t, cfg.Normalizer.Command, []string{"python3", "preopt1.py"})
	be.Equal(t, cfg.Normalizer.Intermediate, "preop1_optimized.txt")

	level, err := cfg.Log.SlogLevel()
	be.Err(t, err, nil)
	be.Equal(t, level, slog.LevelDebug)
}

func TestLoadYAMLFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", heredoc.Doc(`
		output:
		  comments: false
		telemetry:
		  endpoint: localhost:4317
		  insecure: true
		  headers:
		    authorization: Bearer abc
	`))
	env := map[string]string{EnvConfig: path}

	cfg, src, err := Load("", func(k string) string { return env[k] })
	be.Err(t, err, nil)
	be.Equal(t, src.Path, path)
	be.Equal(t, src.Format, FormatYAML)
	be.Equal(t, cfg.Output.Comments, false)
	be.Equal(t, cfg.Output.Suffix, ".s")
	be.Equal(t, cfg.Telemetry.Endpoint, "localhost:4317")
	be.Equal(t, cfg.Telemetry.Insecure, true)
	be.Equal(t, cfg.Telemetry.Headers, map[string]string{"authorization": "Bearer abc"})
}

func TestEndpointEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	env := map[string]string{EnvEndpoint: "collector:4317"}

	cfg, _, err := Load("", func(k string) string { return env[k] })
	be.Err(t, err, nil)
	be.Equal(t, cfg.Telemetry.Endpoint, "collector:4317")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	badTOML := writeFile(t, dir, "bad.toml", "[output\nsuffix = 1\n")
	badSuffix := writeFile(t, dir, "suffix.toml", "[output]\nsuffix = \"s\"\n")
	badLevel := writeFile(t, dir, "level.yaml", "log:\n  level: loud\n")
	badExt := writeFile(t, dir, "impc.json", "{}")

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing explicit file", filepath.Join(dir, "nope.toml"), "read config"},
		{"parse error", badTOML, "parse config"},
		{"suffix without dot", badSuffix, "output.suffix"},
		{"unknown log level", badLevel, "log.level"},
		{"unsupported extension", badExt, "unsupported extension"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Load(tc.path, noEnv)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			be.Equal(t, strings.Contains(err.Error(), tc.want), true)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatTOML, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			want := Default()
			want.Normalizer.Command = []string{"python3", "preopt1.py"}

			var buf bytes.Buffer
			be.Err(t, Encode(&buf, want, format), nil)

			got, err := Decode(buf.Bytes(), format)
			be.Err(t, err, nil)
			be.Equal(t, got, want)
		})
	}
}
