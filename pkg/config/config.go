// Package config loads impc settings from TOML or YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"

	EnvConfig   = "IMPC_CONFIG"
	EnvEndpoint = "IMPC_OTEL_ENDPOINT"
)

type Format string

type Config struct {
	Output     Output     `toml:"output"     yaml:"output"`
	Normalizer Normalizer `toml:"normalizer" yaml:"normalizer"`
	Log        Log        `toml:"log"        yaml:"log"`
	Telemetry  Telemetry  `toml:"telemetry"  yaml:"telemetry"`
}

type Output struct {
	Suffix   string `toml:"suffix"   yaml:"suffix"`
	Comments bool   `toml:"comments" yaml:"comments"`
}

type Normalizer struct {
	Mode         string   `toml:"mode"         yaml:"mode"`
	Command      []string `toml:"command"      yaml:"command"`
	Intermediate string   `toml:"intermediate" yaml:"intermediate"`
}

type Log struct {
	Level string `toml:"level" yaml:"level"`
}

type Telemetry struct {
	Endpoint    string            `toml:"endpoint"     yaml:"endpoint"`
	Insecure    bool              `toml:"insecure"     yaml:"insecure"`
	Headers     map[string]string `toml:"headers"      yaml:"headers,omitempty"`
	ServiceName string            `toml:"service_name" yaml:"service_name"`
}

// Source records where a Config came from. Path is empty for defaults.
type Source struct {
	Path   string
	Format Format
}

func Default() Config {
	return Config{
		Output:     Output{Suffix: ".s", Comments: true},
		Normalizer: Normalizer{Mode: "builtin", Intermediate: "preop1_optimized.txt"},
		Log:        Log{Level: "info"},
		Telemetry:  Telemetry{ServiceName: "impc"},
	}
}

// Load resolves the configuration file. An explicit path, then the file
// named by $IMPC_CONFIG, must exist; ./impc.toml and ./impc.yaml are
// optional. Parse errors fail immediately. getenv may be nil.
func Load(explicit string, getenv func(string) string) (Config, Source, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	var required string
	switch {
	case explicit != "":
		required = explicit
	case getenv(EnvConfig) != "":
		required = getenv(EnvConfig)
	}

	var (
		cfg Config
		src Source
		err error
	)
	if required != "" {
		cfg, src, err = loadFile(required)
		if err != nil {
			return Config{}, Source{}, err
		}
	} else {
		cfg, src, err = loadFirst("impc.toml", "impc.yaml", "impc.yml")
		if err != nil {
			return Config{}, Source{}, err
		}
	}

	if endpoint := strings.TrimSpace(getenv(EnvEndpoint)); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, Source{}, fmt.Errorf("config %s: %w", describe(src), err)
	}
	return cfg, src, nil
}

func describe(src Source) string {
	if src.Path == "" {
		return "defaults"
	}
	return fmt.Sprintf("%q", src.Path)
}

// missing files just skip to the next candidate.
func loadFirst(candidates ...string) (Config, Source, error) {
	var accumulated error
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(accumulated, fmt.Errorf("read config %q: %w", path, err))
			continue
		}
		format, err := FormatOf(path)
		if err != nil {
			return Config{}, Source{}, err
		}
		cfg, err := Decode(data, format)
		if err != nil {
			return Config{}, Source{}, fmt.Errorf("parse config %q: %w", path, err)
		}
		return cfg, Source{Path: path, Format: format}, nil
	}
	if accumulated != nil {
		return Config{}, Source{}, accumulated
	}
	return Default(), Source{Format: FormatTOML}, nil
}

func loadFile(path string) (Config, Source, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Config{}, Source{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, Source{}, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg, err := Decode(data, format)
	if err != nil {
		return Config{}, Source{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, Source{Path: path, Format: format}, nil
}

// FormatOf picks the decoder from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("config %q: unsupported extension (want .toml, .yaml or .yml)", path)
}

// Decode parses data over the defaults, so absent keys keep their default.
func Decode(data []byte, format Format) (Config, error) {
	cfg := Default()
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", format)
	}
	return cfg, nil
}

// Encode writes cfg in format.
func Encode(w io.Writer, cfg Config, format Format) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatTOML, "":
		data, err = toml.Marshal(cfg)
	case FormatYAML:
		data, err = yaml.Marshal(cfg)
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func (c Config) Validate() error {
	if !strings.HasPrefix(c.Output.Suffix, ".") || len(c.Output.Suffix) < 2 {
		return fmt.Errorf("output.suffix %q must start with '.'", c.Output.Suffix)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(l.Level) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
