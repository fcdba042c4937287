package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/alecthomas/chroma/quick"

	"impc/pkg/compiler"
	"impc/pkg/config"
	"impc/pkg/normalize"
	"impc/pkg/telemetry"
	"impc/pkg/utils"
)

var usage = heredoc.Doc(`
	usage: impc [flags] <source>

	Compiles one Imp source file to x86-64 GNU assembler. The listing is
	written next to the source with its extension replaced by ".s".

	flags:
`)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	verbose    bool
	print      bool
	normalizer string
	tokens     bool
	ast        bool
	dumpConfig bool
}

func parseArgs(args []string, stderr io.Writer) (options, string, error) {
	var opts options
	fs := flag.NewFlagSet("impc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "configuration file (.toml or .yaml)")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	fs.BoolVar(&opts.print, "print", false, "also write the listing to stdout")
	fs.StringVar(&opts.normalizer, "normalizer", "", "builtin, command or none (overrides config)")
	fs.BoolVar(&opts.tokens, "tokens", false, "dump tokens to stdout")
	fs.BoolVar(&opts.ast, "ast", false, "dump the AST as an s-expression to stdout")
	fs.BoolVar(&opts.dumpConfig, "dump-config", false, "print the effective configuration and exit")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, "", err
		}
		return opts, "", &compiler.ArgumentError{Msg: err.Error()}
	}
	if opts.dumpConfig {
		return opts, "", nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, "", &compiler.ArgumentError{Msg: fmt.Sprintf("expected exactly one source file, got %d", fs.NArg())}
	}
	return opts, fs.Arg(0), nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, path, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "argument error:", err)
		return 1
	}

	cfg, src, err := config.Load(opts.configPath, nil)
	if err != nil {
		fmt.Fprintln(stderr, "config error:", err)
		return 1
	}
	if opts.normalizer != "" {
		cfg.Normalizer.Mode = opts.normalizer
	}
	if opts.dumpConfig {
		if err := config.Encode(stdout, cfg, src.Format); err != nil {
			fmt.Fprintln(stderr, "config error:", err)
			return 1
		}
		return 0
	}

	level, _ := cfg.Log.SlogLevel()
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	if src.Path != "" {
		logger.Debug("loaded config", "path", src.Path, "format", src.Format)
	}

	inst, err := telemetry.New(telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		fmt.Fprintln(stderr, "telemetry error:", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()
	ctx := telemetry.NewContext(context.Background(), inst)

	if err := compileFile(ctx, logger, cfg, opts, path, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func compileFile(ctx context.Context, logger *slog.Logger, cfg config.Config, opts options, path string, stdout io.Writer) error {
	fullPath, _, err := utils.GetPathInfo(path)
	if err != nil {
		return &compiler.IOError{Op: "resolve", Path: path, Err: err}
	}
	if _, err := os.Stat(fullPath); err != nil {
		return &compiler.IOError{Op: "open", Path: path, Err: err}
	}

	mode, err := normalize.ParseMode(cfg.Normalizer.Mode)
	if err != nil {
		return &compiler.ArgumentError{Msg: err.Error()}
	}
	norm, err := normalize.New(mode, cfg.Normalizer.Command, cfg.Normalizer.Intermediate)
	if err != nil {
		return &compiler.ArgumentError{Msg: err.Error()}
	}
	if b, ok := norm.(*normalize.Builtin); ok {
		b.Logger = logger
	}

	start := time.Now()
	_, span := telemetry.FromContext(ctx).Stage(ctx, "normalize")
	src, err := norm.Normalize(ctx, fullPath)
	span.End(err)
	if err != nil {
		return err
	}
	logger.Debug("normalized", "mode", mode, "bytes", len(src), "elapsed", time.Since(start))

	if opts.tokens {
		tokens, err := compiler.Lex(src)
		if err != nil {
			return compiler.WithSnippet(err, src)
		}
		fmt.Fprintf(stdout, "Tokens (%d)\n", len(tokens))
		for _, tok := range tokens {
			fmt.Fprintln(stdout, " ", tok)
		}
	}
	if opts.ast {
		prog, err := compiler.Parse(src)
		if err != nil {
			return compiler.WithSnippet(err, src)
		}
		fmt.Fprintln(stdout, compiler.ToSExpr(prog))
	}

	start = time.Now()
	result, err := compiler.Compile(ctx, src, compiler.Options{Comments: cfg.Output.Comments})
	if err != nil {
		return compiler.WithSnippet(err, src)
	}
	logger.Debug("compiled", "labels", result.Labels, "instructions", result.Instructions, "elapsed", time.Since(start))

	out := utils.OutputPath(path, cfg.Output.Suffix)
	logger.Info("generating assembly into " + out)
	if err := utils.WriteFileAtomic(out, []byte(result.Assembly), 0o644); err != nil {
		return &compiler.IOError{Op: "write", Path: out, Err: err}
	}

	if opts.print {
		if err := quick.Highlight(stdout, result.Assembly, "gas", "terminal256", "monokai"); err != nil {
			logger.Debug("highlight failed, printing plain listing", "err", err)
			fmt.Fprint(stdout, result.Assembly)
		}
	}
	return nil
}
