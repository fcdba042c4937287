package compiler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"impc/pkg/listing"
	"impc/pkg/telemetry"
)

func TestCompileEmptyProgram(t *testing.T) {
	res, err := Compile(context.Background(), "", DefaultOptions)
	be.Err(t, err, nil)

	be.Equal(t, res.Labels, 2)
	// push, mov, zero, restore, pop, ret
	be.Equal(t, res.Instructions, 6)
	be.Equal(t, strings.Contains(res.Assembly, "main:\n"), true)
	be.Equal(t, strings.HasSuffix(res.Assembly, ".section .note.GNU-stack,\"\",@progbits\n"), true)
}

func TestCompileUnterminatedString(t *testing.T) {
	res, err := Compile(context.Background(), "var s = \"abc;\nprint(s);", DefaultOptions)
	be.Equal(t, res == nil, true)

	var lexErr *LexicalError
	be.Equal(t, errors.As(err, &lexErr), true)
	be.Equal(t, lexErr.Pos, Pos{Line: 1, Col: 9})
}

func TestCompileSemanticError(t *testing.T) {
	_, err := Compile(context.Background(), "print(1);\nprint(nothing);", DefaultOptions)

	var cgErr *CodeGenError
	be.Equal(t, errors.As(err, &cgErr), true)
	be.Equal(t, cgErr.Pos, Pos{Line: 2, Col: 7})
}

// Every program that compiles must produce a self-consistent listing.
func TestCompileListingsVerify(t *testing.T) {
	programs := map[string]string{
		"arith":  "x = 1 + 2 * 3; print(x);",
		"string": `print("a \"quoted\" line\n");`,
		"loops": `
			var i = 0;
			var total = 0;
			while (i < 10) {
				if (i % 2 == 0) { total = total + i; } else { total = total - 1; }
				i = i + 1;
			}
			print(total);`,
		"functions": `
			fun fib(n) {
				if (n < 2) { return n; }
				return fib(n - 1) + fib(n - 2);
			}
			fun show(a, b, c) { print(a); print(b); print(c); }
			show(fib(10), -fib(3), !0 || 0);`,
		"user main": "var g; fun main() { g = 40 + 2; print(g); }",
		"big":       "x = 9223372036854775807; print(x);",
	}
	for name, src := range programs {
		t.Run(name, func(t *testing.T) {
			res, err := Compile(context.Background(), src, DefaultOptions)
			be.Err(t, err, nil)
			be.Err(t, listing.Check(res.Assembly), nil)
			be.Equal(t, res.Instructions > 0, true)
		})
	}
}

func TestCompileTracesStages(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := telemetry.New(telemetry.Config{}, telemetry.WithSpanProcessor(recorder))
	be.Err(t, err, nil)
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})
	ctx := telemetry.NewContext(context.Background(), inst)

	_, err = Compile(ctx, "var x = 1; while (x < 3) { x = x + 1; }", DefaultOptions)
	be.Err(t, err, nil)

	spans := recorder.Ended()
	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
		be.Equal(t, s.Status().Code, codes.Ok)
	}
	be.Equal(t, names, []string{"lex+parse", "resolve", "generate", "verify"})

	var labels int64
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "impc.labels" {
			labels = kv.Value.AsInt64()
		}
	}
	be.Equal(t, labels, int64(4))
}

func TestCompileTracesFailingStage(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := telemetry.New(telemetry.Config{}, telemetry.WithSpanProcessor(recorder))
	be.Err(t, err, nil)
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})
	ctx := telemetry.NewContext(context.Background(), inst)

	_, err = Compile(ctx, "print(y);", DefaultOptions)
	be.Equal(t, err != nil, true)

	spans := recorder.Ended()
	be.Equal(t, len(spans), 3)
	be.Equal(t, spans[2].Name(), "generate")
	be.Equal(t, spans[2].Status().Code, codes.Error)
}
