package compiler

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"impc/pkg/listing"
	"impc/pkg/telemetry"
)

// Result is a successful compilation.
type Result struct {
	Assembly     string
	Labels       int // jump targets allocated by ResolveLabels
	Instructions int // instruction lines in Assembly
}

// Compile runs the whole pipeline on normalized source: lex and parse,
// resolve labels, generate, then verify the listing. Each stage is traced
// with the instrumenter carried by ctx.
func Compile(ctx context.Context, src string, opts Options) (*Result, error) {
	inst := telemetry.FromContext(ctx)

	_, span := inst.Stage(ctx, "lex+parse")
	prog, err := Parse(src)
	span.End(err)
	if err != nil {
		return nil, err
	}

	_, span = inst.Stage(ctx, "resolve")
	labeled := ResolveLabels(prog)
	span.SetAttributes(attribute.Int("impc.labels", labeled.Count()))
	span.End(nil)

	_, span = inst.Stage(ctx, "generate")
	var sb strings.Builder
	err = Generate(&sb, labeled, opts)
	span.End(err)
	if err != nil {
		return nil, err
	}
	assembly := sb.String()

	_, span = inst.Stage(ctx, "verify")
	parsed, err := listing.Parse(assembly)
	if err == nil {
		err = parsed.Verify(listing.DefaultExternals)
	}
	span.End(err)
	if err != nil {
		return nil, fmt.Errorf("generated listing is invalid: %w", err)
	}

	return &Result{
		Assembly:     assembly,
		Labels:       labeled.Count(),
		Instructions: parsed.Instructions(),
	}, nil
}
