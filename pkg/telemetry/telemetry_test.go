package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStageRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{ServiceName: "impc-test"}, WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	_, span := inst.Stage(context.Background(), "generate")
	span.SetAttributes(attribute.Int("impc.labels", 4))
	span.End(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	ro := spans[0]
	if got := ro.Name(); got != "generate" {
		t.Fatalf("unexpected span name %q", got)
	}
	assertAttribute(t, ro, "impc.stage", "generate")
	assertAttribute(t, ro, "impc.labels", int64(4))
	if ro.Status().Code != codes.Ok {
		t.Fatalf("expected span status OK, got %v", ro.Status().Code)
	}
}

func TestStageRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{}, WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	_, span := inst.Stage(context.Background(), "lex+parse")
	span.End(errors.New("syntax error at 1:5"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	status := spans[0].Status()
	if status.Code != codes.Error || status.Description != "syntax error at 1:5" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(spans[0].Events()) == 0 {
		t.Fatalf("expected an exception event")
	}
}

func TestNoopWithoutEndpoint(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	if _, ok := inst.(noopInstrumenter); !ok {
		t.Fatalf("expected noop instrumenter, got %T", inst)
	}
	ctx, span := inst.Stage(context.Background(), "resolve")
	if ctx == nil || span == nil {
		t.Fatalf("noop stage returned nil")
	}
	span.End(nil)
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background()).(noopInstrumenter); !ok {
		t.Fatalf("expected noop instrumenter from empty context")
	}

	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{}, WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("New instrumenter: %v", err)
	}
	ctx := NewContext(context.Background(), inst)
	_, span := FromContext(ctx).Stage(ctx, "verify")
	span.End(nil)
	if len(recorder.Ended()) != 1 {
		t.Fatalf("expected span recorded through context instrumenter")
	}
}

func assertAttribute(t *testing.T, span sdktrace.ReadOnlySpan, key string, want interface{}) {
	t.Helper()
	for _, attr := range span.Attributes() {
		if string(attr.Key) != key {
			continue
		}
		switch v := want.(type) {
		case string:
			if attr.Value.AsString() == v {
				return
			}
		case int64:
			if attr.Value.AsInt64() == v {
				return
			}
		}
		t.Fatalf("attribute %s mismatch: got %v, want %v", key, attr.Value, want)
	}
	t.Fatalf("attribute %s not found", key)
}
