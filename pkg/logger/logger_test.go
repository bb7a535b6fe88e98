package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		level       string
		pretty      bool
		wantLevel   zerolog.Level
	}{
		{"info level pretty", "portfolio-service", "info", true, zerolog.InfoLevel},
		{"debug level json", "portfolio-service", "debug", false, zerolog.DebugLevel},
		{"invalid level defaults to info", "portfolio-service", "loud", false, zerolog.InfoLevel},
		{"empty level defaults to info", "portfolio-service", "", false, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Init(tt.serviceName, tt.level, tt.pretty)

			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("GlobalLevel() = %v, want %v", zerolog.GlobalLevel(), tt.wantLevel)
			}
		})
	}
}

func TestInitWithWriter_ServiceField(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "portfolio-service", "debug")

	Info().Str("portfolio_id", "p-1").Msg("portfolio created")

	out := buf.String()
	if !strings.Contains(out, `"service":"portfolio-service"`) {
		t.Errorf("output %q should carry the service field", out)
	}
	if !strings.Contains(out, `"portfolio_id":"p-1"`) {
		t.Errorf("output %q should carry the portfolio_id field", out)
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "test", "debug")

	Debug().Msg("debug message")
	Info().Msg("info message")
	Warn().Msg("warn message")
	Error().Msg("error message")

	output := buf.String()
	for _, want := range []string{"debug message", "info message", "warn message", "error message"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q", want)
		}
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "test", "info")

	l := Component("valuation")
	l.Info().Msg("run finished")

	if !strings.Contains(buf.String(), `"component":"valuation"`) {
		t.Errorf("component field missing from %q", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "test", "info")

	l := WithContext(context.Background())
	l.Info().Msg("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Error("trace_id should be absent without a span")
	}

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	buf.Reset()
	l = WithContext(ctx)
	l.Info().Msg("with span")
	if !strings.Contains(buf.String(), span.SpanContext().TraceID().String()) {
		t.Errorf("output %q should carry the trace id", buf.String())
	}
}
