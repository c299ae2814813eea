package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailmate/chat-service/pkg/logger"
)

func TestInit_DevStd_TextOutput(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	logger.Init(logger.Config{
		Service: "chat",
		Version: "v0.0.1",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})
	slog.Info("relay connect", "identity", "alice")

	out := buf.String()
	req.False(strings.HasPrefix(strings.TrimSpace(out), "{"), "expected text output, got %s", out)
	req.Contains(out, "relay connect")
	req.Contains(out, "service=chat")
	req.Contains(out, "env=dev")
	req.Contains(out, "identity=alice")
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	logger.Init(logger.Config{
		Service:          "chat",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})
	slog.Info("booted", slog.String("k", "v"))

	var m map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &m), buf.String())
	req.Equal("booted", m["msg"])
	req.Equal("chat", m["service"])
	req.Equal("prod", m["env"])
	req.Equal("1.2.3", m["version"])
	req.Equal("INFO", m["level"])
	req.Equal("v", m["k"])
}

func TestInit_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Env: logger.EnvDev, Level: slog.LevelWarn, Output: &buf})

	slog.Debug("hidden")
	slog.Info("hidden too")
	slog.Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestParseLevelAndEnv(t *testing.T) {
	req := require.New(t)
	req.Equal(slog.LevelDebug, logger.ParseLevel("DEBUG"))
	req.Equal(slog.LevelWarn, logger.ParseLevel("warning"))
	req.Equal(slog.LevelError, logger.ParseLevel("error"))
	req.Equal(slog.LevelInfo, logger.ParseLevel("nonsense"))

	req.Equal(logger.EnvProd, logger.ParseEnv("production"))
	req.Equal(logger.EnvStage, logger.ParseEnv(" Staging "))
	req.Equal(logger.EnvDev, logger.ParseEnv(""))
}

func TestTraceAttrs(t *testing.T) {
	req := require.New(t)
	req.Nil(logger.TraceAttrs(context.Background()))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	attrs := logger.TraceAttrs(ctx)
	req.Len(attrs, 3)
	req.Equal("trace_id", attrs[0].Key)
	req.Equal("4bf92f3577b34da6a3ce929d0e0e4736", attrs[0].Value.String())
	req.Equal("span_id", attrs[1].Key)
	req.True(attrs[2].Value.Bool())
}

func TestWith_AddsTraceToLogger(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	req.Same(base, logger.With(context.Background(), base))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID}))

	logger.With(ctx, base).Info("x")
	req.Contains(buf.String(), "trace_id=4bf92f3577b34da6a3ce929d0e0e4736")
	req.Contains(buf.String(), "sampled=false")
}
