// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("qmm", "1.0.0", "json", &buf)

	logger.Info("test message")

	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err, "Failed to parse JSON: %s", buf.String())

	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "qmm", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.NotContains(t, entry, "instance")
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("qmm", "1.0.0", "json", &buf)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestSetup_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("qmm", "1.0.0", "json", &buf)

	logger.Info("no trace message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("qmmctl", "1.0.0", "text", &buf)

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "qmmctl", "Output missing service")
}

func TestSetup_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("qmm", "1.0.0", "", &buf)

	logger.Info("test message")

	// Default should be JSON
	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err, "Default format should be JSON")
}

func TestNew_InstanceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{
		Service:  "qmm",
		Version:  "1.0.0",
		Instance: "01J9ZQ7X8Y3ABCDEF",
		Format:   "json",
		Level:    slog.LevelInfo,
	}, &buf)

	logger.Debug("hidden")
	logger.With("plugin", "stats").Info("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "01J9ZQ7X8Y3ABCDEF", entry["instance"])
	assert.Equal(t, "stats", entry["plugin"])
}

func TestNew_MirrorReceivesWarnings(t *testing.T) {
	var main, console bytes.Buffer
	logger := New(Options{
		Service:     "qmm",
		Format:      "json",
		Level:       slog.LevelDebug,
		Mirror:      &console,
		MirrorLevel: slog.LevelWarn,
	}, &main)

	logger.Info("routine")
	logger.Warn("plugin declined attach", "plugin", "stats")

	assert.Equal(t, 2, strings.Count(main.String(), "\n"))

	mirrored := console.String()
	assert.NotContains(t, mirrored, "routine")
	assert.Contains(t, mirrored, "plugin declined attach")
	assert.Contains(t, mirrored, "plugin=stats")
	assert.NotContains(t, mirrored, "time=")
}

func TestNew_MirrorKeepsGroups(t *testing.T) {
	var main, console bytes.Buffer
	logger := New(Options{Format: "text", Mirror: &console, MirrorLevel: slog.LevelError}, &main)

	logger.WithGroup("hook").Error("failed", "phase", "pre")

	assert.Contains(t, main.String(), "hook.phase=pre")
	assert.Contains(t, console.String(), "hook.phase=pre")
}

func TestSetDefault(t *testing.T) {
	// Capture original default logger
	original := slog.Default()
	defer slog.SetDefault(original)

	SetDefault("test-service", "2.0.0", "json")

	assert.NotEqual(t, original, slog.Default(), "SetDefault did not change the default logger")
}
