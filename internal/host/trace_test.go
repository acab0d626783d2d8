// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/holomush/qmm/pkg/qmmapi"
)

func recordSpans(t *testing.T) (*tracetest.SpanRecorder, Option) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, WithTracerProvider(tp)
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestHost_StartAndShutdownSpans(t *testing.T) {
	sr, withTracing := recordSpans(t)
	f := newFixture(t)
	f.addNativeMod()
	f.addPlugin("first")
	h := f.host(t, withTracing)

	h.VMMain(cmdInit, qmmapi.VMMainArgs{})
	h.VMMain(cmdShutdown, qmmapi.VMMainArgs{})

	ended := sr.Ended()
	require.Len(t, ended, 2)

	start := ended[0]
	assert.Equal(t, "host.start", start.Name())
	assert.Equal(t, codes.Unset, start.Status().Code)
	attrs := spanAttrs(start)
	assert.Equal(t, "TEST", attrs["qmm.game"].AsString())
	assert.Equal(t, modName, attrs["qmm.mod"].AsString())
	assert.False(t, attrs["qmm.vm"].AsBool())
	assert.Equal(t, int64(1), attrs["qmm.plugins_attached"].AsInt64())

	assert.Equal(t, "host.shutdown", ended[1].Name())
	assert.Equal(t, codes.Unset, ended[1].Status().Code)
}

func TestHost_FailedStartRecordsError(t *testing.T) {
	sr, withTracing := recordSpans(t)
	f := newFixture(t)
	f.cfg.Mod = modName
	h := f.host(t, withTracing)

	h.VMMain(cmdInit, qmmapi.VMMainArgs{})

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "host.start", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Status().Description, "no mod could be loaded")
	require.NotEmpty(t, ended[0].Events())
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}
