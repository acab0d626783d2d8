// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/qmm/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, status *Status) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0")
	server.SetStatus(status)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, nil)
	require.NotEmpty(t, server.Addr())

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "# TYPE")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")

	server.Metrics().ModLoads.WithLabelValues("qvm", "failed").Inc()
	server.Metrics().VMFaults.Inc()

	_, body = get(t, server, "/metrics")
	assert.Contains(t, body, `qmm_mod_load_attempts_total{kind="qvm",outcome="failed"} 1`)
	assert.Contains(t, body, "qmm_vm_faults_total 1")
}

func TestServer_RegistryServesExternalCollectors(t *testing.T) {
	server := startServer(t, nil)

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "qmm_test_gauge", Help: "test"})
	server.Registry().MustRegister(gauge)
	gauge.Set(3)

	_, body := get(t, server, "/metrics")
	assert.Contains(t, body, "qmm_test_gauge 3")
}

func TestServer_Health(t *testing.T) {
	loaded := &Status{Game: "Q3A", Mod: "native qagamex86_64.so"}
	tests := []struct {
		name   string
		status *Status
		path   string
		code   int
		body   string
	}{
		{"liveness", nil, "/healthz/liveness", http.StatusOK, "ok"},
		{"ready", loaded, "/healthz/readiness", http.StatusOK, "ok"},
		{"no mod", &Status{Game: "Q3A"}, "/healthz/readiness", http.StatusServiceUnavailable, "not ready"},
		{"no snapshot", nil, "/healthz/readiness", http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.status)

			code, body := get(t, server, tt.path)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.body, strings.TrimSpace(body))
		})
	}
}

func TestServer_Status(t *testing.T) {
	server := startServer(t, nil)

	_, body := get(t, server, "/status")
	assert.JSONEq(t, `{"game":"","vm":false,"plugins":[]}`, body)

	server.SetStatus(&Status{
		Game:    "Q3A",
		Mod:     "qvm vm/qagame.qvm",
		VM:      true,
		Plugins: []PluginStatus{{Name: "stats", Version: "1.2.0", Path: "/srv/q3/baseq3/stats.so"}},
	})
	code, body := get(t, server, "/status")
	assert.Equal(t, http.StatusOK, code)

	var got Status
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "qvm vm/qagame.qvm", got.Mod)
	assert.True(t, got.VM)
	require.Len(t, got.Plugins, 1)
	assert.Equal(t, "stats", got.Plugins[0].Name)

	server.SetStatus(nil)
	assert.False(t, server.Ready())
}

func TestServer_LogsToConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	server := NewServer("127.0.0.1:0", WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	_, err := server.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	assert.Contains(t, buf.String(), "observability server started")
	assert.Contains(t, buf.String(), "observability server stopped")
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	_, err := server.Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_RUNNING")
}

func TestServer_ListenFailure(t *testing.T) {
	server := NewServer("256.0.0.1:bad")
	_, err := server.Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, server.Stop(ctx), "a failed start leaves nothing to stop")
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Stop(ctx), "stop without start should not error")
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0")
	errCh, err := server.Start()
	require.NoError(t, err)

	// Closing the listener under Serve makes it fail.
	require.NotNil(t, server.listener)
	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0")
	errCh, err := server.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ModLoads.WithLabelValues("native", "loaded").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModLoads.WithLabelValues("native", "loaded")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ModLoads)+testutil.CollectAndCount(m.VMFaults))
}
