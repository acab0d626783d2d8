// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context for the host.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Options configures a logger.
type Options struct {
	Service  string
	Version  string
	Instance string
	// Format is "json" or "text" (defaults to "json" if empty).
	Format string
	// Level is the minimum level written. Nil means debug.
	Level slog.Leveler
	// Mirror, when set, also receives records at MirrorLevel and above as
	// plain text lines without timestamps.
	Mirror      io.Writer
	MirrorLevel slog.Level
}

// identityHandler wraps a slog.Handler to add the process identity and
// trace context.
type identityHandler struct {
	handler  slog.Handler
	service  string
	version  string
	instance string
}

// Handle adds service, version, instance and trace context to the log
// record.
func (h *identityHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)
	if h.instance != "" {
		r.AddAttrs(slog.String("instance", h.instance))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *identityHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *identityHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.handler = h.handler.WithAttrs(attrs)
	return &c
}

// WithGroup returns a new handler with the given group.
func (h *identityHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.handler = h.handler.WithGroup(name)
	return &c
}

// teeHandler sends each record to every handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// New creates a configured slog.Logger writing to w. If w is nil, writes
// to os.Stderr.
func New(opts Options, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelDebug
	}

	hopts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if opts.Format == "text" {
		base = slog.NewTextHandler(w, hopts)
	} else {
		base = slog.NewJSONHandler(w, hopts)
	}

	if opts.Mirror != nil {
		mirror := slog.NewTextHandler(opts.Mirror, &slog.HandlerOptions{
			Level:       opts.MirrorLevel,
			ReplaceAttr: dropTime,
		})
		base = teeHandler{base, mirror}
	}

	return slog.New(&identityHandler{
		handler:  base,
		service:  opts.Service,
		version:  opts.Version,
		instance: opts.Instance,
	})
}

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "json" if empty)
// If w is nil, writes to os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	return New(Options{Service: service, Version: version, Format: format}, w)
}

// SetDefault sets up and configures the default logger.
func SetDefault(service, version, format string) {
	slog.SetDefault(Setup(service, version, format, nil))
}
