// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package host ties the mod loader and the plugin registry to the engine.
//
// A Host sits behind the two C entry points the engine calls. It loads
// the mod and the plugins on the first GAME_INIT, routes every vmMain and
// syscall through the plugin registry, and tears everything down on
// GAME_SHUTDOWN. A Process replaces the Host each time the engine reloads
// the game module; every Host of a process shares one set of Trampolines.
package host

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/qmm/internal/config"
	"github.com/holomush/qmm/internal/dl"
	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/internal/mod"
	"github.com/holomush/qmm/internal/observability"
	"github.com/holomush/qmm/internal/plugin"
	"github.com/holomush/qmm/pkg/errutil"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Version is reported in logs and by the command line tool.
var Version = "dev"

// tracerName names the host's spans.
const tracerName = "qmm/host"

// stopTimeout bounds the metrics server shutdown.
const stopTimeout = 5 * time.Second

// Host routes calls between the engine, the plugins and the mod.
type Host struct {
	game     *engine.Game
	cfg      *config.Config
	dispatch engine.Syscall
	logger   *slog.Logger
	opener   dl.Opener
	hostDir  string
	selfPath string

	files    *engine.FS
	loader   *mod.Loader
	registry *plugin.Registry
	trace    *engine.Filter

	tracer     trace.Tracer
	promReg    *prometheus.Registry
	server     *observability.Server
	hostMetric *observability.Metrics

	initCmd     int
	shutdownCmd int
	started     bool

	tramp     *Trampolines
	ownTramp  bool
	cb        callbacks
	logOutput io.Closer
}

type options struct {
	logger      *slog.Logger
	opener      dl.Opener
	callbacks   CallbackFactory
	trampolines *Trampolines
	logOutput   io.Closer
	hostDir     string
	selfPath    string
	registry    *prometheus.Registry
	tracing     trace.TracerProvider
}

// Option configures a Host.
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOpener sets how native mods and plugins are opened.
func WithOpener(op dl.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithCallbacks gives the host its own Trampolines made with f. Close
// releases them.
func WithCallbacks(f CallbackFactory) Option {
	return func(o *options) { o.callbacks = f }
}

// WithTrampolines points t at the host instead of the process-wide set.
// It takes precedence over WithCallbacks.
func WithTrampolines(t *Trampolines) Option {
	return func(o *options) { o.trampolines = t }
}

// withLogOutput hands the host the log file to close on Close.
func withLogOutput(c io.Closer) Option {
	return func(o *options) { o.logOutput = c }
}

// WithHostDir sets the directory holding the host, its plugins and the
// renamed original mod.
func WithHostDir(dir string) Option {
	return func(o *options) { o.hostDir = dir }
}

// WithSelfPath sets the host library's own path.
func WithSelfPath(path string) Option {
	return func(o *options) { o.selfPath = path }
}

// WithMetricsRegistry records metrics to reg when no metrics server is
// configured.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithTracerProvider sets where host spans go. The default is the global
// OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracing = tp
		}
	}
}

// New creates a host for game and makes it current on its trampolines.
// dispatch is the engine's own syscall dispatcher. Nothing is loaded
// until the first GAME_INIT.
func New(game *engine.Game, cfg *config.Config, dispatch engine.Syscall, opts ...Option) (*Host, error) {
	o := options{logger: slog.Default(), tracing: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if dispatch == nil {
		return nil, oops.Code("HOST_INVALID").Errorf("engine syscall is required")
	}

	trace, err := engine.NewFilter(cfg.TraceMessages)
	if err != nil {
		return nil, err
	}

	h := &Host{
		game:        game,
		cfg:         cfg,
		dispatch:    dispatch,
		logger:      o.logger,
		opener:      o.opener,
		hostDir:     o.hostDir,
		selfPath:    o.selfPath,
		trace:       trace,
		initCmd:     game.MustModMsg(engine.MsgGameInit),
		shutdownCmd: game.MustModMsg(engine.MsgGameShutdown),
		tracer:      o.tracing.Tracer(tracerName),
		promReg:     o.registry,
		logOutput:   o.logOutput,
	}
	if cfg.MetricsAddr != "" {
		h.server = observability.NewServer(cfg.MetricsAddr, observability.WithLogger(h.logger))
		h.promReg = h.server.Registry()
		h.hostMetric = h.server.Metrics()
	} else if h.promReg != nil {
		h.hostMetric = observability.NewMetrics(h.promReg)
	}

	switch {
	case o.trampolines != nil:
		h.tramp = o.trampolines
	case o.callbacks != nil:
		h.tramp = NewTrampolines(o.callbacks)
		h.ownTramp = true
	default:
		h.tramp = ProcessTrampolines()
	}
	h.cb = h.tramp.cb
	h.files = engine.NewFS(game, dispatch)

	modOpts := []mod.Option{
		mod.WithLogger(h.logger),
		mod.WithHostDir(h.hostDir),
		mod.WithSelfPath(h.selfPath),
		mod.WithFaultHandler(h.onFault),
	}
	if cfg.StackSize > 0 {
		modOpts = append(modOpts, mod.WithStackSize(cfg.StackSize))
	}
	h.loader = mod.NewLoader(game, h.files, h.newModule(modOpts), modOpts...)

	regOpts := []plugin.RegistryOption{
		plugin.WithLogger(h.logger),
		plugin.WithOpener(h.opener),
		plugin.WithHostDir(h.hostDir),
	}
	if h.promReg != nil {
		regOpts = append(regOpts, plugin.WithMetrics(plugin.NewMetrics(h.promReg)))
	}
	h.registry = plugin.NewRegistry(game, regOpts...)

	h.tramp.install(h)
	return h, nil
}

func (h *Host) newModule(opts []mod.Option) mod.Factory {
	return func(kind mod.Kind) mod.Module {
		if kind == mod.KindVM {
			return mod.NewSandboxed(h.game, h.files, h.Syscall, opts...)
		}
		return mod.NewNative(h.opener, h.cb.syscall)
	}
}

// Game returns the game the host fronts.
func (h *Host) Game() *engine.Game { return h.game }

// Module returns the live mod, or nil before GAME_INIT.
func (h *Host) Module() mod.Module { return h.loader.Module() }

// Registry returns the plugin registry.
func (h *Host) Registry() *plugin.Registry { return h.registry }

// Ready reports whether a mod is loaded.
func (h *Host) Ready() bool { return h.loader.Module() != nil }

// VMMain handles an engine call into the mod.
func (h *Host) VMMain(cmd int, args qmmapi.VMMainArgs) int {
	if cmd == h.initCmd && !h.started {
		if err := h.start(); err != nil {
			errutil.LogError(h.logger, "startup failed", err)
			engine.Fatal(h.game, h.dispatch, "[QMM] FATAL ERROR: "+err.Error())
			return 0
		}
	}

	m := h.loader.Module()
	if m == nil {
		h.logger.Warn("call before a mod is loaded", "message", h.game.MessageName(engine.ToMod, cmd))
		return 0
	}

	ret := h.registry.CallMod(cmd, args, m)
	h.traceCall(engine.ToMod, cmd, args[:], ret)

	if cmd == h.shutdownCmd {
		if err := h.Shutdown(); err != nil {
			errutil.LogError(h.logger, "shutdown failed", err)
		}
	}
	return ret
}

// Syscall handles a mod call into the engine.
func (h *Host) Syscall(cmd int, args qmmapi.SyscallArgs) int {
	ret := h.registry.CallEngine(cmd, args, h.dispatch)
	h.traceCall(engine.ToEngine, cmd, args[:], ret)
	return ret
}

func (h *Host) start() (err error) {
	ctx, span := h.tracer.Start(context.Background(), "host.start",
		trace.WithAttributes(
			attribute.String("qmm.game", h.game.Name),
			attribute.String("qmm.mod", h.cfg.ModName()),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	h.logger.InfoContext(ctx, "qmm starting",
		"version", Version,
		"game", h.game.Name,
		"mod", h.cfg.ModName(),
		"plugins", len(h.cfg.Plugins))

	if h.server != nil {
		if _, serr := h.server.Start(); serr != nil {
			errutil.LogWarn(h.logger, "metrics server failed to start", serr)
		}
	}

	m, err := h.loader.LoadMod(h.cfg.ModName())
	h.recordAttempts()
	span.SetAttributes(attribute.Int("qmm.mod_attempts", len(h.loader.Attempts())))
	if err != nil {
		return err
	}

	n := h.registry.LoadAll(h.cfg.Plugins, plugin.AttachArgs{
		Engine: h.cb.engine,
		Mod:    h.cb.mod,
		Funcs:  h.cb.funcs,
		Base:   m.Base(),
	})
	h.started = true
	h.publishStatus()
	span.SetAttributes(
		attribute.Bool("qmm.vm", m.IsVM()),
		attribute.Int("qmm.plugins_attached", n),
	)
	h.logger.InfoContext(ctx, "qmm started", "mod", m.Status(), "plugins", n)
	return nil
}

func (h *Host) recordAttempts() {
	if h.hostMetric == nil {
		return
	}
	for _, a := range h.loader.Attempts() {
		outcome := "loaded"
		if a.Err != nil {
			outcome = "failed"
		}
		h.hostMetric.ModLoads.WithLabelValues(a.Kind.String(), outcome).Inc()
	}
}

// Shutdown closes the plugins, last attached first, releases the mod and
// stops the metrics server. The host can start again on the next
// GAME_INIT.
func (h *Host) Shutdown() error {
	ctx, span := h.tracer.Start(context.Background(), "host.shutdown")
	defer span.End()

	var result *multierror.Error
	if h.server != nil {
		h.server.SetStatus(nil)
	}
	if err := h.registry.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := h.loader.Release(); err != nil {
		result = multierror.Append(result, err)
	}
	if h.server != nil {
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		defer cancel()
		if err := h.server.Stop(stopCtx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	h.started = false

	if err := result.ErrorOrNil(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	h.logger.InfoContext(ctx, "qmm shut down")
	return nil
}

// Close shuts the host down, detaches it from its trampolines and closes
// the log file Boot opened. The host must not be used afterwards.
func (h *Host) Close() error {
	var result *multierror.Error
	if err := h.Shutdown(); err != nil {
		result = multierror.Append(result, err)
	}
	h.tramp.uninstall(h)
	if h.ownTramp {
		h.tramp.Release()
		h.ownTramp = false
	}
	if h.logOutput != nil {
		if err := h.logOutput.Close(); err != nil {
			result = multierror.Append(result, oops.Code("HOST_LOG_CLOSE_FAILED").Wrap(err))
		}
		h.logOutput = nil
	}
	return result.ErrorOrNil()
}

// Status returns a snapshot of the loaded mod and plugins.
func (h *Host) Status() observability.Status {
	st := observability.Status{Game: h.game.Name}
	if m := h.loader.Module(); m != nil {
		st.Mod = m.Status()
		st.VM = m.IsVM()
	}
	for _, p := range h.registry.Plugins() {
		info := p.Info()
		st.Plugins = append(st.Plugins, observability.PluginStatus{
			Name:    info.Name,
			Version: info.Version,
			Path:    p.Path(),
		})
	}
	return st
}

func (h *Host) publishStatus() {
	if h.server != nil {
		st := h.Status()
		h.server.SetStatus(&st)
	}
}

func (h *Host) onFault(err error) {
	if h.hostMetric != nil {
		h.hostMetric.VMFaults.Inc()
	}
	errutil.LogError(h.logger, "qvm mod fault", err)
}

func (h *Host) traceCall(dir engine.Direction, cmd int, args []int, ret int) {
	if h.trace.Empty() {
		return
	}
	name := h.game.MessageName(dir, cmd)
	if h.trace.Match(name) {
		h.logger.Debug("call", "direction", dir.String(), "message", name, "args", args, "return", ret)
	}
}

// invokeMod calls the live mod without running plugins.
func (h *Host) invokeMod(cmd int, args qmmapi.VMMainArgs) int {
	if m := h.loader.Module(); m != nil {
		return m.Invoke(cmd, args)
	}
	return 0
}
