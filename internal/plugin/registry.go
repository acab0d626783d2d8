// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/holomush/qmm/internal/dl"
	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/internal/mod"
	"github.com/holomush/qmm/pkg/errutil"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Hook phases, as used in logs and metrics.
const (
	PhasePre  = "pre"
	PhasePost = "post"
)

// AttachArgs are the capabilities handed to every plugin at attach.
type AttachArgs struct {
	// Engine is the C function pointer plugins call the engine through.
	Engine uintptr
	// Mod is the C function pointer plugins call the mod through.
	Mod uintptr
	// Funcs is the utility table. It must stay pinned while plugins are
	// attached.
	Funcs *qmmapi.UtilityFuncs
	// Base is the live module's memory base.
	Base int
}

// Registry owns the attached plugins, in load order.
type Registry struct {
	game    *engine.Game
	opener  dl.Opener
	hostDir string
	logger  *slog.Logger
	metrics *Metrics

	clientConnect int
	plugins       []*Plugin
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records hook outcomes to m.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithOpener sets how plugin libraries are opened. The default is the
// platform loader.
func WithOpener(o dl.Opener) RegistryOption {
	return func(r *Registry) { r.opener = o }
}

// WithHostDir sets the directory relative plugin paths are resolved in.
func WithHostDir(dir string) RegistryOption {
	return func(r *Registry) { r.hostDir = dir }
}

// NewRegistry creates an empty registry for game.
func NewRegistry(game *engine.Game, opts ...RegistryOption) *Registry {
	r := &Registry{
		game:          game,
		logger:        slog.Default(),
		clientConnect: game.MustModMsg(engine.MsgClientConnect),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadAll loads, queries and attaches each plugin in order. A plugin that
// fails any step, or declines the attach, is logged and skipped without
// affecting the others. It returns how many plugins are attached.
func (r *Registry) LoadAll(paths []string, args AttachArgs) int {
	for _, path := range paths {
		p, err := LoadQuery(r.opener, r.hostDir, path, r.logger)
		if err != nil {
			errutil.LogWarn(r.logger, "plugin load failed", err, "file", path)
			continue
		}

		ok, err := p.Attach(args.Engine, args.Mod, args.Funcs, args.Base)
		if err != nil || !ok {
			if err != nil {
				errutil.LogWarn(r.logger, "plugin attach failed", err, "plugin", p.Name(), "file", path)
			} else {
				r.logger.Warn("plugin declined attach", "plugin", p.Name(), "file", path)
			}
			if cerr := p.Close(); cerr != nil {
				errutil.LogWarn(r.logger, "plugin unload failed", cerr, "plugin", p.Name())
			}
			continue
		}

		r.plugins = append(r.plugins, p)
		r.logger.Info("plugin attached",
			"plugin", p.Name(),
			"version", p.Info().Version,
			"interface", p.Info().Interface.String(),
			"file", p.Path())
	}
	r.metrics.attached(len(r.plugins))
	return len(r.plugins)
}

// Plugins returns the attached plugins in order.
func (r *Registry) Plugins() []*Plugin {
	return append([]*Plugin(nil), r.plugins...)
}

// Len returns the number of attached plugins.
func (r *Registry) Len() int {
	return len(r.plugins)
}

// Close detaches and unloads every plugin, last loaded first. All plugins
// are closed even when some fail; the failures are combined.
func (r *Registry) Close() error {
	var result *multierror.Error
	for i := len(r.plugins) - 1; i >= 0; i-- {
		p := r.plugins[i]
		if err := p.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	r.plugins = nil
	r.metrics.attached(0)
	return result.ErrorOrNil()
}

// CallMod routes an engine call to the mod through every plugin.
func (r *Registry) CallMod(cmd int, args qmmapi.VMMainArgs, target mod.Module) int {
	var rebase func(int) int
	if cmd == r.clientConnect && target.IsVM() {
		// The mod returns a VM address for its rejection message.
		rebase = func(ret int) int {
			if ret == 0 {
				return 0
			}
			return ret + target.Base()
		}
	}
	return arbitrate[qmmapi.VMMainArgs](r, engine.ToMod, cmd, args, (*Plugin).preMod, (*Plugin).postMod, target.Invoke, rebase)
}

// CallEngine routes a mod call to the engine through every plugin.
func (r *Registry) CallEngine(cmd int, args qmmapi.SyscallArgs, dispatch engine.Syscall) int {
	return arbitrate[qmmapi.SyscallArgs](r, engine.ToEngine, cmd, args, (*Plugin).preEngine, (*Plugin).postEngine, dispatch, nil)
}

func (p *Plugin) preMod(cmd int, args qmmapi.VMMainArgs) int     { return p.vmMain.Call(cmd, args) }
func (p *Plugin) postMod(cmd int, args qmmapi.VMMainArgs) int    { return p.vmMainPost.Call(cmd, args) }
func (p *Plugin) preEngine(cmd int, args qmmapi.SyscallArgs) int { return p.syscall.Call(cmd, args) }
func (p *Plugin) postEngine(cmd int, args qmmapi.SyscallArgs) int {
	return p.syscallPost.Call(cmd, args)
}

type hookFunc[A any] func(p *Plugin, cmd int, args A) int

// arbitrate runs the pre hooks, decides whether and how the real call
// runs, runs the post hooks and returns the value the caller sees.
func arbitrate[A qmmapi.VMMainArgs | qmmapi.SyscallArgs](
	r *Registry,
	dir engine.Direction,
	cmd int,
	args A,
	pre, post hookFunc[A],
	realCall func(int, A) int,
	rebase func(int) int,
) int {
	finalRet := 0
	maxResult := qmmapi.Unused

	for _, p := range r.plugins {
		ret := pre(p, cmd, args)
		res := p.take()
		r.metrics.hook(p.Name(), PhasePre, res)

		switch res {
		case qmmapi.Override, qmmapi.Supersede:
			finalRet = ret
			if res > maxResult {
				maxResult = res
			}
		case qmmapi.Ignored:
			if res > maxResult {
				maxResult = res
			}
		case qmmapi.Unused:
			r.logger.Warn("plugin did not set a result",
				"plugin", p.Name(), "phase", PhasePre, "message", r.game.MessageName(dir, cmd))
		case qmmapi.Error:
			r.logger.Error("plugin reported an error",
				"plugin", p.Name(), "phase", PhasePre, "message", r.game.MessageName(dir, cmd))
		default:
			r.logger.Warn("plugin set an unknown result",
				"plugin", p.Name(), "phase", PhasePre, "message", r.game.MessageName(dir, cmd),
				"result", int32(res))
		}
	}

	switch maxResult {
	case qmmapi.Unused, qmmapi.Error, qmmapi.Ignored, qmmapi.Override:
		realRet := realCall(cmd, args)
		r.metrics.real(dir)
		if rebase != nil {
			realRet = rebase(realRet)
		}
		if maxResult != qmmapi.Override {
			finalRet = realRet
		}
	case qmmapi.Supersede:
		r.metrics.superseded(dir)
	default:
		r.logger.Error("unrecognized arbitration state; passing call through",
			"message", r.game.MessageName(dir, cmd), "result", int32(maxResult))
		r.metrics.real(dir)
		return realCall(cmd, args)
	}

	for _, p := range r.plugins {
		post(p, cmd, args)
		res := p.take()
		r.metrics.hook(p.Name(), PhasePost, res)
		if res == qmmapi.Error {
			r.logger.Error("plugin reported an error",
				"plugin", p.Name(), "phase", PhasePost, "message", r.game.MessageName(dir, cmd))
		}
	}
	return finalRet
}
