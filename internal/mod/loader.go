// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mod

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/pkg/errutil"
)

// AutoName selects the engine's default module.
const AutoName = "auto"

// HeaderReader reads the start of a file through the engine's file layer.
type HeaderReader interface {
	ReadHeader(name string, n int) ([]byte, error)
}

// Factory creates an unloaded module of kind, which is KindNative or
// KindVM.
type Factory func(kind Kind) Module

// Attempt records one step of the load cascade.
type Attempt struct {
	Kind Kind
	File string
	Err  error
}

// Loader finds and owns the single live Module.
type Loader struct {
	game    *engine.Game
	headers HeaderReader
	factory Factory
	opts    options

	mod      Module
	attempts []Attempt
}

// NewLoader creates a loader for game. headers classifies candidates and
// factory builds the modules to try.
func NewLoader(game *engine.Game, headers HeaderReader, factory Factory, opts ...Option) *Loader {
	return &Loader{game: game, headers: headers, factory: factory, opts: newOptions(opts)}
}

// Module returns the live module, or nil.
func (l *Loader) Module() Module {
	return l.mod
}

// Attempts returns the steps of the last LoadMod, in order.
func (l *Loader) Attempts() []Attempt {
	return append([]Attempt(nil), l.attempts...)
}

// LoadMod runs the load cascade for name and installs the first module that
// loads, releasing any previous one first. Every failed step is logged with
// its file. It returns a MOD_CASCADE_EXHAUSTED error when nothing loads.
func (l *Loader) LoadMod(name string) (Module, error) {
	if err := l.Release(); err != nil {
		errutil.LogWarn(l.opts.logger, "releasing previous mod failed", err)
	}
	l.attempts = nil

	if name == "" || strings.EqualFold(name, AutoName) {
		name = l.game.ModuleName()
	}

	kind := KindUnknown
	if name != "" {
		// A missing or unreadable file classifies by extension.
		header, _ := l.headers.ReadHeader(name, HeaderSize)
		kind = Classify(header, name)
	}
	l.opts.logger.Debug("classified mod", "file", name, "kind", kind)

	tryNative := name != ""
	if kind == KindVM {
		if l.game.VMSupported() {
			if m := l.try(KindVM, name); m != nil {
				return m, nil
			}
		} else {
			l.opts.logger.Warn("engine cannot run QVM mods", "game", l.game.Name, "file", name)
			tryNative = false
		}
	}

	if tryNative {
		if m := l.try(KindNative, l.hostPath(name)); m != nil {
			return m, nil
		}
	}

	if fallback := l.game.FallbackModuleName(); fallback != "" {
		if m := l.try(KindNative, l.hostPath(fallback)); m != nil {
			return m, nil
		}
	}

	if l.game.VMSupported() {
		if m := l.try(KindVM, l.game.QVM); m != nil {
			return m, nil
		}
	}

	files := make([]string, len(l.attempts))
	for i, a := range l.attempts {
		files[i] = a.File
	}
	return nil, oops.Code("MOD_CASCADE_EXHAUSTED").
		With("game", l.game.Name).
		With("mod", name).
		With("attempts", files).
		Errorf("no mod could be loaded")
}

// try loads one candidate. A module that fails to load is closed before
// the next step runs.
func (l *Loader) try(kind Kind, file string) Module {
	if kind == KindNative && l.isSelf(file) {
		err := oops.Code("MOD_SELF_LOAD").With("file", file).Errorf("refusing to load the host as its own mod")
		l.attempts = append(l.attempts, Attempt{Kind: kind, File: file, Err: err})
		errutil.LogWarn(l.opts.logger, "skipping mod", err, "kind", kind, "file", file)
		return nil
	}

	m := l.factory(kind)
	err := m.Load(file)
	l.attempts = append(l.attempts, Attempt{Kind: kind, File: file, Err: err})
	if err != nil {
		errutil.LogWarn(l.opts.logger, "mod load failed", err, "kind", kind, "file", file)
		if cerr := m.Close(); cerr != nil {
			errutil.LogWarn(l.opts.logger, "closing failed mod", cerr, "file", file)
		}
		return nil
	}

	l.mod = m
	l.opts.logger.Info("mod loaded", "kind", kind, "file", file, "status", m.Status())
	return m
}

func (l *Loader) hostPath(name string) string {
	if filepath.IsAbs(name) || l.opts.hostDir == "" {
		return name
	}
	return filepath.Join(l.opts.hostDir, name)
}

func (l *Loader) isSelf(file string) bool {
	if l.opts.selfPath == "" {
		return false
	}
	a, b := filepath.Clean(file), filepath.Clean(l.opts.selfPath)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// Release closes the live module, if any.
func (l *Loader) Release() error {
	if l.mod == nil {
		return nil
	}
	m := l.mod
	l.mod = nil
	return m.Close()
}
