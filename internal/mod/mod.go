// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mod loads the game module the host fronts.
//
// A Module is either a native shared library or a QVM bytecode image run
// by the qvm interpreter. The kind is chosen once at load time by the
// Loader's cascade and never changes.
package mod

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/internal/qvm"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Module is the single loaded game module.
type Module interface {
	// Load loads the module from path.
	Load(path string) error
	// Invoke calls the module's vmMain.
	Invoke(cmd int, args qmmapi.VMMainArgs) int
	// IsVM reports whether the module is QVM bytecode.
	IsVM() bool
	// Base is the host address of the module's address 0; zero for
	// native modules.
	Base() int
	// Status describes the module for logs and the console.
	Status() string
	// Close releases the module. Close on an unloaded module is a no-op.
	Close() error
}

// Kind is a module binary format.
type Kind int

// Module kinds.
const (
	KindUnknown Kind = iota
	KindNative
	KindVM
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindVM:
		return "qvm"
	default:
		return "unknown"
	}
}

// HeaderSize is how many leading bytes Classify inspects.
const HeaderSize = 4

var (
	magicWindows = []byte{0x4D, 0x5A, 0x90, 0x00}
	magicELF     = []byte{0x7F, 0x45, 0x4C, 0x46}
)

// Classify identifies a module from its first bytes, falling back to the
// extension of name when the header is missing or unrecognized.
func Classify(header []byte, name string) Kind {
	switch {
	case bytes.HasPrefix(header, magicWindows), bytes.HasPrefix(header, magicELF):
		return KindNative
	case qvm.HasMagic(header):
		return KindVM
	}

	ext := filepath.Ext(name)
	switch {
	case strings.EqualFold(ext, engine.VMExt):
		return KindVM
	case strings.EqualFold(ext, engine.NativeExt()):
		return KindNative
	default:
		return KindUnknown
	}
}

type options struct {
	logger    *slog.Logger
	stackSize int
	onFault   func(error)
	hostDir   string
	selfPath  string
}

// Option configures modules and the Loader.
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStackSize sets the QVM program stack size.
func WithStackSize(n int) Option {
	return func(o *options) { o.stackSize = n }
}

// WithFaultHandler is called when QVM bytecode fails at runtime. The
// default logs the error.
func WithFaultHandler(fn func(error)) Option {
	return func(o *options) { o.onFault = fn }
}

// WithHostDir sets the directory native modules are loaded from.
func WithHostDir(dir string) Option {
	return func(o *options) { o.hostDir = dir }
}

// WithSelfPath sets the host library's own path, which the Loader never
// loads as a module.
func WithSelfPath(path string) Option {
	return func(o *options) { o.selfPath = path }
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default(), stackSize: qvm.DefaultStackSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
