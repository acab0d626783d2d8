// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"

	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// CallbackFactory turns a Go func into a C function pointer. Pointers are
// never released.
type CallbackFactory func(fn any) uintptr

// NewCallback is the platform CallbackFactory.
func NewCallback(fn any) uintptr {
	return purego.NewCallback(fn)
}

// ForeignSyscall wraps the engine's C syscall pointer as an engine.Syscall.
func ForeignSyscall(ptr uintptr) engine.Syscall {
	var fn qmmapi.SyscallFunc
	purego.RegisterFunc(&fn, ptr)
	return fn.Call
}

// callbacks are the C entry points the host hands out.
type callbacks struct {
	// syscall routes a native mod's engine calls through the plugins.
	syscall uintptr
	// engine calls the engine directly, for plugins.
	engine uintptr
	// mod calls the live module directly, for plugins.
	mod uintptr

	funcs *qmmapi.UtilityFuncs
}

// Trampolines are one set of C entry points that forward to whichever
// Host is current. The platform caps and never frees callbacks, so a
// process makes one set and reuses it for every Host it boots. With no
// current Host, calls return zero and logs are dropped.
type Trampolines struct {
	current atomic.Pointer[Host]
	cb      callbacks
	pinner  runtime.Pinner
}

// NewTrampolines creates the entry points with newCallback, seven calls
// in all.
func NewTrampolines(newCallback CallbackFactory) *Trampolines {
	t := &Trampolines{}
	t.cb.syscall = newCallback(qmmapi.Syscall(func(cmd int, args qmmapi.SyscallArgs) int {
		if h := t.Current(); h != nil {
			return h.Syscall(cmd, args)
		}
		return 0
	}))
	t.cb.engine = newCallback(qmmapi.Syscall(func(cmd int, args qmmapi.SyscallArgs) int {
		if h := t.Current(); h != nil {
			return h.dispatch(cmd, args)
		}
		return 0
	}))
	t.cb.mod = newCallback(qmmapi.VMMain(func(cmd int, args qmmapi.VMMainArgs) int {
		if h := t.Current(); h != nil {
			return h.invokeMod(cmd, args)
		}
		return 0
	}))

	t.cb.funcs = &qmmapi.UtilityFuncs{
		WriteLog: newCallback(func(text *byte, severity int32) {
			if h := t.Current(); h != nil {
				h.writeLog(qmmapi.GoString(text), severity)
			}
		}),
		GetConfigInt: newCallback(func(key *byte, fallback int) int {
			if h := t.Current(); h != nil {
				return h.configInt(qmmapi.GoString(key), fallback)
			}
			return fallback
		}),
		IsVM: newCallback(func() int32 {
			if h := t.Current(); h != nil && h.isVM() {
				return 1
			}
			return 0
		}),
		MemoryBase: newCallback(func() int {
			if h := t.Current(); h != nil {
				return h.memoryBase()
			}
			return 0
		}),
	}
	t.pinner.Pin(t.cb.funcs)
	return t
}

// Current returns the Host the entry points forward to, or nil.
func (t *Trampolines) Current() *Host {
	return t.current.Load()
}

// Release unpins the utility table. The entry points stay valid but must
// no longer be handed out.
func (t *Trampolines) Release() {
	t.current.Store(nil)
	t.pinner.Unpin()
}

func (t *Trampolines) install(h *Host) {
	t.current.Store(h)
}

func (t *Trampolines) uninstall(h *Host) {
	t.current.CompareAndSwap(h, nil)
}

var (
	processOnce        sync.Once
	processTrampolines *Trampolines
)

// ProcessTrampolines returns the process-wide set built with NewCallback.
// It is created on first use and never released.
func ProcessTrampolines() *Trampolines {
	processOnce.Do(func() {
		processTrampolines = NewTrampolines(NewCallback)
	})
	return processTrampolines
}
