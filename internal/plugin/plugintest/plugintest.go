// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugintest builds scripted in-memory plugins for tests.
package plugintest

import (
	"sync"

	"github.com/holomush/qmm/internal/dl/dltest"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Journal is an ordered record of events shared by several fakes.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry.
func (j *Journal) Add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Entries returns the entries in order.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// ModHook scripts a vmMain hook.
type ModHook func(cmd int, args qmmapi.VMMainArgs) (int, qmmapi.Result)

// EngineHook scripts a syscall hook.
type EngineHook func(cmd int, args qmmapi.SyscallArgs) (int, qmmapi.Result)

// Returns is a hook that always reports res with value ret.
func Returns(ret int, res qmmapi.Result) ModHook {
	return func(int, qmmapi.VMMainArgs) (int, qmmapi.Result) { return ret, res }
}

// EngineReturns is Returns for syscall hooks.
func EngineReturns(ret int, res qmmapi.Result) EngineHook {
	return func(int, qmmapi.SyscallArgs) (int, qmmapi.Result) { return ret, res }
}

// Attachment records the arguments of QMM_Attach.
type Attachment struct {
	Engine uintptr
	Mod    uintptr
	Funcs  *qmmapi.UtilityFuncs
	Base   int
}

// Fake is a scripted plugin. Hooks left nil report Ignored with value 0.
type Fake struct {
	Name         string
	Version      string
	Major, Minor int32
	// NullInfo makes QMM_Query report no info.
	NullInfo bool
	// Decline makes QMM_Attach refuse.
	Decline bool
	// Omit lists entry points the image does not export.
	Omit []string
	// Journal, when set, records "<name>:<event>" entries.
	Journal *Journal

	PreMod     ModHook
	PostMod    ModHook
	PreEngine  EngineHook
	PostEngine EngineHook

	mu       sync.Mutex
	result   *qmmapi.Result
	attached []Attachment
	events   []string
	dirty    int
	info     qmmapi.PluginInfo
	strs     [][]byte
}

// New creates a fake reporting the host's own interface version.
func New(name string) *Fake {
	return &Fake{
		Name:    name,
		Version: "1.0",
		Major:   qmmapi.InterfaceMajor,
		Minor:   qmmapi.InterfaceMinor,
	}
}

func (f *Fake) cstr(s string) *byte {
	b := qmmapi.CString(s)
	f.strs = append(f.strs, b)
	return &b[0]
}

func (f *Fake) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	if f.Journal != nil {
		f.Journal.Add(f.Name + ":" + event)
	}
}

// enter notes a hook call and checks the flag was reset since the last.
func (f *Fake) enter(event string) {
	f.record(event)
	if f.result != nil && *f.result != qmmapi.Unused {
		f.mu.Lock()
		f.dirty++
		f.mu.Unlock()
	}
}

// Image builds the plugin's shared library image.
func (f *Fake) Image() *dltest.Image {
	f.info = qmmapi.PluginInfo{
		Name:           f.cstr(f.Name),
		Version:        f.cstr(f.Version),
		Desc:           f.cstr(f.Name + " test plugin"),
		Author:         f.cstr("tests"),
		URL:            f.cstr("https://example.invalid/" + f.Name),
		InterfaceMajor: f.Major,
		InterfaceMinor: f.Minor,
	}

	symbols := map[string]any{
		qmmapi.QuerySymbol: func(info **qmmapi.PluginInfo) {
			f.record("query")
			if f.NullInfo {
				*info = nil
				return
			}
			*info = &f.info
		},
		qmmapi.AttachSymbol: func(engine, mod uintptr, result *qmmapi.Result, funcs *qmmapi.UtilityFuncs, base int) int32 {
			f.record("attach")
			f.mu.Lock()
			f.result = result
			f.attached = append(f.attached, Attachment{Engine: engine, Mod: mod, Funcs: funcs, Base: base})
			f.mu.Unlock()
			if f.Decline {
				return 0
			}
			return 1
		},
		qmmapi.DetachSymbol: func() { f.record("detach") },
		qmmapi.VMMainSymbol: qmmapi.VMMain(func(cmd int, args qmmapi.VMMainArgs) int {
			f.enter("pre-mod")
			return f.runMod(f.PreMod, cmd, args)
		}),
		qmmapi.VMMainPostSymbol: qmmapi.VMMain(func(cmd int, args qmmapi.VMMainArgs) int {
			f.enter("post-mod")
			return f.runMod(f.PostMod, cmd, args)
		}),
		qmmapi.SyscallSymbol: qmmapi.Syscall(func(cmd int, args qmmapi.SyscallArgs) int {
			f.enter("pre-engine")
			return f.runEngine(f.PreEngine, cmd, args)
		}),
		qmmapi.SyscallPostSymbol: qmmapi.Syscall(func(cmd int, args qmmapi.SyscallArgs) int {
			f.enter("post-engine")
			return f.runEngine(f.PostEngine, cmd, args)
		}),
	}
	for _, name := range f.Omit {
		delete(symbols, name)
	}
	img := dltest.NewImage(symbols)
	img.OnClose = func() { f.record("unload") }
	return img
}

func (f *Fake) runMod(h ModHook, cmd int, args qmmapi.VMMainArgs) int {
	ret, res := 0, qmmapi.Ignored
	if h != nil {
		ret, res = h(cmd, args)
	}
	*f.result = res
	return ret
}

func (f *Fake) runEngine(h EngineHook, cmd int, args qmmapi.SyscallArgs) int {
	ret, res := 0, qmmapi.Ignored
	if h != nil {
		ret, res = h(cmd, args)
	}
	*f.result = res
	return ret
}

// Events returns this fake's events in order.
func (f *Fake) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// Count returns how many times event happened.
func (f *Fake) Count(event string) int {
	n := 0
	for _, e := range f.Events() {
		if e == event {
			n++
		}
	}
	return n
}

// Attachments returns the arguments of every QMM_Attach call.
func (f *Fake) Attachments() []Attachment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Attachment(nil), f.attached...)
}

// DirtyEntries counts hooks entered with a result flag that had not been
// reset to Unused.
func (f *Fake) DirtyEntries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// Result returns the current value of the plugin's result flag.
func (f *Fake) Result() qmmapi.Result {
	if f.result == nil {
		return qmmapi.Unused
	}
	return *f.result
}
