// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/holomush/qmm/internal/dl/dltest"
	"github.com/holomush/qmm/internal/engine"
	"github.com/holomush/qmm/internal/plugin"
	"github.com/holomush/qmm/internal/plugin/plugintest"
	"github.com/holomush/qmm/pkg/errutil"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// stubMod is the live module seen by CallMod.
type stubMod struct {
	vm      bool
	base    int
	ret     int
	calls   int
	journal *plugintest.Journal
}

func (m *stubMod) Load(string) error { return nil }
func (m *stubMod) Invoke(int, qmmapi.VMMainArgs) int {
	m.calls++
	if m.journal != nil {
		m.journal.Add("mod:invoke")
	}
	return m.ret
}
func (m *stubMod) IsVM() bool     { return m.vm }
func (m *stubMod) Base() int      { return m.base }
func (m *stubMod) Status() string { return "stub" }
func (m *stubMod) Close() error   { return nil }

var _ = Describe("Registry", func() {
	var (
		game    *engine.Game
		journal *plugintest.Journal
		target  *stubMod
		metrics *plugin.Metrics
	)

	runCmd := 8 // GAME_RUN_FRAME

	// build loads and attaches fakes in order.
	build := func(fakes ...*plugintest.Fake) *plugin.Registry {
		opener := dltest.NewOpener()
		paths := make([]string, len(fakes))
		for i, f := range fakes {
			f.Journal = journal
			paths[i] = fmt.Sprintf("p%d.so", i)
			opener.Add(hostDir+"/"+paths[i], f.Image())
		}
		r := plugin.NewRegistry(game,
			plugin.WithOpener(opener),
			plugin.WithHostDir(hostDir),
			plugin.WithMetrics(metrics),
			plugin.WithLogger(nil))
		Expect(r.LoadAll(paths, plugin.AttachArgs{Funcs: &qmmapi.UtilityFuncs{}})).To(Equal(len(fakes)))
		return r
	}

	fake := func(name string, pre plugintest.ModHook) *plugintest.Fake {
		f := plugintest.New(name)
		f.PreMod = pre
		return f
	}

	BeforeEach(func() {
		var err error
		game, err = engine.Lookup("Q3A")
		Expect(err).NotTo(HaveOccurred())
		journal = &plugintest.Journal{}
		target = &stubMod{ret: 1000, journal: journal}
		metrics = plugin.NewMetrics(prometheus.NewRegistry())
	})

	Describe("CallMod", func() {
		It("calls the mod directly when no plugins are attached", func() {
			r := build()
			Expect(r.CallMod(runCmd, qmmapi.VMMainArgs{1, 2}, target)).To(Equal(1000))
			Expect(target.calls).To(Equal(1))
		})

		It("returns the real value when every plugin ignores the call", func() {
			a, b := fake("a", nil), fake("b", nil)
			r := build(a, b)

			Expect(r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)).To(Equal(1000))
			Expect(target.calls).To(Equal(1))
			Expect(journal.Entries()[4:]).To(Equal([]string{
				"a:pre-mod", "b:pre-mod", "mod:invoke", "a:post-mod", "b:post-mod",
			}))
		})

		It("keeps the override value but still runs the real call", func() {
			p1 := fake("p1", plugintest.Returns(0, qmmapi.Ignored))
			p2 := fake("p2", plugintest.Returns(7, qmmapi.Override))
			p3 := fake("p3", plugintest.Returns(0, qmmapi.Ignored))
			r := build(p1, p2, p3)

			Expect(r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)).To(Equal(7))
			Expect(target.calls).To(Equal(1))
			for _, p := range []*plugintest.Fake{p1, p2, p3} {
				Expect(p.Count("pre-mod")).To(Equal(1))
				Expect(p.Count("post-mod")).To(Equal(1))
			}
		})

		It("skips the real call when a plugin supersedes", func() {
			p1 := fake("p1", plugintest.Returns(42, qmmapi.Supersede))
			p2 := fake("p2", plugintest.Returns(0, qmmapi.Ignored))
			r := build(p1, p2)

			Expect(r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)).To(Equal(42))
			Expect(target.calls).To(BeZero())
			Expect(p1.Count("post-mod")).To(Equal(1))
			Expect(p2.Count("post-mod")).To(Equal(1))
			Expect(testutil.ToFloat64(metrics.Superseded.WithLabelValues("mod"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(metrics.RealCalls.WithLabelValues("mod"))).To(BeZero())
		})

		DescribeTable("surfaces the last Override or Supersede value",
			func(results []qmmapi.Result, want int, realCalls int) {
				fakes := make([]*plugintest.Fake, len(results))
				for i, res := range results {
					fakes[i] = fake(fmt.Sprintf("p%d", i), plugintest.Returns(100+i, res))
				}
				r := build(fakes...)

				Expect(r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)).To(Equal(want))
				Expect(target.calls).To(Equal(realCalls))
			},
			Entry("override then supersede", []qmmapi.Result{qmmapi.Override, qmmapi.Supersede}, 101, 0),
			Entry("supersede then override", []qmmapi.Result{qmmapi.Supersede, qmmapi.Override}, 101, 0),
			Entry("two overrides", []qmmapi.Result{qmmapi.Override, qmmapi.Ignored, qmmapi.Override}, 102, 1),
			Entry("override then ignored", []qmmapi.Result{qmmapi.Override, qmmapi.Ignored}, 100, 1),
		)

		DescribeTable("never lets Unused, Error or unknown results change the outcome",
			func(res qmmapi.Result) {
				p := fake("odd", plugintest.Returns(99, res))
				r := build(p)

				Expect(r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)).To(Equal(1000))
				Expect(target.calls).To(Equal(1))
				Expect(p.Count("post-mod")).To(Equal(1))
			},
			Entry("unused", qmmapi.Unused),
			Entry("error", qmmapi.Error),
			Entry("unknown", qmmapi.Result(7)),
		)

		It("resets every result flag to Unused after each hook", func() {
			p1 := fake("p1", plugintest.Returns(5, qmmapi.Override))
			p2 := fake("p2", plugintest.Returns(6, qmmapi.Supersede))
			p2.PostMod = plugintest.Returns(0, qmmapi.Error)
			r := build(p1, p2)

			for range 3 {
				r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)
			}
			Expect(p1.DirtyEntries()).To(BeZero())
			Expect(p2.DirtyEntries()).To(BeZero())
			Expect(p1.Result()).To(Equal(qmmapi.Unused))
			Expect(p2.Result()).To(Equal(qmmapi.Unused))
		})

		It("passes every argument to hooks and the mod unchanged", func() {
			var seen qmmapi.VMMainArgs
			p := fake("p", func(_ int, args qmmapi.VMMainArgs) (int, qmmapi.Result) {
				seen = args
				return 0, qmmapi.Ignored
			})
			r := build(p)
			args := qmmapi.VMMainArgs{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

			r.CallMod(runCmd, args, target)
			Expect(seen).To(Equal(args))
		})

		It("counts hook results per plugin and phase", func() {
			p := fake("counted", plugintest.Returns(1, qmmapi.Override))
			r := build(p)

			r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)
			r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)
			Expect(testutil.ToFloat64(metrics.HookResults.WithLabelValues("counted", "pre", "override"))).To(Equal(2.0))
			Expect(testutil.ToFloat64(metrics.HookResults.WithLabelValues("counted", "post", "ignored"))).To(Equal(2.0))
			Expect(testutil.ToFloat64(metrics.RealCalls.WithLabelValues("mod"))).To(Equal(2.0))
			Expect(testutil.ToFloat64(metrics.Attached)).To(Equal(1.0))
		})

		Describe("client connect", func() {
			connect := 2 // GAME_CLIENT_CONNECT

			It("rebases a QVM mod's rejection message", func() {
				target.vm, target.base, target.ret = true, 0x40000, 0x120
				r := build(fake("p", nil))
				Expect(r.CallMod(connect, qmmapi.VMMainArgs{}, target)).To(Equal(0x40120))
			})

			It("leaves a null result null", func() {
				target.vm, target.base, target.ret = true, 0x40000, 0
				r := build()
				Expect(r.CallMod(connect, qmmapi.VMMainArgs{}, target)).To(BeZero())
			})

			It("leaves native results alone", func() {
				target.vm, target.ret = false, 0x120
				r := build()
				Expect(r.CallMod(connect, qmmapi.VMMainArgs{}, target)).To(Equal(0x120))
			})

			It("does not rebase plugin overrides", func() {
				target.vm, target.base, target.ret = true, 0x40000, 0x120
				r := build(fake("p", plugintest.Returns(0x555, qmmapi.Override)))
				Expect(r.CallMod(connect, qmmapi.VMMainArgs{}, target)).To(Equal(0x555))
				Expect(target.calls).To(Equal(1))
			})

			It("only applies to client connect", func() {
				target.vm, target.base, target.ret = true, 0x40000, 0x120
				r := build()
				Expect(r.CallMod(runCmd, qmmapi.VMMainArgs{}, target)).To(Equal(0x120))
			})
		})
	})

	Describe("CallEngine", func() {
		var realCalls int
		var realArgs qmmapi.SyscallArgs
		dispatch := func(_ int, args qmmapi.SyscallArgs) int {
			realCalls++
			realArgs = args
			return 55
		}

		BeforeEach(func() { realCalls = 0 })

		engineFake := func(name string, pre plugintest.EngineHook) *plugintest.Fake {
			f := plugintest.New(name)
			f.PreEngine = pre
			return f
		}

		It("carries all thirteen arguments to the engine", func() {
			r := build(engineFake("p", nil))
			args := qmmapi.SyscallArgs{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}

			Expect(r.CallEngine(0, args, dispatch)).To(Equal(55))
			Expect(realCalls).To(Equal(1))
			Expect(realArgs).To(Equal(args))
		})

		It("arbitrates like CallMod", func() {
			p1 := engineFake("p1", plugintest.EngineReturns(3, qmmapi.Supersede))
			p2 := engineFake("p2", plugintest.EngineReturns(0, qmmapi.Ignored))
			r := build(p1, p2)

			Expect(r.CallEngine(0, qmmapi.SyscallArgs{}, dispatch)).To(Equal(3))
			Expect(realCalls).To(BeZero())
			Expect(p1.Count("post-engine")).To(Equal(1))
			Expect(p2.Count("post-engine")).To(Equal(1))
			Expect(p1.Count("pre-mod")).To(BeZero())
		})

		It("runs the real call for overrides", func() {
			r := build(engineFake("p", plugintest.EngineReturns(9, qmmapi.Override)))
			Expect(r.CallEngine(0, qmmapi.SyscallArgs{}, dispatch)).To(Equal(9))
			Expect(realCalls).To(Equal(1))
		})
	})

	Describe("LoadAll", func() {
		It("skips plugins that fail and keeps the rest in order", func() {
			good1, good2 := plugintest.New("good1"), plugintest.New("good2")
			old := plugintest.New("old")
			old.Major = qmmapi.InterfaceMajor - 1
			shy := plugintest.New("shy")
			shy.Decline = true

			opener := dltest.NewOpener()
			opener.Add(hostDir+"/good1.so", good1.Image())
			opener.Add(hostDir+"/old.so", old.Image())
			shyImage := opener.Add(hostDir+"/shy.so", shy.Image())
			opener.Add(hostDir+"/good2.so", good2.Image())

			r := plugin.NewRegistry(game, plugin.WithOpener(opener), plugin.WithHostDir(hostDir))
			n := r.LoadAll([]string{"good1.so", "missing.so", "old.so", "shy.so", "good2.so"},
				plugin.AttachArgs{Engine: 0xE, Mod: 0xD, Funcs: &qmmapi.UtilityFuncs{}, Base: 0})

			Expect(n).To(Equal(2))
			Expect(r.Len()).To(Equal(2))
			names := []string{}
			for _, p := range r.Plugins() {
				names = append(names, p.Name())
			}
			Expect(names).To(Equal([]string{"good1", "good2"}))
			Expect(shyImage.Closed()).To(Equal(1))
			Expect(old.Count("attach")).To(BeZero())
			Expect(good1.Attachments()[0].Engine).To(Equal(uintptr(0xE)))
		})
	})

	Describe("Close", func() {
		It("closes plugins in reverse order and detaches before unloading", func() {
			a, b := plugintest.New("a"), plugintest.New("b")
			r := build(a, b)

			Expect(r.Close()).To(Succeed())
			Expect(r.Len()).To(BeZero())
			Expect(journal.Entries()[4:]).To(Equal([]string{
				"b:detach", "b:unload", "a:detach", "a:unload",
			}))
			Expect(testutil.ToFloat64(metrics.Attached)).To(BeZero())
		})

		It("closes every plugin and combines unload failures", func() {
			a, b, c := plugintest.New("a"), plugintest.New("b"), plugintest.New("c")
			opener := dltest.NewOpener()
			imgA := opener.Add(hostDir+"/a.so", a.Image())
			imgA.CloseErr = errors.New("a is busy")
			imgB := opener.Add(hostDir+"/b.so", b.Image())
			imgC := opener.Add(hostDir+"/c.so", c.Image())
			imgC.CloseErr = errors.New("c is busy")

			r := plugin.NewRegistry(game, plugin.WithOpener(opener), plugin.WithHostDir(hostDir))
			Expect(r.LoadAll([]string{"a.so", "b.so", "c.so"}, plugin.AttachArgs{Funcs: &qmmapi.UtilityFuncs{}})).To(Equal(3))

			err := r.Close()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("a is busy"))
			Expect(err.Error()).To(ContainSubstring("c is busy"))
			Expect(errutil.Codes(err)).To(Equal([]string{"DL_CLOSE_FAILED", "DL_CLOSE_FAILED"}))
			Expect(imgB.Closed()).To(Equal(1))
		})
	})
})
