package hwblock

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/ispcore/debugparam"
	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/hwerr"
	"github.com/sarchlab/ispcore/irq"
	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/pcc"
	"github.com/sarchlab/ispcore/regset"
	"github.com/sarchlab/ispcore/simhw"
)

var _ = Describe("Controller", func() {
	var (
		mockCtrl *gomock.Controller
		ops      *MockOps
		releaser *MockBufferReleaser
		recorder *MockRecorder
		storage  *memory.Storage
		channels []dma.ChannelSpec
		dev      *simhw.Device
		c        *Controller
	)

	build := func(mode simhw.Mode) {
		dev = simhw.MakeBuilder().
			WithStorage(storage).
			WithMode(mode).
			WithFrameTime(50 * time.Microsecond).
			Build("Blk")

		c = MakeBuilder().
			WithOps(ops).
			WithAccessor(dev.Region()).
			WithInterrupts(dev).
			WithCommandBuffers(storage, 0x10000).
			WithReleaser(releaser).
			WithRecorder(recorder).
			WithDisableTimeout(20 * time.Millisecond).
			WithResetTimeout(2 * time.Millisecond).
			WithPollInterval(50 * time.Microsecond).
			Build("Blk")
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		ops = NewMockOps(mockCtrl)
		releaser = NewMockBufferReleaser(mockCtrl)
		recorder = NewMockRecorder(mockCtrl)

		channels = []dma.ChannelSpec{{Name: "rdma_in", Dir: dma.DirRead}}

		ops.EXPECT().Type().Return("test").AnyTimes()
		ops.EXPECT().RegisterCount().Return(1024).AnyTimes()
		ops.EXPECT().Channels().
			DoAndReturn(func() []dma.ChannelSpec { return channels }).
			AnyTimes()
		ops.EXPECT().Init(gomock.Any()).Return(nil).AnyTimes()

		storage = memory.NewStorage(0x20000)
		build(simhw.ModeManual)
	})

	AfterEach(func() {
		c.Wait()
		debugparam.Teardown()
		mockCtrl.Finish()
	})

	bringUp := func() {
		Expect(c.Open()).To(Succeed())
		Expect(c.Init()).To(Succeed())
		Expect(c.Enable()).To(Succeed())
	}

	expectFrameConfig := func() {
		ops.EXPECT().Config(gomock.Any(), gomock.Any()).
			DoAndReturn(func(f *Frame, w RegWriter) error {
				w.Write(BlockBase, f.Width)
				return nil
			})
		ops.EXPECT().ConfigureDMA(gomock.Any(), gomock.Any()).
			DoAndReturn(func(f *Frame, set *dma.Set) error {
				bufs, ok := f.Buffers["rdma_in"]
				if !ok {
					set.Disable(0)
					return nil
				}

				return set.Configure(0, dma.Config{
					Format:  dma.FormatBayer10,
					Width:   f.Width,
					Height:  f.Height,
					Buffers: bufs,
				})
			})
	}

	newFrame := func(n uint32) *Frame {
		return &Frame{
			Fcount:  n,
			Width:   64,
			Height:  16,
			Buffers: map[string][][]uint64{"rdma_in": {{0x1_0000}}},
			Changed: ParamAll,
		}
	}

	Context("lifecycle ordering", func() {
		It("should refuse a shot before init without touching hardware", func() {
			err := c.Shot(newFrame(1))
			Expect(errors.Is(err, hwerr.ErrNotReady)).To(BeTrue())

			Expect(c.Open()).To(Succeed())
			err = c.Shot(newFrame(1))

			Expect(errors.Is(err, hwerr.ErrNotReady)).To(BeTrue())
			Expect(dev.Region().Accesses()).To(BeZero())
			Expect(dev.Stats().Triggers).To(BeZero())
		})

		It("should refuse out-of-order lifecycle calls", func() {
			Expect(errors.Is(c.Init(), hwerr.ErrNotReady)).To(BeTrue())

			Expect(c.Open()).To(Succeed())
			Expect(errors.Is(c.Open(), hwerr.ErrNotReady)).To(BeTrue())
			Expect(errors.Is(c.Enable(), hwerr.ErrNotReady)).To(BeTrue())
			Expect(c.State()).To(Equal(StateOpen))
		})

		It("should treat a second disable as a no-op", func() {
			bringUp()

			Expect(c.Disable()).To(Succeed())
			Expect(c.Disable()).To(Succeed())
			Expect(c.State()).To(Equal(StateInit))
		})

		It("should close and reopen", func() {
			bringUp()

			Expect(c.Close()).To(Succeed())
			Expect(c.Close()).To(Succeed())
			Expect(c.State()).To(Equal(StateClosed))

			_, err := c.StoreTuning(regset.Set{}, 1)
			Expect(errors.Is(err, hwerr.ErrNotReady)).To(BeTrue())

			Expect(c.Open()).To(Succeed())
			Expect(c.State()).To(Equal(StateOpen))
		})

		It("should stay open when the reset at init hangs", func() {
			dev.SetFaults(simhw.Faults{StuckReset: true})
			Expect(c.Open()).To(Succeed())

			err := c.Init()

			Expect(errors.Is(err, hwerr.ErrTimeout)).To(BeTrue())
			Expect(c.State()).To(Equal(StateOpen))
		})
	})

	Context("frame submission", func() {
		It("should run a frame from shot to frame end", func() {
			var positions []string
			hook := hooking.HookFunc(func(ctx hooking.HookCtx) {
				positions = append(positions, ctx.Pos.Name)
			})
			c.AcceptHook(&hook)

			bringUp()
			expectFrameConfig()
			f := newFrame(1)

			Expect(c.Shot(f)).To(Succeed())
			Expect(c.State()).To(Equal(StateConfig))

			releaser.EXPECT().Release("Blk", f, true)

			Expect(dev.StartFrame()).To(BeTrue())
			Expect(c.EventState()).To(Equal(EventFrameStart))
			Expect(dev.EndFrame()).To(BeTrue())

			cnt := c.Counters()
			Expect(cnt.Shots).To(Equal(uint64(1)))
			Expect(cnt.FrameStart).To(Equal(uint64(1)))
			Expect(cnt.FrameEnd).To(Equal(uint64(1)))
			Expect(cnt.Anomalies).To(BeZero())
			Expect(c.State()).To(Equal(StateConfig))
			Expect(c.PCC().Inflight()).To(BeZero())

			v, ok := dev.Applied().Lookup(BlockBase)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(64)))
			Expect(dev.Region().Peek(DMABase + dma.RegAddr0Lo)).
				To(Equal(uint32(0x1_0000)))
			Expect(dev.Region().Peek(pcc.RegQch)).To(BeZero())
			Expect(positions).To(Equal([]string{"FrameStart", "FrameEnd"}))
		})

		It("should dispatch an empty buffer with no channels and no changes",
			func() {
				channels = nil
				bringUp()
				ops.EXPECT().Config(gomock.Any(), gomock.Any()).Return(nil)
				ops.EXPECT().ConfigureDMA(gomock.Any(), gomock.Any()).Return(nil)

				Expect(c.Shot(&Frame{Fcount: 1})).To(Succeed())

				Expect(dev.Pending()).To(Equal(1))
				Expect(dev.Applied()).To(BeEmpty())
				Expect(dev.Region().Peek(pcc.RegCmdqMode)).
					To(Equal(uint32(pcc.CmdqModeQueue)))
				Expect(dev.Region().Peek(pcc.RegCmdqNum)).To(BeZero())
			})

		It("should drop a frame whose DMA setup fails", func() {
			bringUp()
			ops.EXPECT().Config(gomock.Any(), gomock.Any()).
				DoAndReturn(func(f *Frame, w RegWriter) error {
					w.Write(BlockBase, 1)
					return nil
				})
			ops.EXPECT().ConfigureDMA(gomock.Any(), gomock.Any()).
				DoAndReturn(func(f *Frame, set *dma.Set) error {
					return set.Configure(0, dma.Config{})
				})

			err := c.Shot(newFrame(1))

			Expect(errors.Is(err, dma.ErrInvalidDescriptor)).To(BeTrue())
			Expect(c.Counters().Drops).To(Equal(uint64(1)))
			Expect(c.State()).To(Equal(StateRun))
			Expect(dev.Stats().Triggers).To(BeZero())
			Expect(dev.Region().Peek(BlockBase)).To(BeZero())
		})

		It("should keep the descriptors of a dropped frame unchanged", func() {
			channels = []dma.ChannelSpec{
				{Name: "rdma_in", Dir: dma.DirRead},
				{Name: "wdma_out", Dir: dma.DirWrite},
			}
			bringUp()

			before := c.Channels()

			ops.EXPECT().Config(gomock.Any(), gomock.Any()).Return(nil)
			ops.EXPECT().ConfigureDMA(gomock.Any(), gomock.Any()).
				DoAndReturn(func(f *Frame, set *dma.Set) error {
					err := set.Configure(0, dma.Config{
						Format:  dma.FormatBayer10,
						Width:   f.Width,
						Height:  f.Height,
						Buffers: f.Buffers["rdma_in"],
					})
					Expect(err).ToNot(HaveOccurred())

					return set.Configure(1, dma.Config{})
				})

			err := c.Shot(newFrame(1))

			Expect(errors.Is(err, dma.ErrInvalidDescriptor)).To(BeTrue())
			Expect(c.Channels()).To(Equal(before))
			Expect(c.Channels()[0].Enabled).To(BeFalse())
		})

		It("should alternate command buffers", func() {
			bringUp()
			expectFrameConfig()
			expectFrameConfig()

			Expect(c.Shot(newFrame(1))).To(Succeed())
			first := dev.Region().Peek(pcc.RegCmdqHdrLo)
			Expect(c.Shot(newFrame(2))).To(Succeed())
			second := dev.Region().Peek(pcc.RegCmdqHdrLo)

			Expect(first).To(Equal(uint32(0x10000)))
			Expect(second).To(Equal(uint32(0x10000 + CmdqFootprint(ops)/2)))
		})

		It("should apply tuning and reuse it when none arrives", func() {
			bringUp()
			expectFrameConfig()
			expectFrameConfig()

			overrun, err := c.StoreTuning(
				regset.Set{{Addr: TuningBase, Value: 5}}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(overrun).To(BeFalse())

			Expect(c.Shot(newFrame(1))).To(Succeed())
			Expect(dev.Region().Peek(TuningBase)).To(Equal(uint32(5)))

			Expect(c.Shot(newFrame(2))).To(Succeed())
			Expect(c.Counters().Tuning.Stales).To(Equal(uint64(1)))
		})

		It("should reject tuning outside the block", func() {
			bringUp()

			_, err := c.StoreTuning(regset.Set{{Addr: 0x1000, Value: 1}}, 1)

			Expect(err).To(HaveOccurred())
		})

		It("should fall back to bypass when the window cannot be remapped",
			func() {
				dev.SetMappable(false)
				bringUp()
				expectFrameConfig()

				Expect(c.Bypass()).To(BeTrue())
				Expect(c.Shot(newFrame(1))).To(Succeed())

				Expect(dev.Region().Peek(pcc.RegCmdqMode)).
					To(Equal(uint32(pcc.CmdqModeDirect)))
				Expect(dev.Region().Peek(BlockBase)).To(Equal(uint32(64)))
			})

		It("should write directly when bypass is forced", func() {
			debugparam.Init(debugparam.Params{Flags: debugparam.ForceBypass})
			bringUp()
			expectFrameConfig()

			Expect(c.Shot(newFrame(1))).To(Succeed())

			Expect(c.Bypass()).To(BeTrue())
			Expect(dev.Region().Peek(pcc.RegCmdqMode)).
				To(Equal(uint32(pcc.CmdqModeDirect)))
		})

		It("should enable the pattern generator", func() {
			debugparam.Init(debugparam.Params{
				Flags:   debugparam.PatternGen,
				Pattern: 3,
			})
			bringUp()
			expectFrameConfig()

			Expect(c.Shot(newFrame(1))).To(Succeed())

			Expect(dev.Region().Peek(RegPatternGen)).To(Equal(uint32(1)))
			Expect(dev.Region().Peek(RegPatternSel)).To(Equal(uint32(3)))
		})

		It("should dump once when asked", func() {
			debugparam.Init(debugparam.Params{Flags: debugparam.DumpOnce})
			bringUp()
			expectFrameConfig()
			expectFrameConfig()
			recorder.EXPECT().RecordDump(gomock.Any()).Times(1)

			Expect(c.Shot(newFrame(1))).To(Succeed())
			Expect(c.Shot(newFrame(2))).To(Succeed())
		})
	})

	Context("interrupts", func() {
		BeforeEach(func() {
			releaser.EXPECT().Release(gomock.Any(), gomock.Any(), gomock.Any()).
				AnyTimes()
		})

		It("should discard interrupts before the first dispatch", func() {
			bringUp()

			Expect(dev.Raise(irq.LineGeneral, pcc.Int0FrameStart)).To(BeTrue())

			cnt := c.Counters()
			Expect(cnt.Discarded).To(Equal(uint64(1)))
			Expect(cnt.FrameStart).To(BeZero())
			Expect(c.EventState()).To(Equal(EventNone))
		})

		It("should count a duplicate frame end as an anomaly", func() {
			bringUp()
			expectFrameConfig()
			Expect(c.Shot(newFrame(1))).To(Succeed())
			Expect(dev.Step()).To(BeTrue())

			dev.Raise(irq.LineGeneral, pcc.Int0FrameEnd)

			cnt := c.Counters()
			Expect(cnt.FrameEnd).To(Equal(uint64(1)))
			Expect(cnt.FrameStart).To(Equal(uint64(1)))
			Expect(cnt.Anomalies).To(Equal(uint64(1)))
		})

		It("should count a duplicate frame start as an anomaly", func() {
			bringUp()
			expectFrameConfig()
			dev.SetFaults(simhw.Faults{DuplicateFrameStart: true})
			Expect(c.Shot(newFrame(1))).To(Succeed())

			Expect(dev.Step()).To(BeTrue())

			cnt := c.Counters()
			Expect(cnt.FrameStart).To(Equal(uint64(1)))
			Expect(cnt.FrameEnd).To(Equal(uint64(1)))
			Expect(cnt.Anomalies).To(Equal(uint64(1)))
		})

		It("should end the running frame before starting the next one", func() {
			bringUp()
			expectFrameConfig()
			expectFrameConfig()
			Expect(c.Shot(newFrame(1))).To(Succeed())
			Expect(c.Shot(newFrame(2))).To(Succeed())

			dev.Raise(irq.LineGeneral, pcc.Int0FrameStart)
			dev.Raise(irq.LineGeneral, pcc.Int0FrameEnd|pcc.Int0FrameStart)

			Expect(c.EventState()).To(Equal(EventFrameStart))

			dev.Raise(irq.LineGeneral, pcc.Int0FrameEnd)

			cnt := c.Counters()
			Expect(cnt.FrameStart).To(Equal(uint64(2)))
			Expect(cnt.FrameEnd).To(Equal(uint64(2)))
			Expect(cnt.Anomalies).To(BeZero())
			Expect(c.Disable()).To(Succeed())
		})

		It("should treat start and end in one read as a short frame", func() {
			bringUp()
			expectFrameConfig()
			Expect(c.Shot(newFrame(1))).To(Succeed())

			dev.Raise(irq.LineGeneral, pcc.Int0FrameStart|pcc.Int0FrameEnd)

			cnt := c.Counters()
			Expect(cnt.FrameStart).To(Equal(uint64(1)))
			Expect(cnt.FrameEnd).To(Equal(uint64(1)))
			Expect(cnt.Anomalies).To(BeZero())
			Expect(c.EventState()).To(Equal(EventFrameEnd))
		})

		It("should never count more frame ends than starts", func() {
			bringUp()
			expectFrameConfig()
			Expect(c.Shot(newFrame(1))).To(Succeed())

			dev.Raise(irq.LineGeneral, pcc.Int0FrameEnd)

			cnt := c.Counters()
			Expect(cnt.FrameEnd).To(BeZero())
			Expect(cnt.Anomalies).To(Equal(uint64(1)))
		})

		It("should enter overflow recovery on an overflow", func() {
			debugparam.Init(debugparam.Params{Flags: debugparam.DumpOnError})
			bringUp()
			expectFrameConfig()
			Expect(c.Shot(newFrame(1))).To(Succeed())

			recorder.EXPECT().RecordDump(gomock.Any()).Do(func(d *Dump) {
				Expect(d.Mode).To(Equal(DumpLight))
				Expect(d.Overflow).To(BeTrue())
			})

			dev.Raise(irq.LineError, pcc.Int1Overflow)

			Expect(c.Overflow()).To(BeTrue())
			cnt := c.Counters()
			Expect(cnt.Errors).To(Equal(uint64(1)))
			Expect(cnt.Overflows).To(Equal(uint64(1)))

			Expect(c.Recover(1)).To(Succeed())
			Expect(c.Overflow()).To(BeFalse())
			Expect(dev.Region().Peek(pcc.RegHwFcount)).To(Equal(uint32(1)))
		})

		It("should reset after a fault when asked", func() {
			debugparam.Init(debugparam.Params{Flags: debugparam.ResetOnError})
			bringUp()
			expectFrameConfig()
			Expect(c.Shot(newFrame(1))).To(Succeed())

			dev.Raise(irq.LineError, pcc.Int1DmaError)
			c.Wait()

			Expect(c.Counters().Resets).To(Equal(uint64(1)))
			Expect(c.State()).To(Equal(StateRun))
		})

		It("should not start a reset once closing has begun", func() {
			bringUp()

			c.stopBackground()

			Expect(c.resetInBackground(c.sess.Load())).To(BeFalse())
			Expect(c.Close()).To(Succeed())
			Expect(c.Counters().Resets).To(BeZero())

			Expect(c.Open()).To(Succeed())
			Expect(c.resetInBackground(c.sess.Load())).To(BeTrue())
		})

		It("should skip a reset meant for an earlier session", func() {
			bringUp()
			old := c.sess.Load()

			Expect(c.Close()).To(Succeed())
			bringUp()

			Expect(c.resetInBackground(old)).To(BeTrue())
			c.Wait()

			Expect(c.Counters().Resets).To(BeZero())
			Expect(c.State()).To(Equal(StateRun))
		})
	})

	Context("disable", func() {
		It("should time out when the frame end never arrives", func() {
			bringUp()
			expectFrameConfig()
			f := newFrame(1)
			Expect(c.Shot(f)).To(Succeed())
			Expect(dev.StartFrame()).To(BeTrue())

			releaser.EXPECT().Release("Blk", f, false)

			err := c.Disable()

			Expect(errors.Is(err, hwerr.ErrTimeout)).To(BeTrue())
			Expect(c.State()).To(Equal(StateInit))
			Expect(c.Counters().Timeouts).To(Equal(uint64(1)))
			Expect(c.PCC().Enabled()).To(BeFalse())
		})

		It("should wait for the in-flight frame", func() {
			bringUp()
			expectFrameConfig()
			f := newFrame(1)
			Expect(c.Shot(f)).To(Succeed())
			releaser.EXPECT().Release("Blk", f, true)

			go func() {
				time.Sleep(2 * time.Millisecond)
				dev.Step()
			}()

			Expect(c.Disable()).To(Succeed())
			Expect(c.Counters().FrameEnd).To(Equal(uint64(1)))
		})
	})

	Context("recovery", func() {
		BeforeEach(func() {
			releaser.EXPECT().Release(gomock.Any(), gomock.Any(), gomock.Any()).
				AnyTimes()
		})

		It("should reset and resend the full configuration", func() {
			bringUp()
			expectFrameConfig()
			expectFrameConfig()
			Expect(c.Shot(newFrame(1))).To(Succeed())
			Expect(dev.Region().Peek(BlockBase)).To(Equal(uint32(64)))

			Expect(c.Reset()).To(Succeed())

			Expect(c.State()).To(Equal(StateRun))
			Expect(c.PCC().Enabled()).To(BeTrue())
			Expect(dev.Pending()).To(BeZero())
			Expect(dev.Region().Peek(BlockBase)).To(BeZero())

			Expect(c.Shot(newFrame(2))).To(Succeed())
			Expect(dev.Region().Peek(BlockBase)).To(Equal(uint32(64)))
			Expect(c.Counters().Resets).To(Equal(uint64(1)))
		})

		It("should report a hung reset", func() {
			bringUp()
			dev.SetFaults(simhw.Faults{StuckReset: true})

			Expect(errors.Is(c.Reset(), hwerr.ErrTimeout)).To(BeTrue())
		})

		It("should detect frame counter drift", func() {
			bringUp()
			expectFrameConfig()
			dev.SetFaults(simhw.Faults{FcountSkew: 3})
			Expect(c.Shot(newFrame(10))).To(Succeed())
			Expect(dev.Step()).To(BeTrue())

			hw, drifted, err := c.CmpFcount(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hw).To(Equal(uint32(13)))
			Expect(drifted).To(BeTrue())

			Expect(c.Recover(10)).To(Succeed())
			_, drifted, _ = c.CmpFcount(10)
			Expect(drifted).To(BeFalse())
		})

		It("should refuse recovery on a closed block", func() {
			_, _, err := c.CmpFcount(1)
			Expect(errors.Is(err, hwerr.ErrNotReady)).To(BeTrue())
			Expect(errors.Is(c.Recover(1), hwerr.ErrNotReady)).To(BeTrue())
			Expect(errors.Is(c.Reset(), hwerr.ErrNotReady)).To(BeTrue())
		})
	})

	Context("diagnostics", func() {
		It("should dump at every verbosity", func() {
			bringUp()
			expectFrameConfig()
			Expect(c.Shot(newFrame(1))).To(Succeed())
			recorder.EXPECT().RecordDump(gomock.Any()).Times(3)

			st := c.Dump(DumpState)
			Expect(st.Control).To(BeNil())
			Expect(st.State).To(Equal(StateConfig))
			Expect(st.Counters.Shots).To(Equal(uint64(1)))

			light := c.Dump(DumpLight)
			Expect(light.Control).To(HaveLen(pcc.RegVersion/4 + 1))
			Expect(light.DMA).To(HaveLen(1))
			Expect(light.Registers).To(BeNil())

			full := c.Dump(DumpFull)
			v, ok := full.Registers.Lookup(BlockBase)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(64)))
			Expect(dev.Region().Peek(pcc.RegQch)).To(BeZero())
		})

		It("should dump on a timeout notification without recovering", func() {
			bringUp()
			recorder.EXPECT().RecordDump(gomock.Any())

			d := c.NotifyTimeout()

			Expect(d.Mode).To(Equal(DumpFull))
			Expect(d.Reason).To(Equal("timeout"))
			Expect(c.Counters().Timeouts).To(Equal(uint64(1)))
			Expect(c.State()).To(Equal(StateRun))
		})

		It("should parse dump modes", func() {
			m, err := ParseDumpMode("light")
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(Equal(DumpLight))

			_, err = ParseDumpMode("verbose")
			Expect(err).To(HaveOccurred())
		})

		It("should wait for frame ends", func() {
			bringUp()
			expectFrameConfig()
			releaser.EXPECT().Release(gomock.Any(), gomock.Any(), true)
			Expect(c.Shot(newFrame(1))).To(Succeed())

			err := c.WaitFrameEnd(1, time.Millisecond)
			Expect(errors.Is(err, hwerr.ErrTimeout)).To(BeTrue())

			go dev.Step()

			Expect(c.WaitFrameEnd(1, time.Second)).To(Succeed())
		})
	})

	Context("with free-running hardware", func() {
		BeforeEach(func() {
			build(simhw.ModeAuto)
			dev.Start()
		})

		AfterEach(func() {
			dev.Stop()
		})

		It("should run frames while tuning arrives concurrently", func() {
			ops.EXPECT().Config(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
			ops.EXPECT().ConfigureDMA(gomock.Any(), gomock.Any()).
				Return(nil).AnyTimes()
			releaser.EXPECT().Release(gomock.Any(), gomock.Any(), true).AnyTimes()

			bringUp()

			stop := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(1)

			go func() {
				defer wg.Done()

				for tag := uint32(0); ; tag++ {
					select {
					case <-stop:
						return
					default:
					}

					_, _ = c.StoreTuning(
						regset.Set{{Addr: TuningBase, Value: tag}}, tag)
				}
			}()

			for i := 1; i <= 20; i++ {
				Expect(c.Shot(&Frame{Fcount: uint32(i)})).To(Succeed())
				Expect(c.WaitFrameEnd(uint64(i), time.Second)).To(Succeed())
			}

			close(stop)
			wg.Wait()

			cnt := c.Counters()
			Expect(cnt.FrameStart).To(Equal(uint64(20)))
			Expect(cnt.FrameEnd).To(Equal(uint64(20)))
			Expect(cnt.Anomalies).To(BeZero())
			Expect(c.Disable()).To(Succeed())
		})
	})
})
