// Package hwblock implements the controller shared by every hardware block:
// the open/init/enable/shot/disable/close lifecycle, the frame-start and
// frame-end event machine, and the per-frame submission path.
package hwblock

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/ispcore/cmdq"
	"github.com/sarchlab/ispcore/debugparam"
	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/hwerr"
	"github.com/sarchlab/ispcore/irq"
	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/pcc"
	"github.com/sarchlab/ispcore/regcache"
	"github.com/sarchlab/ispcore/regio"
	"github.com/sarchlab/ispcore/regset"
	"github.com/sarchlab/ispcore/tuning"
)

// Hook positions invoked by a Controller.
var (
	// HookPosFrameStart fires on a valid frame start. The item is the frame
	// count.
	HookPosFrameStart = &hooking.HookPos{Name: "FrameStart"}

	// HookPosFrameEnd fires on a valid frame end. The item is the *Frame.
	HookPosFrameEnd = &hooking.HookPos{Name: "FrameEnd"}

	// HookPosAnomaly fires on out-of-order frame events. The item is a
	// description.
	HookPosAnomaly = &hooking.HookPos{Name: "FrameAnomaly"}

	// HookPosError fires on error interrupts. The item is the error.
	HookPosError = &hooking.HookPos{Name: "HardwareError"}

	// HookPosDrop fires when a frame is abandoned before dispatch. The item
	// is the *Frame and the detail is the error.
	HookPosDrop = &hooking.HookPos{Name: "FrameDrop"}

	// HookPosDump fires for every dump. The item is the *Dump.
	HookPosDump = &hooking.HookPos{Name: "Dump"}
)

// numCmdBuffers is the number of command buffers a block alternates between,
// one being consumed by hardware while the next is filled.
const numCmdBuffers = 2

// session holds the resources of one open/close cycle. It is replaced
// wholesale so that interrupt handlers never see a half-built one.
type session struct {
	cache *regcache.Cache
	pcc   *pcc.PCC
	slot  *tuning.Slot
	bufs  [numCmdBuffers]*cmdq.Buffer
	dma   *dma.Set

	// dmaSaved holds the descriptors from before the current shot so a
	// dropped frame leaves them as they were.
	dmaSaved []dma.Channel
}

// A Controller drives one hardware block.
type Controller struct {
	hooking.HookableBase

	name     string
	ops      Ops
	access   regio.Accessor
	irqs     irq.Controller
	storage  *memory.Storage
	cmdqBase uint64
	useCmdq  bool
	releaser BufferReleaser
	recorder Recorder
	enCfg    pcc.EnableConfig

	disableTimeout time.Duration
	resetTimeout   time.Duration
	pollInterval   time.Duration

	// lock serializes lifecycle calls and frame submission. Interrupt
	// handlers never take it.
	lock sync.Mutex

	state     atomic.Int32
	overflow  atomic.Bool
	cacheLost atomic.Bool
	dumpOnce  atomic.Bool
	sess      atomic.Pointer[session]
	next      int
	counters  counters

	// bgLock orders background resets against Close. No reset starts once
	// closing is set.
	bgLock  sync.Mutex
	closing bool
	bg      sync.WaitGroup

	// evLock guards the event machine and the in-flight frames.
	evLock   sync.Mutex
	evState  EventState
	inflight []*Frame
	feSignal chan struct{}
}

// Name returns the name of the block.
func (c *Controller) Name() string {
	return c.name
}

// Type returns the block type.
func (c *Controller) Type() string {
	return c.ops.Type()
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Overflow reports whether the block is in overflow recovery.
func (c *Controller) Overflow() bool {
	return c.overflow.Load()
}

// Bypass reports whether the register cache is bypassed.
func (c *Controller) Bypass() bool {
	s := c.sess.Load()
	return s != nil && s.cache.Bypass()
}

// EventState returns the frame event state.
func (c *Controller) EventState() EventState {
	c.evLock.Lock()
	defer c.evLock.Unlock()

	return c.evState
}

// Counters returns a snapshot of the counters.
func (c *Controller) Counters() Counters {
	cnt := c.counters.snapshot()

	if s := c.sess.Load(); s != nil {
		cnt.Tuning = s.slot.Stats()
	}

	return cnt
}

// Channels returns a summary of the DMA channels, or nil before Init.
func (c *Controller) Channels() []dma.ChannelSummary {
	s := c.sess.Load()
	if s == nil || s.dma == nil {
		return nil
	}

	return s.dma.Summary()
}

// PCC returns the common control of the open block, or nil.
func (c *Controller) PCC() *pcc.PCC {
	s := c.sess.Load()
	if s == nil {
		return nil
	}

	return s.pcc
}

func (c *Controller) transition(to State) {
	from := c.State()
	transitionMustBeLegal(c.name, from, to)
	c.state.Store(int32(to))
}

func (c *Controller) notReady(op string, want State) error {
	return hwerr.Wrap(hwerr.KindNotReady, c.name, op,
		fmt.Errorf("state is %s, need %s", c.State(), want))
}

// Open allocates the block's resources and wires its interrupts.
func (c *Controller) Open() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.State() != StateClosed {
		return c.notReady("open", StateClosed)
	}

	nRegs := c.ops.RegisterCount()
	if int(c.access.Size()/4) < nRegs {
		log.Panicf("%s: window of %#x bytes is smaller than %d registers",
			c.name, c.access.Size(), nRegs)
	}

	s := &session{}
	s.cache = regcache.New(c.name+".Cache", c.access)
	s.pcc = pcc.MakeBuilder().
		WithAccessor(c.access).
		WithFlusher(s.cache).
		WithDisableTimeout(c.disableTimeout).
		WithResetTimeout(c.resetTimeout).
		WithPollInterval(c.pollInterval).
		Build(c.name + ".PCC")
	s.slot = tuning.NewSlot(c.name+".Tuning", nRegs)

	if c.useCmdq {
		for i := range s.bufs {
			s.bufs[i] = cmdq.MakeBuilder().
				WithStorage(c.storage).
				WithBaseAddress(c.cmdqBase + uint64(i)*cmdq.Footprint(nRegs)).
				WithCapacity(nRegs).
				Build(fmt.Sprintf("%s.CmdQ[%d]", c.name, i))
		}
	}

	c.sess.Store(s)
	c.next = 0
	c.resetEvents()
	c.overflow.Store(false)
	c.cacheLost.Store(false)

	c.bgLock.Lock()
	c.closing = false
	c.bgLock.Unlock()

	c.irqs.Attach(irq.LineGeneral, c.handleGeneral)
	c.irqs.Attach(irq.LineError, c.handleError)

	c.transition(StateOpen)

	return nil
}

// Init resets the hardware, loads the register cache, allocates the DMA
// descriptors and writes the block defaults.
func (c *Controller) Init() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.State() != StateOpen {
		return c.notReady("init", StateOpen)
	}

	s := c.sess.Load()

	if err := s.pcc.Init(); err != nil {
		return err
	}

	c.reinitCache(s)

	next := *s
	next.dma = dma.NewSet(c.name+".DMA", DMABase, c.ops.Channels())

	err := c.ops.Init(&Resources{
		Name:  c.name,
		Regs:  next.cache,
		DMA:   next.dma,
		Debug: debugparam.Get(),
	})
	if err != nil {
		next.cache.Discard()
		return err
	}

	next.cache.FlushDirect()

	c.sess.Store(&next)
	c.transition(StateInit)

	return nil
}

// reinitCache reloads the register cache. If the window cannot be reacquired
// the block keeps working with the cache bypassed.
func (c *Controller) reinitCache(s *session) {
	if err := s.cache.Reinit(); err != nil {
		log.Printf("%v, falling back to bypass mode", err)
		c.cacheLost.Store(true)
		s.cache.SetBypass(true)

		return
	}

	c.cacheLost.Store(false)
	s.cache.SetBypass(debugparam.Get().Has(debugparam.ForceBypass))
}

// Enable arms the interrupts and starts the hardware.
func (c *Controller) Enable() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.State() != StateInit {
		return c.notReady("enable", StateInit)
	}

	if err := c.sess.Load().pcc.Enable(c.enCfg); err != nil {
		return err
	}

	c.resetEvents()
	c.transition(StateRun)

	return nil
}

// Disable stops the block after the in-flight frame ends. On timeout it
// returns the Timeout error but the block is stopped anyway. Disabling a
// block that is not running does nothing.
func (c *Controller) Disable() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.disable()
}

func (c *Controller) disable() error {
	if !c.State().Includes(StateRun) {
		return nil
	}

	err := c.sess.Load().pcc.Disable()
	if err != nil {
		c.counters.timeouts.Add(1)
	}

	c.transition(StateInit)
	c.releaseInflight()
	c.resetEvents()

	return err
}

// Close disables the block if needed and releases its resources in reverse
// order of acquisition. Closing a closed block does nothing.
func (c *Controller) Close() error {
	c.stopBackground()

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.State() == StateClosed {
		return nil
	}

	err := c.disable()

	c.irqs.Detach(irq.LineError)
	c.irqs.Detach(irq.LineGeneral)

	s := c.sess.Load()
	s.slot.Reset()
	s.cache.Discard()

	c.transition(StateClosed)
	c.sess.Store(nil)

	return err
}

// StoreTuning publishes a tuning register set for a frame. It may be called
// from any goroutine at any time the block is open.
func (c *Controller) StoreTuning(set regset.Set, frameTag uint32) (overrun bool, err error) {
	s := c.sess.Load()
	if s == nil {
		return false, c.notReady("store tuning", StateOpen)
	}

	limit := uint32(c.ops.RegisterCount()) * 4
	for _, p := range set {
		if p.Addr%4 != 0 || p.Addr >= limit {
			return false, fmt.Errorf("%s: tuning register %#x outside the block",
				c.name, p.Addr)
		}
	}

	return s.slot.Store(set, frameTag), nil
}

// Slot returns the tuning slot of the open block, or nil.
func (c *Controller) Slot() *tuning.Slot {
	s := c.sess.Load()
	if s == nil {
		return nil
	}

	return s.slot
}

// NotifyTimeout takes a full diagnostic dump after the orchestrator gave up
// waiting on the block. It does not try to recover.
func (c *Controller) NotifyTimeout() *Dump {
	c.counters.timeouts.Add(1)
	log.Printf("%s: timeout notified in state %s", c.name, c.State())

	return c.dump(DumpFull, "timeout")
}

// Reset soft-resets the block and reloads its register cache. A running
// block is enabled again and the next frame carries a full configuration.
func (c *Controller) Reset() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.reset()
}

func (c *Controller) reset() error {
	st := c.State()
	if !st.Includes(StateInit) {
		return c.notReady("reset", StateInit)
	}

	s := c.sess.Load()
	c.counters.resets.Add(1)

	if err := s.pcc.Reset(); err != nil {
		return err
	}

	c.releaseInflight()
	c.resetEvents()
	c.overflow.Store(false)
	c.reinitCache(s)

	if !st.Includes(StateRun) {
		return nil
	}

	if err := s.pcc.Enable(c.enCfg); err != nil {
		return err
	}

	if st == StateConfig {
		c.transition(StateRun)
	}

	return nil
}

// Recover resynchronizes the hardware frame counter after an overflow and
// leaves overflow recovery.
func (c *Controller) Recover(fcount uint32) error {
	s := c.sess.Load()
	if s == nil || !c.State().Includes(StateInit) {
		return c.notReady("recover", StateInit)
	}

	s.pcc.Recover(fcount)
	c.overflow.Store(false)
	c.resetEvents()

	return nil
}

// CmpFcount compares the hardware frame counter with fcount.
func (c *Controller) CmpFcount(fcount uint32) (hw uint32, drifted bool, err error) {
	s := c.sess.Load()
	if s == nil || !c.State().Includes(StateInit) {
		return 0, false, c.notReady("cmp fcount", StateInit)
	}

	hw, drifted = s.pcc.CmpFcount(fcount)

	return hw, drifted, nil
}

// WaitFrameEnd waits until count frames have ended in total.
func (c *Controller) WaitFrameEnd(count uint64, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		c.evLock.Lock()
		if c.counters.frameEnd.Load() >= count {
			c.evLock.Unlock()
			return nil
		}
		sig := c.feSignal
		c.evLock.Unlock()

		select {
		case <-sig:
		case <-deadline.C:
			return hwerr.Wrap(hwerr.KindTimeout, c.name, "wait frame end",
				fmt.Errorf("%d of %d frames ended", c.counters.frameEnd.Load(), count))
		}
	}
}

// Wait waits for background work started by interrupt handlers.
func (c *Controller) Wait() {
	c.bg.Wait()
}
