package hwblock

import (
	"fmt"
	"log"

	"github.com/sarchlab/ispcore/debugparam"
	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/hwerr"
	"github.com/sarchlab/ispcore/pcc"
)

func (c *Controller) resetEvents() {
	c.evLock.Lock()
	defer c.evLock.Unlock()

	c.evState = EventNone
}

func (c *Controller) pushInflight(f *Frame) {
	c.evLock.Lock()
	defer c.evLock.Unlock()

	c.inflight = append(c.inflight, f)
}

func (c *Controller) popInflight(f *Frame) {
	c.evLock.Lock()
	defer c.evLock.Unlock()

	for i, g := range c.inflight {
		if g == f {
			c.inflight = append(c.inflight[:i], c.inflight[i+1:]...)
			return
		}
	}
}

// releaseInflight hands back the buffers of frames that will never end.
func (c *Controller) releaseInflight() {
	c.evLock.Lock()
	frames := c.inflight
	c.inflight = nil
	c.evLock.Unlock()

	if c.releaser == nil {
		return
	}

	for _, f := range frames {
		c.releaser.Release(c.name, f, false)
	}
}

func (c *Controller) anomaly(format string, args ...any) {
	c.counters.anomalies.Add(1)

	msg := fmt.Sprintf(format, args...)
	log.Printf("%s: %s", c.name, msg)

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosAnomaly,
		Item:   msg,
	})
}

// handleGeneral services the general line. Status is read and acknowledged
// under the clock request.
func (c *Controller) handleGeneral() {
	s := c.sess.Load()
	if s == nil {
		return
	}

	s.pcc.SetQch(true)
	status := s.pcc.GetIntStatus(pcc.Int0, true)
	s.pcc.SetQch(false)

	if c.State() != StateConfig {
		c.counters.discarded.Add(1)
		log.Printf("%s: interrupt %#x in state %s discarded",
			c.name, status, c.State())

		return
	}

	start := status&pcc.Int0FrameStart != 0
	end := status&pcc.Int0FrameEnd != 0

	// Status bits stay set until acknowledged, so one read can hold the end
	// of the running frame together with the start of the next one.
	if start && end && c.EventState() == EventFrameStart {
		c.onFrameEnd(s)
		c.onFrameStart()

		return
	}

	if start {
		c.onFrameStart()
	}

	if end {
		c.onFrameEnd(s)
	}
}

func (c *Controller) onFrameStart() {
	c.evLock.Lock()

	if c.evState == EventFrameStart {
		c.evLock.Unlock()
		c.anomaly("frame start while already in frame start")

		return
	}

	c.evState = EventFrameStart
	fs := c.counters.frameStart.Add(1)
	c.evLock.Unlock()

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosFrameStart,
		Item:   fs,
	})
}

func (c *Controller) onFrameEnd(s *session) {
	c.evLock.Lock()

	if c.evState != EventFrameStart {
		state := c.evState
		c.evLock.Unlock()
		c.anomaly("frame end in event state %s", state)

		return
	}

	fs := c.counters.frameStart.Load()
	if c.counters.frameEnd.Load()+1 > fs {
		c.evLock.Unlock()

		err := hwerr.Wrap(hwerr.KindFrameCounterInconsistent, c.name,
			"frame end", fmt.Errorf("fe %d > fs %d",
				c.counters.frameEnd.Load()+1, fs))
		c.anomaly("%v", err)

		return
	}

	c.evState = EventFrameEnd
	c.counters.frameEnd.Add(1)

	var f *Frame
	if len(c.inflight) > 0 {
		f = c.inflight[0]
		c.inflight = c.inflight[1:]
	}

	close(c.feSignal)
	c.feSignal = make(chan struct{})
	c.evLock.Unlock()

	s.pcc.FrameDone()

	if f != nil && c.releaser != nil {
		c.releaser.Release(c.name, f, true)
	}

	if debugparam.Get().Has(debugparam.TraceFrames) && f != nil {
		log.Printf("%s: frame %d done", c.name, f.Fcount)
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosFrameEnd,
		Item:   f,
	})
}

// handleError services the error line. Faults are surfaced through counters
// and hooks, never as a return value.
func (c *Controller) handleError() {
	s := c.sess.Load()
	if s == nil {
		return
	}

	s.pcc.SetQch(true)
	status := s.pcc.GetIntStatus(pcc.Int1, true)
	s.pcc.SetQch(false)

	if c.State() != StateConfig {
		c.counters.discarded.Add(1)
		log.Printf("%s: error interrupt %#x in state %s discarded",
			c.name, status, c.State())

		return
	}

	c.counters.errors.Add(1)

	if status&pcc.Int1Overflow != 0 {
		c.overflow.Store(true)
		c.counters.overflows.Add(1)
	}

	err := hwerr.Wrap(hwerr.KindHardwareFault, c.name, "interrupt",
		fmt.Errorf("error status %#x", status))
	log.Printf("%v", err)

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosError,
		Item:   err,
		Detail: status,
	})

	dbg := debugparam.Get()

	if dbg.Has(debugparam.DumpOnError) {
		c.dump(DumpLight, err.Error())
	}

	if dbg.Has(debugparam.ResetOnError) {
		c.resetInBackground(s)
	}
}

// resetInBackground resets the block after a fault without blocking the
// interrupt handler. The reset only applies to session s. It is refused once
// the block has started closing.
func (c *Controller) resetInBackground(s *session) bool {
	c.bgLock.Lock()
	defer c.bgLock.Unlock()

	if c.closing {
		log.Printf("%s: closing, reset after fault skipped", c.name)
		return false
	}

	c.bg.Add(1)

	go func() {
		defer c.bg.Done()

		c.lock.Lock()
		defer c.lock.Unlock()

		if c.sess.Load() != s {
			log.Printf("%s: session ended, reset after fault skipped", c.name)
			return
		}

		if err := c.reset(); err != nil {
			log.Printf("%s: reset after fault failed: %v", c.name, err)
		}
	}()

	return true
}

// stopBackground refuses further background work and waits for what is
// running.
func (c *Controller) stopBackground() {
	c.bgLock.Lock()
	c.closing = true
	c.bgLock.Unlock()

	c.bg.Wait()
}
