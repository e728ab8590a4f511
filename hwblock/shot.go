package hwblock

import (
	"log"

	"github.com/sarchlab/ispcore/cmdq"
	"github.com/sarchlab/ispcore/debugparam"
	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/pcc"
)

// Shot submits one frame. It drains the tuning slot, stages the block and
// DMA configuration, serializes it into the next command buffer and
// dispatches it. A frame that fails before dispatch is dropped: nothing
// reaches the hardware and the error is returned.
func (c *Controller) Shot(f *Frame) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	st := c.State()
	if !st.Includes(StateRun) {
		return c.notReady("shot", StateRun)
	}

	s := c.sess.Load()
	dbg := debugparam.Get()

	bypass := c.cacheLost.Load() || dbg.Has(debugparam.ForceBypass)
	s.cache.SetBypass(bypass)

	if res, ok := s.slot.Drain(); ok {
		s.cache.WriteSet(res.Set)
	}

	c.configPatternGen(s, dbg)

	if err := c.ops.Config(f, s.cache); err != nil {
		return c.drop(s, f, err)
	}

	s.dmaSaved = s.dma.SaveTo(s.dmaSaved)

	if err := c.ops.ConfigureDMA(f, s.dma); err != nil {
		s.dma.Restore(s.dmaSaved)
		return c.drop(s, f, err)
	}

	for i := range s.dma.Len() {
		s.dma.Build(i, s.cache)
	}

	var buf *cmdq.Buffer
	if c.useCmdq && !bypass {
		buf = s.bufs[c.next]
		buf.Reset()

		if _, err := s.cache.FlushTo(buf); err != nil {
			return c.drop(s, f, err)
		}

		buf.Finalize()
	}

	// Interrupts of this frame are only valid once the block is in CONFIG,
	// and they may arrive before Shot returns.
	c.transition(StateConfig)
	c.pushInflight(f)

	err := s.pcc.Shot(pcc.FrameConfig{FrameCount: f.Fcount, Buffer: buf})
	if err != nil {
		c.popInflight(f)
		if st == StateRun {
			c.transition(StateRun)
		}

		return c.drop(s, f, err)
	}

	if buf != nil {
		c.next = (c.next + 1) % numCmdBuffers
	}

	for _, i := range s.dma.Enabled() {
		s.dma.Advance(i)
	}

	c.counters.shots.Add(1)

	if dbg.Has(debugparam.DumpOnce) && c.dumpOnce.CompareAndSwap(false, true) {
		c.dump(DumpFull, "dump once")
	}

	return nil
}

func (c *Controller) configPatternGen(s *session, dbg debugparam.Params) {
	if dbg.Has(debugparam.PatternGen) {
		s.cache.Write(RegPatternGen, 1)
		s.cache.Write(RegPatternSel, dbg.Pattern)

		return
	}

	s.cache.Write(RegPatternGen, 0)
}

func (c *Controller) drop(s *session, f *Frame, err error) error {
	s.cache.Discard()
	c.counters.drops.Add(1)

	log.Printf("%s: frame %d dropped: %v", c.name, f.Fcount, err)

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosDrop,
		Item:   f,
		Detail: err,
	})

	return err
}
