package hwblock

import (
	"fmt"
	"time"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/regset"
)

// DumpMode selects how much a dump contains.
type DumpMode int

// The dump modes.
const (
	// DumpFull reads every register of the block and the DMA state.
	DumpFull DumpMode = iota

	// DumpLight reads the common control registers and summarizes DMA.
	DumpLight

	// DumpState only reports software state and counters.
	DumpState
)

func (m DumpMode) String() string {
	switch m {
	case DumpFull:
		return "full"
	case DumpLight:
		return "light"
	case DumpState:
		return "state"
	default:
		return fmt.Sprintf("dump(%d)", int(m))
	}
}

// ParseDumpMode turns a dump mode name into a DumpMode.
func ParseDumpMode(s string) (DumpMode, error) {
	for _, m := range []DumpMode{DumpFull, DumpLight, DumpState} {
		if m.String() == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("unknown dump mode %q", s)
}

// A Dump is a structured diagnostic snapshot of a block.
type Dump struct {
	Block  string
	Type   string
	Mode   DumpMode
	Reason string
	Time   time.Time

	State    State
	Overflow bool
	Event    EventState
	Bypass   bool
	Counters Counters

	Control   regset.Set
	Registers regset.Set
	DMA       []dma.ChannelSummary
}

// Dump takes a diagnostic snapshot of the block. Full and light dumps read
// hardware under the clock request.
func (c *Controller) Dump(mode DumpMode) *Dump {
	return c.dump(mode, "requested")
}

func (c *Controller) dump(mode DumpMode, reason string) *Dump {
	d := &Dump{
		Block:    c.name,
		Type:     c.ops.Type(),
		Mode:     mode,
		Reason:   reason,
		Time:     time.Now(),
		State:    c.State(),
		Overflow: c.overflow.Load(),
		Event:    c.EventState(),
		Counters: c.Counters(),
	}

	s := c.sess.Load()
	if s == nil || mode == DumpState {
		c.emitDump(d)
		return d
	}

	d.Bypass = s.cache.Bypass()

	s.pcc.SetQch(true)
	d.Control = s.pcc.Dump()

	if mode == DumpFull {
		d.Registers = c.readAll()
	}
	s.pcc.SetQch(false)

	if s.dma != nil {
		d.DMA = s.dma.Summary()
	}

	c.emitDump(d)

	return d
}

func (c *Controller) readAll() regset.Set {
	values := c.access.ReadBulk(0, c.ops.RegisterCount())

	set := make(regset.Set, 0)
	for i, v := range values {
		if v != 0 {
			set = append(set, regset.Pair{Addr: uint32(i) * 4, Value: v})
		}
	}

	return set
}

func (c *Controller) emitDump(d *Dump) {
	if c.recorder != nil {
		c.recorder.RecordDump(d)
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosDump,
		Item:   d,
	})
}
