package hwblock

import (
	"sync/atomic"

	"github.com/sarchlab/ispcore/tuning"
)

// Counters is a snapshot of what happened to a block. The orchestrator polls
// it to find blocks that need attention.
type Counters struct {
	Shots      uint64
	FrameStart uint64
	FrameEnd   uint64

	// Anomalies counts out-of-order or duplicated frame events and frame
	// counter inconsistencies.
	Anomalies uint64

	// Discarded counts interrupts that arrived before the first dispatch.
	Discarded uint64

	Errors    uint64
	Overflows uint64
	Drops     uint64
	Timeouts  uint64
	Resets    uint64

	Tuning tuning.Stats
}

type counters struct {
	shots      atomic.Uint64
	frameStart atomic.Uint64
	frameEnd   atomic.Uint64
	anomalies  atomic.Uint64
	discarded  atomic.Uint64
	errors     atomic.Uint64
	overflows  atomic.Uint64
	drops      atomic.Uint64
	timeouts   atomic.Uint64
	resets     atomic.Uint64
}

func (c *counters) snapshot() Counters {
	return Counters{
		Shots:      c.shots.Load(),
		FrameStart: c.frameStart.Load(),
		FrameEnd:   c.frameEnd.Load(),
		Anomalies:  c.anomalies.Load(),
		Discarded:  c.discarded.Load(),
		Errors:     c.errors.Load(),
		Overflows:  c.overflows.Load(),
		Drops:      c.drops.Load(),
		Timeouts:   c.timeouts.Load(),
		Resets:     c.resets.Load(),
	}
}
