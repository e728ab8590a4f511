// Package tuning hands register sets from an asynchronous producer (the
// image-quality algorithm) to the per-frame submission path.
package tuning

import (
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/regset"
)

// State is the handshake state of a Slot.
type State int

// The slot states.
const (
	StateEmpty State = iota
	StateConfigured
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateConfigured:
		return "configured"
	case StateLocked:
		return "locked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Hook positions invoked by a Slot. The hook item is the frame tag involved.
var (
	// HookPosOverrun fires when a store replaces a set that was never
	// drained.
	HookPosOverrun = &hooking.HookPos{Name: "TuningOverrun"}

	// HookPosStale fires when a drain finds no fresh set and the last
	// drained one is reused.
	HookPosStale = &hooking.HookPos{Name: "TuningStale"}
)

// Result is what a drain hands to the consumer.
type Result struct {
	Set      regset.Set
	FrameTag uint32

	// Fresh is false when no new set arrived since the previous drain and
	// Set is the retained one.
	Fresh bool
}

// Stats counts lossy events of a Slot.
type Stats struct {
	Stores   uint64
	Drains   uint64
	Overruns uint64
	Stales   uint64
}

// A Slot holds at most one pending register set. Stores are last-store-wins:
// a late set for an old frame is worthless, so nothing queues.
type Slot struct {
	hooking.HookableBase

	lock sync.Mutex

	name       string
	state      State
	pending    regset.Set
	pendingTag uint32

	working     regset.Set
	workingTag  uint32
	haveWorking bool

	stats Stats
}

// NewSlot creates a slot whose buffers are preallocated for sets of up to
// capacity pairs.
func NewSlot(name string, capacity int) *Slot {
	return &Slot{
		name:    name,
		pending: make(regset.Set, 0, capacity),
		working: make(regset.Set, 0, capacity),
	}
}

// Name returns the name of the slot.
func (s *Slot) Name() string {
	return s.name
}

// State returns the current handshake state.
func (s *Slot) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

// Stats returns the event counters.
func (s *Slot) Stats() Stats {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.stats
}

// Store publishes a set for frame frameTag. If the previous set was not
// drained yet it is replaced and Store reports an overrun.
func (s *Slot) Store(set regset.Set, frameTag uint32) (overrun bool) {
	s.lock.Lock()

	overrun = s.state == StateConfigured
	prevTag := s.pendingTag

	s.pending = set.CopyInto(s.pending)
	s.pendingTag = frameTag
	s.state = StateConfigured
	s.stats.Stores++

	if overrun {
		s.stats.Overruns++
	}

	s.lock.Unlock()

	if overrun {
		log.Printf("%s: tuning for frame %d overwritten by frame %d before use",
			s.name, prevTag, frameTag)
		s.InvokeHook(hooking.HookCtx{
			Domain: s,
			Pos:    HookPosOverrun,
			Item:   prevTag,
			Detail: frameTag,
		})
	}

	return overrun
}

// Drain takes the pending set, if any, into the retained working set and
// returns it. With nothing pending it returns the retained set marked stale.
// Drain never waits for the producer. ok is false only if nothing was ever
// stored.
//
// The returned set is owned by the slot and stays valid until the next
// Drain.
func (s *Slot) Drain() (res Result, ok bool) {
	s.lock.Lock()

	s.stats.Drains++

	if s.state == StateConfigured {
		s.state = StateLocked
		s.working = s.pending.CopyInto(s.working)
		s.workingTag = s.pendingTag
		s.haveWorking = true
		s.state = StateEmpty

		res = Result{Set: s.working, FrameTag: s.workingTag, Fresh: true}
		s.lock.Unlock()

		return res, true
	}

	if !s.haveWorking {
		s.lock.Unlock()
		return Result{}, false
	}

	s.stats.Stales++
	res = Result{Set: s.working, FrameTag: s.workingTag, Fresh: false}
	s.lock.Unlock()

	log.Printf("%s: no fresh tuning, reusing set of frame %d",
		s.name, res.FrameTag)
	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosStale,
		Item:   res.FrameTag,
	})

	return res, true
}

// Reset forgets both the pending and the retained set.
func (s *Slot) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.state = StateEmpty
	s.pending = s.pending[:0]
	s.working = s.working[:0]
	s.pendingTag = 0
	s.workingTag = 0
	s.haveWorking = false
}
