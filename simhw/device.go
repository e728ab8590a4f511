// Package simhw simulates the hardware side of a block: its register file,
// the command loader that consumes command buffers, and the frame-start,
// frame-end and error interrupts.
package simhw

import (
	"log"
	"sync"
	"time"

	"github.com/sarchlab/ispcore/cmdq"
	"github.com/sarchlab/ispcore/irq"
	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/pcc"
	"github.com/sarchlab/ispcore/regio"
	"github.com/sarchlab/ispcore/regset"
)

// Mode selects who drives frame processing.
type Mode int

// The device modes.
const (
	// ModeAuto processes triggered frames on a worker goroutine.
	ModeAuto Mode = iota

	// ModeManual leaves frame start and end to the caller.
	ModeManual
)

// Faults are misbehaviors the device can be told to show.
type Faults struct {
	DropFrameEnd        bool
	DuplicateFrameStart bool
	DuplicateFrameEnd   bool

	// ErrorBits are raised on the error line after every frame start.
	ErrorBits uint32

	StuckReset bool

	// FcountSkew is added to the hardware frame counter at frame end.
	FcountSkew uint32
}

// A Frame is one triggered unit of work.
type Frame struct {
	Fcount uint32
	Queued bool
	Config regset.Set
}

// Stats counts what the device did.
type Stats struct {
	Triggers     uint64
	Ignored      uint64
	FrameStarts  uint64
	FrameEnds    uint64
	Errors       uint64
	Resets       uint64
	AppliedPairs uint64
}

// A Device is one simulated block. It implements irq.Controller.
type Device struct {
	name      string
	region    *regio.Region
	storage   *memory.Storage
	mode      Mode
	frameTime time.Duration

	lock     sync.Mutex
	handlers [irq.NumLines]irq.Handler
	faults   Faults
	pending  []Frame
	current  *Frame
	applied  regset.Set
	stats    Stats

	kick   chan struct{}
	stopMu sync.Mutex
	quit   chan struct{}
	done   chan struct{}
}

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

// Region returns the register window of the device.
func (d *Device) Region() *regio.Region {
	return d.region
}

// Attach installs the handler of an interrupt line.
func (d *Device) Attach(line irq.Line, h irq.Handler) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.handlers[line] = h
}

// Detach removes the handler of an interrupt line.
func (d *Device) Detach(line irq.Line) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.handlers[line] = nil
}

// SetFaults replaces the injected faults.
func (d *Device) SetFaults(f Faults) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.faults = f
}

// Faults returns the injected faults.
func (d *Device) Faults() Faults {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.faults
}

// SetMappable controls whether the register window can be remapped.
func (d *Device) SetMappable(mappable bool) {
	d.region.SetMappable(mappable)
}

// Stats returns the device counters.
func (d *Device) Stats() Stats {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.stats
}

// Applied returns the configuration loaded by the last queued frame.
func (d *Device) Applied() regset.Set {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.applied.Clone()
}

// Pending returns the number of triggered frames that have not started.
func (d *Device) Pending() int {
	d.lock.Lock()
	defer d.lock.Unlock()

	return len(d.pending)
}

// Busy reports whether a frame has started and not ended.
func (d *Device) Busy() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.current != nil
}

func (d *Device) installHandlers() {
	d.region.OnWrite(pcc.RegSwReset, d.onReset)
	d.region.OnWrite(pcc.RegInt0Status, d.onStatusClear)
	d.region.OnWrite(pcc.RegInt1Status, d.onStatusClear)
	d.region.OnWrite(pcc.RegTrigger, d.onTrigger)
	d.region.OnWrite(pcc.RegFcountSet, d.onFcountSet)
}

func (d *Device) onStatusClear(offset, value uint32) {
	d.region.Modify(offset, func(old uint32) uint32 { return old &^ value })
}

func (d *Device) onFcountSet(offset, value uint32) {
	d.region.Poke(offset, value)
	d.region.Poke(pcc.RegHwFcount, value)
}

func (d *Device) onReset(offset, _ uint32) {
	d.lock.Lock()
	stuck := d.faults.StuckReset
	if !stuck {
		d.pending = nil
		d.current = nil
		d.stats.Resets++
	}
	d.lock.Unlock()

	if stuck {
		d.region.Poke(offset, 1)
		return
	}

	for off := uint32(0); off < d.region.Size(); off += 4 {
		switch off {
		case pcc.RegVersion, pcc.RegHwFcount, pcc.RegFcountSet, pcc.RegQch:
			continue
		}

		d.region.Poke(off, 0)
	}

	d.region.Poke(pcc.RegIdle, 1)
}

func (d *Device) onTrigger(offset, value uint32) {
	if value&1 == 0 {
		return
	}

	if d.region.Peek(pcc.RegIPProcessing) == 0 {
		d.lock.Lock()
		d.stats.Ignored++
		d.lock.Unlock()

		log.Printf("%s: trigger while not processing, ignored", d.name)

		return
	}

	frame := Frame{Fcount: d.region.Peek(pcc.RegShotFcount)}

	if d.region.Peek(pcc.RegCmdqMode) == pcc.CmdqModeQueue {
		base := uint64(d.region.Peek(pcc.RegCmdqHdrHi))<<32 |
			uint64(d.region.Peek(pcc.RegCmdqHdrLo))
		num := int(d.region.Peek(pcc.RegCmdqNum))

		set, err := cmdq.Load(d.storage, base, num)
		if err != nil {
			log.Printf("%s: command buffer at %#x unreadable: %v",
				d.name, base, err)
			d.Raise(irq.LineError, pcc.Int1CmdqError)

			return
		}

		frame.Queued = true
		frame.Config = set
		d.apply(set)
	}

	d.lock.Lock()
	d.stats.Triggers++
	d.pending = append(d.pending, frame)
	d.lock.Unlock()

	d.region.Poke(pcc.RegIdle, 0)

	if d.mode == ModeAuto {
		d.signalWorker()
	}
}

func (d *Device) apply(set regset.Set) {
	for _, p := range set {
		if p.Addr < pcc.ControlSize || p.Addr >= d.region.Size() || p.Addr%4 != 0 {
			log.Printf("%s: command buffer writes invalid register %#x",
				d.name, p.Addr)
			continue
		}

		d.region.Poke(p.Addr, p.Value)
	}

	d.lock.Lock()
	d.applied = set.CopyInto(d.applied)
	d.stats.AppliedPairs += uint64(len(set))
	d.lock.Unlock()
}

func lineRegs(line irq.Line) (enable, status uint32) {
	if line == irq.LineGeneral {
		return pcc.RegInt0Enable, pcc.RegInt0Status
	}

	return pcc.RegInt1Enable, pcc.RegInt1Status
}

// Raise sets interrupt status bits on a line and calls its handler. Bits
// that are not enabled are dropped. Raise reports whether the handler ran.
func (d *Device) Raise(line irq.Line, bits uint32) bool {
	enReg, stReg := lineRegs(line)

	bits &= d.region.Peek(enReg)
	if bits == 0 {
		return false
	}

	d.region.Modify(stReg, func(old uint32) uint32 { return old | bits })

	d.lock.Lock()
	h := d.handlers[line]
	if line == irq.LineError {
		d.stats.Errors++
	}
	d.lock.Unlock()

	if h == nil {
		return false
	}

	h()

	return true
}

// StartFrame starts the oldest triggered frame and raises frame start. It
// returns false if nothing was triggered.
func (d *Device) StartFrame() bool {
	d.lock.Lock()
	if len(d.pending) == 0 {
		d.lock.Unlock()
		return false
	}

	f := d.pending[0]
	d.pending = d.pending[1:]
	d.current = &f
	d.stats.FrameStarts++
	faults := d.faults
	d.lock.Unlock()

	d.Raise(irq.LineGeneral, pcc.Int0FrameStart)
	if faults.DuplicateFrameStart {
		d.Raise(irq.LineGeneral, pcc.Int0FrameStart)
	}

	if faults.ErrorBits != 0 {
		d.Raise(irq.LineError, faults.ErrorBits)
	}

	return true
}

// EndFrame finishes the current frame and raises frame end. It returns
// false if no frame was running.
func (d *Device) EndFrame() bool {
	d.lock.Lock()
	if d.current == nil {
		d.lock.Unlock()
		return false
	}

	f := d.current
	d.current = nil
	d.stats.FrameEnds++
	faults := d.faults
	d.lock.Unlock()

	d.region.Poke(pcc.RegHwFcount, f.Fcount+faults.FcountSkew)
	d.region.Poke(pcc.RegIdle, 1)

	if faults.DropFrameEnd {
		return true
	}

	d.Raise(irq.LineGeneral, pcc.Int0FrameEnd)
	if faults.DuplicateFrameEnd {
		d.Raise(irq.LineGeneral, pcc.Int0FrameEnd)
	}

	return true
}

// Step processes one triggered frame from start to end.
func (d *Device) Step() bool {
	if !d.StartFrame() {
		return false
	}

	if d.frameTime > 0 {
		time.Sleep(d.frameTime)
	}

	return d.EndFrame()
}
