// Package pcc implements the common control shared by every hardware block:
// enable and disable sequencing, frame dispatch, interrupt status, and
// reset and recovery.
package pcc

import (
	"log"
	"sync"
	"time"

	"github.com/sarchlab/ispcore/cmdq"
	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/hwerr"
	"github.com/sarchlab/ispcore/regio"
	"github.com/sarchlab/ispcore/regset"
)

// Hook positions invoked by a PCC.
var (
	// HookPosShot fires after a frame is triggered. The item is the
	// FrameConfig.
	HookPosShot = &hooking.HookPos{Name: "PCCShot"}

	// HookPosReset fires after a soft reset. The item is the error, or nil.
	HookPosReset = &hooking.HookPos{Name: "PCCReset"}
)

// A Flusher writes staged register values straight to hardware. It is used
// in direct-register mode.
type Flusher interface {
	FlushDirect() int
}

// EnableConfig selects the interrupts and the sync mode of a running block.
type EnableConfig struct {
	SyncMode SyncMode
	Int0Mask uint32
	Int1Mask uint32
}

// DefaultEnableConfig enables every interrupt with ASAP sync.
func DefaultEnableConfig() EnableConfig {
	return EnableConfig{
		SyncMode: SyncASAP,
		Int0Mask: Int0All,
		Int1Mask: Int1All,
	}
}

// FrameConfig describes one dispatch.
type FrameConfig struct {
	FrameCount uint32

	// Buffer is the finalized command buffer of the frame. With a nil Buffer
	// the staged registers are written directly.
	Buffer *cmdq.Buffer
}

// A PCC is the common control of one block.
type PCC struct {
	hooking.HookableBase

	name    string
	access  regio.Accessor
	flusher Flusher

	disableTimeout time.Duration
	resetTimeout   time.Duration
	pollInterval   time.Duration

	lock     sync.Mutex
	ready    bool
	enabled  bool
	inflight int
	drained  chan struct{}
	qchRef   int
	enCfg    EnableConfig
}

// Name returns the name of the PCC.
func (p *PCC) Name() string {
	return p.name
}

// Ready reports whether Init has succeeded.
func (p *PCC) Ready() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.ready
}

// Enabled reports whether the block accepts frames.
func (p *PCC) Enabled() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.enabled
}

// Inflight returns the number of dispatched frames without a frame end.
func (p *PCC) Inflight() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.inflight
}

// Init soft-resets the block and makes it ready to be enabled.
func (p *PCC) Init() error {
	if err := p.Reset(); err != nil {
		return err
	}

	p.lock.Lock()
	p.ready = true
	p.lock.Unlock()

	return nil
}

// Version returns the hardware version register.
func (p *PCC) Version() uint32 {
	return p.access.Read32(RegVersion)
}

// Enable programs the interrupt masks and the sync mode and starts the
// block.
func (p *PCC) Enable(cfg EnableConfig) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.ready {
		return hwerr.New(hwerr.KindNotReady, p.name, "enable")
	}

	p.access.Write32(RegSyncMode, uint32(cfg.SyncMode))
	p.access.Write32(RegInt0Enable, cfg.Int0Mask)
	p.access.Write32(RegInt1Enable, cfg.Int1Mask)
	p.access.Write32(RegIPProcessing, 1)

	p.enCfg = cfg
	p.enabled = true

	return nil
}

// Disable stops accepting frames, waits for the in-flight frame to end, and
// tears down the interrupt enables. If the frame end does not arrive in time
// Disable returns a Timeout error, but the block is torn down anyway.
// Disabling a disabled block does nothing.
func (p *PCC) Disable() error {
	p.lock.Lock()

	if !p.enabled {
		p.lock.Unlock()
		return nil
	}

	p.enabled = false

	var wait chan struct{}
	if p.inflight > 0 {
		wait = p.drained
	}

	p.lock.Unlock()

	var err error
	if wait != nil {
		select {
		case <-wait:
		case <-time.After(p.disableTimeout):
			err = hwerr.New(hwerr.KindTimeout, p.name, "disable")
			log.Printf("%s: frame end not observed within %v, forcing disable",
				p.name, p.disableTimeout)
		}
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.access.Write32(RegInt0Enable, 0)
	p.access.Write32(RegInt1Enable, 0)
	p.access.Write32(RegIPProcessing, 0)
	p.releaseInflight()

	return err
}

func (p *PCC) releaseInflight() {
	if p.inflight > 0 {
		p.inflight = 0
		close(p.drained)
	}
}

// Shot makes a frame's configuration visible to the hardware and triggers
// it. This is the only place where that happens.
func (p *PCC) Shot(cfg FrameConfig) error {
	if err := p.dispatch(cfg); err != nil {
		return err
	}

	p.access.Write32(RegTrigger, 1)

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosShot,
		Item:   cfg,
	})

	return nil
}

func (p *PCC) dispatch(cfg FrameConfig) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.enabled {
		return hwerr.New(hwerr.KindNotReady, p.name, "shot")
	}

	if cfg.Buffer != nil {
		h := cfg.Buffer.Finalize()
		cfg.Buffer.MarkDispatched()

		p.access.Write32(RegCmdqHdrLo, uint32(h.BaseAddr))
		p.access.Write32(RegCmdqHdrHi, uint32(h.BaseAddr>>32))
		p.access.Write32(RegCmdqNum, uint32(h.NumHeaders))
		p.access.Write32(RegCmdqMode, CmdqModeQueue)
	} else {
		p.flusher.FlushDirect()
		p.access.Write32(RegCmdqMode, CmdqModeDirect)
	}

	p.access.Write32(RegShotFcount, cfg.FrameCount)

	if p.inflight == 0 {
		p.drained = make(chan struct{})
	}
	p.inflight++

	return nil
}

// FrameDone records that the hardware finished a frame.
func (p *PCC) FrameDone() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.inflight == 0 {
		return
	}

	p.inflight--
	if p.inflight == 0 {
		close(p.drained)
	}
}

// SetQch takes or releases a reference on the keep-clock-active request.
// The clock request is asserted while any reference is held.
func (p *PCC) SetQch(on bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if on {
		p.qchRef++
		if p.qchRef == 1 {
			p.access.Write32(RegQch, 1)
		}

		return
	}

	if p.qchRef == 0 {
		log.Panicf("%s: qch released more often than taken", p.name)
	}

	p.qchRef--
	if p.qchRef == 0 {
		p.access.Write32(RegQch, 0)
	}
}

// GetIntStatus reads an interrupt status register and, if clear is set,
// acknowledges the bits it read. It must be called between SetQch(true) and
// SetQch(false).
func (p *PCC) GetIntStatus(id IntID, clear bool) uint32 {
	p.lock.Lock()
	held := p.qchRef > 0
	p.lock.Unlock()

	if !held {
		log.Panicf("%s: interrupt status read without clock request", p.name)
	}

	reg := id.statusReg()
	status := p.access.Read32(reg)

	if clear && status != 0 {
		p.access.Write32(reg, status)
	}

	return status
}

// Reset issues a soft reset and waits for the hardware to finish it. The
// block must be enabled again afterwards.
func (p *PCC) Reset() error {
	p.lock.Lock()
	p.enabled = false
	p.releaseInflight()
	p.lock.Unlock()

	p.access.Write32(RegSwReset, 1)

	err := p.pollUntil(RegSwReset, 0, p.resetTimeout)
	if err != nil {
		err = hwerr.Wrap(hwerr.KindTimeout, p.name, "reset", err)
		log.Printf("%v", err)
	}

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosReset,
		Item:   err,
	})

	return err
}

func (p *PCC) pollUntil(reg, want uint32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if p.access.Read32(reg) == want {
			return nil
		}

		if time.Now().After(deadline) {
			return &pollError{reg: reg, want: want}
		}

		time.Sleep(p.pollInterval)
	}
}

// LastEnableConfig returns the configuration of the last successful Enable.
func (p *PCC) LastEnableConfig() EnableConfig {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.enCfg
}

// WaitIdle waits until the hardware reports idle.
func (p *PCC) WaitIdle(timeout time.Duration) error {
	if err := p.pollUntil(RegIdle, 1, timeout); err != nil {
		return hwerr.Wrap(hwerr.KindTimeout, p.name, "wait idle", err)
	}

	return nil
}

// Recover resynchronizes the hardware frame counter to fcount and
// acknowledges pending error interrupts.
func (p *PCC) Recover(fcount uint32) {
	p.access.Write32(RegFcountSet, fcount)
	p.access.Write32(RegInt1Status, Int1All)

	log.Printf("%s: frame counter resynchronized to %d", p.name, fcount)
}

// CmpFcount compares the hardware frame counter with the expected one.
func (p *PCC) CmpFcount(fcount uint32) (hw uint32, drifted bool) {
	hw = p.access.Read32(RegHwFcount)
	return hw, hw != fcount
}

// Dump returns the common control registers.
func (p *PCC) Dump() regset.Set {
	n := RegVersion/4 + 1
	values := p.access.ReadBulk(0, n)

	set := make(regset.Set, n)
	for i, v := range values {
		set[i] = regset.Pair{Addr: uint32(i) * 4, Value: v}
	}

	return set
}
