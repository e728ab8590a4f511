// Package pipeline chains block controllers over simulated hardware and
// feeds them frames in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/recovery"
	"github.com/sarchlab/ispcore/regset"
	"github.com/sarchlab/ispcore/simhw"
)

// HookPosFrameDone fires after a frame went through every block. The item is
// the frame count and the detail is the error of the frame, if any.
var HookPosFrameDone = &hooking.HookPos{Name: "FrameDone"}

// A TuningSource produces the tuning registers of a block for a frame.
type TuningSource interface {
	Tuning(block string, fcount uint32) (set regset.Set, ok bool)
}

// TuningFunc adapts a function to the TuningSource interface.
type TuningFunc func(block string, fcount uint32) (regset.Set, bool)

// Tuning calls f.
func (f TuningFunc) Tuning(block string, fcount uint32) (regset.Set, bool) {
	return f(block, fcount)
}

// ReleaseStats counts the frames a block handed back.
type ReleaseStats struct {
	Done    uint64
	Aborted uint64
}

// Summary describes a run.
type Summary struct {
	Frames int
	Failed int
}

// A Pipeline is a chain of blocks. Each frame passes through the blocks in
// order, one block at a time.
type Pipeline struct {
	hooking.HookableBase

	name         string
	width        uint32
	height       uint32
	frameTimeout time.Duration
	stages       []*stage
	byName       map[string]*stage
	tuning       TuningSource
	orchestrator *recovery.Orchestrator

	// lock serializes frame submission and the lifecycle.
	lock       sync.Mutex
	started    bool
	lastFcount atomic.Uint32

	relLock  sync.Mutex
	released map[string]*ReleaseStats
}

// Name returns the name of the pipeline.
func (p *Pipeline) Name() string {
	return p.name
}

// Blocks returns the block controllers in processing order.
func (p *Pipeline) Blocks() []*hwblock.Controller {
	ctrls := make([]*hwblock.Controller, len(p.stages))
	for i, s := range p.stages {
		ctrls[i] = s.ctrl
	}

	return ctrls
}

// Block returns a block controller by name.
func (p *Pipeline) Block(name string) (*hwblock.Controller, bool) {
	s, ok := p.byName[name]
	if !ok {
		return nil, false
	}

	return s.ctrl, true
}

// Device returns the simulated hardware behind a block.
func (p *Pipeline) Device(name string) (*simhw.Device, bool) {
	s, ok := p.byName[name]
	if !ok {
		return nil, false
	}

	return s.dev, true
}

// Recovery returns the orchestrator watching the blocks.
func (p *Pipeline) Recovery() *recovery.Orchestrator {
	return p.orchestrator
}

// LastFcount returns the frame count of the latest frame that went through
// the whole pipeline.
func (p *Pipeline) LastFcount() uint32 {
	return p.lastFcount.Load()
}

// Release receives frames back from the blocks.
func (p *Pipeline) Release(block string, _ *hwblock.Frame, done bool) {
	p.relLock.Lock()
	defer p.relLock.Unlock()

	st, ok := p.released[block]
	if !ok {
		st = &ReleaseStats{}
		p.released[block] = st
	}

	if done {
		st.Done++
	} else {
		st.Aborted++
	}
}

// Released returns how many frames a block handed back.
func (p *Pipeline) Released(block string) ReleaseStats {
	p.relLock.Lock()
	defer p.relLock.Unlock()

	if st, ok := p.released[block]; ok {
		return *st
	}

	return ReleaseStats{}
}

// Start brings every block up. If a block fails, the blocks already started
// are stopped again.
func (p *Pipeline) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.started {
		return nil
	}

	for i, s := range p.stages {
		s.dev.Start()

		if err := bringUp(s.ctrl); err != nil {
			_ = p.stopStages(p.stages[:i+1])
			return fmt.Errorf("%s: starting %s: %w", p.name, s.ctrl.Name(), err)
		}
	}

	p.started = true

	return nil
}

func bringUp(c *hwblock.Controller) error {
	if err := c.Open(); err != nil {
		return err
	}

	if err := c.Init(); err != nil {
		return err
	}

	return c.Enable()
}

// Stop disables and closes every block, last block first.
func (p *Pipeline) Stop() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.started {
		return nil
	}

	p.started = false

	return p.stopStages(p.stages)
}

func (p *Pipeline) stopStages(stages []*stage) error {
	var errs []error

	for i := len(stages) - 1; i >= 0; i-- {
		s := stages[i]

		if err := s.ctrl.Disable(); err != nil {
			errs = append(errs, err)
		}

		if err := s.ctrl.Close(); err != nil {
			errs = append(errs, err)
		}

		s.dev.Stop()
	}

	return errors.Join(errs...)
}

// RunFrame pushes the next frame through every block, then lets the
// orchestrator check the blocks. A block that fails does not stop the
// blocks after it.
func (p *Pipeline) RunFrame(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.started {
		return fmt.Errorf("%s: not started", p.name)
	}

	fcount := p.lastFcount.Load() + 1

	var errs []error

	for _, s := range p.stages {
		if err := p.submit(s, fcount); err != nil {
			errs = append(errs, err)
		}
	}

	p.lastFcount.Store(fcount)

	if _, err := p.orchestrator.Check(ctx); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosFrameDone,
		Item:   fcount,
		Detail: err,
	})

	return err
}

func (p *Pipeline) submit(s *stage, fcount uint32) error {
	name := s.ctrl.Name()

	if p.tuning != nil {
		if set, ok := p.tuning.Tuning(name, fcount); ok {
			if _, err := s.ctrl.StoreTuning(set, fcount); err != nil {
				return err
			}
		}
	}

	f := s.frame(fcount, p.width, p.height)
	want := s.ctrl.Counters().FrameEnd + 1

	if err := s.ctrl.Shot(f); err != nil {
		return err
	}

	s.shots++

	if err := s.ctrl.WaitFrameEnd(want, p.frameTimeout); err != nil {
		s.ctrl.NotifyTimeout()
		return err
	}

	return nil
}

// Run pushes frames through the pipeline until n frames ran or ctx ends.
// Failed frames are logged and counted.
func (p *Pipeline) Run(ctx context.Context, n int) (Summary, error) {
	var sum Summary

	for range n {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		sum.Frames++

		if err := p.RunFrame(ctx); err != nil {
			sum.Failed++
			log.Printf("%s: frame %d: %v", p.name, p.LastFcount(), err)
		}
	}

	return sum, ctx.Err()
}
