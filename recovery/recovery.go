// Package recovery watches a chain of blocks and brings them back in step
// after hardware faults. Blocks are handled in dependency order: once a block
// needs attention, every block downstream of it is checked too.
package recovery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/hwblock"
)

// HookPosAction fires for every action the orchestrator takes. The item is
// the Result.
var HookPosAction = &hooking.HookPos{Name: "RecoveryAction"}

// A Target is a block the orchestrator can resynchronize.
type Target interface {
	Name() string
	Counters() hwblock.Counters
	Overflow() bool
	CmpFcount(fcount uint32) (hw uint32, drifted bool, err error)
	Recover(fcount uint32) error
	Reset() error
}

// A FcountSource tells which frame count the hardware should be at.
type FcountSource interface {
	LastFcount() uint32
}

// Action is what was done to a block.
type Action int

// The actions.
const (
	ActionNone Action = iota
	ActionRecover
	ActionReset
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRecover:
		return "recover"
	case ActionReset:
		return "reset"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Result describes what happened to one block during a check.
type Result struct {
	Block    string
	Reason   string
	Action   Action
	HwFcount uint32
	Attempts int
	Err      error
}

// A Report lists the blocks a check looked at.
type Report struct {
	Fcount  uint32
	Results []Result
}

// Orchestrator polls blocks and recovers them.
type Orchestrator struct {
	hooking.HookableBase

	name      string
	targets   []Target
	source    FcountSource
	interval  time.Duration
	minDelay  time.Duration
	maxDelay  time.Duration
	maxResets int

	lock sync.Mutex
	seen map[string]hwblock.Counters
	last Report
}

// Name returns the name of the orchestrator.
func (o *Orchestrator) Name() string {
	return o.name
}

// LastReport returns the report of the latest check that took action.
func (o *Orchestrator) LastReport() Report {
	o.lock.Lock()
	defer o.lock.Unlock()

	return o.last
}

// Run checks the blocks every interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := o.Check(ctx); err != nil {
			return err
		}
	}
}

// attention tells why a block needs to be looked at, if it does. Timeouts
// call for a reset. Errors and anomalies call for a resync.
func (o *Orchestrator) attention(t Target) (reason string, reset bool) {
	now := t.Counters()
	prev := o.seen[t.Name()]
	o.seen[t.Name()] = now

	switch {
	case now.Timeouts > prev.Timeouts:
		return "timeout", true
	case t.Overflow():
		return "overflow", false
	case now.Errors > prev.Errors:
		return "error", false
	case now.Anomalies > prev.Anomalies:
		return "anomaly", false
	default:
		return "", false
	}
}

// Check runs one pass over the blocks. It returns an error only if ctx ends
// while waiting to retry a reset.
func (o *Orchestrator) Check(ctx context.Context) (Report, error) {
	o.lock.Lock()
	defer o.lock.Unlock()

	report := Report{Fcount: o.source.LastFcount()}
	downstream := false

	for _, t := range o.targets {
		reason, reset := o.attention(t)

		if reason == "" && !downstream {
			continue
		}

		if reason == "" {
			reason = "upstream"
		}

		downstream = true

		var r Result
		if reset {
			r = o.reset(ctx, t, report.Fcount)
		} else {
			r = o.resync(ctx, t, report.Fcount)
		}

		r.Reason = reason
		report.Results = append(report.Results, r)

		o.notify(r)

		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	if len(report.Results) > 0 {
		o.last = report
	}

	return report, nil
}

func (o *Orchestrator) resync(ctx context.Context, t Target, fcount uint32) Result {
	r := Result{Block: t.Name()}

	hw, drifted, err := t.CmpFcount(fcount)
	r.HwFcount = hw

	switch {
	case err != nil:
		r.Err = err
		return r
	case !drifted && !t.Overflow():
		return r
	}

	r.Action = ActionRecover

	if err := t.Recover(fcount); err == nil {
		hw, drifted, err = t.CmpFcount(fcount)
		r.HwFcount = hw

		if err == nil && !drifted {
			return r
		}
	}

	return o.reset(ctx, t, fcount)
}

func (o *Orchestrator) reset(ctx context.Context, t Target, fcount uint32) Result {
	r := Result{Block: t.Name(), Action: ActionReset}

	b := &backoff.Backoff{
		Min:    o.minDelay,
		Max:    o.maxDelay,
		Factor: 2,
	}

	for r.Attempts < o.maxResets {
		r.Attempts++

		r.Err = t.Reset()
		if r.Err == nil {
			r.Err = t.Recover(fcount)
		}

		if r.Err == nil {
			r.HwFcount = fcount
			return r
		}

		if r.Attempts == o.maxResets {
			break
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return r
		case <-timer.C:
		}
	}

	return r
}

func (o *Orchestrator) notify(r Result) {
	if r.Err != nil {
		log.Printf("%s: %s %s after %s failed: %v",
			o.name, r.Block, r.Action, r.Reason, r.Err)
	} else if r.Action != ActionNone {
		log.Printf("%s: %s %s after %s, hw fcount %d",
			o.name, r.Block, r.Action, r.Reason, r.HwFcount)
	}

	o.InvokeHook(hooking.HookCtx{
		Domain: o,
		Pos:    HookPosAction,
		Item:   r,
	})
}
