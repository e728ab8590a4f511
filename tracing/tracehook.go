package tracing

import (
	"fmt"
	"sync"

	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/recovery"
)

// NamedHookable is a hookable with a name, such as a block controller.
type NamedHookable interface {
	hooking.Hookable
	Name() string
}

// A FrameHook watches block controllers. Frame start and frame end become
// the start and end of a task. Anomalies, errors, drops and dumps become
// events. Attached to a recovery orchestrator, it records its actions as
// events of the block acted on.
type FrameHook struct {
	timeTeller TimeTeller
	tracers    []Tracer

	// A block has at most one frame between start and end. A start that
	// replaces an unfinished task drops it; this happens when a frame is cut
	// short by a disable or a reset.
	lock    sync.Mutex
	started map[string]Task
}

// NewFrameHook creates a hook that reports to the given tracers.
func NewFrameHook(timeTeller TimeTeller, tracers ...Tracer) *FrameHook {
	return &FrameHook{
		timeTeller: timeTeller,
		tracers:    tracers,
		started:    make(map[string]Task),
	}
}

// Attach registers the hook on a block.
func (h *FrameHook) Attach(block NamedHookable) {
	block.AcceptHook(h)
}

// Func handles one hook invocation.
func (h *FrameHook) Func(ctx hooking.HookCtx) {
	named, ok := ctx.Domain.(NamedHookable)
	if !ok {
		return
	}

	block := named.Name()

	switch ctx.Pos {
	case hwblock.HookPosFrameStart:
		h.startFrame(block, ctx)
	case hwblock.HookPosFrameEnd:
		h.endFrame(block, ctx)
	case hwblock.HookPosAnomaly, hwblock.HookPosError:
		h.event(block, ctx.Pos.Name, fmt.Sprint(ctx.Item))
	case hwblock.HookPosDrop:
		h.event(block, ctx.Pos.Name, h.dropDetail(ctx))
	case hwblock.HookPosDump:
		d := ctx.Item.(*hwblock.Dump)
		h.event(block, ctx.Pos.Name, d.Mode.String()+": "+d.Reason)
	case recovery.HookPosAction:
		r := ctx.Item.(recovery.Result)
		h.event(r.Block, ctx.Pos.Name, fmt.Sprintf("%s after %s", r.Action, r.Reason))
	}
}

func (h *FrameHook) startFrame(block string, ctx hooking.HookCtx) {
	task := Task{
		ID:        fmt.Sprintf("%s.%v", block, ctx.Item),
		Kind:      "frame",
		What:      block,
		Location:  block,
		StartTime: h.timeTeller.CurrentTime(),
	}

	h.lock.Lock()
	h.started[block] = task
	h.lock.Unlock()

	for _, t := range h.tracers {
		t.StartTask(task)
	}
}

func (h *FrameHook) endFrame(block string, ctx hooking.HookCtx) {
	h.lock.Lock()
	task, ok := h.started[block]
	delete(h.started, block)
	h.lock.Unlock()

	if !ok {
		return
	}

	if f, ok := ctx.Item.(*hwblock.Frame); ok && f != nil {
		task.Fcount = f.Fcount
	}

	task.EndTime = h.timeTeller.CurrentTime()

	for _, t := range h.tracers {
		t.EndTask(task)
	}
}

func (h *FrameHook) dropDetail(ctx hooking.HookCtx) string {
	f, _ := ctx.Item.(*hwblock.Frame)
	if f == nil {
		return fmt.Sprint(ctx.Detail)
	}

	return fmt.Sprintf("frame %d: %v", f.Fcount, ctx.Detail)
}

func (h *FrameHook) event(block, kind, detail string) {
	e := Event{
		Kind:     kind,
		Location: block,
		Detail:   detail,
		Time:     h.timeTeller.CurrentTime(),
	}

	for _, t := range h.tracers {
		t.RecordEvent(e)
	}
}
