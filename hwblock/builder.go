package hwblock

import (
	"log"
	"time"

	"github.com/sarchlab/ispcore/cmdq"
	"github.com/sarchlab/ispcore/irq"
	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/pcc"
	"github.com/sarchlab/ispcore/regio"
)

// Builder can build Controllers.
type Builder struct {
	ops      Ops
	access   regio.Accessor
	irqs     irq.Controller
	storage  *memory.Storage
	cmdqBase uint64
	useCmdq  bool
	releaser BufferReleaser
	recorder Recorder
	enCfg    pcc.EnableConfig

	disableTimeout time.Duration
	resetTimeout   time.Duration
	pollInterval   time.Duration
}

// MakeBuilder creates a builder for a controller that dispatches through
// command buffers.
func MakeBuilder() Builder {
	return Builder{
		useCmdq:        true,
		enCfg:          pcc.DefaultEnableConfig(),
		disableTimeout: pcc.DefaultDisableTimeout,
		resetTimeout:   pcc.DefaultResetTimeout,
		pollInterval:   pcc.DefaultPollInterval,
	}
}

// WithOps sets the block type.
func (b Builder) WithOps(ops Ops) Builder {
	b.ops = ops
	return b
}

// WithAccessor sets the register window of the block.
func (b Builder) WithAccessor(a regio.Accessor) Builder {
	b.access = a
	return b
}

// WithInterrupts sets where the block's interrupt handlers are attached.
func (b Builder) WithInterrupts(c irq.Controller) Builder {
	b.irqs = c
	return b
}

// WithCommandBuffers places the block's command buffers in storage starting
// at base. The block needs CmdqFootprint bytes there.
func (b Builder) WithCommandBuffers(storage *memory.Storage, base uint64) Builder {
	b.storage = storage
	b.cmdqBase = base
	b.useCmdq = true

	return b
}

// WithDirectMode makes the block write registers directly instead of
// through command buffers.
func (b Builder) WithDirectMode() Builder {
	b.useCmdq = false
	return b
}

// WithReleaser sets who gets frames back when they end.
func (b Builder) WithReleaser(r BufferReleaser) Builder {
	b.releaser = r
	return b
}

// WithRecorder sets where dumps are persisted.
func (b Builder) WithRecorder(r Recorder) Builder {
	b.recorder = r
	return b
}

// WithEnableConfig sets the interrupt masks and sync mode used by Enable.
func (b Builder) WithEnableConfig(cfg pcc.EnableConfig) Builder {
	b.enCfg = cfg
	return b
}

// WithDisableTimeout sets how long Disable waits for the in-flight frame.
func (b Builder) WithDisableTimeout(d time.Duration) Builder {
	b.disableTimeout = d
	return b
}

// WithResetTimeout sets how long a soft reset may take.
func (b Builder) WithResetTimeout(d time.Duration) Builder {
	b.resetTimeout = d
	return b
}

// WithPollInterval sets the register polling interval.
func (b Builder) WithPollInterval(d time.Duration) Builder {
	b.pollInterval = d
	return b
}

// CmdqFootprint returns the device memory a block of the given type needs
// for its command buffers.
func CmdqFootprint(ops Ops) uint64 {
	return numCmdBuffers * cmdq.Footprint(ops.RegisterCount())
}

func (b Builder) parametersMustBeValid(name string) {
	if b.ops == nil {
		log.Panicf("hwblock %s: ops are not set", name)
	}

	if b.access == nil {
		log.Panicf("hwblock %s: accessor is not set", name)
	}

	if b.irqs == nil {
		log.Panicf("hwblock %s: interrupt controller is not set", name)
	}

	if b.useCmdq && b.storage == nil {
		log.Panicf("hwblock %s: command buffer storage is not set", name)
	}
}

// Build creates a closed controller.
func (b Builder) Build(name string) *Controller {
	b.parametersMustBeValid(name)

	return &Controller{
		name:           name,
		ops:            b.ops,
		access:         b.access,
		irqs:           b.irqs,
		storage:        b.storage,
		cmdqBase:       b.cmdqBase,
		useCmdq:        b.useCmdq,
		releaser:       b.releaser,
		recorder:       b.recorder,
		enCfg:          b.enCfg,
		disableTimeout: b.disableTimeout,
		resetTimeout:   b.resetTimeout,
		pollInterval:   b.pollInterval,
		feSignal:       make(chan struct{}),
	}
}
