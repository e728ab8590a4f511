package pipeline

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/sarchlab/ispcore/blocks"
	"github.com/sarchlab/ispcore/config"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/recovery"
	"github.com/sarchlab/ispcore/simhw"
	"github.com/sarchlab/ispcore/tracing"
)

// Layout of the simulated device memory.
const (
	windowSize  = 0x1000
	cmdqBase    = 0x10_0000
	cmdqSize    = 0x10_0000
	bufferBase  = 0x100_0000
	storageSize = 1 << 34
)

// Builder can build Pipelines.
type Builder struct {
	types          []string
	width          uint32
	height         uint32
	frameTime      time.Duration
	frameTimeout   time.Duration
	disableTimeout time.Duration
	direct         bool
	recorder       hwblock.Recorder
	tracers        []tracing.Tracer
	tuning         TuningSource
	maxResets      int
}

// MakeBuilder creates a builder for a pipeline of every block type.
func MakeBuilder() Builder {
	return Builder{
		types:          blocks.Types(),
		width:          1920,
		height:         1080,
		frameTime:      time.Millisecond,
		disableTimeout: 100 * time.Millisecond,
		maxResets:      3,
	}
}

// FromConfig creates a builder from the settings of a run.
func FromConfig(cfg config.Config) Builder {
	b := MakeBuilder().
		WithBlocks(cfg.Blocks...).
		WithFrameSize(cfg.Width, cfg.Height).
		WithFrameTime(cfg.FramePeriod).
		WithDisableTimeout(cfg.DisableTimeout)

	if cfg.Direct {
		b = b.WithDirectMode()
	}

	return b
}

// WithBlocks sets the block types in processing order.
func (b Builder) WithBlocks(types ...string) Builder {
	b.types = types
	return b
}

// WithFrameSize sets the image size every block processes.
func (b Builder) WithFrameSize(w, h uint32) Builder {
	b.width = w
	b.height = h

	return b
}

// WithFrameTime sets how long the simulated hardware spends on a frame.
func (b Builder) WithFrameTime(d time.Duration) Builder {
	b.frameTime = d
	return b
}

// WithFrameTimeout sets how long a block may take to end a frame before it
// is reported as timed out. By default it is fifty frame times, and at least
// 100ms.
func (b Builder) WithFrameTimeout(d time.Duration) Builder {
	b.frameTimeout = d
	return b
}

// WithDisableTimeout sets how long a block may take to stop.
func (b Builder) WithDisableTimeout(d time.Duration) Builder {
	b.disableTimeout = d
	return b
}

// WithDirectMode makes the blocks write registers directly.
func (b Builder) WithDirectMode() Builder {
	b.direct = true
	return b
}

// WithRecorder sets where block dumps are persisted.
func (b Builder) WithRecorder(r hwblock.Recorder) Builder {
	b.recorder = r
	return b
}

// WithTracers sets the tracers that see frames and block events.
func (b Builder) WithTracers(tracers ...tracing.Tracer) Builder {
	b.tracers = tracers
	return b
}

// WithTuning sets the producer of per-frame tuning registers.
func (b Builder) WithTuning(s TuningSource) Builder {
	b.tuning = s
	return b
}

// WithMaxResets sets how many times the orchestrator tries to reset a block.
func (b Builder) WithMaxResets(n int) Builder {
	b.maxResets = n
	return b
}

func (b Builder) parametersMustBeValid(name string) {
	if len(b.types) == 0 {
		log.Panicf("pipeline %s: no blocks", name)
	}

	for _, typ := range b.types {
		if !slices.Contains(blocks.Types(), typ) {
			log.Panicf("pipeline %s: unknown block type %q", name, typ)
		}
	}

	if b.width == 0 || b.height == 0 {
		log.Panicf("pipeline %s: frame size %dx%d", name, b.width, b.height)
	}
}

// Build creates a stopped pipeline.
func (b Builder) Build(name string) *Pipeline {
	b.parametersMustBeValid(name)

	p := &Pipeline{
		name:         name,
		width:        b.width,
		height:       b.height,
		frameTimeout: b.frameTimeout,
		byName:       make(map[string]*stage),
		tuning:       b.tuning,
		released:     make(map[string]*ReleaseStats),
	}

	if p.frameTimeout == 0 {
		p.frameTimeout = max(50*b.frameTime, 100*time.Millisecond)
	}

	storage := memory.NewStorage(storageSize)
	cmdqs := memory.NewCarveout(cmdqBase, cmdqSize)
	bufs := memory.NewCarveout(bufferBase, storageSize-bufferBase)

	var hook *tracing.FrameHook
	if len(b.tracers) > 0 {
		hook = tracing.NewFrameHook(tracing.WallClock{}, b.tracers...)
	}

	targets := make([]recovery.Target, 0, len(b.types))

	for i, typ := range b.types {
		s := b.buildStage(name, i, typ, storage, cmdqs, p)

		if err := s.allocBuffers(bufs, b.width, b.height); err != nil {
			log.Panicf("pipeline %s: %v", name, err)
		}

		if hook != nil {
			hook.Attach(s.ctrl)
		}

		p.stages = append(p.stages, s)
		p.byName[s.ctrl.Name()] = s
		targets = append(targets, s.ctrl)
	}

	p.orchestrator = recovery.MakeBuilder().
		WithTargets(targets...).
		WithFcountSource(p).
		WithMaxResets(b.maxResets).
		Build(name + ".Recovery")

	if hook != nil {
		hook.Attach(p.orchestrator)
	}

	return p
}

func (b Builder) buildStage(
	name string,
	i int,
	typ string,
	storage *memory.Storage,
	cmdqs *memory.Carveout,
	p *Pipeline,
) *stage {
	ops, err := blocks.New(typ)
	if err != nil {
		log.Panicf("pipeline %s: %v", name, err)
	}

	blockName := fmt.Sprintf("%s.%s%d", name, strings.ToUpper(typ), i)

	dev := simhw.MakeBuilder().
		WithStorage(storage).
		WithBaseAddress(uint64(i) * windowSize).
		WithSize(windowSize).
		WithMode(simhw.ModeAuto).
		WithFrameTime(b.frameTime).
		Build(blockName)

	cb := hwblock.MakeBuilder().
		WithOps(ops).
		WithAccessor(dev.Region()).
		WithInterrupts(dev).
		WithReleaser(p).
		WithDisableTimeout(b.disableTimeout)

	if b.recorder != nil {
		cb = cb.WithRecorder(b.recorder)
	}

	if b.direct {
		cb = cb.WithDirectMode()
	} else {
		base, err := cmdqs.Alloc(hwblock.CmdqFootprint(ops), 4096)
		if err != nil {
			log.Panicf("pipeline %s: %v", name, err)
		}

		cb = cb.WithCommandBuffers(storage, base)
	}

	return &stage{
		dev:     dev,
		ctrl:    cb.Build(blockName),
		profile: profiles[typ],
	}
}
