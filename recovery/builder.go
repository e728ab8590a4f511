package recovery

import (
	"log"
	"time"

	"github.com/sarchlab/ispcore/hwblock"
)

// Builder can build Orchestrators.
type Builder struct {
	targets   []Target
	source    FcountSource
	interval  time.Duration
	minDelay  time.Duration
	maxDelay  time.Duration
	maxResets int
}

// MakeBuilder creates a builder with default settings.
func MakeBuilder() Builder {
	return Builder{
		interval:  10 * time.Millisecond,
		minDelay:  time.Millisecond,
		maxDelay:  100 * time.Millisecond,
		maxResets: 3,
	}
}

// WithTargets sets the blocks to watch, upstream first.
func (b Builder) WithTargets(targets ...Target) Builder {
	b.targets = targets
	return b
}

// WithFcountSource sets what tells the expected frame count.
func (b Builder) WithFcountSource(s FcountSource) Builder {
	b.source = s
	return b
}

// WithInterval sets how often Run checks the blocks.
func (b Builder) WithInterval(d time.Duration) Builder {
	b.interval = d
	return b
}

// WithResetBackoff sets the delays between reset attempts.
func (b Builder) WithResetBackoff(minDelay, maxDelay time.Duration) Builder {
	b.minDelay = minDelay
	b.maxDelay = maxDelay

	return b
}

// WithMaxResets sets how many times a block reset is attempted.
func (b Builder) WithMaxResets(n int) Builder {
	b.maxResets = n
	return b
}

func (b Builder) parametersMustBeValid(name string) {
	if b.source == nil {
		log.Panicf("recovery %s: frame count source is not set", name)
	}

	if b.interval <= 0 {
		log.Panicf("recovery %s: interval must be positive", name)
	}

	if b.maxResets < 1 {
		log.Panicf("recovery %s: at least one reset attempt is needed", name)
	}
}

// Build creates the orchestrator.
func (b Builder) Build(name string) *Orchestrator {
	b.parametersMustBeValid(name)

	return &Orchestrator{
		name:      name,
		targets:   b.targets,
		source:    b.source,
		interval:  b.interval,
		minDelay:  b.minDelay,
		maxDelay:  b.maxDelay,
		maxResets: b.maxResets,
		seen:      make(map[string]hwblock.Counters),
	}
}
