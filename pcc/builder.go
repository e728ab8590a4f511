package pcc

import (
	"fmt"
	"log"
	"time"

	"github.com/sarchlab/ispcore/regio"
)

// Default timing of a PCC.
const (
	DefaultDisableTimeout = 100 * time.Millisecond
	DefaultResetTimeout   = 10 * time.Millisecond
	DefaultPollInterval   = 50 * time.Microsecond
)

type pollError struct {
	reg, want uint32
}

func (e *pollError) Error() string {
	return fmt.Sprintf("register %s (%#x) did not reach %d",
		RegName(e.reg), e.reg, e.want)
}

// Builder can build PCCs.
type Builder struct {
	access         regio.Accessor
	flusher        Flusher
	disableTimeout time.Duration
	resetTimeout   time.Duration
	pollInterval   time.Duration
}

// MakeBuilder creates a builder with default timing.
func MakeBuilder() Builder {
	return Builder{
		disableTimeout: DefaultDisableTimeout,
		resetTimeout:   DefaultResetTimeout,
		pollInterval:   DefaultPollInterval,
	}
}

// WithAccessor sets the block's register window.
func (b Builder) WithAccessor(a regio.Accessor) Builder {
	b.access = a
	return b
}

// WithFlusher sets what writes staged registers in direct mode.
func (b Builder) WithFlusher(f Flusher) Builder {
	b.flusher = f
	return b
}

// WithDisableTimeout sets how long Disable waits for the in-flight frame.
func (b Builder) WithDisableTimeout(d time.Duration) Builder {
	b.disableTimeout = d
	return b
}

// WithResetTimeout sets how long Reset waits for the hardware.
func (b Builder) WithResetTimeout(d time.Duration) Builder {
	b.resetTimeout = d
	return b
}

// WithPollInterval sets the register polling interval.
func (b Builder) WithPollInterval(d time.Duration) Builder {
	b.pollInterval = d
	return b
}

func (b Builder) parametersMustBeValid(name string) {
	if b.access == nil {
		log.Panicf("pcc %s: accessor is not set", name)
	}

	if b.flusher == nil {
		log.Panicf("pcc %s: flusher is not set", name)
	}

	if b.access.Size() < ControlSize {
		log.Panicf("pcc %s: window of %#x bytes has no room for control registers",
			name, b.access.Size())
	}

	if b.disableTimeout <= 0 || b.resetTimeout <= 0 || b.pollInterval <= 0 {
		log.Panicf("pcc %s: timeouts must be positive", name)
	}
}

// Build creates a PCC.
func (b Builder) Build(name string) *PCC {
	b.parametersMustBeValid(name)

	return &PCC{
		name:           name,
		access:         b.access,
		flusher:        b.flusher,
		disableTimeout: b.disableTimeout,
		resetTimeout:   b.resetTimeout,
		pollInterval:   b.pollInterval,
	}
}
