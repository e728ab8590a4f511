package simhw

import (
	"log"
	"time"

	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/pcc"
	"github.com/sarchlab/ispcore/regio"
)

// Builder can build simulated devices.
type Builder struct {
	storage   *memory.Storage
	base      uint64
	size      uint32
	mode      Mode
	frameTime time.Duration
	version   uint32
}

// MakeBuilder creates a builder for an auto-mode device with a 4 KiB window.
func MakeBuilder() Builder {
	return Builder{
		size:      0x1000,
		mode:      ModeAuto,
		frameTime: time.Millisecond,
		version:   0x0100,
	}
}

// WithStorage sets the memory holding both the register window and the
// command buffers the device reads.
func (b Builder) WithStorage(s *memory.Storage) Builder {
	b.storage = s
	return b
}

// WithBaseAddress sets where the register window starts in storage.
func (b Builder) WithBaseAddress(addr uint64) Builder {
	b.base = addr
	return b
}

// WithSize sets the size of the register window in bytes.
func (b Builder) WithSize(size uint32) Builder {
	b.size = size
	return b
}

// WithMode sets who drives frame processing.
func (b Builder) WithMode(m Mode) Builder {
	b.mode = m
	return b
}

// WithFrameTime sets how long an auto-mode frame takes between start and
// end.
func (b Builder) WithFrameTime(d time.Duration) Builder {
	b.frameTime = d
	return b
}

// WithVersion sets the value of the version register.
func (b Builder) WithVersion(v uint32) Builder {
	b.version = v
	return b
}

// Build creates a device. Auto-mode devices must be started.
func (b Builder) Build(name string) *Device {
	if b.storage == nil {
		log.Panicf("simhw %s: storage is not set", name)
	}

	if b.size < pcc.ControlSize {
		log.Panicf("simhw %s: window of %#x bytes is too small", name, b.size)
	}

	d := &Device{
		name:      name,
		region:    regio.NewRegion(name, b.storage, b.base, b.size),
		storage:   b.storage,
		mode:      b.mode,
		frameTime: b.frameTime,
		kick:      make(chan struct{}, 1),
	}

	d.installHandlers()
	d.region.Poke(pcc.RegVersion, b.version)
	d.region.Poke(pcc.RegIdle, 1)

	return d
}
