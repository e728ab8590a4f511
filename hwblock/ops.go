package hwblock

import (
	"errors"
	"log"

	"github.com/sarchlab/ispcore/debugparam"
	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/regio"
)

// Common register layout of every block window.
const (
	// DMABase is where the DMA channel register blocks start.
	DMABase = 0x100

	// RegPatternGen enables the block's test pattern generator.
	RegPatternGen = 0x4f0

	// RegPatternSel selects the generated pattern.
	RegPatternSel = 0x4f4

	// BlockBase is where block-specific registers start.
	BlockBase = 0x500

	// TuningBase is where tuning registers start.
	TuningBase = 0x800
)

// A RegWriter stages register writes. The register cache satisfies it.
type RegWriter interface {
	Write(addr, value uint32)
	WriteField(f regio.Field, value uint32)
}

// Resources is what a block type gets to set itself up.
type Resources struct {
	Name  string
	Regs  RegWriter
	DMA   *dma.Set
	Debug debugparam.Params
}

// Ops is what a block type plugs into the common controller.
type Ops interface {
	// Type names the block type.
	Type() string

	// RegisterCount is the number of 32-bit registers in the block window.
	// Command buffers are sized from it.
	RegisterCount() int

	// Channels describes the DMA channels of the block.
	Channels() []dma.ChannelSpec

	// Init writes the block's default registers.
	Init(res *Resources) error

	// Config writes the block registers for a frame. Only parameters marked
	// changed need to be written.
	Config(f *Frame, w RegWriter) error

	// ConfigureDMA sets up the DMA channels for a frame. On error the
	// controller puts the set back as it was before the call.
	ConfigureDMA(f *Frame, set *dma.Set) error
}

// A BufferReleaser gets frames back once the hardware is done with their
// buffers.
type BufferReleaser interface {
	Release(block string, f *Frame, done bool)
}

// A Recorder persists dumps.
type Recorder interface {
	RecordDump(d *Dump)
}

// ErrInvalidFrame is returned by block types for frame parameters they
// cannot program.
var ErrInvalidFrame = errors.New("invalid frame parameters")

// ConfigureChannel sets up the named DMA channel from the frame's buffers
// for that channel. A channel the frame has no buffers for is disabled.
func ConfigureChannel(
	set *dma.Set,
	f *Frame,
	name string,
	format dma.Format,
	width, height uint32,
) error {
	idx, ok := set.Lookup(name)
	if !ok {
		log.Panicf("dma set %s has no channel %s", set.Name(), name)
	}

	bufs := f.Buffers[name]
	if len(bufs) == 0 {
		set.Disable(idx)
		return nil
	}

	return set.Configure(idx, dma.Config{
		Format:      format,
		Width:       width,
		Height:      height,
		Compression: f.Compression[name],
		Buffers:     bufs,
	})
}

// BoolBit turns a flag into a 1-bit field value.
func BoolBit(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}
