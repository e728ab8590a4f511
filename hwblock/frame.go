package hwblock

import (
	"github.com/sarchlab/ispcore/dma"
)

// ParamMap marks which frame parameters changed since the previous frame.
type ParamMap uint32

// The frame parameters that can change.
const (
	ParamSize ParamMap = 1 << iota
	ParamCrop
	ParamFormat
	ParamOutput
	ParamStrength
	ParamBypass

	ParamAll ParamMap = 1<<iota - 1
)

// Has reports whether any bit of p is set.
func (m ParamMap) Has(p ParamMap) bool {
	return m&p != 0
}

// Crop is a rectangle inside the input image.
type Crop struct {
	X, Y, W, H uint32
}

// Output is the size and format of one scaled output.
type Output struct {
	Width  uint32
	Height uint32
	Format dma.Format
}

// A Frame carries the per-frame parameters of one submission.
type Frame struct {
	// Fcount is the frame count the hardware is told to process.
	Fcount uint32

	Width  uint32
	Height uint32
	Format dma.Format
	Crop   Crop

	// Outputs lists the scaled outputs of blocks that have several.
	Outputs []Output

	// Strength is the block-specific processing strength.
	Strength uint32

	// Bypass makes the block pass its input through.
	Bypass bool

	// Buffers maps a DMA channel name to its batch of plane addresses. A
	// channel without buffers is disabled for the frame.
	Buffers map[string][][]uint64

	// Compression selects per-channel compression.
	Compression map[string]dma.Compression

	Changed ParamMap

	// Tag is opaque to the controller and handed back on release.
	Tag any
}

// CropOrFull returns the crop, or the full image when no crop is set.
func (f *Frame) CropOrFull() Crop {
	if f.Crop.W == 0 || f.Crop.H == 0 {
		return Crop{W: f.Width, H: f.Height}
	}

	return f.Crop
}
