package dma

import "fmt"

// Direction is the data direction of a DMA channel, seen from the block.
type Direction int

// The channel directions.
const (
	DirRead Direction = iota
	DirWrite
)

func (d Direction) String() string {
	if d == DirRead {
		return "rdma"
	}

	return "wdma"
}

// Compression selects the frame-buffer compression of a channel.
type Compression int

// The compression modes.
const (
	CompNone Compression = iota
	CompLossless
	CompLossy
)

func (c Compression) String() string {
	switch c {
	case CompNone:
		return "none"
	case CompLossless:
		return "lossless"
	case CompLossy:
		return "lossy"
	default:
		return fmt.Sprintf("comp(%d)", int(c))
	}
}

// Format is the memory layout of the pixels a channel moves.
type Format int

// The supported formats.
const (
	FormatInvalid Format = iota
	FormatBayer10
	FormatBayer12
	FormatYUV420SP
	FormatYUV422SP
	FormatRGB888

	// FormatY8 is a lone 8-bit luma plane.
	FormatY8

	// FormatUV8 is a lone interleaved 4:2:0 chroma plane.
	FormatUV8
)

type formatInfo struct {
	name string

	// bits per pixel per plane
	bits []int

	// vertical subsampling divisor per plane
	vdiv []int
}

var formats = map[Format]formatInfo{
	FormatBayer10:  {name: "bayer10", bits: []int{10}, vdiv: []int{1}},
	FormatBayer12:  {name: "bayer12", bits: []int{12}, vdiv: []int{1}},
	FormatYUV420SP: {name: "yuv420sp", bits: []int{8, 8}, vdiv: []int{1, 2}},
	FormatYUV422SP: {name: "yuv422sp", bits: []int{8, 8}, vdiv: []int{1, 1}},
	FormatRGB888:   {name: "rgb888", bits: []int{24}, vdiv: []int{1}},
	FormatY8:       {name: "y8", bits: []int{8}, vdiv: []int{1}},
	FormatUV8:      {name: "uv8", bits: []int{8}, vdiv: []int{2}},
}

func (f Format) String() string {
	info, ok := formats[f]
	if !ok {
		return fmt.Sprintf("format(%d)", int(f))
	}

	return info.name
}

// Planes returns the number of memory planes of the format, or 0 for an
// unknown format.
func (f Format) Planes() int {
	return len(formats[f].bits)
}

// Valid reports whether the format is known.
func (f Format) Valid() bool {
	_, ok := formats[f]
	return ok
}
