// Package yuvp programs the YUV processor. Luma and chroma are read and
// written through separate channels.
package yuvp

import (
	"fmt"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/regio"
)

// Type is the block type name.
const Type = "yuvp"

// DMA channel names.
const (
	ChanInY  = "yuvp_in_y"
	ChanInC  = "yuvp_in_c"
	ChanOutY = "yuvp_out_y"
	ChanOutC = "yuvp_out_c"
)

// Block registers.
const (
	RegCtrl    = hwblock.BlockBase + 0x00
	RegSize    = hwblock.BlockBase + 0x04
	RegFormat  = hwblock.BlockBase + 0x08
	RegSharpen = hwblock.BlockBase + 0x0c
)

// Register fields.
var (
	FieldEnable    = regio.NewField("YUVP_EN", RegCtrl, 0, 1)
	FieldBypass    = regio.NewField("YUVP_BYPASS", RegCtrl, 1, 1)
	FieldWidth     = regio.NewField("WIDTH", RegSize, 0, 16)
	FieldHeight    = regio.NewField("HEIGHT", RegSize, 16, 16)
	FieldChroma422 = regio.NewField("CHROMA_422", RegFormat, 0, 1)
	FieldSharpen   = regio.NewField("SHARPEN", RegSharpen, 0, 8)
)

// Ops programs one YUVP instance.
type Ops struct{}

// New creates YUVP ops.
func New() *Ops {
	return &Ops{}
}

// Type returns the block type name.
func (o *Ops) Type() string {
	return Type
}

// RegisterCount returns the size of the register window in registers.
func (o *Ops) RegisterCount() int {
	return 1024
}

// Channels describes the block's DMA channels.
func (o *Ops) Channels() []dma.ChannelSpec {
	return []dma.ChannelSpec{
		{Name: ChanInY, Dir: dma.DirRead, Compressible: true},
		{Name: ChanInC, Dir: dma.DirRead, Compressible: true},
		{Name: ChanOutY, Dir: dma.DirWrite, Compressible: true},
		{Name: ChanOutC, Dir: dma.DirWrite, Compressible: true},
	}
}

// Init enables the block.
func (o *Ops) Init(res *hwblock.Resources) error {
	res.Regs.WriteField(FieldEnable, 1)
	res.DMA.DisableAll()

	return nil
}

// chromaFormat returns the single-plane layout of the chroma plane of f.
func chromaFormat(f dma.Format) (dma.Format, error) {
	switch f {
	case dma.FormatYUV420SP:
		return dma.FormatUV8, nil
	case dma.FormatYUV422SP:
		return dma.FormatY8, nil
	default:
		return dma.FormatInvalid, fmt.Errorf("%w: yuvp input %s is not yuv",
			hwblock.ErrInvalidFrame, f)
	}
}

// Config writes the changed frame parameters.
func (o *Ops) Config(f *hwblock.Frame, w hwblock.RegWriter) error {
	if f.Changed.Has(hwblock.ParamFormat) {
		if _, err := chromaFormat(f.Format); err != nil {
			return err
		}

		w.WriteField(FieldChroma422,
			hwblock.BoolBit(f.Format == dma.FormatYUV422SP))
	}

	if f.Changed.Has(hwblock.ParamSize) {
		if f.Width%2 != 0 || f.Height%2 != 0 {
			return fmt.Errorf("%w: yuvp size %dx%d is not even",
				hwblock.ErrInvalidFrame, f.Width, f.Height)
		}

		w.WriteField(FieldWidth, f.Width)
		w.WriteField(FieldHeight, f.Height)
	}

	if f.Changed.Has(hwblock.ParamStrength) {
		w.WriteField(FieldSharpen, f.Strength)
	}

	if f.Changed.Has(hwblock.ParamBypass) {
		w.WriteField(FieldBypass, hwblock.BoolBit(f.Bypass))
	}

	return nil
}

// ConfigureDMA sets up the luma and chroma planes in both directions.
func (o *Ops) ConfigureDMA(f *hwblock.Frame, set *dma.Set) error {
	chroma, err := chromaFormat(f.Format)
	if err != nil {
		set.DisableAll()
		return err
	}

	for _, ch := range []struct {
		name   string
		format dma.Format
	}{
		{ChanInY, dma.FormatY8},
		{ChanInC, chroma},
		{ChanOutY, dma.FormatY8},
		{ChanOutC, chroma},
	} {
		err := hwblock.ConfigureChannel(set, f, ch.name, ch.format,
			f.Width, f.Height)
		if err != nil {
			return err
		}
	}

	return nil
}
