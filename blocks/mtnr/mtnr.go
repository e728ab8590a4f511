// Package mtnr programs the temporal noise reducer. Each frame is blended
// with the previous output, which is read back through a second input.
package mtnr

import (
	"fmt"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/regio"
)

// Type is the block type name.
const Type = "mtnr"

// DMA channel names.
const (
	ChanCur    = "mtnr_cur"
	ChanPrev   = "mtnr_prev"
	ChanOut    = "mtnr_out"
	ChanMotion = "mtnr_motion"
)

// MotionScale is the downscale of the motion map in each direction.
const MotionScale = 4

// DefaultStrength is the blend strength programmed at init.
const DefaultStrength = 32

// Block registers.
const (
	RegCtrl     = hwblock.BlockBase + 0x00
	RegSize     = hwblock.BlockBase + 0x04
	RegStrength = hwblock.BlockBase + 0x08
	RegMotion   = hwblock.BlockBase + 0x0c
)

// Register fields.
var (
	FieldEnable    = regio.NewField("MTNR_EN", RegCtrl, 0, 1)
	FieldBypass    = regio.NewField("MTNR_BYPASS", RegCtrl, 1, 1)
	FieldRefEnable = regio.NewField("REF_EN", RegCtrl, 2, 1)
	FieldWidth     = regio.NewField("WIDTH", RegSize, 0, 16)
	FieldHeight    = regio.NewField("HEIGHT", RegSize, 16, 16)
	FieldStrength  = regio.NewField("STRENGTH", RegStrength, 0, 8)
	FieldMotionW   = regio.NewField("MOTION_W", RegMotion, 0, 16)
	FieldMotionH   = regio.NewField("MOTION_H", RegMotion, 16, 16)
)

// Ops programs one MTNR instance.
type Ops struct{}

// New creates MTNR ops.
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
		{Name: ChanCur, Dir: dma.DirRead, Compressible: true},
		{Name: ChanPrev, Dir: dma.DirRead, Compressible: true},
		{Name: ChanOut, Dir: dma.DirWrite, Compressible: true},
		{Name: ChanMotion, Dir: dma.DirWrite},
	}
}

// Init enables the block without a reference frame.
func (o *Ops) Init(res *hwblock.Resources) error {
	res.Regs.WriteField(FieldEnable, 1)
	res.Regs.WriteField(FieldRefEnable, 0)
	res.Regs.WriteField(FieldStrength, DefaultStrength)
	res.DMA.DisableAll()

	return nil
}

func motionSize(width, height uint32) (uint32, uint32) {
	return max(width/MotionScale, 1), max(height/MotionScale, 1)
}

// Config writes the changed frame parameters. The reference input is used
// only when the frame carries a previous output to blend with.
func (o *Ops) Config(f *hwblock.Frame, w hwblock.RegWriter) error {
	if f.Changed.Has(hwblock.ParamFormat) &&
		f.Format != dma.FormatYUV420SP && f.Format != dma.FormatYUV422SP {
		return fmt.Errorf("%w: mtnr input %s is not yuv",
			hwblock.ErrInvalidFrame, f.Format)
	}

	if f.Changed.Has(hwblock.ParamSize) {
		mw, mh := motionSize(f.Width, f.Height)

		w.WriteField(FieldWidth, f.Width)
		w.WriteField(FieldHeight, f.Height)
		w.WriteField(FieldMotionW, mw)
		w.WriteField(FieldMotionH, mh)
	}

	if f.Changed.Has(hwblock.ParamStrength) {
		w.WriteField(FieldStrength, f.Strength)
	}

	if f.Changed.Has(hwblock.ParamBypass) {
		w.WriteField(FieldBypass, hwblock.BoolBit(f.Bypass))
	}

	w.WriteField(FieldRefEnable, hwblock.BoolBit(len(f.Buffers[ChanPrev]) > 0))

	return nil
}

// ConfigureDMA sets up the current and previous frames, the output and the
// motion map.
func (o *Ops) ConfigureDMA(f *hwblock.Frame, set *dma.Set) error {
	for _, name := range []string{ChanCur, ChanPrev, ChanOut} {
		err := hwblock.ConfigureChannel(set, f, name, f.Format, f.Width, f.Height)
		if err != nil {
			return err
		}
	}

	mw, mh := motionSize(f.Width, f.Height)

	return hwblock.ConfigureChannel(set, f, ChanMotion, dma.FormatY8, mw, mh)
}
