// Package mcsc programs the multi-channel scaler. One cropped input is
// scaled to up to MaxOutputs outputs, each with its own size and format.
package mcsc

import (
	"fmt"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/regio"
)

// Type is the block type name.
const Type = "mcsc"

// MaxOutputs is the number of scaler outputs.
const MaxOutputs = 5

// Scaling limits relative to the crop.
const (
	MaxUpscale   = 8
	MaxDownscale = 16
)

// ChanIn is the input channel name.
const ChanIn = "mcsc_in"

var chanOut = [MaxOutputs]string{
	"mcsc_out0", "mcsc_out1", "mcsc_out2", "mcsc_out3", "mcsc_out4",
}

// ChanOut returns the channel name of output i.
func ChanOut(i int) string {
	return chanOut[i]
}

// Block registers.
const (
	RegCtrl      = hwblock.BlockBase + 0x00
	RegInSize    = hwblock.BlockBase + 0x04
	RegCropStart = hwblock.BlockBase + 0x08
	RegCropSize  = hwblock.BlockBase + 0x0c

	// RegOutBase is where the per-output register blocks start.
	RegOutBase = hwblock.BlockBase + 0x40
	OutStride  = 0x10
)

// Offsets inside an output register block.
const (
	OutCtrl   = 0x0
	OutSize   = 0x4
	OutRatioH = 0x8
	OutRatioV = 0xc
)

// Register fields.
var (
	FieldEnable     = regio.NewField("MCSC_EN", RegCtrl, 0, 1)
	FieldBypass     = regio.NewField("MCSC_BYPASS", RegCtrl, 1, 1)
	FieldInWidth    = regio.NewField("IN_WIDTH", RegInSize, 0, 16)
	FieldInHeight   = regio.NewField("IN_HEIGHT", RegInSize, 16, 16)
	FieldCropX      = regio.NewField("CROP_X", RegCropStart, 0, 16)
	FieldCropY      = regio.NewField("CROP_Y", RegCropStart, 16, 16)
	FieldCropWidth  = regio.NewField("CROP_W", RegCropSize, 0, 16)
	FieldCropHeight = regio.NewField("CROP_H", RegCropSize, 16, 16)
)

// OutReg returns the address of a register of output i.
func OutReg(i int, off uint32) uint32 {
	return RegOutBase + uint32(i)*OutStride + off
}

func fieldOutEnable(i int) regio.Field {
	return regio.NewField("OUT_EN", OutReg(i, OutCtrl), 0, 1)
}

func fieldOutFormat(i int) regio.Field {
	return regio.NewField("OUT_FMT", OutReg(i, OutCtrl), 4, 4)
}

func fieldOutWidth(i int) regio.Field {
	return regio.NewField("OUT_W", OutReg(i, OutSize), 0, 16)
}

func fieldOutHeight(i int) regio.Field {
	return regio.NewField("OUT_H", OutReg(i, OutSize), 16, 16)
}

var formatCodes = map[dma.Format]uint32{
	dma.FormatYUV420SP: 0,
	dma.FormatYUV422SP: 1,
	dma.FormatRGB888:   2,
}

// Ratio returns the 16.16 fixed-point step of scaling in to out.
func Ratio(in, out uint32) uint32 {
	return uint32((uint64(in) << 16) / uint64(out))
}

// Ops programs one MCSC instance.
type Ops struct{}

// New creates MCSC ops.
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
	specs := []dma.ChannelSpec{
		{Name: ChanIn, Dir: dma.DirRead, Compressible: true},
	}

	for _, name := range chanOut {
		specs = append(specs, dma.ChannelSpec{Name: name, Dir: dma.DirWrite})
	}

	return specs
}

// Init enables the block with every output off.
func (o *Ops) Init(res *hwblock.Resources) error {
	res.Regs.WriteField(FieldEnable, 1)

	for i := range MaxOutputs {
		res.Regs.WriteField(fieldOutEnable(i), 0)
	}

	res.DMA.DisableAll()

	return nil
}

// Config writes the changed frame parameters. A size, crop or output change
// recomputes the scaling of every output.
func (o *Ops) Config(f *hwblock.Frame, w hwblock.RegWriter) error {
	if f.Changed.Has(hwblock.ParamFormat) {
		if f.Format != dma.FormatYUV420SP && f.Format != dma.FormatYUV422SP {
			return fmt.Errorf("%w: mcsc input %s is not yuv",
				hwblock.ErrInvalidFrame, f.Format)
		}
	}

	if f.Changed.Has(hwblock.ParamSize) {
		w.WriteField(FieldInWidth, f.Width)
		w.WriteField(FieldInHeight, f.Height)
	}

	c := f.CropOrFull()

	if f.Changed.Has(hwblock.ParamSize | hwblock.ParamCrop) {
		if c.X+c.W > f.Width || c.Y+c.H > f.Height {
			return fmt.Errorf("%w: crop %dx%d+%d+%d outside %dx%d",
				hwblock.ErrInvalidFrame, c.W, c.H, c.X, c.Y, f.Width, f.Height)
		}

		w.WriteField(FieldCropX, c.X)
		w.WriteField(FieldCropY, c.Y)
		w.WriteField(FieldCropWidth, c.W)
		w.WriteField(FieldCropHeight, c.H)
	}

	if f.Changed.Has(hwblock.ParamSize | hwblock.ParamCrop | hwblock.ParamOutput) {
		if err := configOutputs(f, c, w); err != nil {
			return err
		}
	}

	if f.Changed.Has(hwblock.ParamBypass) {
		w.WriteField(FieldBypass, hwblock.BoolBit(f.Bypass))
	}

	return nil
}

func configOutputs(f *hwblock.Frame, c hwblock.Crop, w hwblock.RegWriter) error {
	if len(f.Outputs) > MaxOutputs {
		return fmt.Errorf("%w: %d outputs, mcsc has %d",
			hwblock.ErrInvalidFrame, len(f.Outputs), MaxOutputs)
	}

	for i, out := range f.Outputs {
		if err := outputMustScale(i, out, c); err != nil {
			return err
		}
	}

	for i := range MaxOutputs {
		if i >= len(f.Outputs) {
			w.WriteField(fieldOutEnable(i), 0)
			continue
		}

		out := f.Outputs[i]
		w.WriteField(fieldOutEnable(i), 1)
		w.WriteField(fieldOutFormat(i), formatCodes[out.Format])
		w.WriteField(fieldOutWidth(i), out.Width)
		w.WriteField(fieldOutHeight(i), out.Height)
		w.Write(OutReg(i, OutRatioH), Ratio(c.W, out.Width))
		w.Write(OutReg(i, OutRatioV), Ratio(c.H, out.Height))
	}

	return nil
}

func outputMustScale(i int, out hwblock.Output, c hwblock.Crop) error {
	if _, ok := formatCodes[out.Format]; !ok {
		return fmt.Errorf("%w: output %d format %s",
			hwblock.ErrInvalidFrame, i, out.Format)
	}

	if out.Width == 0 || out.Height == 0 {
		return fmt.Errorf("%w: output %d is empty", hwblock.ErrInvalidFrame, i)
	}

	if out.Width > c.W*MaxUpscale || out.Height > c.H*MaxUpscale ||
		out.Width*MaxDownscale < c.W || out.Height*MaxDownscale < c.H {
		return fmt.Errorf("%w: output %d %dx%d cannot be scaled from %dx%d",
			hwblock.ErrInvalidFrame, i, out.Width, out.Height, c.W, c.H)
	}

	return nil
}

// ConfigureDMA sets up the input and one write channel per output. Unused
// outputs are disabled.
func (o *Ops) ConfigureDMA(f *hwblock.Frame, set *dma.Set) error {
	err := hwblock.ConfigureChannel(set, f, ChanIn, f.Format, f.Width, f.Height)
	if err != nil {
		return err
	}

	for i, name := range chanOut {
		if i >= len(f.Outputs) {
			idx, _ := set.Lookup(name)
			set.Disable(idx)

			continue
		}

		out := f.Outputs[i]
		err := hwblock.ConfigureChannel(set, f, name, out.Format,
			out.Width, out.Height)
		if err != nil {
			return err
		}
	}

	return nil
}
