// Package byrp programs the Bayer pre-processor. It reads a raw Bayer frame,
// crops and denoises it and writes the result back in Bayer. With HDR
// enabled it also writes a half-resolution HDR statistics plane.
package byrp

import (
	"fmt"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/regio"
)

// Type is the block type name.
const Type = "byrp"

// DMA channel names.
const (
	ChanIn  = "byrp_in"
	ChanOut = "byrp_out"
	ChanHDR = "byrp_hdr"
)

// Block registers.
const (
	RegCtrl      = hwblock.BlockBase + 0x00
	RegInSize    = hwblock.BlockBase + 0x04
	RegCropStart = hwblock.BlockBase + 0x08
	RegCropSize  = hwblock.BlockBase + 0x0c
	RegFormat    = hwblock.BlockBase + 0x10
	RegDns       = hwblock.BlockBase + 0x14
	RegHdr       = hwblock.BlockBase + 0x18
)

// Register fields.
var (
	FieldEnable      = regio.NewField("BYRP_EN", RegCtrl, 0, 1)
	FieldBypass      = regio.NewField("BYRP_BYPASS", RegCtrl, 1, 1)
	FieldInWidth     = regio.NewField("IN_WIDTH", RegInSize, 0, 16)
	FieldInHeight    = regio.NewField("IN_HEIGHT", RegInSize, 16, 16)
	FieldCropX       = regio.NewField("CROP_X", RegCropStart, 0, 16)
	FieldCropY       = regio.NewField("CROP_Y", RegCropStart, 16, 16)
	FieldCropWidth   = regio.NewField("CROP_W", RegCropSize, 0, 16)
	FieldCropHeight  = regio.NewField("CROP_H", RegCropSize, 16, 16)
	FieldBitDepth    = regio.NewField("BIT_DEPTH", RegFormat, 0, 4)
	FieldDnsStrength = regio.NewField("DNS_STRENGTH", RegDns, 0, 8)
	FieldHdrEnable   = regio.NewField("HDR_EN", RegHdr, 0, 1)
)

// DefaultStrength is the denoise strength programmed at init.
const DefaultStrength = 16

// Ops programs one BYRP instance.
type Ops struct {
	hdr bool
}

// New creates BYRP ops. With hdr set the HDR statistics output is written.
func New(hdr bool) *Ops {
	return &Ops{hdr: hdr}
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
		{Name: ChanIn, Dir: dma.DirRead, Compressible: true},
		{Name: ChanOut, Dir: dma.DirWrite, Compressible: true},
		{Name: ChanHDR, Dir: dma.DirWrite},
	}
}

// Init enables the block with default denoising.
func (o *Ops) Init(res *hwblock.Resources) error {
	res.Regs.WriteField(FieldEnable, 1)
	res.Regs.WriteField(FieldHdrEnable, hwblock.BoolBit(o.hdr))
	res.Regs.WriteField(FieldDnsStrength, DefaultStrength)
	res.DMA.DisableAll()

	return nil
}

func bitDepth(f dma.Format) (uint32, bool) {
	switch f {
	case dma.FormatBayer10:
		return 10, true
	case dma.FormatBayer12:
		return 12, true
	default:
		return 0, false
	}
}

// Config writes the changed frame parameters.
func (o *Ops) Config(f *hwblock.Frame, w hwblock.RegWriter) error {
	if f.Changed.Has(hwblock.ParamFormat) {
		depth, ok := bitDepth(f.Format)
		if !ok {
			return fmt.Errorf("%w: byrp input %s is not bayer",
				hwblock.ErrInvalidFrame, f.Format)
		}

		w.WriteField(FieldBitDepth, depth)
	}

	if f.Changed.Has(hwblock.ParamSize) {
		w.WriteField(FieldInWidth, f.Width)
		w.WriteField(FieldInHeight, f.Height)
	}

	if f.Changed.Has(hwblock.ParamSize | hwblock.ParamCrop) {
		c := f.CropOrFull()
		if c.X+c.W > f.Width || c.Y+c.H > f.Height {
			return fmt.Errorf("%w: crop %dx%d+%d+%d outside %dx%d",
				hwblock.ErrInvalidFrame, c.W, c.H, c.X, c.Y, f.Width, f.Height)
		}

		w.WriteField(FieldCropX, c.X)
		w.WriteField(FieldCropY, c.Y)
		w.WriteField(FieldCropWidth, c.W)
		w.WriteField(FieldCropHeight, c.H)
	}

	if f.Changed.Has(hwblock.ParamStrength) {
		w.WriteField(FieldDnsStrength, f.Strength)
	}

	if f.Changed.Has(hwblock.ParamBypass) {
		w.WriteField(FieldBypass, hwblock.BoolBit(f.Bypass))
	}

	return nil
}

// ConfigureDMA sets up the input, the cropped output and, with HDR, the
// statistics plane.
func (o *Ops) ConfigureDMA(f *hwblock.Frame, set *dma.Set) error {
	c := f.CropOrFull()

	err := hwblock.ConfigureChannel(set, f, ChanIn, f.Format, f.Width, f.Height)
	if err != nil {
		return err
	}

	err = hwblock.ConfigureChannel(set, f, ChanOut, f.Format, c.W, c.H)
	if err != nil {
		return err
	}

	if !o.hdr {
		idx, _ := set.Lookup(ChanHDR)
		set.Disable(idx)

		return nil
	}

	return hwblock.ConfigureChannel(set, f, ChanHDR, dma.FormatBayer12,
		max(c.W/2, 1), max(c.H/2, 1))
}
