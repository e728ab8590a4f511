// Package mlsc programs the lens shading corrector. It applies a per-cell
// gain grid to a Bayer frame and writes per-cell statistics.
package mlsc

import (
	"fmt"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/regio"
)

// Type is the block type name.
const Type = "mlsc"

// DMA channel names.
const (
	ChanIn   = "mlsc_in"
	ChanOut  = "mlsc_out"
	ChanStat = "mlsc_stat"
)

// Grid geometry.
const (
	// CellSize is the side of a grid cell in pixels.
	CellSize = 64

	// StatBytes is the size of the statistics of one cell.
	StatBytes = 8

	// MaxCells bounds the grid in each direction.
	MaxCells = 255

	DefaultGain = 0x100
)

// Block registers.
const (
	RegCtrl   = hwblock.BlockBase + 0x00
	RegSize   = hwblock.BlockBase + 0x04
	RegGrid   = hwblock.BlockBase + 0x08
	RegGain   = hwblock.BlockBase + 0x0c
	RegFormat = hwblock.BlockBase + 0x10
)

// Register fields.
var (
	FieldEnable   = regio.NewField("MLSC_EN", RegCtrl, 0, 1)
	FieldBypass   = regio.NewField("MLSC_BYPASS", RegCtrl, 1, 1)
	FieldWidth    = regio.NewField("WIDTH", RegSize, 0, 16)
	FieldHeight   = regio.NewField("HEIGHT", RegSize, 16, 16)
	FieldGridCols = regio.NewField("GRID_COLS", RegGrid, 0, 8)
	FieldGridRows = regio.NewField("GRID_ROWS", RegGrid, 8, 8)
	FieldGain     = regio.NewField("GAIN", RegGain, 0, 12)
	FieldBitDepth = regio.NewField("BIT_DEPTH", RegFormat, 0, 4)
)

// Grid returns the number of grid cells that cover a frame.
func Grid(width, height uint32) (cols, rows uint32) {
	return (width + CellSize - 1) / CellSize, (height + CellSize - 1) / CellSize
}

// Ops programs one MLSC instance.
type Ops struct{}

// New creates MLSC ops.
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
		{Name: ChanIn, Dir: dma.DirRead, Compressible: true},
		{Name: ChanOut, Dir: dma.DirWrite, Compressible: true},
		{Name: ChanStat, Dir: dma.DirWrite},
	}
}

// Init enables the block with unity gain.
func (o *Ops) Init(res *hwblock.Resources) error {
	res.Regs.WriteField(FieldEnable, 1)
	res.Regs.WriteField(FieldGain, DefaultGain)
	res.DMA.DisableAll()

	return nil
}

// Config writes the changed frame parameters. Strength is the global gain
// in 4.8 fixed point.
func (o *Ops) Config(f *hwblock.Frame, w hwblock.RegWriter) error {
	if f.Changed.Has(hwblock.ParamFormat) {
		switch f.Format {
		case dma.FormatBayer10:
			w.WriteField(FieldBitDepth, 10)
		case dma.FormatBayer12:
			w.WriteField(FieldBitDepth, 12)
		default:
			return fmt.Errorf("%w: mlsc input %s is not bayer",
				hwblock.ErrInvalidFrame, f.Format)
		}
	}

	if f.Changed.Has(hwblock.ParamSize) {
		cols, rows := Grid(f.Width, f.Height)
		if cols > MaxCells || rows > MaxCells {
			return fmt.Errorf("%w: %dx%d needs a %dx%d grid",
				hwblock.ErrInvalidFrame, f.Width, f.Height, cols, rows)
		}

		w.WriteField(FieldWidth, f.Width)
		w.WriteField(FieldHeight, f.Height)
		w.WriteField(FieldGridCols, cols)
		w.WriteField(FieldGridRows, rows)
	}

	if f.Changed.Has(hwblock.ParamStrength) {
		w.WriteField(FieldGain, f.Strength)
	}

	if f.Changed.Has(hwblock.ParamBypass) {
		w.WriteField(FieldBypass, hwblock.BoolBit(f.Bypass))
	}

	return nil
}

// ConfigureDMA sets up the image channels and the statistics channel, one
// row of StatBytes per cell for every grid row.
func (o *Ops) ConfigureDMA(f *hwblock.Frame, set *dma.Set) error {
	err := hwblock.ConfigureChannel(set, f, ChanIn, f.Format, f.Width, f.Height)
	if err != nil {
		return err
	}

	err = hwblock.ConfigureChannel(set, f, ChanOut, f.Format, f.Width, f.Height)
	if err != nil {
		return err
	}

	cols, rows := Grid(f.Width, f.Height)

	return hwblock.ConfigureChannel(set, f, ChanStat, dma.FormatY8,
		max(cols*StatBytes, 1), max(rows, 1))
}
