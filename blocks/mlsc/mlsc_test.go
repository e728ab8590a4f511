package mlsc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
)

var _ = Describe("MLSC", func() {
	var (
		o    *Ops
		regs regMap
		set  *dma.Set
	)

	BeforeEach(func() {
		o = New()
		regs = regMap{}
		set = dma.NewSet("MLSC.DMA", hwblock.DMABase, o.Channels())
	})

	It("should start with unity gain", func() {
		Expect(o.Init(&hwblock.Resources{Regs: regs, DMA: set})).To(Succeed())

		Expect(FieldGain.Get(regs[RegGain])).To(Equal(uint32(DefaultGain)))
		Expect(FieldEnable.Get(regs[RegCtrl])).To(Equal(uint32(1)))
	})

	It("should round the grid up", func() {
		cols, rows := Grid(1920, 1080)

		Expect(cols).To(Equal(uint32(30)))
		Expect(rows).To(Equal(uint32(17)))
	})

	It("should program size and grid together", func() {
		f := &hwblock.Frame{
			Width:   1920,
			Height:  1080,
			Format:  dma.FormatBayer12,
			Changed: hwblock.ParamSize | hwblock.ParamFormat,
		}

		Expect(o.Config(f, regs)).To(Succeed())

		Expect(FieldGridCols.Get(regs[RegGrid])).To(Equal(uint32(30)))
		Expect(FieldGridRows.Get(regs[RegGrid])).To(Equal(uint32(17)))
		Expect(FieldBitDepth.Get(regs[RegFormat])).To(Equal(uint32(12)))
		Expect(regs).NotTo(HaveKey(uint32(RegGain)))
	})

	It("should reject frames the grid cannot cover", func() {
		f := &hwblock.Frame{
			Width:   CellSize * (MaxCells + 1),
			Height:  64,
			Changed: hwblock.ParamSize,
		}

		Expect(o.Config(f, regs)).To(MatchError(hwblock.ErrInvalidFrame))
	})

	It("should size the statistics from the grid", func() {
		f := &hwblock.Frame{
			Width:  256,
			Height: 128,
			Format: dma.FormatBayer10,
			Buffers: map[string][][]uint64{
				ChanIn:   {{0x1000}},
				ChanOut:  {{0x2000}},
				ChanStat: {{0x3000}, {0x4000}},
			},
		}

		Expect(o.ConfigureDMA(f, set)).To(Succeed())

		stat := set.Channel(2)
		Expect(stat.Enabled).To(BeTrue())
		Expect(stat.Config.Width).To(Equal(uint32(4 * StatBytes)))
		Expect(stat.Config.Height).To(Equal(uint32(2)))
		Expect(stat.Config.Buffers).To(HaveLen(2))
	})
})
