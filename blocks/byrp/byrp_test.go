package byrp

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
)

var _ = Describe("BYRP", func() {
	var (
		o    *Ops
		regs regMap
		set  *dma.Set
	)

	BeforeEach(func() {
		o = New(true)
		regs = regMap{}
		set = dma.NewSet("BYRP.DMA", hwblock.DMABase, o.Channels())
	})

	It("should enable the block at init", func() {
		err := o.Init(&hwblock.Resources{Name: "BYRP", Regs: regs, DMA: set})

		Expect(err).NotTo(HaveOccurred())
		Expect(FieldEnable.Get(regs[RegCtrl])).To(Equal(uint32(1)))
		Expect(FieldHdrEnable.Get(regs[RegHdr])).To(Equal(uint32(1)))
		Expect(FieldDnsStrength.Get(regs[RegDns])).
			To(Equal(uint32(DefaultStrength)))
		Expect(set.Enabled()).To(BeEmpty())
	})

	It("should program every parameter on a full change", func() {
		f := &hwblock.Frame{
			Width:    1920,
			Height:   1080,
			Format:   dma.FormatBayer10,
			Crop:     hwblock.Crop{X: 8, Y: 4, W: 1280, H: 720},
			Strength: 3,
			Bypass:   true,
			Changed:  hwblock.ParamAll,
		}

		Expect(o.Config(f, regs)).To(Succeed())

		Expect(FieldInWidth.Get(regs[RegInSize])).To(Equal(uint32(1920)))
		Expect(FieldInHeight.Get(regs[RegInSize])).To(Equal(uint32(1080)))
		Expect(FieldCropX.Get(regs[RegCropStart])).To(Equal(uint32(8)))
		Expect(FieldCropY.Get(regs[RegCropStart])).To(Equal(uint32(4)))
		Expect(FieldCropWidth.Get(regs[RegCropSize])).To(Equal(uint32(1280)))
		Expect(FieldCropHeight.Get(regs[RegCropSize])).To(Equal(uint32(720)))
		Expect(FieldBitDepth.Get(regs[RegFormat])).To(Equal(uint32(10)))
		Expect(FieldDnsStrength.Get(regs[RegDns])).To(Equal(uint32(3)))
		Expect(FieldBypass.Get(regs[RegCtrl])).To(Equal(uint32(1)))
	})

	It("should write only the changed parameters", func() {
		f := &hwblock.Frame{
			Width:    1920,
			Height:   1080,
			Strength: 7,
			Changed:  hwblock.ParamStrength,
		}

		Expect(o.Config(f, regs)).To(Succeed())

		Expect(regs).To(HaveLen(1))
		Expect(regs).To(HaveKeyWithValue(uint32(RegDns), uint32(7)))
	})

	It("should reject a crop outside the input", func() {
		f := &hwblock.Frame{
			Width:   64,
			Height:  64,
			Crop:    hwblock.Crop{X: 32, W: 64, H: 16},
			Changed: hwblock.ParamCrop,
		}

		Expect(o.Config(f, regs)).To(MatchError(hwblock.ErrInvalidFrame))
	})

	It("should reject a non-Bayer input", func() {
		f := &hwblock.Frame{
			Format:  dma.FormatYUV420SP,
			Changed: hwblock.ParamFormat,
		}

		Expect(o.Config(f, regs)).To(MatchError(hwblock.ErrInvalidFrame))
	})

	It("should set up the input, output and HDR channels", func() {
		f := &hwblock.Frame{
			Width:  64,
			Height: 32,
			Format: dma.FormatBayer10,
			Crop:   hwblock.Crop{W: 32, H: 16},
			Buffers: map[string][][]uint64{
				ChanIn:  {{0x1000}},
				ChanOut: {{0x2000}},
				ChanHDR: {{0x3000}},
			},
		}

		Expect(o.ConfigureDMA(f, set)).To(Succeed())

		Expect(set.Enabled()).To(Equal([]int{0, 1, 2}))
		Expect(set.Channel(0).Config.Width).To(Equal(uint32(64)))
		Expect(set.Channel(1).Config.Width).To(Equal(uint32(32)))
		hdr := set.Channel(2)
		Expect(hdr.Config.Format).To(Equal(dma.FormatBayer12))
		Expect(hdr.Config.Width).To(Equal(uint32(16)))
		Expect(hdr.Config.Height).To(Equal(uint32(8)))
	})

	It("should leave the HDR channel off without HDR", func() {
		o = New(false)
		f := &hwblock.Frame{
			Width:  64,
			Height: 32,
			Format: dma.FormatBayer10,
			Buffers: map[string][][]uint64{
				ChanIn:  {{0x1000}},
				ChanOut: {{0x2000}},
				ChanHDR: {{0x3000}},
			},
		}

		Expect(o.ConfigureDMA(f, set)).To(Succeed())

		Expect(set.Enabled()).To(Equal([]int{0, 1}))
	})

	It("should disable channels without buffers", func() {
		f := &hwblock.Frame{
			Width:   64,
			Height:  32,
			Format:  dma.FormatBayer10,
			Buffers: map[string][][]uint64{ChanIn: {{0x1000}}},
		}

		Expect(o.ConfigureDMA(f, set)).To(Succeed())

		Expect(set.Enabled()).To(Equal([]int{0}))
	})

	It("should refuse compression on the HDR channel", func() {
		f := &hwblock.Frame{
			Width:   64,
			Height:  32,
			Format:  dma.FormatBayer10,
			Buffers: map[string][][]uint64{ChanHDR: {{0x3000}}},
			Compression: map[string]dma.Compression{
				ChanHDR: dma.CompLossless,
			},
		}

		Expect(o.ConfigureDMA(f, set)).To(MatchError(dma.ErrInvalidDescriptor))
	})
})
