package mtnr

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
)

var _ = Describe("MTNR", func() {
	var (
		o    *Ops
		regs regMap
		set  *dma.Set
	)

	BeforeEach(func() {
		o = New()
		regs = regMap{}
		set = dma.NewSet("MTNR.DMA", hwblock.DMABase, o.Channels())
	})

	It("should start without a reference frame", func() {
		Expect(o.Init(&hwblock.Resources{Regs: regs, DMA: set})).To(Succeed())

		Expect(FieldRefEnable.Get(regs[RegCtrl])).To(BeZero())
		Expect(FieldStrength.Get(regs[RegStrength])).
			To(Equal(uint32(DefaultStrength)))
	})

	It("should use the reference once a previous output exists", func() {
		first := &hwblock.Frame{
			Width:   640,
			Height:  480,
			Format:  dma.FormatYUV420SP,
			Changed: hwblock.ParamAll,
			Buffers: map[string][][]uint64{ChanCur: {{0x1000, 0x2000}}},
		}
		Expect(o.Config(first, regs)).To(Succeed())
		Expect(FieldRefEnable.Get(regs[RegCtrl])).To(BeZero())

		second := &hwblock.Frame{
			Width:  640,
			Height: 480,
			Format: dma.FormatYUV420SP,
			Buffers: map[string][][]uint64{
				ChanCur:  {{0x1000, 0x2000}},
				ChanPrev: {{0x3000, 0x4000}},
			},
		}
		Expect(o.Config(second, regs)).To(Succeed())
		Expect(FieldRefEnable.Get(regs[RegCtrl])).To(Equal(uint32(1)))
	})

	It("should size the motion map", func() {
		f := &hwblock.Frame{Width: 640, Height: 480, Changed: hwblock.ParamSize}

		Expect(o.Config(f, regs)).To(Succeed())

		Expect(FieldMotionW.Get(regs[RegMotion])).To(Equal(uint32(160)))
		Expect(FieldMotionH.Get(regs[RegMotion])).To(Equal(uint32(120)))
	})

	It("should reject Bayer input", func() {
		f := &hwblock.Frame{Format: dma.FormatBayer10,
			Changed: hwblock.ParamFormat}

		Expect(o.Config(f, regs)).To(MatchError(hwblock.ErrInvalidFrame))
	})

	It("should set up all four channels", func() {
		f := &hwblock.Frame{
			Width:  64,
			Height: 32,
			Format: dma.FormatYUV420SP,
			Buffers: map[string][][]uint64{
				ChanCur:    {{0x1000, 0x2000}},
				ChanPrev:   {{0x3000, 0x4000}},
				ChanOut:    {{0x5000, 0x6000}},
				ChanMotion: {{0x7000}},
			},
		}

		Expect(o.ConfigureDMA(f, set)).To(Succeed())

		Expect(set.Enabled()).To(HaveLen(4))
		motion := set.Channel(3)
		Expect(motion.Config.Width).To(Equal(uint32(16)))
		Expect(motion.Config.Height).To(Equal(uint32(8)))
	})
})
