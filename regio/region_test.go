package regio_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ispcore/memory"
	"github.com/sarchlab/ispcore/regio"
)

var _ = Describe("Field", func() {
	It("should compute masks", func() {
		f := regio.NewField("F", 0x10, 4, 8)
		Expect(f.Mask()).To(Equal(uint32(0x0ff0)))

		full := regio.NewField("Full", 0x10, 0, 32)
		Expect(full.Mask()).To(Equal(uint32(0xffffffff)))
	})

	It("should get and set without touching other bits", func() {
		f := regio.NewField("F", 0x10, 4, 4)
		v := f.Set(0xffff0000, 0xa)
		Expect(v).To(Equal(uint32(0xffff00a0)))
		Expect(f.Get(v)).To(Equal(uint32(0xa)))
		Expect(f.Set(0, 0x1f)).To(Equal(uint32(0xf0)))
	})

	It("should panic when the field does not fit", func() {
		Expect(func() { regio.NewField("F", 0, 30, 4) }).To(Panic())
		Expect(func() { regio.NewField("F", 0, 0, 0) }).To(Panic())
	})
})

var _ = Describe("Region", func() {
	var (
		storage *memory.Storage
		region  *regio.Region
	)

	BeforeEach(func() {
		storage = memory.NewStorage(0x10000)
		region = regio.NewRegion("Blk", storage, 0x1000, 0x100)
	})

	It("should read and write relative to the base", func() {
		region.Write32(0x8, 0xdeadbeef)

		Expect(region.Read32(0x8)).To(Equal(uint32(0xdeadbeef)))
		v, err := storage.ReadUint32(0x1008)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint32(0xdeadbeef)))
		Expect(region.Accesses()).To(Equal(uint64(2)))
	})

	It("should write fields atomically", func() {
		region.Write32(0x4, 0xffffffff)
		f := regio.NewField("F", 0x4, 8, 8)

		region.WriteField(f, 0x12)

		Expect(region.Read32(0x4)).To(Equal(uint32(0xffff12ff)))
		Expect(region.ReadField(f)).To(Equal(uint32(0x12)))
	})

	It("should access bulk ranges", func() {
		region.WriteBulk(0x10, []uint32{1, 2, 3})

		Expect(region.ReadBulk(0x10, 3)).To(Equal([]uint32{1, 2, 3}))
	})

	It("should hand handled writes to the handler", func() {
		var got []uint32
		region.Poke(0x20, 0x3)
		region.OnWrite(0x20, func(offset, value uint32) {
			got = append(got, value)
			region.Modify(offset, func(old uint32) uint32 { return old &^ value })
		})

		region.Write32(0x20, 0x1)

		Expect(got).To(Equal([]uint32{0x1}))
		Expect(region.Peek(0x20)).To(Equal(uint32(0x2)))
	})

	It("should not count pokes and peeks", func() {
		region.Poke(0x0, 7)
		Expect(region.Peek(0x0)).To(Equal(uint32(7)))
		Expect(region.Accesses()).To(BeZero())
	})

	It("should fail to remap when unmappable", func() {
		Expect(region.Remap()).To(Succeed())

		region.SetMappable(false)
		Expect(region.Remap()).To(MatchError(regio.ErrUnmappable))
	})

	It("should panic on bad offsets", func() {
		Expect(func() { region.Read32(0x2) }).To(Panic())
		Expect(func() { region.Write32(0x100, 0) }).To(Panic())
	})
})
