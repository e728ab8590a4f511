package tuning_test

import (
	"math/rand"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/regset"
	"github.com/sarchlab/ispcore/tuning"
)

type posCounter struct {
	sync.Mutex
	counts map[*hooking.HookPos]int
}

func (c *posCounter) Func(ctx hooking.HookCtx) {
	c.Lock()
	defer c.Unlock()
	c.counts[ctx.Pos]++
}

func (c *posCounter) get(pos *hooking.HookPos) int {
	c.Lock()
	defer c.Unlock()
	return c.counts[pos]
}

var _ = Describe("Slot", func() {
	var (
		slot    *tuning.Slot
		counter *posCounter
		set1    regset.Set
		set2    regset.Set
	)

	BeforeEach(func() {
		slot = tuning.NewSlot("Blk.Tuning", 8)
		counter = &posCounter{counts: make(map[*hooking.HookPos]int)}
		slot.AcceptHook(counter)

		set1 = regset.Set{{Addr: 0x800, Value: 1}, {Addr: 0x804, Value: 2}}
		set2 = regset.Set{{Addr: 0x800, Value: 10}}
	})

	It("should report nothing before the first store", func() {
		_, ok := slot.Drain()
		Expect(ok).To(BeFalse())
		Expect(slot.State()).To(Equal(tuning.StateEmpty))
	})

	It("should hand a stored set to the consumer once", func() {
		Expect(slot.Store(set1, 5)).To(BeFalse())
		Expect(slot.State()).To(Equal(tuning.StateConfigured))

		res, ok := slot.Drain()

		Expect(ok).To(BeTrue())
		Expect(res.Fresh).To(BeTrue())
		Expect(res.FrameTag).To(Equal(uint32(5)))
		Expect(res.Set).To(Equal(set1))
		Expect(slot.State()).To(Equal(tuning.StateEmpty))
	})

	It("should keep the last store when the consumer is late", func() {
		slot.Store(set1, 5)
		Expect(slot.Store(set2, 6)).To(BeTrue())

		res, ok := slot.Drain()

		Expect(ok).To(BeTrue())
		Expect(res.Set).To(Equal(set2))
		Expect(res.FrameTag).To(Equal(uint32(6)))
		Expect(slot.Stats().Overruns).To(Equal(uint64(1)))
		Expect(counter.get(tuning.HookPosOverrun)).To(Equal(1))
	})

	It("should reuse the retained set when nothing fresh arrived", func() {
		slot.Store(set1, 5)
		slot.Drain()

		res, ok := slot.Drain()

		Expect(ok).To(BeTrue())
		Expect(res.Fresh).To(BeFalse())
		Expect(res.Set).To(Equal(set1))
		Expect(res.FrameTag).To(Equal(uint32(5)))
		Expect(slot.Stats().Stales).To(Equal(uint64(1)))
		Expect(counter.get(tuning.HookPosStale)).To(Equal(1))
	})

	It("should not alias the producer's slice", func() {
		src := set1.Clone()
		slot.Store(src, 1)
		src[0].Value = 0xbad

		res, _ := slot.Drain()
		Expect(res.Set[0].Value).To(Equal(uint32(1)))
	})

	It("should forget everything on reset", func() {
		slot.Store(set1, 5)
		slot.Drain()
		slot.Reset()

		_, ok := slot.Drain()
		Expect(ok).To(BeFalse())
	})

	It("should always return a valid set under concurrent use", func() {
		var wg sync.WaitGroup
		stop := make(chan struct{})

		slot.Store(set1, 0)

		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(1))
			for tag := uint32(1); ; tag++ {
				select {
				case <-stop:
					return
				default:
				}
				n := 1 + r.Intn(8)
				set := make(regset.Set, n)
				for i := range set {
					set[i] = regset.Pair{Addr: 0x800 + uint32(i)*4, Value: tag}
				}
				slot.Store(set, tag)
			}
		}()

		for range 1000 {
			res, ok := slot.Drain()
			Expect(ok).To(BeTrue())
			Expect(res.Set.Len()).To(BeNumerically(">", 0))
			for _, p := range res.Set {
				if res.FrameTag != 0 {
					Expect(p.Value).To(Equal(res.FrameTag))
				}
			}
		}

		close(stop)
		wg.Wait()
	})
})
