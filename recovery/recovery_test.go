package recovery

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/ispcore/hooking"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/hwerr"
)

var _ = Describe("Orchestrator", func() {
	var (
		mockCtrl *gomock.Controller
		up, down *MockTarget
		src      *MockFcountSource
		upCnt    hwblock.Counters
		downCnt  hwblock.Counters
		upOvf    bool
		o        *Orchestrator
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		up = NewMockTarget(mockCtrl)
		down = NewMockTarget(mockCtrl)
		src = NewMockFcountSource(mockCtrl)

		upCnt = hwblock.Counters{}
		downCnt = hwblock.Counters{}
		upOvf = false

		up.EXPECT().Name().Return("BYRP").AnyTimes()
		up.EXPECT().Counters().
			DoAndReturn(func() hwblock.Counters { return upCnt }).AnyTimes()
		up.EXPECT().Overflow().
			DoAndReturn(func() bool { return upOvf }).AnyTimes()

		down.EXPECT().Name().Return("YUVP").AnyTimes()
		down.EXPECT().Counters().
			DoAndReturn(func() hwblock.Counters { return downCnt }).AnyTimes()
		down.EXPECT().Overflow().Return(false).AnyTimes()

		src.EXPECT().LastFcount().Return(uint32(7)).AnyTimes()

		o = MakeBuilder().
			WithTargets(up, down).
			WithFcountSource(src).
			WithInterval(time.Millisecond).
			WithResetBackoff(time.Microsecond, 10*time.Microsecond).
			Build("Recovery")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should do nothing when no block needs attention", func() {
		report, err := o.Check(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Fcount).To(Equal(uint32(7)))
		Expect(report.Results).To(BeEmpty())
	})

	It("should recover an overflowed block and check the blocks after it",
		func() {
			upOvf = true
			gomock.InOrder(
				up.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil),
				up.EXPECT().Recover(uint32(7)).DoAndReturn(func(uint32) error {
					upOvf = false
					return nil
				}),
				up.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil),
			)
			down.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil)

			report, err := o.Check(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Results).To(HaveLen(2))
			Expect(report.Results[0]).To(Equal(Result{
				Block:    "BYRP",
				Reason:   "overflow",
				Action:   ActionRecover,
				HwFcount: 7,
			}))
			Expect(report.Results[1].Reason).To(Equal("upstream"))
			Expect(report.Results[1].Action).To(Equal(ActionNone))
			Expect(o.LastReport()).To(Equal(report))
		})

	It("should only look at blocks from the first flagged one on", func() {
		downCnt.Anomalies = 1
		down.EXPECT().CmpFcount(uint32(7)).Return(uint32(9), true, nil)
		down.EXPECT().Recover(uint32(7)).Return(nil)
		down.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil)

		report, err := o.Check(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Results).To(HaveLen(1))
		Expect(report.Results[0].Block).To(Equal("YUVP"))
		Expect(report.Results[0].Reason).To(Equal("anomaly"))
		Expect(report.Results[0].Action).To(Equal(ActionRecover))
	})

	It("should only react to new errors", func() {
		upCnt.Errors = 1
		up.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil)
		down.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil)

		_, err := o.Check(context.Background())
		Expect(err).NotTo(HaveOccurred())

		report, err := o.Check(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Results).To(BeEmpty())
	})

	It("should reset a block whose drift survives recovery", func() {
		upCnt.Errors = 1
		gomock.InOrder(
			up.EXPECT().CmpFcount(uint32(7)).Return(uint32(4), true, nil),
			up.EXPECT().Recover(uint32(7)).Return(nil),
			up.EXPECT().CmpFcount(uint32(7)).Return(uint32(4), true, nil),
			up.EXPECT().Reset().Return(nil),
			up.EXPECT().Recover(uint32(7)).Return(nil),
		)
		down.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil)

		report, err := o.Check(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Results[0].Action).To(Equal(ActionReset))
		Expect(report.Results[0].Attempts).To(Equal(1))
		Expect(report.Results[0].HwFcount).To(Equal(uint32(7)))
		Expect(report.Results[0].Err).NotTo(HaveOccurred())
	})

	It("should reset a block that timed out", func() {
		var actions []Result
		hook := hooking.HookFunc(func(ctx hooking.HookCtx) {
			actions = append(actions, ctx.Item.(Result))
		})
		o.AcceptHook(&hook)

		upCnt.Timeouts = 1
		up.EXPECT().Reset().Return(nil)
		up.EXPECT().Recover(uint32(7)).Return(nil)
		down.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil)

		report, err := o.Check(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Results[0].Reason).To(Equal("timeout"))
		Expect(report.Results[0].Action).To(Equal(ActionReset))
		Expect(actions).To(HaveLen(2))
	})

	It("should give up after the last reset attempt", func() {
		upCnt.Timeouts = 1
		up.EXPECT().Reset().Return(hwerr.ErrTimeout).Times(3)
		down.EXPECT().CmpFcount(uint32(7)).Return(uint32(7), false, nil)

		report, err := o.Check(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Results[0].Attempts).To(Equal(3))
		Expect(errors.Is(report.Results[0].Err, hwerr.ErrTimeout)).To(BeTrue())
	})

	It("should stop retrying when the context ends", func() {
		o = MakeBuilder().
			WithTargets(up, down).
			WithFcountSource(src).
			WithResetBackoff(time.Hour, time.Hour).
			Build("Recovery")

		ctx, cancel := context.WithCancel(context.Background())
		upCnt.Timeouts = 1
		up.EXPECT().Reset().DoAndReturn(func() error {
			cancel()
			return hwerr.ErrTimeout
		})

		report, err := o.Check(ctx)

		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(report.Results).To(HaveLen(1))
		Expect(report.Results[0].Attempts).To(Equal(1))
	})

	It("should check periodically until cancelled", func() {
		ctx, cancel := context.WithTimeout(context.Background(),
			20*time.Millisecond)
		defer cancel()

		err := o.Run(ctx)

		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})
})
