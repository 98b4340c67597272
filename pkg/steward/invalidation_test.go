package steward_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go-timesteward/pkg/steward"
)

var _ = Describe("Invalidation and prediction destruction", func() {
	var (
		world *ballWorld
		s     *steward.Steward[int64]
	)

	BeforeEach(func() {
		world = newBallWorld()
		s = steward.New[int64](world, steward.Config{})
		Expect(s.InsertFiatEvent(10, steward.NewStringID("launch"), &setMotion{world: world, x: 0, v: 1, reversalAt: 20})).To(Succeed())
	})

	Describe("late invalidation", func() {
		It("re-executes a prediction whose inputs changed", func() {
			// Run past the t=20 reversal first, then change history at t=15.
			s.SnapshotBefore(25)
			Expect(s.InsertFiatEvent(15, steward.NewStringID("mid-course"), &reverseVelocity{world: world})).To(Succeed())

			snap := s.SnapshotBefore(25)
			pos, ok := snapshotPosition(snap, world)
			Expect(ok).To(BeTrue())
			// 0→5 by t=15, reversed back to 0 by t=20, reversed again: 5 at t=25.
			Expect(pos).To(Equal(int64(5)))

			// The re-executed reversal saw the mid-course trajectory: the
			// ball was at 0 at t=20, not at 10.
			justAfter := s.SnapshotBefore(21)
			pos, _ = snapshotPosition(justAfter, world)
			Expect(pos).To(Equal(int64(1)))
		})

		It("reaches the same state as inserting the fiat event up front", func() {
			s.SnapshotBefore(25)
			Expect(s.InsertFiatEvent(15, steward.NewStringID("mid-course"), &reverseVelocity{world: world})).To(Succeed())
			invalidated := s.SnapshotBefore(25)

			freshWorld := newBallWorld()
			fresh := steward.New[int64](freshWorld, steward.Config{})
			Expect(fresh.InsertFiatEvent(10, steward.NewStringID("launch"), &setMotion{world: freshWorld, x: 0, v: 1, reversalAt: 20})).To(Succeed())
			Expect(fresh.InsertFiatEvent(15, steward.NewStringID("mid-course"), &reverseVelocity{world: freshWorld})).To(Succeed())
			upFront := fresh.SnapshotBefore(25)

			posA, _ := snapshotPosition(invalidated, world)
			posB, _ := snapshotPosition(upFront, freshWorld)
			Expect(posA).To(Equal(posB))
		})
	})

	Describe("destroying a pending prediction", func() {
		It("undoes an executed prediction after a destroy from an earlier time", func() {
			s.SnapshotBefore(25)
			Expect(s.InsertFiatEvent(12, steward.NewStringID("cancel"), &cancelReversal{world: world})).To(Succeed())

			snap := s.SnapshotBefore(25)
			pos, ok := snapshotPosition(snap, world)
			Expect(ok).To(BeTrue())
			// With the reversal withdrawn the ball never turns around.
			Expect(pos).To(Equal(int64(15)))
		})

		It("drops a never-executed prediction outright", func() {
			Expect(s.InsertFiatEvent(12, steward.NewStringID("cancel"), &cancelReversal{world: world})).To(Succeed())

			snap := s.SnapshotBefore(25)
			pos, ok := snapshotPosition(snap, world)
			Expect(ok).To(BeTrue())
			Expect(pos).To(Equal(int64(15)))
		})
	})

	Describe("accessor contracts", func() {
		It("refuses to destroy a fiat event", func() {
			var destroyErr error
			probe := &probeEvent{body: func(acc *steward.EventAccessor[int64]) {
				destroyErr = acc.DestroyPrediction(acc.Handle())
			}}
			Expect(s.InsertFiatEvent(11, steward.NewStringID("probe"), probe)).To(Succeed())
			s.SnapshotBefore(12)

			Expect(steward.IsInvalidInputError(destroyErr)).To(BeTrue())
		})

		It("refuses a destroy when an earlier event already destroyed the prediction", func() {
			Expect(s.InsertFiatEvent(12, steward.NewStringID("cancel"), &cancelReversal{world: world})).To(Succeed())

			var secondDestroy error
			var target steward.EventHandle[int64]
			probe := &probeEvent{body: func(acc *steward.EventAccessor[int64]) {
				// The slot still shows the prediction at t=11, before the
				// cancel at t=12 destroys it. A second destroy from t=14,
				// after the t=12 destroy ran, must fail.
				target, _ = scheduledReversal(acc, world)
			}}
			Expect(s.InsertFiatEvent(11, steward.NewStringID("probe"), probe)).To(Succeed())
			s.SnapshotBefore(13)

			late := &probeEvent{body: func(acc *steward.EventAccessor[int64]) {
				secondDestroy = acc.DestroyPrediction(target)
			}}
			Expect(s.InsertFiatEvent(14, steward.NewStringID("late-destroy"), late)).To(Succeed())
			s.SnapshotBefore(15)

			Expect(steward.IsInvalidInputError(secondDestroy)).To(BeTrue())
		})

		It("panics when invalidating a past event", func() {
			midFlight := s.SnapshotBefore(15)
			past, ok := scheduledReversal(midFlight, world)
			Expect(ok).To(BeTrue())
			s.SnapshotBefore(25)

			probe := &probeEvent{body: func(acc *steward.EventAccessor[int64]) {
				acc.Invalidate(func(ia *steward.InvalidationAccessor[int64]) {
					ia.InvalidateEvent(past)
				})
			}}
			Expect(s.InsertFiatEvent(30, steward.NewStringID("bad"), probe)).To(Succeed())
			Expect(func() { s.SnapshotBefore(31) }).To(Panic())
		})
	})

	Describe("future event enumeration", func() {
		It("lists tracked future events in extended-time order", func() {
			Expect(s.InsertFiatEvent(30, steward.NewStringID("later"), &probeEvent{})).To(Succeed())

			var seen []int64
			probe := &probeEvent{body: func(acc *steward.EventAccessor[int64]) {
				acc.Invalidate(func(ia *steward.InvalidationAccessor[int64]) {
					ia.AscendFutureEvents(func(h steward.EventHandle[int64]) bool {
						seen = append(seen, h.ExtendedTime().Base)
						return true
					})
				})
			}}
			Expect(s.InsertFiatEvent(15, steward.NewStringID("sweep"), probe)).To(Succeed())
			s.SnapshotBefore(16)

			// The pending t=20 prediction and the t=30 fiat event are both
			// visible; the sweep's own past is not.
			Expect(seen).To(Equal([]int64{20, 30}))
		})
	})

	Describe("event ordering", func() {
		It("processes events strictly in extended-time order", func() {
			var order []int64
			for _, t := range []int64{40, 30, 35} {
				tt := t
				Expect(s.InsertFiatEvent(tt, steward.NewStringID("probe"), &probeEvent{body: func(acc *steward.EventAccessor[int64]) {
					order = append(order, acc.ExtendedNow().Base)
				}})).To(Succeed())
			}
			s.SnapshotBefore(50)
			Expect(order).To(Equal([]int64{30, 35, 40}))
		})
	})
})

// probeEvent runs an arbitrary body with no effects to undo, for poking at
// accessor contracts from inside an event.
type probeEvent struct {
	body func(acc *steward.EventAccessor[int64])
}

func (e *probeEvent) Execute(acc *steward.EventAccessor[int64]) any {
	if e.body != nil {
		e.body(acc)
	}
	return nil
}

func (e *probeEvent) Undo(*steward.UndoAccessor[int64], any) {}
