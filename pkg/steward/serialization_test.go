package steward_test

import (
	"bytes"
	"encoding/binary"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go-timesteward/pkg/steward"
	"go-timesteward/pkg/timelines"
)

// A serializable world: one cell holding the ball trajectory, no
// prediction bookkeeping (event handles have no wire form).

var (
	motionWorldTypeID = steward.TypeIDFromString("0d1f3c58-9a42-4e1b-8c7d-5b2a6f90e314")
	motionCellTypeID  = steward.TypeIDFromString("7e85b1a0-62c3-47df-9f1e-c48d0a3b5266")
)

type motionWorld struct {
	motion *steward.TimelineCell[int64]
}

func newMotionWorld() *motionWorld {
	return &motionWorld{
		motion: steward.NewCell[int64](timelines.NewPersistentSimpleTimeline[int64, ballState](motionCellTypeID)),
	}
}

func (w *motionWorld) WalkCells(visit func(*steward.TimelineCell[int64])) {
	visit(w.motion)
}

func (w *motionWorld) PersistentTypeID() steward.PersistentTypeID {
	return motionWorldTypeID
}

type motionWorldCodec struct{}

func (motionWorldCodec) EncodeGlobals(w io.Writer, g steward.Globals[int64]) error {
	world := g.(*motionWorld)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], world.motion.Serial())
	_, err := w.Write(buf[:])
	return err
}

func (motionWorldCodec) DecodeGlobals(r io.Reader, cells *steward.DecodedCells[int64]) (steward.Globals[int64], error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	cell, ok := cells.BySerial(binary.LittleEndian.Uint64(buf[:]))
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return &motionWorld{motion: cell}, nil
}

func encodeBallState(w io.Writer, s ballState) error {
	for _, v := range []int64{s.X0, s.V, s.T0} {
		if err := timelines.Int64Value(w, v); err != nil {
			return err
		}
	}
	return nil
}

func decodeBallState(r io.Reader) (ballState, error) {
	var s ballState
	for _, dst := range []*int64{&s.X0, &s.V, &s.T0} {
		v, err := timelines.DecodeInt64Value(r)
		if err != nil {
			return s, err
		}
		*dst = v
	}
	return s, nil
}

func newMotionRegistry() *steward.TypeRegistry[int64] {
	reg := steward.NewTypeRegistry[int64](steward.Int64TimeCodec{})
	reg.RegisterTimeline(motionCellTypeID, timelines.NewSimpleTimelineCodec[int64, ballState](
		motionCellTypeID, steward.Int64TimeCodec{}, encodeBallState, decodeBallState))
	reg.RegisterGlobals(motionWorldTypeID, motionWorldCodec{})
	return reg
}

// setTrajectory is a fiat event for the serializable world.
type setTrajectory struct {
	world *motionWorld
	x, v  int64
}

func (e *setTrajectory) Execute(acc *steward.EventAccessor[int64]) any {
	return timelines.Set(acc, e.world.motion, ballState{X0: e.x, V: e.v, T0: acc.ExtendedNow().Base})
}

func (e *setTrajectory) Undo(acc *steward.UndoAccessor[int64], executionData any) {
	timelines.Restore(acc, e.world.motion, executionData.(timelines.Displaced[ballState]))
}

var _ = Describe("Snapshot serialization", func() {
	var (
		world *motionWorld
		s     *steward.Steward[int64]
		reg   *steward.TypeRegistry[int64]
	)

	BeforeEach(func() {
		world = newMotionWorld()
		s = steward.New[int64](world, steward.Config{})
		reg = newMotionRegistry()
		Expect(s.InsertFiatEvent(10, steward.NewStringID("launch"), &setTrajectory{world: world, x: 0, v: 1})).To(Succeed())
		Expect(s.InsertFiatEvent(20, steward.NewStringID("turn"), &setTrajectory{world: world, x: 10, v: -1})).To(Succeed())
	})

	It("round-trips byte-identically through deserialize and re-serialize", func() {
		snap := s.SnapshotBefore(25)
		var first bytes.Buffer
		Expect(snap.SerializeInto(&first, reg)).To(Succeed())

		restored, err := steward.DeserializeFrom[int64](bytes.NewReader(first.Bytes()), steward.Config{}, reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(restored.ValidSince()).To(Equal(steward.SinceBefore[int64](25)))

		again := restored.SnapshotBefore(25)
		Expect(again).NotTo(BeNil())
		var second bytes.Buffer
		Expect(again.SerializeInto(&second, reg)).To(Succeed())
		Expect(second.Bytes()).To(Equal(first.Bytes()))
	})

	It("answers the same queries after deserialization", func() {
		snap := s.SnapshotBefore(25)
		var buf bytes.Buffer
		Expect(snap.SerializeInto(&buf, reg)).To(Succeed())

		restored, err := steward.DeserializeFrom[int64](bytes.NewReader(buf.Bytes()), steward.Config{}, reg)
		Expect(err).NotTo(HaveOccurred())

		restoredWorld := restored.Globals().(*motionWorld)
		again := restored.SnapshotBefore(25)
		state, ok := timelines.Get[int64, ballState](again, restoredWorld.motion)
		Expect(ok).To(BeTrue())
		Expect(state.positionAt(25)).To(Equal(int64(5)))
	})

	It("rejects operations from before the snapshot time after deserialization", func() {
		snap := s.SnapshotBefore(25)
		var buf bytes.Buffer
		Expect(snap.SerializeInto(&buf, reg)).To(Succeed())

		restored, err := steward.DeserializeFrom[int64](bytes.NewReader(buf.Bytes()), steward.Config{}, reg)
		Expect(err).NotTo(HaveOccurred())

		insertErr := restored.InsertFiatEvent(20, steward.NewStringID("too-old"), &setTrajectory{world: restored.Globals().(*motionWorld), x: 0, v: 0})
		Expect(steward.IsInvalidTimeError(insertErr)).To(BeTrue())
	})

	It("refuses unknown type ids", func() {
		snap := s.SnapshotBefore(25)
		var buf bytes.Buffer
		Expect(snap.SerializeInto(&buf, reg)).To(Succeed())

		bare := steward.NewTypeRegistry[int64](steward.Int64TimeCodec{})
		_, err := steward.DeserializeFrom[int64](bytes.NewReader(buf.Bytes()), steward.Config{}, bare)
		Expect(steward.IsDeserializationMismatchError(err)).To(BeTrue())
	})

	It("refuses truncated streams", func() {
		snap := s.SnapshotBefore(25)
		var buf bytes.Buffer
		Expect(snap.SerializeInto(&buf, reg)).To(Succeed())

		for _, cut := range []int{0, 8, buf.Len() / 2, buf.Len() - 1} {
			_, err := steward.DeserializeFrom[int64](bytes.NewReader(buf.Bytes()[:cut]), steward.Config{}, reg)
			Expect(steward.IsDeserializationMismatchError(err)).To(BeTrue(), "cut at %d bytes", cut)
		}
	})

	It("cannot serialize a world whose cells carry no type id", func() {
		plain := newBallWorld()
		ps := steward.New[int64](plain, steward.Config{})
		Expect(ps.InsertFiatEvent(10, steward.NewStringID("launch"), &setMotion{world: plain, x: 0, v: 1})).To(Succeed())
		snap := ps.SnapshotBefore(15)

		var buf bytes.Buffer
		err := snap.SerializeInto(&buf, reg)
		Expect(steward.IsDeserializationMismatchError(err)).To(BeTrue())
	})
})
