package steward

import (
	"cmp"
	"sync/atomic"
)

// nextSerialNumber hands out process-unique cell serials. Serials are
// deterministic across runs as long as the client creates cells in a
// deterministic order, which the determinism contract already demands.
var nextSerialNumber atomic.Uint64

func newSerialNumber() uint64 {
	return nextSerialNumber.Add(1) - 1
}

// bumpSerialFloor makes sure future serials never collide with serials
// restored from a deserialized snapshot.
func bumpSerialFloor(restored uint64) {
	for {
		current := nextSerialNumber.Load()
		if current > restored {
			return
		}
		if nextSerialNumber.CompareAndSwap(current, restored+1) {
			return
		}
	}
}

// PersistentlyTyped is implemented by timelines and globals that carry a
// stable type id for snapshot serialization.
type PersistentlyTyped interface {
	PersistentTypeID() PersistentTypeID
}

// TimelineCell is the kernel-owned container wrapping one timeline. All
// mutation flows through EventAccessor.Modify, which gives open snapshots
// a copy of the pre-modification value before the mutation lands.
type TimelineCell[T cmp.Ordered] struct {
	serial                  uint64
	typeID                  PersistentTypeID
	firstSnapshotNotUpdated uint64
	data                    Timeline[T]
}

// NewCell wraps a timeline in a fresh cell. If the timeline implements
// PersistentlyTyped the cell becomes serializable under that id.
func NewCell[T cmp.Ordered](data Timeline[T]) *TimelineCell[T] {
	var typeID PersistentTypeID
	if typed, ok := data.(PersistentlyTyped); ok {
		typeID = typed.PersistentTypeID()
	}
	return &TimelineCell[T]{
		serial: newSerialNumber(),
		typeID: typeID,
		data:   data,
	}
}

func restoredCell[T cmp.Ordered](serial uint64, typeID PersistentTypeID, data Timeline[T]) *TimelineCell[T] {
	bumpSerialFloor(serial)
	return &TimelineCell[T]{serial: serial, typeID: typeID, data: data}
}

// Serial returns the cell's process-unique serial number.
func (c *TimelineCell[T]) Serial() uint64 {
	return c.serial
}
