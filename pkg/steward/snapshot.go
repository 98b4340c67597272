package steward

import "cmp"

// Snapshot is a read-only, stable view of world state at a specific time.
// Queries keep answering the same way no matter how far the owning steward
// has advanced since, because modified cells copy their pre-modification
// value into every open snapshot first (the copy-on-write path in
// EventAccessor.Modify).
//
// A snapshot pins timeline history; call Release when done with it.
type Snapshot[T cmp.Ordered] struct {
	steward  *Steward[T]
	index    uint64
	time     ExtendedTime[T]
	globals  Globals[T]
	clones   map[uint64]Timeline[T]
	released bool
}

// snapshotEntry keys the steward's snapshot registry by snapshot index.
type snapshotEntry[T cmp.Ordered] struct {
	index uint64
	snap  *Snapshot[T]
}

func lessByIndex[T cmp.Ordered](a, b snapshotEntry[T]) bool {
	return a.index < b.index
}

// Globals returns the immutable shared configuration.
func (s *Snapshot[T]) Globals() Globals[T] {
	return s.globals
}

// ExtendedNow returns the snapshot's reference time, the beginning of the
// base time it was taken before.
func (s *Snapshot[T]) ExtendedNow() ExtendedTime[T] {
	return s.time
}

// Query reads a cell as of the snapshot time. The first query to a cell
// that has not yet been copied clones it on the spot.
func (s *Snapshot[T]) Query(cell *TimelineCell[T], query any, offset QueryOffset) any {
	if s.released {
		panic("steward: query on a released snapshot")
	}
	clone := s.ensureClone(cell, s.time)
	return clone.Query(query, s.time, offset)
}

// Release removes the snapshot from the registry so timelines stop
// preserving state on its behalf. Further queries panic.
func (s *Snapshot[T]) Release() {
	if s.released {
		return
	}
	s.released = true
	s.steward.snapshots.Delete(snapshotEntry[T]{index: s.index})
	s.clones = nil
}

func (s *Snapshot[T]) ensureClone(cell *TimelineCell[T], at ExtendedTime[T]) Timeline[T] {
	clone, ok := s.clones[cell.serial]
	if !ok {
		clone = cell.data.CloneForSnapshot(at)
		s.clones[cell.serial] = clone
	}
	return clone
}
