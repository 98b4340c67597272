package steward

import "cmp"

// =============================================================================
// CORE ABSTRACTIONS (implemented by client simulation code)
// =============================================================================

// QueryOffset selects which side of a time a query observes.
type QueryOffset int

const (
	// QueryBefore observes the state immediately before the time.
	QueryBefore QueryOffset = iota
	// QueryAfter observes the state immediately after the time.
	QueryAfter
)

// Timeline is a unit of world state. Implementations answer queries at any
// time, clone themselves for snapshots, and may shed state the steward has
// declared unreachable.
//
// Query must be a pure function of the timeline contents: no side effects,
// and piecewise-constant in time, changing only at times where events have
// modified the timeline. CloneForSnapshot must reproduce all query results
// at and around the given time. ForgetBefore may drop information strictly
// before the given time; queries at or after it must be unaffected.
type Timeline[T cmp.Ordered] interface {
	Query(query any, t ExtendedTime[T], offset QueryOffset) any
	CloneForSnapshot(t ExtendedTime[T]) Timeline[T]
	ForgetBefore(t ExtendedTime[T])
}

// Event is an atomic, time-stamped mutation of world state.
//
// Execute runs the event for the first time and returns opaque execution
// data the kernel stores and hands back on undo. Undo must fully reverse
// the effects of the most recent execution: undo all modifications,
// recreate any predictions the event destroyed, and destroy any
// predictions it created.
type Event[T cmp.Ordered] interface {
	Execute(acc *EventAccessor[T]) any
	Undo(acc *UndoAccessor[T], executionData any)
}

// ReExecutableEvent is an optional optimization. ReExecute must be
// observationally equivalent to Undo followed by Execute with respect to
// all subsequent queries; events without it get exactly that fallback.
type ReExecutableEvent[T cmp.Ordered] interface {
	Event[T]
	ReExecute(acc *UndoAccessor[T], executionData any) any
}

// Globals is the immutable, shared simulation configuration. WalkCells
// visits every timeline cell reachable from the globals; serialization
// walks it to enumerate the world.
type Globals[T cmp.Ordered] interface {
	WalkCells(visit func(cell *TimelineCell[T]))
}

// Accessor is the read capability common to event execution, snapshots and
// invalidation callbacks.
type Accessor[T cmp.Ordered] interface {
	Globals() Globals[T]
	ExtendedNow() ExtendedTime[T]
	Query(cell *TimelineCell[T], query any, offset QueryOffset) any
}
