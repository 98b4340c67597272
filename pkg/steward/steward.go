// Package steward implements a deterministic discrete-event simulation
// kernel. A client describes a world as fiat events (inserted from
// outside) and predictions (events scheduled by other events as they
// become inevitable); the kernel executes them in a total deterministic
// order, invalidates and re-runs events whose inputs were undermined, and
// answers queries about any past-or-present state through copy-on-write
// snapshots. Given the same inputs, results are bit-identical across runs
// and platforms.
package steward

import (
	"cmp"
	"fmt"

	"github.com/google/btree"
)

const btreeDegree = 16

// Steward owns one simulation: the immutable globals, the queue of events
// needing attention, the fiat-event set, the open snapshots, and the
// earliest time at which operations are still valid.
type Steward[T cmp.Ordered] struct {
	config                 Config
	globals                Globals[T]
	invalidBefore          ValidSince[T]
	eventsNeedingAttention *btree.BTreeG[EventHandle[T]]
	fiatEvents             *btree.BTreeG[EventHandle[T]]
	snapshots              *btree.BTreeG[snapshotEntry[T]]
	nextSnapshotIndex      uint64
}

// New creates an empty steward over the given globals. A zero Config gets
// the defaults.
func New[T cmp.Ordered](globals Globals[T], config Config) *Steward[T] {
	return &Steward[T]{
		config:                 config.withDefaults(),
		globals:                globals,
		invalidBefore:          SinceTheBeginning[T](),
		eventsNeedingAttention: btree.NewG(btreeDegree, lessByExtendedTime[T]),
		fiatEvents:             btree.NewG(btreeDegree, lessByExtendedTime[T]),
		snapshots:              btree.NewG(btreeDegree, lessByIndex[T]),
	}
}

// Globals returns the immutable shared configuration.
func (s *Steward[T]) Globals() Globals[T] {
	return s.globals
}

// ValidSince reports the earliest time at which fiat-event operations are
// still accepted.
func (s *Steward[T]) ValidSince() ValidSince[T] {
	return s.invalidBefore
}

// InsertFiatEvent schedules a client event at the given time. It fails
// with InvalidTimeError when t precedes ValidSince, and with
// InvalidInputError when an event with the same extended time already
// exists.
func (s *Steward[T]) InsertFiatEvent(t T, id RandomID, event Event[T]) error {
	if s.invalidBefore.CompareTime(t) > 0 {
		return &InvalidTimeError{
			StewardError: StewardError{Op: "insert fiat event"},
			Time:         t,
			ValidSince:   s.invalidBefore.String(),
		}
	}
	handle := EventHandle[T]{rec: &eventRecord[T]{
		time:             extendedTimeOfFiatEvent(t, id),
		payload:          event,
		shouldBeExecuted: true,
	}}
	if _, exists := s.fiatEvents.Get(handle); exists {
		return &InvalidInputError{
			StewardError: StewardError{Op: "insert fiat event"},
			Detail:       fmt.Sprintf("an event already exists at %v", handle.rec.time),
		}
	}
	s.fiatEvents.ReplaceOrInsert(handle)
	s.eventsNeedingAttention.ReplaceOrInsert(handle)
	return nil
}

// RemoveFiatEvent withdraws a previously inserted fiat event. If the event
// already executed, the kernel undoes it when it reaches the front of the
// queue.
func (s *Steward[T]) RemoveFiatEvent(t T, id RandomID) error {
	if s.invalidBefore.CompareTime(t) > 0 {
		return &InvalidTimeError{
			StewardError: StewardError{Op: "remove fiat event"},
			Time:         t,
			ValidSince:   s.invalidBefore.String(),
		}
	}
	probe := EventHandle[T]{rec: &eventRecord[T]{time: extendedTimeOfFiatEvent(t, id)}}
	handle, found := s.fiatEvents.Delete(probe)
	if !found {
		return &InvalidInputError{
			StewardError: StewardError{Op: "remove fiat event"},
			Detail:       fmt.Sprintf("no fiat event exists at %v", probe.rec.time),
		}
	}
	s.eventShouldntBeExecuted(handle)
	return nil
}

// SnapshotBefore advances the simulation up to (but not through) t and
// returns a stable view of the world from just before it. The view's
// extended now is the beginning of t, so an event at base time t has not
// yet occurred from the snapshot's perspective. Returns nil iff t precedes
// ValidSince.
func (s *Steward[T]) SnapshotBefore(t T) *Snapshot[T] {
	// The same bound as the fiat-event operations: no snapshot is taken of
	// a time before ValidSince().
	if s.invalidBefore.CompareTime(t) > 0 {
		return nil
	}
	for {
		updated, ok := s.UpdatedUntilBefore()
		if !ok || updated >= t {
			break
		}
		s.Step()
	}
	snap := &Snapshot[T]{
		steward: s,
		index:   s.nextSnapshotIndex,
		time:    BeginningOf(t),
		globals: s.globals,
		clones:  make(map[uint64]Timeline[T]),
	}
	s.snapshots.ReplaceOrInsert(snapshotEntry[T]{index: snap.index, snap: snap})
	s.nextSnapshotIndex++
	return snap
}

// ForgetBefore tells the steward it will never be asked about times
// before t again. The bound only moves forward; timelines progressively
// shed pre-t state at their next modification.
func (s *Steward[T]) ForgetBefore(t T) {
	s.invalidBefore = maxValidSince(s.invalidBefore, SinceBefore(t))
}

// Step performs one unit of progress: it executes, re-executes or undoes
// the earliest event needing attention. It is a no-op when the queue is
// empty.
func (s *Steward[T]) Step() {
	if handle, ok := s.nextEventNeedingAttention(); ok {
		s.doEvent(handle)
	}
}

// UpdatedUntilBefore returns the base time of the earliest pending event,
// if any: the simulation is fully updated for all times before it.
func (s *Steward[T]) UpdatedUntilBefore() (T, bool) {
	handle, ok := s.nextEventNeedingAttention()
	if !ok {
		var zero T
		return zero, false
	}
	return handle.rec.time.Base, true
}

func (s *Steward[T]) nextEventNeedingAttention() (EventHandle[T], bool) {
	return s.eventsNeedingAttention.Min()
}

func (s *Steward[T]) doEvent(handle EventHandle[T]) {
	s.eventsNeedingAttention.Delete(handle)
	rec := handle.rec
	if rec.shouldBeExecuted {
		if rec.execution != nil {
			if rec.execution.valid {
				panic("steward: event queued for re-execution has a valid execution state")
			}
			s.reExecuteEvent(handle)
		} else {
			s.executeEvent(handle)
		}
		if rec.createdBy != nil && rec.destroyedBy != rec {
			panic(fmt.Sprintf("steward: predicted event %v did not destroy its own prediction; every predicted event must destroy itself when it executes", rec.time))
		}
	} else {
		if rec.execution == nil {
			panic("steward: event queued for undo has no execution state")
		}
		s.undoEvent(handle)
	}
}

func (s *Steward[T]) executeEvent(handle EventHandle[T]) {
	acc := newEventAccessor(s, handle)
	data := handle.rec.payload.Execute(acc)
	handle.rec.execution = &executionState{valid: true, executionData: data}
}

func (s *Steward[T]) undoEvent(handle EventHandle[T]) {
	acc := newUndoAccessor(s, handle)
	state := handle.rec.execution
	handle.rec.execution = nil
	handle.rec.payload.Undo(acc, state.executionData)
}

func (s *Steward[T]) reExecuteEvent(handle EventHandle[T]) {
	acc := newUndoAccessor(s, handle)
	state := handle.rec.execution
	handle.rec.execution = nil
	var data any
	if re, ok := handle.rec.payload.(ReExecutableEvent[T]); ok {
		data = re.ReExecute(acc, state.executionData)
	} else {
		handle.rec.payload.Undo(acc, state.executionData)
		data = handle.rec.payload.Execute(&acc.EventAccessor)
	}
	handle.rec.execution = &executionState{valid: true, executionData: data}
}

// invalidateEventExecution marks a future event's prior execution stale so
// the kernel re-runs it in extended-time order.
func (s *Steward[T]) invalidateEventExecution(handle EventHandle[T]) {
	if state := handle.rec.execution; state != nil {
		if state.valid {
			s.eventsNeedingAttention.ReplaceOrInsert(handle)
		}
		state.valid = false
	}
}

// eventShouldntBeExecuted transitions an event out of the to-be-executed
// state: a never-executed event leaves the queue entirely, while one with
// a standing valid execution is queued so the kernel can undo it.
func (s *Steward[T]) eventShouldntBeExecuted(handle EventHandle[T]) {
	rec := handle.rec
	if rec.shouldBeExecuted {
		if rec.execution != nil && rec.execution.valid {
			s.eventsNeedingAttention.ReplaceOrInsert(handle)
		}
		if rec.execution == nil {
			s.eventsNeedingAttention.Delete(handle)
		}
	}
	rec.shouldBeExecuted = false
}
