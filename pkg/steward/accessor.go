package steward

import (
	"cmp"
	"fmt"
	"sort"
)

// EventAccessor is the restricted interface handed to event code while it
// executes. All reads go through Query, all writes through Modify, and all
// scheduling through CreatePrediction/DestroyPrediction; the kernel needs
// that discipline to keep snapshots consistent and invalidation sound.
type EventAccessor[T cmp.Ordered] struct {
	steward *Steward[T]
	handle  EventHandle[T]
	rand    *Random
}

func newEventAccessor[T cmp.Ordered](s *Steward[T], handle EventHandle[T]) *EventAccessor[T] {
	return &EventAccessor[T]{
		steward: s,
		handle:  handle,
		rand:    newEventRandom(handle.rec.time.ID),
	}
}

// Globals returns the immutable shared configuration.
func (a *EventAccessor[T]) Globals() Globals[T] {
	return a.steward.globals
}

// Handle returns the executing event's own handle.
func (a *EventAccessor[T]) Handle() EventHandle[T] {
	return a.handle
}

// ExtendedNow returns the executing event's own extended time.
func (a *EventAccessor[T]) ExtendedNow() ExtendedTime[T] {
	return a.handle.rec.time
}

// Rand returns the event's deterministic integer-only random stream.
func (a *EventAccessor[T]) Rand() *Random {
	return a.rand
}

// Query reads the cell's timeline at the event's own time. Reads are total
// and side-effect free.
func (a *EventAccessor[T]) Query(cell *TimelineCell[T], query any, offset QueryOffset) any {
	return cell.data.Query(query, a.ExtendedNow(), offset)
}

// Modify mutates the cell's timeline at the event's own time. Before the
// mutation lands, every open snapshot that has not yet copied this cell
// receives a clone of the current value; afterwards the timeline may shed
// state older than the steward's forget bound.
func (a *EventAccessor[T]) Modify(cell *TimelineCell[T], modification func(Timeline[T])) {
	s := a.steward
	pivot := snapshotEntry[T]{index: cell.firstSnapshotNotUpdated}
	s.snapshots.AscendGreaterOrEqual(pivot, func(entry snapshotEntry[T]) bool {
		entry.snap.ensureClone(cell, a.ExtendedNow())
		return true
	})
	cell.firstSnapshotNotUpdated = s.nextSnapshotIndex

	modification(cell.data)

	if bound, ok := s.invalidBefore.Time(); ok {
		switch s.invalidBefore.Kind() {
		case KindBefore:
			cell.data.ForgetBefore(BeginningOf(bound))
		case KindAfter:
			cell.data.ForgetBefore(EndOf(bound))
		}
	}
}

// CreatePrediction schedules an event whose occurrence has become
// inevitable given current state. The base time must not precede the
// executing event's own base time; two predictions created by one event
// must use distinct ids. A same-base chain that exceeds the configured
// MaxIteration fails with TooManyIterationsError.
func (a *EventAccessor[T]) CreatePrediction(base T, id RandomID, event Event[T]) (EventHandle[T], error) {
	time, err := extendedTimeOfPredictedEvent(base, id, a.ExtendedNow(), a.steward.config.MaxIteration)
	if err != nil {
		return EventHandle[T]{}, err
	}
	handle := EventHandle[T]{rec: &eventRecord[T]{
		time:             time,
		payload:          event,
		shouldBeExecuted: true,
		createdBy:        a.handle.rec,
	}}
	if _, exists := a.steward.eventsNeedingAttention.Get(handle); exists {
		panic(fmt.Sprintf("steward: created a prediction that already exists at %v; predictions made by one event must use distinct ids", time))
	}
	a.steward.eventsNeedingAttention.ReplaceOrInsert(handle)
	return handle, nil
}

// DestroyPrediction marks a prediction as no longer inevitable. It fails
// with InvalidInputError when the handle is a fiat event, or when the
// prediction was already destroyed by this event or an earlier one. A
// destroy racing a later destroyer simply takes over as the (earlier)
// destroyer.
func (a *EventAccessor[T]) DestroyPrediction(prediction EventHandle[T]) error {
	rec := prediction.rec
	if rec.createdBy == nil {
		return &InvalidInputError{
			StewardError: StewardError{Op: "destroy prediction"},
			Detail:       fmt.Sprintf("%v is a fiat event, not a prediction", rec.time),
		}
	}
	if rec.destroyedBy != nil && a.handle.rec.time.Compare(rec.destroyedBy.time) >= 0 {
		return &InvalidInputError{
			StewardError: StewardError{Op: "destroy prediction"},
			Detail: fmt.Sprintf("prediction %v was already destroyed at %v; a prediction is destroyed exactly when it becomes unreachable in the simulation data, so a second destroy from %v means a stale handle was retained",
				rec.time, rec.destroyedBy.time, a.handle.rec.time),
		}
	}
	rec.destroyedBy = a.handle.rec
	if rec != a.handle.rec {
		a.steward.eventShouldntBeExecuted(prediction)
	}
	return nil
}

// Invalidate runs the callback with a read-only accessor that can mark
// future events' executions stale. The capability does not escape the
// callback.
func (a *EventAccessor[T]) Invalidate(invalidator func(*InvalidationAccessor[T])) {
	ia := &InvalidationAccessor[T]{steward: a.steward, handle: a.handle}
	invalidator(ia)
	ia.done = true
}

// UndoAccessor is the superset accessor granted during undo and
// re-execution. On top of the EventAccessor surface it can peek directly
// at current timeline values and resurrect destroyed predictions.
type UndoAccessor[T cmp.Ordered] struct {
	EventAccessor[T]
}

func newUndoAccessor[T cmp.Ordered](s *Steward[T], handle EventHandle[T]) *UndoAccessor[T] {
	return &UndoAccessor[T]{EventAccessor: *newEventAccessor(s, handle)}
}

// Peek lends the cell's current timeline value to the callback, read-only,
// without the query discipline. Undo code uses it to inspect dependency
// bookkeeping it left behind.
func (a *UndoAccessor[T]) Peek(cell *TimelineCell[T], inspect func(Timeline[T])) {
	inspect(cell.data)
}

// UndestroyPrediction reverses a destroy this event performed: the
// prediction's destroyer becomes until (or none), and the prediction is
// queued for execution again if it needs to be.
func (a *UndoAccessor[T]) UndestroyPrediction(prediction EventHandle[T], until *EventHandle[T]) {
	rec := prediction.rec
	if until == nil {
		rec.destroyedBy = nil
	} else {
		rec.destroyedBy = until.rec
	}
	if rec != a.handle.rec {
		if !rec.shouldBeExecuted && (rec.execution == nil || !rec.execution.valid) {
			a.steward.eventsNeedingAttention.ReplaceOrInsert(prediction)
		}
		rec.shouldBeExecuted = true
	}
}

// InvalidationAccessor is the read-only view handed to Invalidate
// callbacks. It may inspect any cell and mark strictly-future events'
// executions as stale; invalidating past or present events is a
// violation.
type InvalidationAccessor[T cmp.Ordered] struct {
	steward *Steward[T]
	handle  EventHandle[T]
	done    bool
}

// Globals returns the immutable shared configuration.
func (a *InvalidationAccessor[T]) Globals() Globals[T] {
	return a.steward.globals
}

// ExtendedNow returns the invalidating event's own extended time.
func (a *InvalidationAccessor[T]) ExtendedNow() ExtendedTime[T] {
	return a.handle.rec.time
}

// Query reads a cell at the invalidating event's own time.
func (a *InvalidationAccessor[T]) Query(cell *TimelineCell[T], query any, offset QueryOffset) any {
	a.check()
	return cell.data.Query(query, a.ExtendedNow(), offset)
}

// Peek lends the cell's current timeline value to the callback.
func (a *InvalidationAccessor[T]) Peek(cell *TimelineCell[T], inspect func(Timeline[T])) {
	a.check()
	inspect(cell.data)
}

// InvalidateEvent marks the event's prior execution stale and re-enqueues
// it. Only future events can be invalidated.
func (a *InvalidationAccessor[T]) InvalidateEvent(handle EventHandle[T]) {
	a.check()
	if handle.Compare(a.handle) <= 0 {
		panic(fmt.Sprintf("steward: event %v attempted to invalidate %v; only future events can be invalidated", a.handle, handle))
	}
	a.steward.invalidateEventExecution(handle)
}

// AscendFutureEvents visits the future events the kernel still tracks —
// fiat events and events needing attention later than the current one —
// in extended-time order, until visit returns false. Invalidation sweeps
// use it to find executions their modifications may have undermined.
func (a *InvalidationAccessor[T]) AscendFutureEvents(visit func(EventHandle[T]) bool) {
	a.check()
	var future []EventHandle[T]
	collect := func(h EventHandle[T]) bool {
		if h.Compare(a.handle) > 0 {
			future = append(future, h)
		}
		return true
	}
	a.steward.eventsNeedingAttention.AscendGreaterOrEqual(a.handle, collect)
	a.steward.fiatEvents.AscendGreaterOrEqual(a.handle, collect)

	sort.Slice(future, func(i, j int) bool { return future[i].Compare(future[j]) < 0 })
	var last *eventRecord[T]
	for _, h := range future {
		if h.rec == last {
			continue
		}
		last = h.rec
		if !visit(h) {
			return
		}
	}
}

func (a *InvalidationAccessor[T]) check() {
	if a.done {
		panic("steward: invalidation accessor used outside its callback")
	}
}
