package steward

import "cmp"

// executionState remembers the outcome of the most recent execution of an
// event: whether it is still valid, and the opaque data the event returned
// for its own undo.
type executionState struct {
	valid         bool
	executionData any
}

// eventRecord is the kernel's bookkeeping for one event. The extended time
// and payload are immutable after construction; the rest evolves as the
// simulation progresses.
type eventRecord[T cmp.Ordered] struct {
	time             ExtendedTime[T]
	payload          Event[T]
	shouldBeExecuted bool
	createdBy        *eventRecord[T] // non-nil iff this is a prediction
	destroyedBy      *eventRecord[T]
	execution        *executionState
}

// EventHandle is a shared, cheap-to-copy reference to an event record.
// Equality is record identity; ordering is by extended time. Fiat events
// and predictions share the representation and differ only in whether a
// creator is present.
type EventHandle[T cmp.Ordered] struct {
	rec *eventRecord[T]
}

// ExtendedTime returns the event's position in the total order.
func (h EventHandle[T]) ExtendedTime() ExtendedTime[T] {
	return h.rec.time
}

// Payload returns the immutable event payload.
func (h EventHandle[T]) Payload() Event[T] {
	return h.rec.payload
}

// IsPrediction reports whether the event was created by another event
// rather than inserted by the client.
func (h EventHandle[T]) IsPrediction() bool {
	return h.rec.createdBy != nil
}

// Creator returns the handle of the event that predicted this one.
func (h EventHandle[T]) Creator() (EventHandle[T], bool) {
	if h.rec.createdBy == nil {
		return EventHandle[T]{}, false
	}
	return EventHandle[T]{rec: h.rec.createdBy}, true
}

// Destroyer returns the handle of the event that destroyed this
// prediction, if any has.
func (h EventHandle[T]) Destroyer() (EventHandle[T], bool) {
	if h.rec.destroyedBy == nil {
		return EventHandle[T]{}, false
	}
	return EventHandle[T]{rec: h.rec.destroyedBy}, true
}

// IsZero reports whether the handle references no event.
func (h EventHandle[T]) IsZero() bool {
	return h.rec == nil
}

// Compare orders handles by extended time.
func (h EventHandle[T]) Compare(other EventHandle[T]) int {
	return h.rec.time.Compare(other.rec.time)
}

func (h EventHandle[T]) String() string {
	return h.rec.time.String()
}

func lessByExtendedTime[T cmp.Ordered](a, b EventHandle[T]) bool {
	return a.Compare(b) < 0
}
