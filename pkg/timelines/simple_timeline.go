// Package timelines provides ready-made timeline implementations for
// steward simulations. SimpleTimeline is the workhorse: a
// piecewise-constant value whose change history is kept until ForgetBefore
// compacts it, queried by extended time from either side.
package timelines

import (
	"cmp"
	"sort"

	"go-timesteward/pkg/steward"
)

// Value is the result of querying a SimpleTimeline: the value in effect at
// the queried side of the time, and whether one was set at all.
type Value[V any] struct {
	V  V
	OK bool
}

// Displaced records what a Set or Unset replaced at exactly one time, so
// an undo can put it back.
type Displaced[V any] struct {
	HadChange bool
	Value     V
	Present   bool
}

type change[T cmp.Ordered, V any] struct {
	at      steward.ExtendedTime[T]
	value   V
	present bool
}

// SimpleTimeline is a piecewise-constant value over extended time. Changes
// are recorded at the exact extended times of the events that made them,
// which is what makes undo exact: removing the change at an event's time
// restores the timeline to the state from just before that event ran.
type SimpleTimeline[T cmp.Ordered, V any] struct {
	typeID  steward.PersistentTypeID
	changes []change[T, V]
}

// NewSimpleTimeline creates an empty timeline that cannot be serialized.
func NewSimpleTimeline[T cmp.Ordered, V any]() *SimpleTimeline[T, V] {
	return &SimpleTimeline[T, V]{}
}

// NewPersistentSimpleTimeline creates an empty timeline carrying the given
// type id, for worlds that get serialized.
func NewPersistentSimpleTimeline[T cmp.Ordered, V any](typeID steward.PersistentTypeID) *SimpleTimeline[T, V] {
	return &SimpleTimeline[T, V]{typeID: typeID}
}

// PersistentTypeID implements steward.PersistentlyTyped.
func (tl *SimpleTimeline[T, V]) PersistentTypeID() steward.PersistentTypeID {
	return tl.typeID
}

// Query implements steward.Timeline. The query value is ignored; a
// SimpleTimeline answers only one question. The result is a Value[V].
func (tl *SimpleTimeline[T, V]) Query(_ any, t steward.ExtendedTime[T], offset steward.QueryOffset) any {
	idx := tl.firstAfter(t, offset == steward.QueryBefore)
	if idx == 0 {
		return Value[V]{}
	}
	c := tl.changes[idx-1]
	if !c.present {
		return Value[V]{}
	}
	return Value[V]{V: c.value, OK: true}
}

// CloneForSnapshot implements steward.Timeline: the clone reproduces all
// query results at and before the given time.
func (tl *SimpleTimeline[T, V]) CloneForSnapshot(t steward.ExtendedTime[T]) steward.Timeline[T] {
	idx := tl.firstAfter(t, false)
	kept := make([]change[T, V], idx)
	copy(kept, tl.changes[:idx])
	return &SimpleTimeline[T, V]{typeID: tl.typeID, changes: kept}
}

// ForgetBefore implements steward.Timeline: changes strictly before t are
// compacted down to the single change still governing queries at t.
func (tl *SimpleTimeline[T, V]) ForgetBefore(t steward.ExtendedTime[T]) {
	idx := tl.firstAfter(t, true)
	if idx <= 1 {
		return
	}
	// The change at idx-1 is the baseline for queries at and after t.
	tl.changes = append(tl.changes[:0], tl.changes[idx-1:]...)
}

// firstAfter returns the index of the first change later than t
// (strict=false) or at-or-later than t (strict=true).
func (tl *SimpleTimeline[T, V]) firstAfter(t steward.ExtendedTime[T], strict bool) int {
	return sort.Search(len(tl.changes), func(i int) bool {
		c := tl.changes[i].at.Compare(t)
		if strict {
			return c >= 0
		}
		return c > 0
	})
}

func (tl *SimpleTimeline[T, V]) record(at steward.ExtendedTime[T], value V, present bool) Displaced[V] {
	idx := tl.firstAfter(at, true)
	if idx < len(tl.changes) && tl.changes[idx].at.Compare(at) == 0 {
		old := tl.changes[idx]
		tl.changes[idx] = change[T, V]{at: at, value: value, present: present}
		return Displaced[V]{HadChange: true, Value: old.value, Present: old.present}
	}
	tl.changes = append(tl.changes, change[T, V]{})
	copy(tl.changes[idx+1:], tl.changes[idx:])
	tl.changes[idx] = change[T, V]{at: at, value: value, present: present}
	return Displaced[V]{}
}

func (tl *SimpleTimeline[T, V]) unrecord(at steward.ExtendedTime[T], prior Displaced[V]) {
	idx := tl.firstAfter(at, true)
	if idx >= len(tl.changes) || tl.changes[idx].at.Compare(at) != 0 {
		if prior.HadChange {
			tl.record(at, prior.Value, prior.Present)
		}
		return
	}
	if prior.HadChange {
		tl.changes[idx] = change[T, V]{at: at, value: prior.Value, present: prior.Present}
		return
	}
	tl.changes = append(tl.changes[:idx], tl.changes[idx+1:]...)
}

// =============================================================================
// Accessor helpers
// =============================================================================

// Get queries the value in effect immediately after the accessor's time.
func Get[T cmp.Ordered, V any](acc steward.Accessor[T], cell *steward.TimelineCell[T]) (V, bool) {
	return GetAt[T, V](acc, cell, steward.QueryAfter)
}

// GetAt queries the value in effect on the chosen side of the accessor's
// time.
func GetAt[T cmp.Ordered, V any](acc steward.Accessor[T], cell *steward.TimelineCell[T], offset steward.QueryOffset) (V, bool) {
	result := acc.Query(cell, nil, offset).(Value[V])
	return result.V, result.OK
}

// Set records a value change at the executing event's time and returns
// whatever change was displaced there, for the event's execution data.
func Set[T cmp.Ordered, V any](acc *steward.EventAccessor[T], cell *steward.TimelineCell[T], value V) Displaced[V] {
	var displaced Displaced[V]
	acc.Modify(cell, func(tl steward.Timeline[T]) {
		displaced = tl.(*SimpleTimeline[T, V]).record(acc.ExtendedNow(), value, true)
	})
	return displaced
}

// Unset records at the executing event's time that no value is set.
func Unset[T cmp.Ordered, V any](acc *steward.EventAccessor[T], cell *steward.TimelineCell[T]) Displaced[V] {
	var zero V
	var displaced Displaced[V]
	acc.Modify(cell, func(tl steward.Timeline[T]) {
		displaced = tl.(*SimpleTimeline[T, V]).record(acc.ExtendedNow(), zero, false)
	})
	return displaced
}

// Restore reverses a Set or Unset made by this event: the change at the
// event's time is removed and the displaced change, if any, reinstated.
// The timeline ends up equal to its state from before the event executed.
func Restore[T cmp.Ordered, V any](acc *steward.UndoAccessor[T], cell *steward.TimelineCell[T], prior Displaced[V]) {
	acc.Modify(cell, func(tl steward.Timeline[T]) {
		tl.(*SimpleTimeline[T, V]).unrecord(acc.ExtendedNow(), prior)
	})
}

// PredictionSlot is a SimpleTimeline whose value is the handle of the
// currently-scheduled prediction for some aspect of an entity. Events
// store the predictions they create here so that later events, and undo
// passes, can find and destroy (or resurrect) them.
type PredictionSlot[T cmp.Ordered] = SimpleTimeline[T, steward.EventHandle[T]]

// NewPredictionSlot creates an empty prediction slot.
func NewPredictionSlot[T cmp.Ordered]() *PredictionSlot[T] {
	return NewSimpleTimeline[T, steward.EventHandle[T]]()
}
