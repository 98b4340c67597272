package steward

import (
	"cmp"
	"fmt"
	"math"
)

// ExtendedTime is the kernel's internal ordering key: the client-chosen
// base time, a small iteration counter disambiguating events at the same
// base, and a deterministic pseudo-random id breaking the remaining ties.
// Ordering is lexicographic over (Base, Iteration, ID) and is total for
// any two extended times created during one simulation.
type ExtendedTime[T cmp.Ordered] struct {
	Base      T
	Iteration uint32
	ID        RandomID
}

// Compare returns -1, 0 or +1 ordering e against other.
func (e ExtendedTime[T]) Compare(other ExtendedTime[T]) int {
	if c := cmp.Compare(e.Base, other.Base); c != 0 {
		return c
	}
	if c := cmp.Compare(e.Iteration, other.Iteration); c != 0 {
		return c
	}
	return e.ID.Compare(other.ID)
}

func (e ExtendedTime[T]) String() string {
	return fmt.Sprintf("%v#%d/%s", e.Base, e.Iteration, e.ID)
}

// BeginningOf is the extended time sorting before every event at base t.
func BeginningOf[T cmp.Ordered](t T) ExtendedTime[T] {
	return ExtendedTime[T]{Base: t}
}

// EndOf is the extended time sorting after every event at base t.
func EndOf[T cmp.Ordered](t T) ExtendedTime[T] {
	return ExtendedTime[T]{Base: t, Iteration: math.MaxUint32, ID: maxRandomID}
}

// extendedTimeOfFiatEvent routes the client-chosen id through the
// fiat-event derivation, so fiat and predicted events cannot collide.
func extendedTimeOfFiatEvent[T cmp.Ordered](t T, id RandomID) ExtendedTime[T] {
	return ExtendedTime[T]{Base: t, Iteration: 0, ID: id.forFiatEvent()}
}

// extendedTimeOfPredictedEvent derives the extended time of a prediction
// scheduled at base from within the event executing at from. A prediction
// in the past is a contract violation; exceeding maxIteration at one base
// is a client physics bug surfaced as TooManyIterationsError.
func extendedTimeOfPredictedEvent[T cmp.Ordered](base T, id RandomID, from ExtendedTime[T], maxIteration uint32) (ExtendedTime[T], error) {
	var iteration uint32
	switch {
	case base < from.Base:
		panic(fmt.Sprintf("steward: event at %v created a prediction in the past (%v)", from, base))
	case base > from.Base:
		iteration = 0
	default:
		if id.Compare(from.ID) > 0 {
			iteration = from.Iteration
		} else {
			if from.Iteration >= maxIteration {
				return ExtendedTime[T]{}, &TooManyIterationsError{
					StewardError: StewardError{Op: "create prediction"},
					Base:         base,
					Iteration:    maxIteration,
				}
			}
			iteration = from.Iteration + 1
		}
	}
	return ExtendedTime[T]{Base: base, Iteration: iteration, ID: id}, nil
}
