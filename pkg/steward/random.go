package steward

import (
	"bytes"
	"encoding/binary"
	mathrand "math/rand/v2"

	"github.com/google/uuid"
)

// Namespaces for RandomID derivation. Fiat-event ids are rehashed under a
// separate namespace so a fiat event can never share an extended time with
// a predicted event, whatever ids the client picks.
var (
	randomIDNamespace = uuid.MustParse("52b7c518-3a1e-4cf0-a09f-44e1f6b2a0d1")
	fiatIDNamespace   = uuid.MustParse("9d6ce2a4-7f0b-4b39-9c41-2d5be0c7f8e3")
)

// RandomID is a 128-bit deterministic pseudo-random identifier. Equal input
// bytes always derive equal ids, on every platform.
type RandomID [16]byte

// NewRandomID derives an id from the given byte slices.
func NewRandomID(data ...[]byte) RandomID {
	joined := bytes.Join(data, nil)
	return RandomID(uuid.NewSHA1(randomIDNamespace, joined))
}

// NewStringID derives an id from a string, for hand-named fiat events.
func NewStringID(s string) RandomID {
	return NewRandomID([]byte(s))
}

// forFiatEvent maps a client-chosen id into the fiat-event id space.
func (id RandomID) forFiatEvent() RandomID {
	return RandomID(uuid.NewSHA1(fiatIDNamespace, id[:]))
}

// Compare orders ids lexicographically by their big-endian bytes.
func (id RandomID) Compare(other RandomID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero reports whether the id is the all-zero sentinel.
func (id RandomID) IsZero() bool {
	return id == RandomID{}
}

func (id RandomID) String() string {
	return uuid.UUID(id).String()
}

// maxRandomID sorts after every derivable id.
var maxRandomID = RandomID{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// ChildIDGenerator yields a deterministic sequence of distinct RandomIDs
// derived from a parent event's id, for events that create several
// predictions in one execution.
type ChildIDGenerator struct {
	parent RandomID
	next   RandomID
	primed bool
}

// NewChildIDGenerator creates a generator rooted at the given event id.
func NewChildIDGenerator(parent RandomID) *ChildIDGenerator {
	return &ChildIDGenerator{parent: parent}
}

// Next returns the next id in the sequence.
func (g *ChildIDGenerator) Next() RandomID {
	result := g.next
	if !g.primed {
		result = NewRandomID(g.parent[:])
		g.primed = true
	}
	g.next = result
	low := binary.LittleEndian.Uint64(g.next[8:])
	binary.LittleEndian.PutUint64(g.next[8:], low+1)
	return result
}

// Random is the integer-only random stream handed to event code. It is
// seeded from the event's ExtendedTime id, so the same event always sees
// the same stream. Floating-point output is deliberately absent: floats
// inside events are nondeterministic across platforms.
type Random struct {
	src *mathrand.ChaCha8
}

func newEventRandom(id RandomID) *Random {
	var seed [32]byte
	copy(seed[:16], id[:])
	copy(seed[16:], id[:])
	return &Random{src: mathrand.NewChaCha8(seed)}
}

// Uint64 returns a uniformly distributed uint64.
func (r *Random) Uint64() uint64 {
	return r.src.Uint64()
}

// Uint32 returns a uniformly distributed uint32.
func (r *Random) Uint32() uint32 {
	return uint32(r.src.Uint64() >> 32)
}

// Int64N returns a uniformly distributed int64 in [0, n). Panics if n <= 0.
func (r *Random) Int64N(n int64) int64 {
	if n <= 0 {
		panic("steward: Int64N called with non-positive n")
	}
	return int64(r.Uint64N(uint64(n)))
}

// Uint64N returns a uniformly distributed uint64 in [0, n). Panics if n == 0.
func (r *Random) Uint64N(n uint64) uint64 {
	if n == 0 {
		panic("steward: Uint64N called with zero n")
	}
	// Rejection sampling keeps the distribution exact.
	limit := -n % n
	for {
		v := r.src.Uint64()
		if v >= limit {
			return v % n
		}
	}
}

// IntN returns a uniformly distributed int in [0, n). Panics if n <= 0.
func (r *Random) IntN(n int) int {
	if n <= 0 {
		panic("steward: IntN called with non-positive n")
	}
	return int(r.Uint64N(uint64(n)))
}
