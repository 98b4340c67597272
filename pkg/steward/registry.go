package steward

import (
	"cmp"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// PersistentTypeID is a stable 128-bit identifier a client type carries
// across runs and platforms, used for typed dispatch during
// deserialization.
type PersistentTypeID [16]byte

// TypeIDFromString parses a canonical UUID string into a PersistentTypeID.
// Panics on malformed input; type ids are compile-time constants.
func TypeIDFromString(s string) PersistentTypeID {
	return PersistentTypeID(uuid.MustParse(s))
}

func (id PersistentTypeID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the id is unset.
func (id PersistentTypeID) IsZero() bool {
	return id == PersistentTypeID{}
}

// TimeCodec reads and writes the client's base time in the fixed
// low-endian snapshot format.
type TimeCodec[T cmp.Ordered] interface {
	EncodeTime(w io.Writer, t T) error
	DecodeTime(r io.Reader) (T, error)
}

// TimelineCodec serializes one timeline type. EncodeSnapshot writes the
// timeline's value as of the given time; DecodeSnapshot reconstructs it.
type TimelineCodec[T cmp.Ordered] interface {
	EncodeSnapshot(w io.Writer, tl Timeline[T], at ExtendedTime[T]) error
	DecodeSnapshot(r io.Reader) (Timeline[T], error)
}

// GlobalsCodec serializes the client's globals. EncodeGlobals typically
// writes the serial numbers of the cells the globals reference;
// DecodeGlobals rebuilds the globals from the already-decoded cells,
// available both by original serial number and in on-wire order.
type GlobalsCodec[T cmp.Ordered] interface {
	EncodeGlobals(w io.Writer, g Globals[T]) error
	DecodeGlobals(r io.Reader, cells *DecodedCells[T]) (Globals[T], error)
}

// DecodedCells gives a GlobalsCodec access to the cells reconstructed
// during DeserializeFrom.
type DecodedCells[T cmp.Ordered] struct {
	bySerial map[uint64]*TimelineCell[T]
	ordered  []*TimelineCell[T]
}

// BySerial returns the cell that had the given serial number when the
// snapshot was written.
func (d *DecodedCells[T]) BySerial(serial uint64) (*TimelineCell[T], bool) {
	c, ok := d.bySerial[serial]
	return c, ok
}

// Ordered returns the cells in on-wire order.
func (d *DecodedCells[T]) Ordered() []*TimelineCell[T] {
	return d.ordered
}

// TypeRegistry maps persistent type ids to the codecs used for snapshot
// serialization and deserialization. Registration is static program
// structure: registering two codecs under one id panics.
type TypeRegistry[T cmp.Ordered] struct {
	timeCodec TimeCodec[T]
	timelines map[PersistentTypeID]TimelineCodec[T]
	globals   map[PersistentTypeID]GlobalsCodec[T]
}

// NewTypeRegistry creates a registry that encodes base times with the
// given codec.
func NewTypeRegistry[T cmp.Ordered](timeCodec TimeCodec[T]) *TypeRegistry[T] {
	return &TypeRegistry[T]{
		timeCodec: timeCodec,
		timelines: make(map[PersistentTypeID]TimelineCodec[T]),
		globals:   make(map[PersistentTypeID]GlobalsCodec[T]),
	}
}

// RegisterTimeline registers a timeline codec under its type id.
func (r *TypeRegistry[T]) RegisterTimeline(id PersistentTypeID, codec TimelineCodec[T]) {
	if id.IsZero() {
		panic("steward: cannot register a timeline codec under the zero type id")
	}
	if _, dup := r.timelines[id]; dup {
		panic(fmt.Sprintf("steward: duplicate timeline codec registration for %s", id))
	}
	r.timelines[id] = codec
}

// RegisterGlobals registers a globals codec under its type id.
func (r *TypeRegistry[T]) RegisterGlobals(id PersistentTypeID, codec GlobalsCodec[T]) {
	if id.IsZero() {
		panic("steward: cannot register a globals codec under the zero type id")
	}
	if _, dup := r.globals[id]; dup {
		panic(fmt.Sprintf("steward: duplicate globals codec registration for %s", id))
	}
	r.globals[id] = codec
}

func (r *TypeRegistry[T]) timelineCodec(id PersistentTypeID) (TimelineCodec[T], bool) {
	c, ok := r.timelines[id]
	return c, ok
}

func (r *TypeRegistry[T]) globalsCodec(id PersistentTypeID) (GlobalsCodec[T], bool) {
	c, ok := r.globals[id]
	return c, ok
}
