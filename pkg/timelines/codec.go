package timelines

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"

	"go-timesteward/pkg/steward"
)

// SimpleTimelineCodec serializes a SimpleTimeline[T, V] in the snapshot
// wire format: a little-endian change count, then each change as extended
// time, presence byte, and (when present) the value.
type SimpleTimelineCodec[T cmp.Ordered, V any] struct {
	typeID      steward.PersistentTypeID
	timeCodec   steward.TimeCodec[T]
	encodeValue func(io.Writer, V) error
	decodeValue func(io.Reader) (V, error)
}

// NewSimpleTimelineCodec builds a codec for one timeline type. The value
// encoder must emit a fixed, platform-independent byte layout.
func NewSimpleTimelineCodec[T cmp.Ordered, V any](
	typeID steward.PersistentTypeID,
	timeCodec steward.TimeCodec[T],
	encodeValue func(io.Writer, V) error,
	decodeValue func(io.Reader) (V, error),
) *SimpleTimelineCodec[T, V] {
	return &SimpleTimelineCodec[T, V]{
		typeID:      typeID,
		timeCodec:   timeCodec,
		encodeValue: encodeValue,
		decodeValue: decodeValue,
	}
}

// TypeID returns the persistent type id this codec serves.
func (c *SimpleTimelineCodec[T, V]) TypeID() steward.PersistentTypeID {
	return c.typeID
}

// EncodeSnapshot implements steward.TimelineCodec.
func (c *SimpleTimelineCodec[T, V]) EncodeSnapshot(w io.Writer, tl steward.Timeline[T], _ steward.ExtendedTime[T]) error {
	st, ok := tl.(*SimpleTimeline[T, V])
	if !ok {
		return fmt.Errorf("timelines: codec for %s got timeline of type %T", c.typeID, tl)
	}
	if err := writeUint32(w, uint32(len(st.changes))); err != nil {
		return err
	}
	for _, ch := range st.changes {
		if err := steward.EncodeExtendedTime(w, c.timeCodec, ch.at); err != nil {
			return err
		}
		present := byte(0)
		if ch.present {
			present = 1
		}
		if _, err := w.Write([]byte{present}); err != nil {
			return err
		}
		if ch.present {
			if err := c.encodeValue(w, ch.value); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeSnapshot implements steward.TimelineCodec.
func (c *SimpleTimelineCodec[T, V]) DecodeSnapshot(r io.Reader) (steward.Timeline[T], error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	tl := &SimpleTimeline[T, V]{typeID: c.typeID, changes: make([]change[T, V], 0, count)}
	for i := uint32(0); i < count; i++ {
		at, err := steward.DecodeExtendedTime(r, c.timeCodec)
		if err != nil {
			return nil, err
		}
		var presence [1]byte
		if _, err := io.ReadFull(r, presence[:]); err != nil {
			return nil, err
		}
		ch := change[T, V]{at: at, present: presence[0] != 0}
		if ch.present {
			ch.value, err = c.decodeValue(r)
			if err != nil {
				return nil, err
			}
		}
		tl.changes = append(tl.changes, ch)
	}
	return tl, nil
}

// Int64Value encodes int64 timeline values as 8 little-endian bytes.
func Int64Value(w io.Writer, v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

// DecodeInt64Value is the inverse of Int64Value.
func DecodeInt64Value(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
