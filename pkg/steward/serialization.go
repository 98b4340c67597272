package steward

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
)

// The snapshot wire format is a fixed low-endian layout:
//
//	extended time:  base (TimeCodec), iteration uint32, id [16]byte
//	globals:        type id [16]byte, payload length uint32, payload
//	cells:          count uint32, then per cell:
//	                serial uint64, type id [16]byte, payload length uint32, payload
//
// Two runs that reach the same extended time with the same history emit
// byte-identical snapshots.

// SerializeInto writes the snapshot in the fixed low-endian format. The
// globals and every reachable cell must carry a type id registered in reg.
func (s *Snapshot[T]) SerializeInto(w io.Writer, reg *TypeRegistry[T]) error {
	if s.released {
		panic("steward: serialize on a released snapshot")
	}
	if err := EncodeExtendedTime(w, reg.timeCodec, s.time); err != nil {
		return serializeFailed(err)
	}

	typed, ok := s.globals.(PersistentlyTyped)
	if !ok {
		return &DeserializationMismatchError{
			StewardError: StewardError{Op: "serialize snapshot", Err: fmt.Errorf("globals type carries no persistent type id")},
		}
	}
	globalsID := typed.PersistentTypeID()
	codec, ok := reg.globalsCodec(globalsID)
	if !ok {
		return &DeserializationMismatchError{
			StewardError: StewardError{Op: "serialize snapshot", Err: fmt.Errorf("globals type id %s is not registered", globalsID)},
			TypeID:       globalsID,
		}
	}
	var payload bytes.Buffer
	if err := codec.EncodeGlobals(&payload, s.globals); err != nil {
		return serializeFailed(err)
	}
	if err := writeBlock(w, globalsID, payload.Bytes()); err != nil {
		return serializeFailed(err)
	}

	var cells []*TimelineCell[T]
	s.globals.WalkCells(func(cell *TimelineCell[T]) {
		cells = append(cells, cell)
	})
	if err := writeUint32(w, uint32(len(cells))); err != nil {
		return serializeFailed(err)
	}
	for _, cell := range cells {
		if cell.typeID.IsZero() {
			return &DeserializationMismatchError{
				StewardError: StewardError{Op: "serialize snapshot", Err: fmt.Errorf("cell %d carries no persistent type id", cell.serial)},
			}
		}
		cellCodec, ok := reg.timelineCodec(cell.typeID)
		if !ok {
			return &DeserializationMismatchError{
				StewardError: StewardError{Op: "serialize snapshot", Err: fmt.Errorf("timeline type id %s is not registered", cell.typeID)},
				TypeID:       cell.typeID,
			}
		}
		if err := writeUint64(w, cell.serial); err != nil {
			return serializeFailed(err)
		}
		var value bytes.Buffer
		if err := cellCodec.EncodeSnapshot(&value, s.ensureClone(cell, s.time), s.time); err != nil {
			return serializeFailed(err)
		}
		if err := writeBlock(w, cell.typeID, value.Bytes()); err != nil {
			return serializeFailed(err)
		}
	}
	return nil
}

// DeserializeFrom reconstructs a steward from a serialized snapshot. The
// result accepts operations from Before(snapshot time) onward; unknown
// type ids and truncated streams fail with DeserializationMismatchError
// and never yield a partially-built steward.
func DeserializeFrom[T cmp.Ordered](r io.Reader, config Config, reg *TypeRegistry[T]) (*Steward[T], error) {
	const op = "deserialize steward"

	at, err := DecodeExtendedTime(r, reg.timeCodec)
	if err != nil {
		return nil, truncated(op, err)
	}

	globalsID, globalsPayload, err := readBlock(r)
	if err != nil {
		return nil, truncated(op, err)
	}
	globalsCodec, ok := reg.globalsCodec(globalsID)
	if !ok {
		return nil, &DeserializationMismatchError{
			StewardError: StewardError{Op: op, Err: fmt.Errorf("unknown globals type id %s", globalsID)},
			TypeID:       globalsID,
		}
	}

	count, err := readUint32(r)
	if err != nil {
		return nil, truncated(op, err)
	}
	decoded := &DecodedCells[T]{bySerial: make(map[uint64]*TimelineCell[T], count)}
	for i := uint32(0); i < count; i++ {
		serial, err := readUint64(r)
		if err != nil {
			return nil, truncated(op, err)
		}
		typeID, payload, err := readBlock(r)
		if err != nil {
			return nil, truncated(op, err)
		}
		cellCodec, ok := reg.timelineCodec(typeID)
		if !ok {
			return nil, &DeserializationMismatchError{
				StewardError: StewardError{Op: op, Err: fmt.Errorf("unknown timeline type id %s", typeID)},
				TypeID:       typeID,
			}
		}
		timeline, err := cellCodec.DecodeSnapshot(bytes.NewReader(payload))
		if err != nil {
			return nil, truncated(op, err)
		}
		if _, dup := decoded.bySerial[serial]; dup {
			return nil, &DeserializationMismatchError{
				StewardError: StewardError{Op: op, Err: fmt.Errorf("duplicate cell serial %d", serial)},
			}
		}
		cell := restoredCell(serial, typeID, timeline)
		decoded.bySerial[serial] = cell
		decoded.ordered = append(decoded.ordered, cell)
	}

	globals, err := globalsCodec.DecodeGlobals(bytes.NewReader(globalsPayload), decoded)
	if err != nil {
		return nil, truncated(op, err)
	}

	s := New(globals, config)
	s.invalidBefore = SinceBefore(at.Base)
	return s, nil
}

func serializeFailed(err error) error {
	return &StewardError{Op: "serialize snapshot", Err: err}
}

func truncated(op string, err error) error {
	return &DeserializationMismatchError{
		StewardError: StewardError{Op: op, Err: err},
	}
}

// =============================================================================
// Wire primitives (all little-endian)
// =============================================================================

// EncodeExtendedTime writes an extended time in the fixed low-endian
// layout. Timeline codecs that key their payloads by extended time reuse
// it so one format covers the whole snapshot.
func EncodeExtendedTime[T cmp.Ordered](w io.Writer, tc TimeCodec[T], t ExtendedTime[T]) error {
	if err := tc.EncodeTime(w, t.Base); err != nil {
		return err
	}
	if err := writeUint32(w, t.Iteration); err != nil {
		return err
	}
	_, err := w.Write(t.ID[:])
	return err
}

// DecodeExtendedTime is the inverse of EncodeExtendedTime.
func DecodeExtendedTime[T cmp.Ordered](r io.Reader, tc TimeCodec[T]) (ExtendedTime[T], error) {
	base, err := tc.DecodeTime(r)
	if err != nil {
		return ExtendedTime[T]{}, err
	}
	iteration, err := readUint32(r)
	if err != nil {
		return ExtendedTime[T]{}, err
	}
	var id RandomID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return ExtendedTime[T]{}, err
	}
	return ExtendedTime[T]{Base: base, Iteration: iteration, ID: id}, nil
}

func writeBlock(w io.Writer, id PersistentTypeID, payload []byte) error {
	if _, err := w.Write(id[:]); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readBlock(r io.Reader) (PersistentTypeID, []byte, error) {
	var id PersistentTypeID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return id, nil, err
	}
	length, err := readUint32(r)
	if err != nil {
		return id, nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return id, nil, err
	}
	return id, payload, nil
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

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Int64TimeCodec encodes int64 base times as 8 little-endian bytes.
type Int64TimeCodec struct{}

func (Int64TimeCodec) EncodeTime(w io.Writer, t int64) error {
	return writeUint64(w, uint64(t))
}

func (Int64TimeCodec) DecodeTime(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}
