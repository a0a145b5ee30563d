package resource

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/vantir/abilitymod/internal/mod"
)

// Codec converts between resource buffers and decoded ability trees.
// The production implementation wraps the host's own routines; BinaryCodec
// below is a self-contained little-endian format used by tooling and tests.
type Codec interface {
	Decode(buf []byte) (*Ability, error)
	Encode(a *Ability) ([]byte, error)
}

var magic = [4]byte{'A', 'B', 'D', 'F'}

const formatVersion byte = 1

// Value tag bytes on the wire.
const (
	tagNone  byte = 0
	tagInt   byte = 1
	tagFloat byte = 2
	tagVec   byte = 3
)

// BinaryCodec is the self-contained resource format:
//
//	magic "ABDF", version byte
//	abilityID int32
//	group count uint16, then per group:
//	  id int32, operation count uint16, then per operation:
//	    typeTag int32, property count uint16, then per property:
//	      typeTag int32, value tag byte, payload
//
// All integers little-endian. Properties without a value are dropped on
// encode, so an operation appended with zero-valued slots round-trips to an
// operation with no properties.
type BinaryCodec struct{}

// Encode serializes the ability tree.
func (BinaryCodec) Encode(a *Ability) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("encode: nil ability")
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	writeInt32(&buf, a.ID)

	if len(a.Groups) > math.MaxUint16 {
		return nil, fmt.Errorf("encode ability %d: too many groups (%d)", a.ID, len(a.Groups))
	}
	writeUint16(&buf, uint16(len(a.Groups)))

	for _, g := range a.Groups {
		writeInt32(&buf, g.ID)
		if len(g.Operations) > math.MaxUint16 {
			return nil, fmt.Errorf("encode group %d: too many operations (%d)", g.ID, len(g.Operations))
		}
		writeUint16(&buf, uint16(len(g.Operations)))

		for _, op := range g.Operations {
			writeInt32(&buf, op.TypeTag)

			kept := make([]*Property, 0, len(op.Properties))
			for _, p := range op.Properties {
				if p.Value != nil {
					kept = append(kept, p)
				}
			}
			if len(kept) > math.MaxUint16 {
				return nil, fmt.Errorf("encode operation %d: too many properties (%d)", op.TypeTag, len(kept))
			}
			writeUint16(&buf, uint16(len(kept)))

			for _, p := range kept {
				writeInt32(&buf, p.TypeTag)
				if err := writeValue(&buf, p.Value); err != nil {
					return nil, fmt.Errorf("encode property %d of operation %d: %w", p.TypeTag, op.TypeTag, err)
				}
			}
		}
	}
	return buf.Bytes(), nil
}

// Decode parses a resource buffer into an ability tree.
func (BinaryCodec) Decode(buf []byte) (*Ability, error) {
	r := bytes.NewReader(buf)

	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("decode: short header: %w", err)
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, fmt.Errorf("decode: bad magic %q", header[:4])
	}
	if header[4] != formatVersion {
		return nil, fmt.Errorf("decode: unsupported format version %d", header[4])
	}

	a := &Ability{}
	var err error
	if a.ID, err = readInt32(r); err != nil {
		return nil, fmt.Errorf("decode ability id: %w", err)
	}

	groupCount, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("decode group count: %w", err)
	}

	for gi := 0; gi < int(groupCount); gi++ {
		g := &OperationGroup{}
		if g.ID, err = readInt32(r); err != nil {
			return nil, fmt.Errorf("decode group %d id: %w", gi, err)
		}
		opCount, err := readUint16(r)
		if err != nil {
			return nil, fmt.Errorf("decode group %d operation count: %w", g.ID, err)
		}

		for oi := 0; oi < int(opCount); oi++ {
			op := &Operation{}
			if op.TypeTag, err = readInt32(r); err != nil {
				return nil, fmt.Errorf("decode operation %d of group %d: %w", oi, g.ID, err)
			}
			propCount, err := readUint16(r)
			if err != nil {
				return nil, fmt.Errorf("decode property count of operation %d: %w", op.TypeTag, err)
			}

			for pi := 0; pi < int(propCount); pi++ {
				p := &Property{}
				if p.TypeTag, err = readInt32(r); err != nil {
					return nil, fmt.Errorf("decode property %d of operation %d: %w", pi, op.TypeTag, err)
				}
				if p.Value, err = readValue(r); err != nil {
					return nil, fmt.Errorf("decode property %d value: %w", p.TypeTag, err)
				}
				op.Properties = append(op.Properties, p)
			}
			g.Operations = append(g.Operations, op)
		}
		a.Groups = append(a.Groups, g)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("decode: %d trailing bytes", r.Len())
	}
	return a, nil
}

func writeValue(buf *bytes.Buffer, v mod.Value) error {
	switch val := v.(type) {
	case nil:
		buf.WriteByte(tagNone)
	case mod.Int:
		buf.WriteByte(tagInt)
		writeInt32(buf, int32(val))
	case mod.Float:
		buf.WriteByte(tagFloat)
		writeFloat32(buf, float32(val))
	case mod.Vec:
		buf.WriteByte(tagVec)
		writeFloat32(buf, val.X)
		writeFloat32(buf, val.Y)
		writeFloat32(buf, val.Z)
	default:
		return fmt.Errorf("unknown value type %T", v)
	}
	return nil
}

func readValue(r *bytes.Reader) (mod.Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNone:
		return nil, nil
	case tagInt:
		i, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		return mod.Int(i), nil
	case tagFloat:
		f, err := readFloat32(r)
		if err != nil {
			return nil, err
		}
		return mod.Float(f), nil
	case tagVec:
		var v mod.Vec
		if v.X, err = readFloat32(r); err != nil {
			return nil, err
		}
		if v.Y, err = readFloat32(r); err != nil {
			return nil, err
		}
		if v.Z, err = readFloat32(r); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown value tag %d", tag)
	}
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeFloat32(buf *bytes.Buffer, v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	buf.Write(b[:])
}

func readInt32(r *bytes.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readFloat32(r *bytes.Reader) (float32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:])), nil
}
