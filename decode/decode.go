// Package decode implements the numeric decoder primitives that extract typed
// scalar values from raw protocol payloads.
//
// Two payload shapes are supported:
//
//   - Register payloads ([]uint16): the unit of transfer for Modbus holding
//     and input registers. Multi-register values use big-endian register
//     order — reg[offset] carries the most significant 16 bits. A 32-bit
//     float is therefore reassembled as bits = reg[off]<<16 | reg[off+1]
//     before the IEEE-754 interpretation ("ABCD" word order).
//
//   - Byte payloads ([]byte): the unit of transfer for EtherNet/IP tag reads.
//     Multi-byte values are little-endian, which is the CIP wire format.
//
// Offset and width validation is the caller's job and happens at adapter init
// time; the extractors assume in-range access.
package decode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ─────────────────────────────────────────────────────────────────────────────
// Data types
// ─────────────────────────────────────────────────────────────────────────────

// Type identifies a decoded scalar's width and signedness. It drives decoder
// selection at init time and the wrap-around boundary of the speed transform.
type Type int

const (
	TypeBit Type = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeReal32
	TypeReal64
	TypeString
)

// String returns the canonical configuration name of the type.
func (t Type) String() string {
	switch t {
	case TypeBit:
		return "bit"
	case TypeInt8:
		return "int8"
	case TypeUint8:
		return "uint8"
	case TypeInt16:
		return "int16"
	case TypeUint16:
		return "uint16"
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeReal32:
		return "real32"
	case TypeReal64:
		return "real64"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// MaxCounter returns the wrap-around boundary 2^N−1 for unsigned integer
// types. ok is false for signed, float, bit and string types, which have no
// defined wrap behaviour.
func (t Type) MaxCounter() (max uint64, ok bool) {
	switch t {
	case TypeUint8:
		return math.MaxUint8, true
	case TypeUint16:
		return math.MaxUint16, true
	case TypeUint32:
		return math.MaxUint32, true
	case TypeUint64:
		return math.MaxUint64, true
	default:
		return 0, false
	}
}

// ParseType resolves a configuration type name, including the aliases used by
// the pull schemas (word, dword, qword, byte, sintN, real).
func ParseType(name string) (Type, error) {
	switch name {
	case "real", "real32":
		return TypeReal32, nil
	case "real64":
		return TypeReal64, nil
	case "uint8", "byte":
		return TypeUint8, nil
	case "sint8", "int8":
		return TypeInt8, nil
	case "uint16", "word":
		return TypeUint16, nil
	case "sint16", "int16":
		return TypeInt16, nil
	case "uint32", "dword":
		return TypeUint32, nil
	case "sint32", "int32":
		return TypeInt32, nil
	case "uint64", "qword":
		return TypeUint64, nil
	case "sint64", "int64":
		return TypeInt64, nil
	default:
		return 0, fmt.Errorf("decode: unsupported type %q", name)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Register extractors ([]uint16, big-endian register order)
// ─────────────────────────────────────────────────────────────────────────────

// Bit extracts a single bit (0–15) from the register at offset.
func Bit(regs []uint16, offset, bit int) bool {
	return (regs[offset]>>uint(bit))&1 == 1
}

// Uint16 extracts an unsigned 16-bit value.
func Uint16(regs []uint16, offset int) uint64 {
	return uint64(regs[offset])
}

// Int16 extracts a signed 16-bit value with two's-complement recovery.
func Int16(regs []uint16, offset int) int64 {
	v := int64(regs[offset])
	if v > math.MaxInt16 {
		v -= 65536
	}
	return v
}

// Uint32 extracts an unsigned 32-bit value from two consecutive registers,
// reg[offset] high.
func Uint32(regs []uint16, offset int) uint64 {
	return uint64(regs[offset])<<16 | uint64(regs[offset+1])
}

// Int32 extracts a signed 32-bit value with two's-complement recovery.
func Int32(regs []uint16, offset int) int64 {
	v := int64(Uint32(regs, offset))
	if v > math.MaxInt32 {
		v -= 4294967296
	}
	return v
}

// Uint64 extracts an unsigned 64-bit value from four consecutive registers,
// reg[offset] highest.
func Uint64(regs []uint16, offset int) uint64 {
	return uint64(regs[offset])<<48 |
		uint64(regs[offset+1])<<32 |
		uint64(regs[offset+2])<<16 |
		uint64(regs[offset+3])
}

// Int64 extracts a signed 64-bit value.
func Int64(regs []uint16, offset int) int64 {
	return int64(Uint64(regs, offset))
}

// Real32 extracts an IEEE-754 single-precision float from two consecutive
// registers in big-endian register order: bits = reg[offset]<<16 | reg[offset+1].
func Real32(regs []uint16, offset int) float64 {
	bits := uint32(regs[offset])<<16 | uint32(regs[offset+1])
	return float64(math.Float32frombits(bits))
}

// Real64 extracts an IEEE-754 double-precision float from four consecutive
// registers, reg[offset] highest.
func Real64(regs []uint16, offset int) float64 {
	return math.Float64frombits(Uint64(regs, offset))
}

// RegWidth returns how many consecutive registers the type occupies, for
// init-time range validation. ok is false for byte-oriented types.
func RegWidth(t Type) (n int, ok bool) {
	switch t {
	case TypeBit, TypeInt16, TypeUint16:
		return 1, true
	case TypeInt32, TypeUint32, TypeReal32:
		return 2, true
	case TypeInt64, TypeUint64, TypeReal64:
		return 4, true
	default:
		return 0, false
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Byte extractors ([]byte, little-endian)
// ─────────────────────────────────────────────────────────────────────────────

// Uint8At extracts an unsigned 8-bit value at a byte offset.
func Uint8At(b []byte, offset int) uint64 {
	return uint64(b[offset])
}

// Int8At extracts a signed 8-bit value.
func Int8At(b []byte, offset int) int64 {
	return int64(int8(b[offset]))
}

// Uint16At extracts a little-endian unsigned 16-bit value.
func Uint16At(b []byte, offset int) uint64 {
	return uint64(binary.LittleEndian.Uint16(b[offset:]))
}

// Int16At extracts a little-endian signed 16-bit value.
func Int16At(b []byte, offset int) int64 {
	return int64(int16(binary.LittleEndian.Uint16(b[offset:])))
}

// Uint32At extracts a little-endian unsigned 32-bit value.
func Uint32At(b []byte, offset int) uint64 {
	return uint64(binary.LittleEndian.Uint32(b[offset:]))
}

// Int32At extracts a little-endian signed 32-bit value.
func Int32At(b []byte, offset int) int64 {
	return int64(int32(binary.LittleEndian.Uint32(b[offset:])))
}

// Uint64At extracts a little-endian unsigned 64-bit value.
func Uint64At(b []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(b[offset:])
}

// Int64At extracts a little-endian signed 64-bit value.
func Int64At(b []byte, offset int) int64 {
	return int64(binary.LittleEndian.Uint64(b[offset:]))
}

// Real32At extracts a little-endian IEEE-754 single at a byte offset.
func Real32At(b []byte, offset int) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[offset:])))
}

// Real64At extracts a little-endian IEEE-754 double from 8 contiguous bytes.
func Real64At(b []byte, offset int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[offset:]))
}

// ByteWidth returns how many bytes the type occupies in a byte payload.
func ByteWidth(t Type) (n int, ok bool) {
	switch t {
	case TypeInt8, TypeUint8:
		return 1, true
	case TypeInt16, TypeUint16:
		return 2, true
	case TypeInt32, TypeUint32, TypeReal32:
		return 4, true
	case TypeInt64, TypeUint64, TypeReal64:
		return 8, true
	default:
		return 0, false
	}
}
