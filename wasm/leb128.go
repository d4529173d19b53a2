package wasm

import (
	"errors"
	"io"
	"math"
)

// ErrOverflow is returned when a LEB128 value exceeds its bit width.
var ErrOverflow = errors.New("leb128: overflow")

// AppendULEB128 appends the unsigned LEB128 encoding of v.
func AppendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// AppendSLEB128 appends the signed LEB128 encoding of v.
func AppendSLEB128(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// AppendF32 appends a little-endian float32.
func AppendF32(buf []byte, v float32) []byte {
	bits := math.Float32bits(v)
	return append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}

// AppendF64 appends a little-endian float64.
func AppendF64(buf []byte, v float64) []byte {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(bits>>(8*i)))
	}
	return buf
}

// ReadULEB128 reads an unsigned value of at most bits bits.
func ReadULEB128(r io.ByteReader, bits uint) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift >= bits {
			return 0, ErrOverflow
		}
		result |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if bits < 64 && result>>bits != 0 {
				return 0, ErrOverflow
			}
			return result, nil
		}
	}
}

// ReadSLEB128 reads a signed value of at most bits bits.
func ReadSLEB128(r io.ByteReader, bits uint) (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift >= bits {
			return 0, ErrOverflow
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}
