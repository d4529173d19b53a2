package value

import (
	"encoding/binary"
	"unicode/utf8"

	wasmadapter "github.com/wippyai/wasm-adapter"
	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/errors"
	"golang.org/x/text/encoding/unicode"
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeString returns s in the codec's encoding and its length in code
// units.
func (c *Codec) encodeString(s string, path []string) ([]byte, uint32, error) {
	if !utf8.ValidString(s) {
		return nil, 0, errors.InvalidUTF8(path, []byte(s))
	}
	if c.encoding != codegen.UTF16 {
		return []byte(s), uint32(len(s)), nil
	}
	data, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, 0, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "utf-16 encoding")
	}
	return data, uint32(len(data) / 2), nil
}

// decodeString validates raw in the codec's encoding and converts it.
func (c *Codec) decodeString(raw []byte, path []string) (string, error) {
	if c.encoding != codegen.UTF16 {
		if !utf8.Valid(raw) {
			return "", errors.InvalidUTF8(path, raw)
		}
		return string(raw), nil
	}
	if err := checkSurrogates(raw, path); err != nil {
		return "", err
	}
	out, err := utf16LE.NewDecoder().Bytes(raw)
	if err != nil {
		return "", errors.FaultAt(&errors.Fault{Code: errors.FaultDecodeError, Cause: err}, path...)
	}
	return string(out), nil
}

// checkSurrogates rejects unpaired surrogates, which the x/text decoder
// would replace with U+FFFD.
func checkSurrogates(raw []byte, path []string) error {
	for i := 0; i+1 < len(raw); i += 2 {
		u := binary.LittleEndian.Uint16(raw[i:])
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+3 >= len(raw) {
				return surrogateFault(path, i/2, u)
			}
			next := binary.LittleEndian.Uint16(raw[i+2:])
			if next < 0xDC00 || next > 0xDFFF {
				return surrogateFault(path, i/2, u)
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return surrogateFault(path, i/2, u)
		}
	}
	return nil
}

func surrogateFault(path []string, unit int, u uint16) error {
	return errors.FaultAt(errors.NewFault(errors.FaultDecodeError, "unpaired surrogate %#x at unit %d", u, unit), path...)
}

// storeString allocates and writes s, returning its pointer and length.
func (c *Codec) storeString(mem wasmadapter.Memory, alloc Allocator, s string, path []string) (uint32, uint32, error) {
	data, n, err := c.encodeString(s, path)
	if err != nil || n == 0 {
		return 0, 0, err
	}
	unit := c.encoding.CodeUnit()
	ptr, err := allocate(alloc, uint32(len(data)), unit)
	if err != nil {
		return 0, 0, err
	}
	if err := mem.Write(ptr, data); err != nil {
		return 0, 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "string data")
	}
	return ptr, n, nil
}

// loadString reads and validates the string (ptr, n).
func (c *Codec) loadString(mem wasmadapter.Memory, ptr, n uint32, path []string) (string, error) {
	unit := c.encoding.CodeUnit()
	raw, err := readSpan(mem, ptr, uint64(n)*uint64(unit), unit, path)
	if err != nil {
		return "", err
	}
	return c.decodeString(raw, path)
}
