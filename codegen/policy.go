package codegen

import "fmt"

// Encoding is a side's string encoding.
type Encoding uint8

const (
	UTF8 Encoding = iota
	UTF16
)

func (e Encoding) String() string {
	if e == UTF16 {
		return "utf16"
	}
	return "utf8"
}

// CodeUnit is the byte size of one string code unit.
func (e Encoding) CodeUnit() uint32 {
	if e == UTF16 {
		return 2
	}
	return 1
}

func (e Encoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Encoding) UnmarshalText(b []byte) error {
	switch string(b) {
	case "utf8", "utf-8", "":
		*e = UTF8
	case "utf16", "utf-16":
		*e = UTF16
	default:
		return fmt.Errorf("unknown string encoding %q", b)
	}
	return nil
}

// ReallocOrder is the argument order of a side's realloc export.
type ReallocOrder uint8

const (
	// Canonical is (old_ptr, old_size, align, new_size).
	Canonical ReallocOrder = iota
	// SizeAlign is (old_ptr, old_size, new_size, align).
	SizeAlign
)

func (o ReallocOrder) String() string {
	if o == SizeAlign {
		return "size-align"
	}
	return "canonical"
}

func (o ReallocOrder) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *ReallocOrder) UnmarshalText(b []byte) error {
	switch string(b) {
	case "canonical", "":
		*o = Canonical
	case "size-align":
		*o = SizeAlign
	default:
		return fmt.Errorf("unknown realloc order %q", b)
	}
	return nil
}

// FlagsPolicy decides how set bits beyond a flags type's names are handled.
type FlagsPolicy uint8

const (
	// Reject faults with OutOfRangeInteger.
	Reject FlagsPolicy = iota
	// Mask clears the extra bits.
	Mask
)

func (p FlagsPolicy) String() string {
	if p == Mask {
		return "mask"
	}
	return "reject"
}

func (p FlagsPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *FlagsPolicy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "reject", "":
		*p = Reject
	case "mask":
		*p = Mask
	default:
		return fmt.Errorf("unknown flags policy %q", b)
	}
	return nil
}
