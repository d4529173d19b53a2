package errors

import (
	stderrors "errors"
	"fmt"
)

// FaultCode identifies a representation fault raised by generated adapter
// code. The numeric values are part of the adapter ABI: generated code passes
// them to the runtime trap import as an i32.
type FaultCode int32

const (
	FaultInvalidDiscriminant FaultCode = iota + 1
	FaultInvalidBoolean
	FaultOutOfRangeInteger
	FaultInvalidChar
	FaultDecodeError
	FaultInvalidHandle
	FaultBorrowViolation
	FaultAllocationFailure
	FaultUnalignedPointer
)

var faultNames = map[FaultCode]string{
	FaultInvalidDiscriminant: "invalid_discriminant",
	FaultInvalidBoolean:      "invalid_boolean",
	FaultOutOfRangeInteger:   "out_of_range_integer",
	FaultInvalidChar:         "invalid_char",
	FaultDecodeError:         "decode_error",
	FaultInvalidHandle:       "invalid_handle",
	FaultBorrowViolation:     "borrow_violation",
	FaultAllocationFailure:   "allocation_failure",
	FaultUnalignedPointer:    "unaligned_pointer",
}

func (c FaultCode) String() string {
	if name, ok := faultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("fault(%d)", int32(c))
}

// Valid reports whether c is a known fault code.
func (c FaultCode) Valid() bool {
	_, ok := faultNames[c]
	return ok
}

// Fault is a trap raised while lowering or lifting a value. A fault ends the
// current call; no partial result is returned.
type Fault struct {
	Cause  error
	Detail string
	Path   []string
	Code   FaultCode
}

func (f *Fault) Error() string {
	msg := "fault " + f.Code.String()
	if len(f.Path) > 0 {
		msg += " at " + joinPath(f.Path)
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Cause != nil {
		msg += " (caused by: " + f.Cause.Error() + ")"
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// Is matches any fault with the same code.
func (f *Fault) Is(target error) bool {
	if t, ok := target.(*Fault); ok {
		return f.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInvalidDiscriminant = &Fault{Code: FaultInvalidDiscriminant}
	ErrInvalidBoolean      = &Fault{Code: FaultInvalidBoolean}
	ErrOutOfRangeInteger   = &Fault{Code: FaultOutOfRangeInteger}
	ErrInvalidChar         = &Fault{Code: FaultInvalidChar}
	ErrDecode              = &Fault{Code: FaultDecodeError}
	ErrInvalidHandle       = &Fault{Code: FaultInvalidHandle}
	ErrBorrowViolation     = &Fault{Code: FaultBorrowViolation}
	ErrAllocationFailure   = &Fault{Code: FaultAllocationFailure}
	ErrUnalignedPointer    = &Fault{Code: FaultUnalignedPointer}
)

// NewFault creates a fault with a formatted detail.
func NewFault(code FaultCode, format string, args ...any) *Fault {
	f := &Fault{Code: code}
	if len(args) > 0 {
		f.Detail = fmt.Sprintf(format, args...)
	} else {
		f.Detail = format
	}
	return f
}

// FaultAt returns a copy of f with path prepended.
func FaultAt(f *Fault, path ...string) *Fault {
	c := *f
	c.Path = append(append([]string(nil), path...), f.Path...)
	return &c
}

// AsFault extracts a fault from err's chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if stderrors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// InvalidDiscriminant creates an invalid discriminant fault for variants,
// enums, options and results.
func InvalidDiscriminant(path []string, disc uint32, cases uint32) *Fault {
	return &Fault{
		Code:   FaultInvalidDiscriminant,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range (%d cases)", disc, cases),
	}
}

// InvalidChar creates a fault for a code point that is not a Unicode scalar.
func InvalidChar(path []string, cp uint32) *Fault {
	return &Fault{
		Code:   FaultInvalidChar,
		Path:   path,
		Detail: fmt.Sprintf("code point %#x is not a unicode scalar value", cp),
	}
}

// InvalidUTF8 creates a decode fault for malformed UTF-8.
func InvalidUTF8(path []string, data []byte) *Fault {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Fault{
		Code:   FaultDecodeError,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

func joinPath(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
