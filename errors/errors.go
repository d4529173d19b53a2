package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCompile  Phase = "compile"  // interface type construction
	PhaseSynth    Phase = "synth"    // adapter code generation
	PhaseEncode   Phase = "encode"   // Go value to memory
	PhaseDecode   Phase = "decode"   // memory to Go value
	PhaseRuntime  Phase = "runtime"  // generated code execution
	PhaseLinking  Phase = "linking"  // side contracts and instantiation
	PhaseParse    Phase = "parse"    // option parsing
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch   Kind = "type_mismatch"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindInvalidData    Kind = "invalid_data"
	KindUnsupported    Kind = "unsupported"
	KindAllocation     Kind = "allocation"
	KindFieldMissing   Kind = "field_missing"
	KindOverflow       Kind = "overflow"
	KindMissingImport  Kind = "missing_import"
	KindMissingExport  Kind = "missing_export"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindDuplicate      Kind = "duplicate"
	KindInstantiation  Kind = "instantiation"
	KindNotInitialized Kind = "not_initialized"
	KindTrap           Kind = "trap" // a module trapped outside the adapter's checks
)

// Error is the structured error type used outside of generated code
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	typed := e.GoType != "" || e.WitType != ""
	if typed {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.WitType != "":
			fmt.Fprintf(&b, "Go type %s, WIT type %s", e.GoType, e.WitType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("WIT type ")
			b.WriteString(e.WitType)
		}
	}

	if e.Detail != "" {
		if typed {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by phase and kind
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WitType sets the interface type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// TypeMismatch creates a type mismatch error between a Go value and an
// interface type.
func TypeMismatch(phase Phase, path []string, goType, witType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		WitType: witType,
	}
}

// SignatureMismatch reports a core signature that differs from the one
// computed for an interface function.
func SignatureMismatch(side, name, want, got string) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindTypeMismatch,
		Path:   []string{side, name},
		Detail: fmt.Sprintf("core signature %s, want %s", got, want),
	}
}

// AllocationFailed creates an error for an allocator call that failed
// outright, as opposed to returning a null pointer
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// FieldMissing creates a missing record field error
func FieldMissing(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Path:   path,
		Detail: fmt.Sprintf("required field %q not found", fieldName),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindOverflow,
		Path:    path,
		WitType: targetType,
		Detail:  fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:   value,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Duplicate creates an error for a name declared twice
func Duplicate(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("duplicate %s %q", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// MissingExport reports an export a side must provide but does not
func MissingExport(side, name string) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindMissingExport,
		Path:   []string{side},
		Detail: fmt.Sprintf("export %q not found", name),
	}
}

// NotInitialized creates a not-initialized error for missing module/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Instantiation creates an instantiation error
func Instantiation(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf("instantiate %s", module),
		Cause:  cause,
	}
}

// ParseFailed creates an error for configuration input that does not
// decode
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidInput,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
