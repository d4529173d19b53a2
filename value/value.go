package value

// Variant is a value of a variant, enum, option or result type. Case is
// the zero-based case index; Payload is nil for cases without one.
type Variant struct {
	Payload any
	Case    uint32
}

// Handle is a resource handle as seen by one side: a table index on the
// foreign side, a representation on the owning side.
type Handle uint32

// None is the empty option.
func None() Variant { return Variant{Case: 0} }

// Some wraps v in an option.
func Some(v any) Variant { return Variant{Case: 1, Payload: v} }

// Ok is the success case of a result. v may be nil.
func Ok(v any) Variant { return Variant{Case: 0, Payload: v} }

// Err is the error case of a result. v may be nil.
func Err(v any) Variant { return Variant{Case: 1, Payload: v} }

// Enum selects the enum case i.
func Enum(i uint32) Variant { return Variant{Case: i} }
