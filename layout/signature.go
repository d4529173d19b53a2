package layout

import (
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
)

// Default flattening limits of the Canonical ABI.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// Limits are the flattening thresholds. Both sides of an adapter must use
// the same values.
type Limits struct {
	MaxFlatParams  int
	MaxFlatResults int
}

// DefaultLimits returns the Canonical ABI limits.
func DefaultLimits() Limits {
	return Limits{MaxFlatParams: MaxFlatParams, MaxFlatResults: MaxFlatResults}
}

// Context selects which side of a call a signature describes.
type Context uint8

const (
	// Lower is the caller side: the core import a module calls.
	Lower Context = iota
	// Lift is the callee side: the core export that implements the function.
	Lift
)

func (c Context) String() string {
	if c == Lift {
		return "lift"
	}
	return "lower"
}

// Signature is the core calling convention of an interface function in one
// context.
type Signature struct {
	Core            wasm.FuncType
	ParamFlat       []wasm.ValType // flattened params when passed directly
	ResultFlat      []wasm.ValType // flattened results when returned directly
	Params          Info           // memory layout of the param tuple
	Results         Info           // memory layout of the result tuple
	ParamOffsets    []uint32
	ResultOffsets   []uint32
	Context         Context
	IndirectParams  bool
	IndirectResults bool
}

// Signature computes the core signature of f in ctx.
//
// Params whose flat count exceeds the limit are passed as one pointer to
// the param tuple in the callee's memory. Results over the limit are
// written through a trailing return pointer in the Lower context and
// returned as a pointer in the Lift context.
func (c *Calculator) Signature(f *types.Func, ctx Context, lim Limits) Signature {
	params, paramOffsets := c.Sequence(f.ParamTypes())
	results, resultOffsets := c.Sequence(f.ResultTypes())

	sig := Signature{
		Context:       ctx,
		Params:        params,
		Results:       results,
		ParamOffsets:  paramOffsets,
		ResultOffsets: resultOffsets,
	}

	if len(params.Flat) > lim.MaxFlatParams {
		sig.IndirectParams = true
		sig.Core.Params = []wasm.ValType{wasm.ValI32}
	} else {
		sig.ParamFlat = params.Flat
		sig.Core.Params = append([]wasm.ValType(nil), params.Flat...)
	}

	if len(results.Flat) > lim.MaxFlatResults {
		sig.IndirectResults = true
		if ctx == Lower {
			sig.Core.Params = append(sig.Core.Params, wasm.ValI32)
		} else {
			sig.Core.Results = []wasm.ValType{wasm.ValI32}
		}
	} else {
		sig.ResultFlat = results.Flat
		sig.Core.Results = append([]wasm.ValType(nil), results.Flat...)
	}

	return sig
}

// PostReturn is the core type of a callee's cabi_post_<name> export: it
// receives the callee's core results.
func (s Signature) PostReturn() wasm.FuncType {
	return wasm.FuncType{Params: append([]wasm.ValType(nil), s.Core.Results...)}
}
