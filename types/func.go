package types

import (
	"fmt"

	"github.com/wippyai/wasm-adapter/errors"
)

// Param is a named parameter or result. Result names may be empty.
type Param struct {
	Name string
	Type ID
}

// Func is an interface function signature.
type Func struct {
	Name    string
	Params  []Param
	Results []Param
}

// ParamTypes returns the parameter types in order.
func (f *Func) ParamTypes() []ID {
	return paramTypes(f.Params)
}

// ResultTypes returns the result types in order.
func (f *Func) ResultTypes() []ID {
	return paramTypes(f.Results)
}

func paramTypes(ps []Param) []ID {
	out := make([]ID, len(ps))
	for i, p := range ps {
		out[i] = p.Type
	}
	return out
}

// Interface is a named set of functions over one graph.
type Interface struct {
	Graph *Graph
	Name  string
	Funcs []Func
}

// Func returns the function with the given name.
func (i *Interface) Func(name string) (*Func, bool) {
	for k := range i.Funcs {
		if i.Funcs[k].Name == name {
			return &i.Funcs[k], true
		}
	}
	return nil, false
}

// Validate checks that function names are unique, every referenced type
// belongs to the graph, and no result carries a borrowed handle.
func (i *Interface) Validate() error {
	if i.Graph == nil {
		return errors.NotInitialized(errors.PhaseCompile, "interface graph")
	}
	seen := make(map[string]bool, len(i.Funcs))
	for _, f := range i.Funcs {
		if f.Name == "" {
			return errors.InvalidInput(errors.PhaseCompile, "function with empty name")
		}
		if seen[f.Name] {
			return errors.Duplicate(errors.PhaseCompile, "function", f.Name)
		}
		seen[f.Name] = true

		names := make(map[string]bool, len(f.Params))
		for _, p := range f.Params {
			if !i.Graph.Valid(p.Type) {
				return errors.New(errors.PhaseCompile, errors.KindInvalidInput).
					Path(f.Name, p.Name).Detail("unknown type %d", p.Type).Build()
			}
			if p.Name != "" && names[p.Name] {
				return errors.New(errors.PhaseCompile, errors.KindDuplicate).
					Path(f.Name).Detail("duplicate parameter %q", p.Name).Build()
			}
			names[p.Name] = true
		}
		for n, r := range f.Results {
			if !i.Graph.Valid(r.Type) {
				return errors.New(errors.PhaseCompile, errors.KindInvalidInput).
					Path(f.Name, fmt.Sprintf("result%d", n)).Detail("unknown type %d", r.Type).Build()
			}
			if i.Graph.Contains(r.Type, func(k Kind) bool { return k == KindBorrow }) {
				return errors.New(errors.PhaseCompile, errors.KindUnsupported).
					Path(f.Name).WitType(i.Graph.Describe(r.Type)).
					Detail("borrowed handles cannot be returned").Build()
			}
		}
	}
	return nil
}
