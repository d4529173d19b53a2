package types

import (
	"fmt"

	"github.com/wippyai/wasm-adapter/errors"
	"go.bytecodealliance.org/wit"
)

// BindResource associates a WIT resource definition with a resource of this
// graph, so own and borrow handles of it compile to that resource.
func (g *Graph) BindResource(def *wit.TypeDef, r ResourceID) error {
	if def == nil {
		return errors.InvalidInput(errors.PhaseCompile, "nil resource definition")
	}
	if _, ok := any(def.Kind).(*wit.Resource); !ok {
		return errors.InvalidInput(errors.PhaseCompile, fmt.Sprintf("type %T is not a resource", any(def.Kind)))
	}
	if _, ok := g.ResourceInfo(r); !ok {
		return errors.InvalidInput(errors.PhaseCompile, fmt.Sprintf("unknown resource %d", r))
	}
	g.witRes[def] = r
	return nil
}

// FromWIT compiles a resolved WIT type into the graph. Type definitions are
// memoized by identity, so a definition shared by several types compiles
// once.
func (g *Graph) FromWIT(t wit.Type) (ID, error) {
	switch typ := t.(type) {
	case nil:
		return None, errors.InvalidInput(errors.PhaseCompile, "nil type")
	case wit.Bool:
		return g.Bool(), nil
	case wit.U8:
		return g.U8(), nil
	case wit.S8:
		return g.S8(), nil
	case wit.U16:
		return g.U16(), nil
	case wit.S16:
		return g.S16(), nil
	case wit.U32:
		return g.U32(), nil
	case wit.S32:
		return g.S32(), nil
	case wit.U64:
		return g.U64(), nil
	case wit.S64:
		return g.S64(), nil
	case wit.F32:
		return g.F32(), nil
	case wit.F64:
		return g.F64(), nil
	case wit.Char:
		return g.Char(), nil
	case wit.String:
		return g.StringType(), nil
	case *wit.TypeDef:
		return g.fromTypeDef(typ)
	default:
		return None, errors.Unsupported(errors.PhaseCompile, fmt.Sprintf("WIT type %T", t))
	}
}

func (g *Graph) fromTypeDef(def *wit.TypeDef) (ID, error) {
	if id, ok := g.wit[def]; ok {
		return id, nil
	}
	id, err := g.fromKind(def.Kind)
	if err != nil {
		return None, err
	}
	g.wit[def] = id
	return id, nil
}

func (g *Graph) fromOptional(t wit.Type) (ID, error) {
	if t == nil {
		return None, nil
	}
	return g.FromWIT(t)
}

func (g *Graph) fromKind(kind any) (ID, error) {
	switch k := kind.(type) {
	case *wit.Record:
		fields := make([]Field, len(k.Fields))
		for i, f := range k.Fields {
			id, err := g.FromWIT(f.Type)
			if err != nil {
				return None, fieldErr(err, f.Name)
			}
			fields[i] = Field{Name: f.Name, Type: id}
		}
		return g.Record(fields...)

	case *wit.Tuple:
		ids := make([]ID, len(k.Types))
		for i, t := range k.Types {
			id, err := g.FromWIT(t)
			if err != nil {
				return None, fieldErr(err, fmt.Sprint(i))
			}
			ids[i] = id
		}
		return g.Tuple(ids...)

	case *wit.Variant:
		cases := make([]Case, len(k.Cases))
		for i, c := range k.Cases {
			id, err := g.fromOptional(c.Type)
			if err != nil {
				return None, fieldErr(err, c.Name)
			}
			cases[i] = Case{Name: c.Name, Type: id}
		}
		return g.Variant(cases...)

	case *wit.Enum:
		names := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			names[i] = c.Name
		}
		return g.Enum(names...)

	case *wit.Flags:
		names := make([]string, len(k.Flags))
		for i, f := range k.Flags {
			names[i] = f.Name
		}
		return g.Flags(names...)

	case *wit.Option:
		inner, err := g.FromWIT(k.Type)
		if err != nil {
			return None, fieldErr(err, "some")
		}
		return g.Option(inner)

	case *wit.Result:
		ok, err := g.fromOptional(k.OK)
		if err != nil {
			return None, fieldErr(err, "ok")
		}
		er, err := g.fromOptional(k.Err)
		if err != nil {
			return None, fieldErr(err, "err")
		}
		return g.Result(ok, er)

	case *wit.List:
		elem, err := g.FromWIT(k.Type)
		if err != nil {
			return None, err
		}
		return g.List(elem)

	case *wit.Own:
		r, err := g.witResource(k.Type)
		if err != nil {
			return None, err
		}
		return g.Own(r)

	case *wit.Borrow:
		r, err := g.witResource(k.Type)
		if err != nil {
			return None, err
		}
		return g.Borrow(r)

	case *wit.Resource:
		return None, errors.InvalidInput(errors.PhaseCompile, "resource is not a value type; use own or borrow")

	case wit.Type:
		// type alias
		return g.FromWIT(k)

	default:
		return None, errors.Unsupported(errors.PhaseCompile, fmt.Sprintf("WIT type kind %T", kind))
	}
}

func (g *Graph) witResource(def *wit.TypeDef) (ResourceID, error) {
	for def != nil {
		if r, ok := g.witRes[def]; ok {
			return r, nil
		}
		// follow aliases of the resource definition
		next, ok := any(def.Kind).(*wit.TypeDef)
		if !ok {
			break
		}
		def = next
	}
	return 0, errors.NotFound(errors.PhaseCompile, "resource binding", "handle target")
}

func fieldErr(err error, name string) error {
	if e, ok := err.(*errors.Error); ok {
		c := *e
		c.Path = append([]string{name}, e.Path...)
		return &c
	}
	return err
}
