package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-adapter/errors"
	"go.bytecodealliance.org/wit"
)

// ID references a node in a Graph. The zero ID is None.
type ID uint32

// None marks an absent payload in option, result and variant cases.
const None ID = 0

// MaxFlags is the largest supported flags type.
const MaxFlags = 64

// ResourceID references a resource registered in a Graph.
type ResourceID uint32

// Field is a named record member.
type Field struct {
	Name string
	Type ID
}

// Case is a variant case; Type is None when the case has no payload.
type Case struct {
	Name string
	Type ID
}

// Node is one interface type. Option, result and enum carry their
// normalized cases so every variant-like kind is handled uniformly.
type Node struct {
	Fields   []Field  // record
	Types    []ID     // tuple
	Cases    []Case   // variant, option, result, enum
	Flags    []string // flags
	Elem     ID       // list
	Resource ResourceID
	Kind     Kind
}

// Resource is a named resource type. Handles refer to it by ResourceID.
type Resource struct {
	Name string
}

// Graph is an arena of interface types. Structurally identical types are
// interned to a single ID, so shared subtypes are stored once and layout
// memoization by ID stays exact.
type Graph struct {
	nodes     []Node
	interned  map[string]ID
	resources []Resource
	byName    map[string]ResourceID
	wit       map[*wit.TypeDef]ID
	witRes    map[*wit.TypeDef]ResourceID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:     []Node{{}}, // None placeholder
		interned:  make(map[string]ID),
		resources: []Resource{{}},
		byName:    make(map[string]ResourceID),
		wit:       make(map[*wit.TypeDef]ID),
		witRes:    make(map[*wit.TypeDef]ResourceID),
	}
}

// Must panics if err is non-nil. It is intended for statically known types.
func Must(id ID, err error) ID {
	if err != nil {
		panic(err)
	}
	return id
}

// Node returns the node for id.
func (g *Graph) Node(id ID) *Node {
	return &g.nodes[id]
}

// Kind returns the kind of id.
func (g *Graph) Kind(id ID) Kind {
	return g.nodes[id].Kind
}

// Valid reports whether id references a type in g.
func (g *Graph) Valid(id ID) bool {
	return id != None && int(id) < len(g.nodes)
}

// Len returns the number of types in the graph.
func (g *Graph) Len() int {
	return len(g.nodes) - 1
}

func (g *Graph) intern(n Node) ID {
	key := g.key(n)
	if id, ok := g.interned[key]; ok {
		return id
	}
	id := ID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.interned[key] = id
	return id
}

func (g *Graph) key(n Node) string {
	var b strings.Builder
	b.WriteString(n.Kind.String())
	b.WriteByte('(')
	switch n.Kind {
	case KindRecord:
		for _, f := range n.Fields {
			b.WriteString(f.Name)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(int(f.Type)))
			b.WriteByte(',')
		}
	case KindTuple:
		for _, t := range n.Types {
			b.WriteString(strconv.Itoa(int(t)))
			b.WriteByte(',')
		}
	case KindVariant, KindOption, KindResult, KindEnum:
		for _, c := range n.Cases {
			b.WriteString(c.Name)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(int(c.Type)))
			b.WriteByte(',')
		}
	case KindFlags:
		b.WriteString(strings.Join(n.Flags, ","))
	case KindList:
		b.WriteString(strconv.Itoa(int(n.Elem)))
	case KindOwn, KindBorrow:
		b.WriteString(strconv.Itoa(int(n.Resource)))
	}
	b.WriteByte(')')
	return b.String()
}

func (g *Graph) prim(k Kind) ID { return g.intern(Node{Kind: k}) }

func (g *Graph) Bool() ID       { return g.prim(KindBool) }
func (g *Graph) U8() ID         { return g.prim(KindU8) }
func (g *Graph) S8() ID         { return g.prim(KindS8) }
func (g *Graph) U16() ID        { return g.prim(KindU16) }
func (g *Graph) S16() ID        { return g.prim(KindS16) }
func (g *Graph) U32() ID        { return g.prim(KindU32) }
func (g *Graph) S32() ID        { return g.prim(KindS32) }
func (g *Graph) U64() ID        { return g.prim(KindU64) }
func (g *Graph) S64() ID        { return g.prim(KindS64) }
func (g *Graph) F32() ID        { return g.prim(KindF32) }
func (g *Graph) F64() ID        { return g.prim(KindF64) }
func (g *Graph) Char() ID       { return g.prim(KindChar) }
func (g *Graph) StringType() ID { return g.prim(KindString) }

// Primitive returns the scalar or string type of kind k.
func (g *Graph) Primitive(k Kind) (ID, error) {
	if !k.IsPrimitive() && k != KindString {
		return None, errors.InvalidInput(errors.PhaseCompile, k.String()+" is not a primitive")
	}
	return g.prim(k), nil
}

func (g *Graph) check(what string, ids ...ID) error {
	for _, id := range ids {
		if !g.Valid(id) {
			return errors.InvalidInput(errors.PhaseCompile, fmt.Sprintf("%s references unknown type %d", what, id))
		}
	}
	return nil
}

// List returns list<elem>.
func (g *Graph) List(elem ID) (ID, error) {
	if err := g.check("list", elem); err != nil {
		return None, err
	}
	return g.intern(Node{Kind: KindList, Elem: elem}), nil
}

// Record returns a record with the given ordered fields.
func (g *Graph) Record(fields ...Field) (ID, error) {
	if len(fields) == 0 {
		return None, errors.InvalidInput(errors.PhaseCompile, "record must have at least one field")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return None, errors.Duplicate(errors.PhaseCompile, "record field", f.Name)
		}
		seen[f.Name] = true
		if err := g.check("record field "+f.Name, f.Type); err != nil {
			return None, err
		}
	}
	return g.intern(Node{Kind: KindRecord, Fields: append([]Field(nil), fields...)}), nil
}

// Tuple returns tuple<types...>.
func (g *Graph) Tuple(types ...ID) (ID, error) {
	if err := g.check("tuple", types...); err != nil {
		return None, err
	}
	return g.intern(Node{Kind: KindTuple, Types: append([]ID(nil), types...)}), nil
}

// Variant returns a variant with the given ordered cases.
func (g *Graph) Variant(cases ...Case) (ID, error) {
	if len(cases) == 0 {
		return None, errors.InvalidInput(errors.PhaseCompile, "variant must have at least one case")
	}
	if err := g.checkCases(cases); err != nil {
		return None, err
	}
	return g.intern(Node{Kind: KindVariant, Cases: append([]Case(nil), cases...)}), nil
}

func (g *Graph) checkCases(cases []Case) error {
	seen := make(map[string]bool, len(cases))
	for _, c := range cases {
		if seen[c.Name] {
			return errors.Duplicate(errors.PhaseCompile, "case", c.Name)
		}
		seen[c.Name] = true
		if c.Type != None {
			if err := g.check("case "+c.Name, c.Type); err != nil {
				return err
			}
		}
	}
	return nil
}

// Enum returns an enum with the given case names.
func (g *Graph) Enum(names ...string) (ID, error) {
	if len(names) == 0 {
		return None, errors.InvalidInput(errors.PhaseCompile, "enum must have at least one case")
	}
	cases := make([]Case, len(names))
	for i, n := range names {
		cases[i] = Case{Name: n}
	}
	if err := g.checkCases(cases); err != nil {
		return None, err
	}
	return g.intern(Node{Kind: KindEnum, Cases: cases}), nil
}

// Option returns option<t>, normalized to none | some(t).
func (g *Graph) Option(t ID) (ID, error) {
	if err := g.check("option", t); err != nil {
		return None, err
	}
	return g.intern(Node{Kind: KindOption, Cases: []Case{{Name: "none"}, {Name: "some", Type: t}}}), nil
}

// Result returns result<ok, err>, normalized to ok(ok?) | err(err?).
// Either side may be None.
func (g *Graph) Result(ok, err ID) (ID, error) {
	for _, id := range []ID{ok, err} {
		if id != None {
			if e := g.check("result", id); e != nil {
				return None, e
			}
		}
	}
	return g.intern(Node{Kind: KindResult, Cases: []Case{{Name: "ok", Type: ok}, {Name: "err", Type: err}}}), nil
}

// Flags returns a flags type with one bit per name.
func (g *Graph) Flags(names ...string) (ID, error) {
	if len(names) > MaxFlags {
		return None, errors.Unsupported(errors.PhaseCompile, fmt.Sprintf("flags with %d names (max %d)", len(names), MaxFlags))
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return None, errors.Duplicate(errors.PhaseCompile, "flag", n)
		}
		seen[n] = true
	}
	return g.intern(Node{Kind: KindFlags, Flags: append([]string(nil), names...)}), nil
}

// Resource registers a named resource, returning the existing one if the
// name is already known.
func (g *Graph) Resource(name string) ResourceID {
	if id, ok := g.byName[name]; ok {
		return id
	}
	id := ResourceID(len(g.resources))
	g.resources = append(g.resources, Resource{Name: name})
	g.byName[name] = id
	return id
}

// ResourceInfo returns a registered resource.
func (g *Graph) ResourceInfo(r ResourceID) (Resource, bool) {
	if r == 0 || int(r) >= len(g.resources) {
		return Resource{}, false
	}
	return g.resources[r], true
}

// LookupResource finds a resource by name.
func (g *Graph) LookupResource(name string) (ResourceID, bool) {
	id, ok := g.byName[name]
	return id, ok
}

// Resources returns all registered resources in registration order.
func (g *Graph) Resources() []ResourceID {
	out := make([]ResourceID, 0, len(g.resources)-1)
	for i := 1; i < len(g.resources); i++ {
		out = append(out, ResourceID(i))
	}
	return out
}

// Own returns own<r>.
func (g *Graph) Own(r ResourceID) (ID, error) {
	if _, ok := g.ResourceInfo(r); !ok {
		return None, errors.InvalidInput(errors.PhaseCompile, fmt.Sprintf("unknown resource %d", r))
	}
	return g.intern(Node{Kind: KindOwn, Resource: r}), nil
}

// Borrow returns borrow<r>.
func (g *Graph) Borrow(r ResourceID) (ID, error) {
	if _, ok := g.ResourceInfo(r); !ok {
		return None, errors.InvalidInput(errors.PhaseCompile, fmt.Sprintf("unknown resource %d", r))
	}
	return g.intern(Node{Kind: KindBorrow, Resource: r}), nil
}

// Describe renders id in interface-description syntax.
func (g *Graph) Describe(id ID) string {
	if !g.Valid(id) {
		return "<none>"
	}
	n := g.Node(id)
	switch n.Kind {
	case KindList:
		return "list<" + g.Describe(n.Elem) + ">"
	case KindRecord:
		parts := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			parts[i] = f.Name + ": " + g.Describe(f.Type)
		}
		return "record{" + strings.Join(parts, ", ") + "}"
	case KindTuple:
		parts := make([]string, len(n.Types))
		for i, t := range n.Types {
			parts[i] = g.Describe(t)
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case KindVariant:
		parts := make([]string, len(n.Cases))
		for i, c := range n.Cases {
			parts[i] = c.Name
			if c.Type != None {
				parts[i] += "(" + g.Describe(c.Type) + ")"
			}
		}
		return "variant{" + strings.Join(parts, ", ") + "}"
	case KindEnum:
		parts := make([]string, len(n.Cases))
		for i, c := range n.Cases {
			parts[i] = c.Name
		}
		return "enum{" + strings.Join(parts, ", ") + "}"
	case KindOption:
		return "option<" + g.Describe(n.Cases[1].Type) + ">"
	case KindResult:
		ok, er := "_", "_"
		if n.Cases[0].Type != None {
			ok = g.Describe(n.Cases[0].Type)
		}
		if n.Cases[1].Type != None {
			er = g.Describe(n.Cases[1].Type)
		}
		return "result<" + ok + ", " + er + ">"
	case KindFlags:
		return "flags{" + strings.Join(n.Flags, ", ") + "}"
	case KindOwn, KindBorrow:
		r, _ := g.ResourceInfo(n.Resource)
		return n.Kind.String() + "<" + r.Name + ">"
	default:
		return n.Kind.String()
	}
}

// Children lists the direct subtypes of id.
func (g *Graph) Children(id ID) []ID {
	n := g.Node(id)
	switch n.Kind {
	case KindList:
		return []ID{n.Elem}
	case KindRecord:
		out := make([]ID, len(n.Fields))
		for i, f := range n.Fields {
			out[i] = f.Type
		}
		return out
	case KindTuple:
		return n.Types
	case KindVariant, KindOption, KindResult:
		var out []ID
		for _, c := range n.Cases {
			if c.Type != None {
				out = append(out, c.Type)
			}
		}
		return out
	}
	return nil
}

// Contains reports whether id or any type reachable from it satisfies pred.
func (g *Graph) Contains(id ID, pred func(Kind) bool) bool {
	if pred(g.Kind(id)) {
		return true
	}
	for _, c := range g.Children(id) {
		if g.Contains(c, pred) {
			return true
		}
	}
	return false
}
