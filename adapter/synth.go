package adapter

import (
	"strconv"

	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/layout"
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	i32         = wasm.ValI32
	reallocType = wasm.FuncType{Params: []wasm.ValType{i32, i32, i32, i32}, Results: []wasm.ValType{i32}}
	dtorType    = wasm.FuncType{Params: []wasm.ValType{i32}}
	dropType    = dtorType
)

// Function is one synthesized adapter function.
type Function struct {
	Name   string
	Func   *types.Func
	Lower  layout.Signature // the caller's import and the adapter export
	Lift   layout.Signature // the callee's export
	Caller SideID
	Callee SideID
	// PostReturn is set when the callee exports cabi_post_<name>.
	PostReturn bool
	// Borrows is set when a parameter carries a borrowed handle, which
	// makes the function open a call scope.
	Borrows bool

	calleeIdx uint32
	postIdx   uint32
}

// Drop is a synthesized resource drop export.
type Drop struct {
	Name       string
	Resource   types.ResourceID
	Owner      SideID
	Destructor bool

	dtorIdx uint32
}

// Module is the output of Synthesize. Instantiate Stub first under
// StubName, then both sides, then Adapter under AdapterName, then Fixup.
type Module struct {
	Adapter     *wasm.Module
	Stub        *wasm.Module
	Fixup       *wasm.Module
	StubName    string
	AdapterName string
	Functions   []*Function
	Drops       []*Drop
}

// Function returns the adapter function for an interface function.
func (m *Module) Function(name string) (*Function, bool) {
	for _, f := range m.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Drop returns the drop export of a resource.
func (m *Module) Drop(res types.ResourceID) (*Drop, bool) {
	for _, d := range m.Drops {
		if d.Resource == res {
			return d, true
		}
	}
	return nil, false
}

// ExportType returns the core type of an adapter export.
func (m *Module) ExportType(name string) (wasm.FuncType, bool) {
	exp, ok := m.Adapter.FindExport(name)
	if !ok || exp.Kind != wasm.KindFunc {
		return wasm.FuncType{}, false
	}
	return m.Adapter.FuncType(exp.Idx)
}

type synth struct {
	cfg   *Config
	g     *types.Graph
	calc  *layout.Calculator
	opts  Options
	out   *Module
	owner map[types.ResourceID]SideID

	needsRealloc [2]bool
}

// Synthesize generates the adapter, stub and fixup modules for cfg.
// Contract violations of the two sides are reported together.
func Synthesize(cfg Config) (*Module, error) {
	if cfg.Iface == nil {
		return nil, errors.NotInitialized(errors.PhaseSynth, "interface")
	}
	if err := cfg.Iface.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}

	s := &synth{
		cfg:   &cfg,
		g:     cfg.Iface.Graph,
		calc:  layout.NewCalculator(cfg.Iface.Graph),
		opts:  cfg.Options,
		owner: make(map[types.ResourceID]SideID, len(cfg.Resources)),
		out: &Module{
			StubName:    cfg.importModule(),
			AdapterName: cfg.adapterName(),
		},
	}
	if err := s.plan(); err != nil {
		return nil, err
	}
	s.buildAdapter()
	s.buildStub()
	s.buildFixup()
	Logger().Debug("synthesized adapter",
		zap.String("interface", cfg.Iface.Name),
		zap.Int("functions", len(s.out.Functions)),
		zap.Int("drops", len(s.out.Drops)),
		zap.Stringer("memory", cfg.Options.Memory))
	return s.out, nil
}

// plan computes signatures and checks both sides' contracts.
func (s *synth) plan() error {
	var errs error
	lim := s.opts.Limits()

	for _, r := range s.cfg.Resources {
		info, ok := s.g.ResourceInfo(r.Type)
		if !ok {
			errs = multierr.Append(errs, errors.NotFound(errors.PhaseSynth, "resource", "id "+strconv.FormatUint(uint64(r.Type), 10)))
			continue
		}
		if _, dup := s.owner[r.Type]; dup {
			errs = multierr.Append(errs, errors.Duplicate(errors.PhaseSynth, "resource", info.Name))
			continue
		}
		s.owner[r.Type] = r.Owner
		d := &Drop{Name: ResourceDropName(info.Name), Resource: r.Type, Owner: r.Owner}
		if r.Destructor != "" {
			d.Destructor = true
			errs = multierr.Append(errs, s.checkExport(r.Owner, r.Destructor, dtorType))
		}
		s.out.Drops = append(s.out.Drops, d)
	}

	seen := make(map[string]bool, len(s.cfg.Bindings))
	for _, bnd := range s.cfg.Bindings {
		f, ok := s.cfg.Iface.Func(bnd.Func)
		if !ok {
			errs = multierr.Append(errs, errors.NotFound(errors.PhaseSynth, "function", bnd.Func))
			continue
		}
		if seen[bnd.Func] {
			errs = multierr.Append(errs, errors.Duplicate(errors.PhaseSynth, "binding", bnd.Func))
			continue
		}
		seen[bnd.Func] = true

		fn := &Function{
			Name:   f.Name,
			Func:   f,
			Lower:  s.calc.Signature(f, layout.Lower, lim),
			Lift:   s.calc.Signature(f, layout.Lift, lim),
			Caller: bnd.Caller,
			Callee: bnd.Caller.Other(),
		}
		errs = multierr.Append(errs, s.checkFunction(fn))
		s.out.Functions = append(s.out.Functions, fn)

		Logger().Debug("planned adapter function",
			zap.String("func", fn.Name),
			zap.Stringer("caller", fn.Caller),
			zap.Stringer("lower", fn.Lower.Core),
			zap.Stringer("lift", fn.Lift.Core),
			zap.Bool("indirect_params", fn.Lift.IndirectParams),
			zap.Bool("indirect_results", fn.Lift.IndirectResults),
			zap.Bool("borrows", fn.Borrows))
	}

	for id := SideID(0); id <= B; id++ {
		if !s.needsRealloc[id] {
			continue
		}
		side := s.cfg.side(id)
		got, ok := side.Exports[side.realloc()]
		if !ok {
			errs = multierr.Append(errs, errors.New(errors.PhaseLinking, errors.KindMissingImport).
				Path(side.Name, side.realloc()).
				Detail("module receives lists, strings or indirect parameters but exports no allocator").Build())
			continue
		}
		if !got.Equal(reallocType) {
			errs = multierr.Append(errs, errors.SignatureMismatch(side.Name, side.realloc(), reallocType.String(), got.String()))
		}
	}
	return errs
}

func (s *synth) checkFunction(fn *Function) error {
	var errs error
	f := fn.Func
	caller, callee := s.cfg.side(fn.Caller), s.cfg.side(fn.Callee)

	errs = multierr.Append(errs, s.checkExport(fn.Callee, f.Name, fn.Lift.Core))
	if got, ok := caller.Imports[f.Name]; ok && !got.Equal(fn.Lower.Core) {
		errs = multierr.Append(errs, errors.SignatureMismatch(caller.Name, f.Name, fn.Lower.Core.String(), got.String()))
	}
	if got, ok := callee.Exports[PostReturnName(f.Name)]; ok {
		fn.PostReturn = true
		if want := fn.Lift.PostReturn(); !got.Equal(want) {
			errs = multierr.Append(errs, errors.SignatureMismatch(callee.Name, PostReturnName(f.Name), want.String(), got.String()))
		}
	}

	params, results := f.ParamTypes(), f.ResultTypes()
	for _, id := range params {
		if s.g.Contains(id, isKind(types.KindBorrow)) {
			fn.Borrows = true
		}
	}
	if fn.Lift.IndirectParams || s.allocates(params) {
		s.needsRealloc[fn.Callee] = true
	}
	if s.allocates(results) {
		s.needsRealloc[fn.Caller] = true
	}

	for _, id := range append(params, results...) {
		for _, r := range s.resources(id, nil) {
			if _, ok := s.owner[r]; !ok {
				info, _ := s.g.ResourceInfo(r)
				errs = multierr.Append(errs, errors.New(errors.PhaseSynth, errors.KindNotFound).
					Path(f.Name).Detail("resource %q has no owner", info.Name).Build())
			}
		}
	}
	return errs
}

func (s *synth) checkExport(id SideID, name string, want wasm.FuncType) error {
	side := s.cfg.side(id)
	got, ok := side.Exports[name]
	if !ok {
		return errors.MissingExport(side.Name, name)
	}
	if !got.Equal(want) {
		return errors.SignatureMismatch(side.Name, name, want.String(), got.String())
	}
	return nil
}

func (s *synth) allocates(ids []types.ID) bool {
	for _, id := range ids {
		if s.g.Contains(id, func(k types.Kind) bool { return k == types.KindString || k == types.KindList }) {
			return true
		}
	}
	return false
}

// resources appends every resource referenced by handles in id.
func (s *synth) resources(id types.ID, out []types.ResourceID) []types.ResourceID {
	n := s.g.Node(id)
	if n.Kind.IsHandle() {
		return append(out, n.Resource)
	}
	for _, c := range s.g.Children(id) {
		out = s.resources(c, out)
	}
	return out
}

func isKind(k types.Kind) func(types.Kind) bool {
	return func(x types.Kind) bool { return x == k }
}

// buildAdapter emits the adapter module. Imports come first: runtime,
// memory shims, allocators, callee functions, post-returns, destructors
// and, in multi mode, the two memories.
func (s *synth) buildAdapter() {
	m := &wasm.Module{}
	rt := codegen.ImportRuntime(m)

	var mems [2]codegen.Memory
	copier := codegen.DirectCopier()
	shim := s.opts.Memory == ShimMemory
	if shim {
		mems[A] = codegen.ImportShim(m, uint32(A))
		mems[B] = codegen.ImportShim(m, uint32(B))
		copier = codegen.ImportShimCopy(m)
	}

	var sides [2]*codegen.Side
	for id := SideID(0); id <= B; id++ {
		side := s.cfg.side(id)
		so := s.opts.Side(id)
		sides[id] = &codegen.Side{Order: so.ReallocOrder, Encoding: so.StringEncoding, ID: uint8(id)}
		if s.needsRealloc[id] {
			sides[id].Realloc = m.ImportFunc(side.Name, side.realloc(), reallocType)
		}
	}
	for _, fn := range s.out.Functions {
		fn.calleeIdx = m.ImportFunc(s.cfg.side(fn.Callee).Name, fn.Name, fn.Lift.Core)
	}
	for _, fn := range s.out.Functions {
		if fn.PostReturn {
			fn.postIdx = m.ImportFunc(s.cfg.side(fn.Callee).Name, PostReturnName(fn.Name), fn.Lift.PostReturn())
		}
	}
	for i, d := range s.out.Drops {
		if d.Destructor {
			d.dtorIdx = m.ImportFunc(s.cfg.side(d.Owner).Name, s.cfg.Resources[i].Destructor, dtorType)
		}
	}

	if !shim {
		for id := SideID(0); id <= B; id++ {
			side := s.cfg.side(id)
			mems[id] = codegen.Direct{Index: m.ImportMemory(side.Name, side.memory(), 0)}
		}
	}
	for id := range sides {
		sides[id].Mem = mems[id]
	}

	log := &codegen.Log{
		Mem: codegen.Direct{Index: m.AddMemory(0)},
		Len: m.AddGlobal(wasm.GlobalType{ValType: i32, Mutable: true}, wasm.ConstI32(0)),
	}
	m.Export(LogLenExport, wasm.KindGlobal, log.Len)

	owners := make(map[types.ResourceID]uint8, len(s.owner))
	for r, id := range s.owner {
		owners[r] = uint8(id)
	}
	env := &codegen.Env{
		Calc:    s.calc,
		Owners:  owners,
		Runtime: rt,
		Copier:  copier,
		Flags:   s.opts.Flags,
	}

	for _, fn := range s.out.Functions {
		body := s.function(fn, env, sides, log)
		m.Export(fn.Name, wasm.KindFunc, m.AddFunc(fn.Lower.Core, body))
	}
	for _, d := range s.out.Drops {
		m.Export(d.Name, wasm.KindFunc, m.AddFunc(dropType, s.drop(d, rt)))
	}
	s.out.Adapter = m
}

func (s *synth) drop(d *Drop, rt codegen.Runtime) wasm.FuncBody {
	b := codegen.NewFuncBuilder(dropType.Params, rt.Trap)
	b.U32Const(uint32(d.Resource)).Get(b.Param(0)).Call(rt.HandleDrop)
	if d.Destructor {
		b.Call(d.dtorIdx)
	} else {
		b.Op(wasm.OpDrop)
	}
	return b.Body()
}
