package linker

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-adapter/adapter"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/handle"
	"github.com/wippyai/wasm-adapter/layout"
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/value"
	"github.com/wippyai/wasm-adapter/wasm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type side struct {
	mod   api.Module
	mem   *memory
	alloc *allocator
	codec *value.Codec
}

// Instance is a linked pair of modules. Not safe for concurrent use.
type Instance struct {
	iface    *types.Interface
	out      *adapter.Module
	opts     adapter.Options
	store    *handle.Store
	calc     *layout.Calculator
	sides    [2]*side
	modules  []api.Module // in instantiation order
	compiled [2]wazero.CompiledModule
	funcs    map[string]api.Function
	drops    map[types.ResourceID]api.Function
	logLen   api.MutableGlobal
	closed   bool
}

func newInstance(iface *types.Interface, out *adapter.Module, opts adapter.Options, store *handle.Store) *Instance {
	inst := &Instance{
		iface: iface,
		out:   out,
		opts:  opts,
		store: store,
		calc:  layout.NewCalculator(iface.Graph),
		funcs: make(map[string]api.Function, len(out.Functions)),
		drops: make(map[types.ResourceID]api.Function, len(out.Drops)),
	}
	for id := adapter.A; id <= adapter.B; id++ {
		so := opts.Side(id)
		inst.sides[id] = &side{
			mem:   &memory{},
			alloc: &allocator{order: so.ReallocOrder},
			codec: value.NewCodec(inst.calc, value.WithEncoding(so.StringEncoding), value.WithFlags(opts.Flags)),
		}
	}
	return inst
}

func (inst *Instance) instantiate(ctx context.Context, r wazero.Runtime, cfg *LinkConfig, compiled [2]wazero.CompiledModule) error {
	step := func(name string, mod api.Module, err error) error {
		if err != nil {
			return errors.Instantiation(name, err)
		}
		inst.modules = append(inst.modules, mod)
		Logger().Debug("instantiated", zap.String("module", name))
		return nil
	}
	named := func(name string) wazero.ModuleConfig {
		return wazero.NewModuleConfig().WithName(name)
	}

	inst.compiled = compiled
	mod, err := inst.instantiateRuntime(ctx, r)
	if err := step("rt", mod, err); err != nil {
		return err
	}
	if inst.opts.Memory == adapter.ShimMemory {
		mod, err := inst.instantiateShim(ctx, r)
		if err := step("shim", mod, err); err != nil {
			return err
		}
	}
	mod, err = r.InstantiateWithConfig(ctx, inst.out.Stub.Encode(), named(inst.out.StubName))
	if err := step(inst.out.StubName, mod, err); err != nil {
		return err
	}

	for id := adapter.A; id <= adapter.B; id++ {
		m := cfg.module(id)
		mc := m.Config
		if mc == nil {
			mc = wazero.NewModuleConfig()
		}
		mod, err := r.InstantiateModule(ctx, compiled[id], mc.WithName(m.Name))
		if err := step(m.Name, mod, err); err != nil {
			return err
		}
		s := inst.sides[id]
		s.mod = mod
		memName, reallocName := m.Memory, m.Realloc
		if memName == "" {
			memName = adapter.DefaultMemory
		}
		if reallocName == "" {
			reallocName = adapter.DefaultRealloc
		}
		s.mem.mem = mod.ExportedMemory(memName)
		s.alloc.fn = mod.ExportedFunction(reallocName)
	}

	mod, err = r.InstantiateWithConfig(ctx, inst.out.Adapter.Encode(), named(inst.out.AdapterName))
	if err := step(inst.out.AdapterName, mod, err); err != nil {
		return err
	}
	inst.logLen = mod.ExportedGlobal(adapter.LogLenExport).(api.MutableGlobal)
	for _, fn := range inst.out.Functions {
		inst.funcs[fn.Name] = mod.ExportedFunction(fn.Name)
	}
	for _, d := range inst.out.Drops {
		inst.drops[d.Resource] = mod.ExportedFunction(d.Name)
	}

	fixup := inst.out.AdapterName + "$fixup"
	mod, err = r.InstantiateWithConfig(ctx, inst.out.Fixup.Encode(), named(fixup))
	return step(fixup, mod, err)
}

// Call invokes an interface function with the host acting as its caller.
// Arguments are lowered into the caller's memory, results are lifted and
// their memory released.
func (inst *Instance) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	fn, ok := inst.out.Function(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	if len(args) != len(fn.Func.Params) {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).Path(name).
			Detail("expected %d arguments, got %d", len(fn.Func.Params), len(args)).Build()
	}

	s := inst.sides[fn.Caller]
	s.alloc.ctx = ctx
	defer func() { s.alloc.ctx = nil }()
	tr := value.Track(s.alloc)
	defer tr.Release()

	flat, retptr, err := inst.lower(s, tr, fn, args)
	if err != nil {
		tr.FreeAll()
		return nil, err
	}
	res, err := inst.invoke(ctx, name, inst.funcs[name], flat)
	if err != nil {
		tr.FreeAll()
		return nil, err
	}
	out, err := inst.lift(s, fn, res, retptr)
	tr.FreeAll()
	return out, err
}

// CallRaw invokes the adapter export of name with core values in the
// caller's convention, skipping host-side lowering.
func (inst *Instance) CallRaw(ctx context.Context, name string, flat ...uint64) ([]uint64, error) {
	f, ok := inst.funcs[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	return inst.invoke(ctx, name, f, flat)
}

// Drop releases a handle the caller side holds, running the owner's
// destructor when one is registered.
func (inst *Instance) Drop(ctx context.Context, resource string, h value.Handle) error {
	for r, f := range inst.drops {
		if info, _ := inst.iface.Graph.ResourceInfo(r); info.Name == resource {
			_, err := inst.invoke(ctx, adapter.ResourceDropName(resource), f, []uint64{uint64(h)})
			return err
		}
	}
	return errors.NotFound(errors.PhaseRuntime, "resource", resource)
}

// invoke calls f and restores the adapter's log and call scopes when it
// traps, so the instance stays usable.
func (inst *Instance) invoke(ctx context.Context, name string, f api.Function, flat []uint64) ([]uint64, error) {
	if inst.closed {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "instance")
	}
	depth, mark := inst.store.Depth(), inst.logLen.Get()
	res, err := f.Call(ctx, flat...)
	if err == nil {
		return res, nil
	}

	inst.logLen.Set(mark)
	inst.store.Unwind(depth)
	if fault, ok := errors.AsFault(err); ok {
		Logger().Debug("call faulted", zap.String("func", name), zap.Stringer("code", fault.Code))
		return nil, fault
	}
	return nil, errors.New(errors.PhaseRuntime, errors.KindTrap).Path(name).Cause(err).Build()
}

func (inst *Instance) lower(s *side, tr *value.Allocations, fn *adapter.Function, args []any) ([]uint64, uint32, error) {
	sig := fn.Lower
	params := fn.Func.ParamTypes()
	var flat []uint64

	if sig.IndirectParams {
		ptr, err := alloc(tr, sig.Params)
		if err != nil {
			return nil, 0, err
		}
		for i, t := range params {
			if err := s.codec.Store(s.mem, tr, t, ptr+sig.ParamOffsets[i], args[i]); err != nil {
				return nil, 0, err
			}
		}
		flat = append(flat, uint64(ptr))
	} else {
		for i, t := range params {
			v, err := s.codec.Lower(s.mem, tr, t, args[i])
			if err != nil {
				return nil, 0, err
			}
			flat = append(flat, v...)
		}
	}

	var retptr uint32
	if sig.IndirectResults {
		ptr, err := alloc(tr, sig.Results)
		if err != nil {
			return nil, 0, err
		}
		retptr = ptr
		flat = append(flat, uint64(ptr))
	}
	return flat, retptr, nil
}

func alloc(tr *value.Allocations, info layout.Info) (uint32, error) {
	ptr, err := tr.Alloc(info.Size, info.Align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, info.Size, info.Align, err)
	}
	if ptr == 0 {
		return 0, errors.NewFault(errors.FaultAllocationFailure, "allocator returned 0 for %d bytes", info.Size)
	}
	return ptr, nil
}

func (inst *Instance) lift(s *side, fn *adapter.Function, res []uint64, retptr uint32) ([]any, error) {
	sig := fn.Lower
	results := fn.Func.ResultTypes()
	out := make([]any, len(results))

	if sig.IndirectResults {
		for i, t := range results {
			addr := retptr + sig.ResultOffsets[i]
			v, err := s.codec.Load(s.mem, t, addr)
			if err != nil {
				return nil, err
			}
			out[i] = v
			if err := s.codec.Free(s.mem, s.alloc, t, addr); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	// i32 and f32 results only define their low 32 bits
	for i, t := range sig.Core.Results {
		if t == wasm.ValI32 || t == wasm.ValF32 {
			res[i] = uint64(uint32(res[i]))
		}
	}
	for i, t := range results {
		n := inst.calc.Info(t).FlatCount()
		v, err := s.codec.Lift(s.mem, t, res[:n])
		if err != nil {
			return nil, err
		}
		out[i] = v
		if err := s.codec.FreeFlat(s.mem, s.alloc, t, res[:n]); err != nil {
			return nil, err
		}
		res = res[n:]
	}
	return out, nil
}

// Module returns the instantiated module of a side.
func (inst *Instance) Module(id adapter.SideID) api.Module {
	return inst.sides[id].mod
}

// Store returns the instance's handle store.
func (inst *Instance) Store() *handle.Store {
	return inst.store
}

// Adapter returns the synthesized modules.
func (inst *Instance) Adapter() *adapter.Module {
	return inst.out
}

// Close closes every module in reverse instantiation order.
func (inst *Instance) Close(ctx context.Context) error {
	if inst.closed {
		return nil
	}
	inst.closed = true
	var errs error
	for i := len(inst.modules) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, inst.modules[i].Close(ctx))
	}
	for _, cm := range inst.compiled {
		if cm != nil {
			errs = multierr.Append(errs, cm.Close(ctx))
		}
	}
	return errs
}
