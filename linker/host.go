package linker

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-adapter/adapter"
	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/handle"
	"github.com/wippyai/wasm-adapter/types"
	"go.uber.org/zap"
)

// raise aborts the running call with err. wazero recovers the panic and
// returns it wrapped, so the caller sees a fault through errors.As.
func raise(err error) {
	panic(err)
}

func must(v uint32, err error) uint32 {
	if err != nil {
		raise(err)
	}
	return v
}

// instantiateRuntime builds the "rt" host module over the instance's
// handle store.
func (inst *Instance) instantiateRuntime(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	s := inst.store
	return r.NewHostModuleBuilder(codegen.RuntimeModule).
		NewFunctionBuilder().WithFunc(func(_ context.Context, code int32) {
		panic(errors.NewFault(errors.FaultCode(code), "trap in adapter"))
	}).Export(codegen.RuntimeTrap).
		NewFunctionBuilder().WithFunc(func(_ context.Context, res, rep, mode uint32) uint32 {
		return must(s.New(types.ResourceID(res), rep, handle.Mode(mode)))
	}).Export(codegen.RuntimeHandleNew).
		NewFunctionBuilder().WithFunc(func(_ context.Context, res, idx uint32) uint32 {
		return must(s.Take(types.ResourceID(res), idx))
	}).Export(codegen.RuntimeHandleTake).
		NewFunctionBuilder().WithFunc(func(_ context.Context, res, idx uint32) uint32 {
		return must(s.Lend(types.ResourceID(res), idx))
	}).Export(codegen.RuntimeHandleLend).
		NewFunctionBuilder().WithFunc(func(_ context.Context, res, idx uint32) uint32 {
		return must(s.Drop(types.ResourceID(res), idx))
	}).Export(codegen.RuntimeHandleDrop).
		NewFunctionBuilder().WithFunc(func(context.Context) {
		s.BeginCall()
	}).Export(codegen.RuntimeCallBegin).
		NewFunctionBuilder().WithFunc(func(context.Context) {
		if err := s.EndCall(); err != nil {
			raise(err)
		}
	}).Export(codegen.RuntimeCallEnd).
		Instantiate(ctx)
}

// instantiateShim builds the "shim" host module that gives the adapter
// access to both sides' memories.
func (inst *Instance) instantiateShim(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	b := r.NewHostModuleBuilder(codegen.ShimModule)
	for id := adapter.A; id <= adapter.B; id++ {
		mem := func() api.Memory { return inst.sides[id].mem.mem }
		name := func(op string) string { return codegen.ShimName(op, uint32(id)) }

		b.NewFunctionBuilder().WithFunc(func(_ context.Context, addr, off uint32) uint32 {
			v, ok := mem().ReadByte(at(addr, off, 1))
			if !ok {
				outOfBounds(id, addr, off)
			}
			return uint32(v)
		}).Export(name(codegen.ShimLoad8))
		b.NewFunctionBuilder().WithFunc(func(_ context.Context, addr, off uint32) uint32 {
			v, ok := mem().ReadUint16Le(at(addr, off, 2))
			if !ok {
				outOfBounds(id, addr, off)
			}
			return uint32(v)
		}).Export(name(codegen.ShimLoad16))
		b.NewFunctionBuilder().WithFunc(func(_ context.Context, addr, off uint32) uint32 {
			v, ok := mem().ReadUint32Le(at(addr, off, 4))
			if !ok {
				outOfBounds(id, addr, off)
			}
			return v
		}).Export(name(codegen.ShimLoad32))
		b.NewFunctionBuilder().WithFunc(func(_ context.Context, addr, off uint32) uint64 {
			v, ok := mem().ReadUint64Le(at(addr, off, 8))
			if !ok {
				outOfBounds(id, addr, off)
			}
			return v
		}).Export(name(codegen.ShimLoad64))
		b.NewFunctionBuilder().WithFunc(func(_ context.Context, addr, v, off uint32) {
			if !mem().WriteByte(at(addr, off, 1), byte(v)) {
				outOfBounds(id, addr, off)
			}
		}).Export(name(codegen.ShimStore8))
		b.NewFunctionBuilder().WithFunc(func(_ context.Context, addr, v, off uint32) {
			if !mem().WriteUint16Le(at(addr, off, 2), uint16(v)) {
				outOfBounds(id, addr, off)
			}
		}).Export(name(codegen.ShimStore16))
		b.NewFunctionBuilder().WithFunc(func(_ context.Context, addr, v, off uint32) {
			if !mem().WriteUint32Le(at(addr, off, 4), v) {
				outOfBounds(id, addr, off)
			}
		}).Export(name(codegen.ShimStore32))
		b.NewFunctionBuilder().WithFunc(func(_ context.Context, addr uint32, v uint64, off uint32) {
			if !mem().WriteUint64Le(at(addr, off, 8), v) {
				outOfBounds(id, addr, off)
			}
		}).Export(name(codegen.ShimStore64))
		b.NewFunctionBuilder().WithFunc(func(context.Context) uint32 {
			return mem().Size() >> 16
		}).Export(name(codegen.ShimSize))
	}
	b.NewFunctionBuilder().WithFunc(func(_ context.Context, dst, src, n, dstID, srcID uint32) {
		if dstID > 1 || srcID > 1 {
			panic(errors.NewFault(errors.FaultDecodeError, "copy between unknown memories %d and %d", srcID, dstID))
		}
		from, ok := inst.sides[srcID].mem.mem.Read(src, n)
		if !ok {
			outOfBounds(adapter.SideID(srcID), src, 0)
		}
		if !inst.sides[dstID].mem.mem.Write(dst, from) {
			outOfBounds(adapter.SideID(dstID), dst, 0)
		}
	}).Export(codegen.ShimCopy)
	return b.Instantiate(ctx)
}

// at returns addr+off, or an address that fails the bounds check when the
// sum overflows.
func at(addr, off, size uint32) uint32 {
	sum := uint64(addr) + uint64(off)
	if sum+uint64(size) > 1<<32 {
		return ^uint32(0)
	}
	return uint32(sum)
}

func outOfBounds(id adapter.SideID, addr, off uint32) {
	panic(errors.NewFault(errors.FaultDecodeError, "memory %s access out of bounds at %d+%d", id, addr, off))
}

// observer logs handle lifecycle events.
func observer() handle.Observer {
	return handle.ObserverFunc(func(e handle.Event) {
		Logger().Debug("handle event",
			zap.Stringer("type", e.Type),
			zap.Uint32("resource", uint32(e.Resource)),
			zap.Uint32("index", e.Index),
			zap.Uint32("rep", e.Rep),
			zap.Stringer("mode", e.Mode))
	})
}
