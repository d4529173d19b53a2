package adapter

import (
	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/wasm"
)

// function emits the body of one adapter function. It is called with the
// caller's core arguments and returns the caller's core results:
//
//  1. open a call scope if parameters carry borrows
//  2. translate the parameters into the callee, allocating there
//  3. call the callee
//  4. translate the results back, through the return pointer if indirect
//  5. call the callee's post-return, free transient copies, close the scope
func (s *synth) function(fn *Function, env *codegen.Env, sides [2]*codegen.Side, log *codegen.Log) wasm.FuncBody {
	b := codegen.NewFuncBuilder(fn.Lower.Core.Params, env.Runtime.Trap)
	lower, lift := fn.Lower, fn.Lift
	f := fn.Func

	down := codegen.NewTranslator(b, env, sides[fn.Caller], sides[fn.Callee])
	up := down.Reverse()
	// the log needs the callee's allocator to free entries
	transient := s.opts.Side(fn.Callee).TransientParams && s.needsRealloc[fn.Callee]
	var mark codegen.Local
	if transient {
		mark = log.Mark(b)
		down = down.WithLog(log)
	}
	if fn.Borrows {
		b.Call(env.Runtime.CallBegin)
	}

	if lift.IndirectParams {
		src := b.Param(0)
		down.CheckPointer(src, lower.Params.Size, lower.Params.Align)
		dst := down.AllocBlock(lift.Params.Size, lift.Params.Align)
		for i, p := range f.Params {
			down.Mem(p.Type,
				codegen.Place{Base: src, Offset: lower.ParamOffsets[i]},
				codegen.Place{Base: dst, Offset: lift.ParamOffsets[i]})
		}
		b.Get(dst)
	} else {
		next := 0
		var args []codegen.Local
		for _, p := range f.Params {
			n := s.calc.Info(p.Type).FlatCount()
			in := make([]codegen.Local, n)
			for k := range in {
				in[k] = b.Param(next + k)
			}
			next += n
			args = append(args, down.Flat(p.Type, in)...)
		}
		for _, a := range args {
			b.Get(a)
		}
	}
	b.Call(fn.calleeIdx)

	var core, outs []codegen.Local
	if lift.IndirectResults {
		src := b.NewLocal(wasm.ValI32)
		b.Set(src)
		core = []codegen.Local{src}
		ret := b.Param(len(lower.Core.Params) - 1)
		up.CheckPointer(src, lift.Results.Size, lift.Results.Align)
		up.CheckDestPointer(ret, lower.Results.Size, lower.Results.Align)
		for i, r := range f.Results {
			up.Mem(r.Type,
				codegen.Place{Base: src, Offset: lift.ResultOffsets[i]},
				codegen.Place{Base: ret, Offset: lower.ResultOffsets[i]})
		}
	} else {
		core = make([]codegen.Local, len(lift.ResultFlat))
		for i, t := range lift.ResultFlat {
			core[i] = b.NewLocal(t)
		}
		for i := len(core) - 1; i >= 0; i-- {
			b.Set(core[i])
		}
		next := 0
		for _, r := range f.Results {
			n := s.calc.Info(r.Type).FlatCount()
			outs = append(outs, up.Flat(r.Type, core[next:next+n])...)
			next += n
		}
	}

	if fn.PostReturn {
		for _, l := range core {
			b.Get(l)
		}
		b.Call(fn.postIdx)
	}
	if transient {
		log.Unwind(b, mark, sides[fn.Callee])
	}
	if fn.Borrows {
		b.Call(env.Runtime.CallEnd)
	}
	for _, l := range outs {
		b.Get(l)
	}
	return b.Body()
}
