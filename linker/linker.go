package linker

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-adapter/adapter"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/handle"
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options configures the adapters a Linker generates.
type Options struct {
	Adapter adapter.Options
}

// DefaultOptions returns shim-memory adapter options, since wazero has no
// multi-memory support.
func DefaultOptions() Options {
	opts := adapter.DefaultOptions()
	opts.Memory = adapter.ShimMemory
	return Options{Adapter: opts}
}

// Linker connects pairs of modules through generated adapters on one
// wazero runtime.
type Linker struct {
	runtime wazero.Runtime
	options Options
}

// New creates a Linker over rt.
func New(rt wazero.Runtime, opts Options) *Linker {
	return &Linker{runtime: rt, options: opts}
}

// NewWithDefaults creates a Linker with DefaultOptions.
func NewWithDefaults(rt wazero.Runtime) *Linker {
	return New(rt, DefaultOptions())
}

// Runtime returns the wazero runtime.
func (l *Linker) Runtime() wazero.Runtime {
	return l.runtime
}

// Options returns the configuration.
func (l *Linker) Options() Options {
	return l.options
}

// Module is one side of a link.
type Module struct {
	// Name is the instance name; the adapter imports the module's exports
	// under it.
	Name   string
	Binary []byte
	// Memory and Realloc override the default export names.
	Memory  string
	Realloc string
	// Config is applied to the instantiation. The name is overridden.
	Config wazero.ModuleConfig
}

// LinkConfig describes a link between two modules.
type LinkConfig struct {
	Iface *types.Interface
	// Caller imports the interface and Callee exports it, unless Bindings
	// say otherwise.
	Caller Module
	Callee Module
	// Bindings route functions individually. When empty every interface
	// function is imported by Caller.
	Bindings  []adapter.Binding
	Resources []adapter.Resource
	// ImportModule is the module name the interface is imported from.
	// Defaults to the interface name.
	ImportModule string
	// OnDrop receives the rep of every own handle dropped through the
	// adapter, before the owner's destructor export runs.
	OnDrop handle.Dropper
	// Concurrent makes the handle store safe for use from several
	// goroutines. Calls on one instance still must not overlap.
	Concurrent bool
}

func (c *LinkConfig) module(id adapter.SideID) *Module {
	if id == adapter.B {
		return &c.Callee
	}
	return &c.Caller
}

func (c *LinkConfig) importModule() string {
	if c.ImportModule != "" {
		return c.ImportModule
	}
	return c.Iface.Name
}

// Link verifies both modules against the interface, synthesizes the
// adapter and instantiates everything in dependency order: runtime, stub,
// caller, callee, adapter, fixup.
//
// The runtime module is named "rt" (and "shim" in shim mode), so a wazero
// runtime hosts one linked instance at a time.
func (l *Linker) Link(ctx context.Context, cfg LinkConfig) (*Instance, error) {
	if cfg.Iface == nil {
		return nil, errors.NotInitialized(errors.PhaseLinking, "interface")
	}
	bindings := cfg.Bindings
	if len(bindings) == 0 {
		for _, f := range cfg.Iface.Funcs {
			bindings = append(bindings, adapter.Binding{Func: f.Name, Caller: adapter.A})
		}
	}

	var compiled [2]wazero.CompiledModule
	var sides [2]adapter.Side
	var errs error
	for id := adapter.A; id <= adapter.B; id++ {
		m := cfg.module(id)
		cm, err := l.runtime.CompileModule(ctx, m.Binary)
		if err != nil {
			errs = multierr.Append(errs, errors.New(errors.PhaseLinking, errors.KindInvalidInput).
				Path(m.Name).Cause(err).Detail("compile").Build())
			continue
		}
		compiled[id] = cm
		side, err := contract(cm, m, cfg.importModule())
		errs = multierr.Append(errs, err)
		sides[id] = side
	}
	if errs != nil {
		closeCompiled(ctx, compiled)
		return nil, errs
	}

	out, err := adapter.Synthesize(adapter.Config{
		Iface:        cfg.Iface,
		A:            sides[adapter.A],
		B:            sides[adapter.B],
		Bindings:     bindings,
		Resources:    cfg.Resources,
		ImportModule: cfg.importModule(),
		Options:      l.options.Adapter,
	})
	if err != nil {
		closeCompiled(ctx, compiled)
		return nil, err
	}

	storeOpts := []handle.Option{handle.WithPolicy(l.options.Adapter.HandleReuse), handle.WithObserver(observer())}
	if cfg.Concurrent {
		storeOpts = append(storeOpts, handle.WithLocking())
	}
	if cfg.OnDrop != nil {
		storeOpts = append(storeOpts, handle.WithDropper(cfg.OnDrop))
	}
	inst := newInstance(cfg.Iface, out, l.options.Adapter, handle.NewStore(storeOpts...))

	if err := inst.instantiate(ctx, l.runtime, &cfg, compiled); err != nil {
		return nil, multierr.Append(err, inst.Close(ctx))
	}
	Logger().Info("linked",
		zap.String("interface", cfg.Iface.Name),
		zap.String("caller", cfg.Caller.Name),
		zap.String("callee", cfg.Callee.Name),
		zap.Stringer("memory", l.options.Adapter.Memory))
	return inst, nil
}

func closeCompiled(ctx context.Context, compiled [2]wazero.CompiledModule) {
	for _, cm := range compiled {
		if cm != nil {
			_ = cm.Close(ctx)
		}
	}
}

// contract reads the module boundary contract of a compiled module: its
// exported and imported function signatures.
func contract(cm wazero.CompiledModule, m *Module, importModule string) (adapter.Side, error) {
	side := adapter.Side{
		Name:    m.Name,
		Memory:  m.Memory,
		Realloc: m.Realloc,
		Exports: make(map[string]wasm.FuncType),
		Imports: make(map[string]wasm.FuncType),
	}
	if side.Name == "" {
		return side, errors.InvalidInput(errors.PhaseLinking, "module without a name")
	}
	mem := m.Memory
	if mem == "" {
		mem = adapter.DefaultMemory
	}
	if _, ok := cm.ExportedMemories()[mem]; !ok {
		return side, errors.MissingExport(m.Name, mem)
	}

	for name, def := range cm.ExportedFunctions() {
		side.Exports[name] = funcType(def)
	}
	for _, def := range cm.ImportedFunctions() {
		if mod, name, ok := def.Import(); ok && mod == importModule {
			side.Imports[name] = funcType(def)
		}
	}
	return side, nil
}

// funcType converts a wazero signature. api.ValueType uses the binary
// encoding of value types, as does wasm.ValType.
func funcType(def api.FunctionDefinition) wasm.FuncType {
	ft := wasm.FuncType{}
	for _, t := range def.ParamTypes() {
		ft.Params = append(ft.Params, wasm.ValType(t))
	}
	for _, t := range def.ResultTypes() {
		ft.Results = append(ft.Results, wasm.ValType(t))
	}
	return ft
}
