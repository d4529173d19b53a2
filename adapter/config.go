package adapter

import (
	"github.com/wippyai/wasm-adapter/types"
	"github.com/wippyai/wasm-adapter/wasm"
)

// SideID names one of the two modules an adapter connects.
type SideID uint8

const (
	A SideID = iota
	B
)

func (s SideID) String() string {
	if s == B {
		return "b"
	}
	return "a"
}

// Other returns the opposite side.
func (s SideID) Other() SideID {
	return 1 - s
}

// Default export names of the module boundary contract.
const (
	DefaultMemory  = "memory"
	DefaultRealloc = "cabi_realloc"
)

// Side describes one module: the names it is instantiated under and the
// core signatures it exports and imports.
type Side struct {
	// Name is the module name the side is instantiated under. The adapter
	// imports the side's exports from it.
	Name string
	// Memory is the exported memory name. Defaults to "memory".
	Memory string
	// Realloc is the exported allocator name. Defaults to "cabi_realloc".
	Realloc string
	// Exports holds the core signature of every exported function,
	// including realloc, post-return functions and destructors.
	Exports map[string]wasm.FuncType
	// Imports holds the core signatures the side imports from the
	// adapter. Functions missing from it are not checked.
	Imports map[string]wasm.FuncType
}

func (s Side) memory() string {
	if s.Memory == "" {
		return DefaultMemory
	}
	return s.Memory
}

func (s Side) realloc() string {
	if s.Realloc == "" {
		return DefaultRealloc
	}
	return s.Realloc
}

// Binding routes one interface function. Caller imports it; the other
// side exports it.
type Binding struct {
	Func   string
	Caller SideID
}

// Resource assigns a resource type to the side that implements it.
// Destructor is the owner's export called with the rep when the last
// handle is dropped; it may be empty.
type Resource struct {
	Destructor string
	Type       types.ResourceID
	Owner      SideID
}

// Config is the input of Synthesize.
type Config struct {
	Iface     *types.Interface
	A, B      Side
	Bindings  []Binding
	Resources []Resource
	// ImportModule is the module name callers import interface functions
	// and resource drops from. Defaults to the interface name.
	ImportModule string
	// AdapterName is the adapter's instance name. Defaults to
	// "<ImportModule>$adapter".
	AdapterName string
	Options     Options
}

func (c *Config) side(id SideID) *Side {
	if id == B {
		return &c.B
	}
	return &c.A
}

func (c *Config) importModule() string {
	if c.ImportModule != "" {
		return c.ImportModule
	}
	return c.Iface.Name
}

func (c *Config) adapterName() string {
	if c.AdapterName != "" {
		return c.AdapterName
	}
	return c.importModule() + "$adapter"
}

// PostReturnName is the export name of f's post-return function.
func PostReturnName(f string) string {
	return "cabi_post_" + f
}

// ResourceDropName is the adapter export that drops a handle of resource.
func ResourceDropName(resource string) string {
	return "[resource-drop]" + resource
}

// LogLenExport is the adapter's exported transient log length global.
const LogLenExport = "log_len"

// StubTableExport is the funcref table the stub exports and the fixup
// fills.
const StubTableExport = "$dispatch"
