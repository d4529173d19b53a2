package adapter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wippyai/wasm-adapter/codegen"
	"github.com/wippyai/wasm-adapter/errors"
	"github.com/wippyai/wasm-adapter/handle"
	"github.com/wippyai/wasm-adapter/layout"
	"gopkg.in/yaml.v3"
)

// MemoryMode selects how the adapter reaches the two modules' memories.
type MemoryMode uint8

const (
	// MultiMemory imports both memories and uses native instructions.
	// The host engine must support multi-memory.
	MultiMemory MemoryMode = iota
	// ShimMemory goes through imported host accessor functions.
	ShimMemory
)

func (m MemoryMode) String() string {
	if m == ShimMemory {
		return "shim"
	}
	return "multi"
}

func (m MemoryMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MemoryMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "multi", "":
		*m = MultiMemory
	case "shim":
		*m = ShimMemory
	default:
		return fmt.Errorf("unknown memory mode %q", b)
	}
	return nil
}

// SideOptions are the per-module conventions.
type SideOptions struct {
	StringEncoding codegen.Encoding     `yaml:"string_encoding"`
	ReallocOrder   codegen.ReallocOrder `yaml:"realloc_order"`
	// TransientParams makes the adapter free the parameter copies it
	// allocated in this module once a call into it returns.
	TransientParams bool `yaml:"transient_params"`
}

// Options configure synthesis.
type Options struct {
	MaxFlatParams  int                 `yaml:"max_flat_params"`
	MaxFlatResults int                 `yaml:"max_flat_results"`
	Memory         MemoryMode          `yaml:"memory"`
	Flags          codegen.FlagsPolicy `yaml:"flags"`
	HandleReuse    handle.Policy       `yaml:"handle_reuse"`
	A              SideOptions         `yaml:"a"`
	B              SideOptions         `yaml:"b"`
}

// DefaultOptions returns the Canonical ABI defaults: flattening limits of
// 16 and 1, multi-memory, rejected flag bits, retired handle indices and
// UTF-8 strings on both sides.
func DefaultOptions() Options {
	return Options{
		MaxFlatParams:  layout.MaxFlatParams,
		MaxFlatResults: layout.MaxFlatResults,
	}
}

// ParseOptions decodes YAML options over the defaults. Unknown keys and
// unknown enum values are rejected.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return Options{}, errors.ParseFailed("adapter options", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks the numeric limits.
func (o Options) Validate() error {
	if o.MaxFlatParams < 1 {
		return errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Path("max_flat_params").Detail("must be at least 1, got %d", o.MaxFlatParams).Build()
	}
	if o.MaxFlatResults < 0 {
		return errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Path("max_flat_results").Detail("must not be negative, got %d", o.MaxFlatResults).Build()
	}
	return nil
}

// Limits returns the flattening limits.
func (o Options) Limits() layout.Limits {
	return layout.Limits{MaxFlatParams: o.MaxFlatParams, MaxFlatResults: o.MaxFlatResults}
}

// Side returns the options of side id.
func (o Options) Side(id SideID) SideOptions {
	if id == B {
		return o.B
	}
	return o.A
}
