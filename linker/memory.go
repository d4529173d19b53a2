package linker

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	wasmadapter "github.com/wippyai/wasm-adapter"
	"github.com/wippyai/wasm-adapter/codegen"
	"go.uber.org/zap"
)

// memory is a module's linear memory seen through wasmadapter.Memory.
type memory struct {
	mem api.Memory
}

func (m *memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *memory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memory) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memory) Size() uint32 {
	return m.mem.Size()
}

// allocator calls a module's realloc export. The context is set for the
// duration of each host call. Not safe for concurrent use.
type allocator struct {
	fn    api.Function
	ctx   context.Context
	order codegen.ReallocOrder
	stack [4]uint64
}

func (a *allocator) call(ptr, size, align, newSize uint32) (uint32, error) {
	if a.fn == nil {
		return 0, fmt.Errorf("module exports no allocator")
	}
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	a.stack[0], a.stack[1] = uint64(ptr), uint64(size)
	if a.order == codegen.SizeAlign {
		a.stack[2], a.stack[3] = uint64(newSize), uint64(align)
	} else {
		a.stack[2], a.stack[3] = uint64(align), uint64(newSize)
	}
	if err := a.fn.CallWithStack(ctx, a.stack[:]); err != nil {
		return 0, err
	}
	return uint32(a.stack[0]), nil
}

// Alloc returns 0 without an error when the module's allocator does; the
// codec reports that as an allocation failure.
func (a *allocator) Alloc(size, align uint32) (uint32, error) {
	return a.call(0, 0, align, size)
}

func (a *allocator) Free(ptr, size, align uint32) {
	if ptr == 0 || a.fn == nil {
		return
	}
	if _, err := a.call(ptr, size, align, 0); err != nil {
		Logger().Warn("free failed", zap.Uint32("ptr", ptr), zap.Uint32("size", size), zap.Error(err))
	}
}

var (
	_ wasmadapter.Memory      = (*memory)(nil)
	_ wasmadapter.MemorySizer = (*memory)(nil)
	_ wasmadapter.Allocator   = (*allocator)(nil)
)
