package value

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/wasm-adapter/layout"
)

// sliceMemory is a little-endian memory over a byte slice.
type sliceMemory struct {
	data []byte
}

func newSliceMemory(size int) *sliceMemory {
	return &sliceMemory{data: make([]byte, size)}
}

func (m *sliceMemory) Size() uint32 { return uint32(len(m.data)) }

func (m *sliceMemory) span(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.data)) {
		return nil, fmt.Errorf("access [%d, %d) out of bounds", offset, end)
	}
	return m.data[offset:end], nil
}

func (m *sliceMemory) Read(offset, length uint32) ([]byte, error) {
	return m.span(offset, length)
}

func (m *sliceMemory) Write(offset uint32, data []byte) error {
	b, err := m.span(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *sliceMemory) ReadU8(offset uint32) (uint8, error) {
	b, err := m.span(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *sliceMemory) ReadU16(offset uint32) (uint16, error) {
	b, err := m.span(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (m *sliceMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.span(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *sliceMemory) ReadU64(offset uint32) (uint64, error) {
	b, err := m.span(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *sliceMemory) WriteU8(offset uint32, v uint8) error {
	return m.Write(offset, []byte{v})
}

func (m *sliceMemory) WriteU16(offset uint32, v uint16) error {
	return m.Write(offset, binary.LittleEndian.AppendUint16(nil, v))
}

func (m *sliceMemory) WriteU32(offset uint32, v uint32) error {
	return m.Write(offset, binary.LittleEndian.AppendUint32(nil, v))
}

func (m *sliceMemory) WriteU64(offset uint32, v uint64) error {
	return m.Write(offset, binary.LittleEndian.AppendUint64(nil, v))
}

// bumpAllocator never reuses memory but tracks live blocks.
type bumpAllocator struct {
	next uint32
	live map[uint32]uint32
	fail bool
}

func newBumpAllocator() *bumpAllocator {
	return &bumpAllocator{next: 1024, live: make(map[uint32]uint32)}
}

func (a *bumpAllocator) Alloc(size, align uint32) (uint32, error) {
	if a.fail {
		return 0, nil
	}
	ptr := layout.AlignTo(a.next, align)
	a.next = ptr + size
	a.live[ptr] = size
	return ptr, nil
}

func (a *bumpAllocator) Free(ptr, size, _ uint32) {
	if a.live[ptr] != size {
		panic(fmt.Sprintf("free of %d bytes at %d, allocated %d", size, ptr, a.live[ptr]))
	}
	delete(a.live, ptr)
}

func (a *bumpAllocator) liveBytes() uint32 {
	var n uint32
	for _, s := range a.live {
		n += s
	}
	return n
}
