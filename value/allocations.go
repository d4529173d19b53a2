package value

import (
	"sync"

	wasmadapter "github.com/wippyai/wasm-adapter"
)

// Allocation is one block obtained from an Allocator.
type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// Allocations is an Allocator that records every block it hands out, so
// the blocks of a failed call can be released together.
type Allocations struct {
	alloc wasmadapter.Allocator
	list  []Allocation
}

var allocationsPool = sync.Pool{
	New: func() any {
		return &Allocations{list: make([]Allocation, 0, 8)}
	},
}

const maxPooledAllocations = 128

// Track returns a recorder over alloc. Call Release when done with it.
func Track(alloc wasmadapter.Allocator) *Allocations {
	a := allocationsPool.Get().(*Allocations)
	a.alloc = alloc
	return a
}

// Alloc allocates through the wrapped allocator and records the block.
func (a *Allocations) Alloc(size, align uint32) (uint32, error) {
	ptr, err := a.alloc.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	if ptr != 0 {
		a.list = append(a.list, Allocation{Ptr: ptr, Size: size, Align: align})
	}
	return ptr, nil
}

// Free releases one block without touching the record.
func (a *Allocations) Free(ptr, size, align uint32) {
	a.alloc.Free(ptr, size, align)
}

// List returns the recorded blocks in allocation order.
func (a *Allocations) List() []Allocation {
	return a.list
}

// Count returns the number of recorded blocks.
func (a *Allocations) Count() int {
	return len(a.list)
}

// FreeAll releases every recorded block, newest first, and clears the record.
func (a *Allocations) FreeAll() {
	for i := len(a.list) - 1; i >= 0; i-- {
		b := a.list[i]
		a.alloc.Free(b.Ptr, b.Size, b.Align)
	}
	a.Reset()
}

// Reset forgets the recorded blocks without freeing them.
func (a *Allocations) Reset() {
	a.list = a.list[:0]
}

// Release returns a to the pool. a must not be used afterwards.
func (a *Allocations) Release() {
	if cap(a.list) > maxPooledAllocations {
		return
	}
	a.Reset()
	a.alloc = nil
	allocationsPool.Put(a)
}
