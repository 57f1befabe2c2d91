package memory

import (
	"math"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrHeapExhausted = errors.New("guest heap exhausted")
	ErrBadFree       = errors.New("free of address not held by heap")
	ErrBadAllocSize  = errors.New("bad heap allocation size")
)

// heap allocations are rounded to this granularity so every returned
// address satisfies the widest guest access.
const heapGranularity = 16

type span struct {
	addr, size uint32
}

// Heap allocates byte ranges within a guest address range. First-fit
// from the low end, with freed spans coalesced back into the free list.
// Safe for concurrent Alloc/Free from many threads' construction and
// teardown paths.
type Heap struct {
	mu sync.Mutex

	base, size uint32

	free   []span
	allocs map[uint32]uint32

	inUse uint32
}

func NewHeap(base, size uint32) *Heap {
	return &Heap{
		base:   base,
		size:   size,
		free:   []span{{addr: base, size: size}},
		allocs: make(map[uint32]uint32),
	}
}

func roundAlloc(sz uint32) uint32 {
	diff := sz % heapGranularity
	if diff == 0 {
		return sz
	}

	return sz + (heapGranularity - diff)
}

// Alloc reserves size bytes and returns their guest address. Placement
// is the heap's choice.
func (h *Heap) Alloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, errors.Wrap(ErrBadAllocSize, "zero-sized allocation")
	}

	// Rounding a near-max request would wrap to zero and hand the same
	// address out twice.
	if size > math.MaxUint32-(heapGranularity-1) {
		return 0, errors.Wrapf(ErrHeapExhausted, "requested=%d capacity=%d", size, h.size)
	}

	size = roundAlloc(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sp := range h.free {
		if sp.size < size {
			continue
		}

		addr := sp.addr

		if sp.size == size {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = span{addr: sp.addr + size, size: sp.size - size}
		}

		h.allocs[addr] = size
		h.inUse += size

		return addr, nil
	}

	return 0, errors.Wrapf(ErrHeapExhausted, "requested=%d in-use=%d capacity=%d", size, h.inUse, h.size)
}

// Free returns a previously allocated range to the heap.
func (h *Heap) Free(addr uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	size, ok := h.allocs[addr]
	if !ok {
		return errors.Wrapf(ErrBadFree, "address=%x", addr)
	}

	delete(h.allocs, addr)
	h.inUse -= size

	// Insert sorted by address, then coalesce with neighbors.
	idx := len(h.free)
	for i, sp := range h.free {
		if sp.addr > addr {
			idx = i
			break
		}
	}

	h.free = append(h.free, span{})
	copy(h.free[idx+1:], h.free[idx:])
	h.free[idx] = span{addr: addr, size: size}

	if idx+1 < len(h.free) && h.free[idx].addr+h.free[idx].size == h.free[idx+1].addr {
		h.free[idx].size += h.free[idx+1].size
		h.free = append(h.free[:idx+1], h.free[idx+2:]...)
	}

	if idx > 0 && h.free[idx-1].addr+h.free[idx-1].size == h.free[idx].addr {
		h.free[idx-1].size += h.free[idx].size
		h.free = append(h.free[:idx], h.free[idx+1:]...)
	}

	return nil
}

// Outstanding reports the number of live allocations.
func (h *Heap) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.allocs)
}

// InUse reports the total bytes currently allocated.
func (h *Heap) InUse() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.inUse
}
