// Package hostmem hands out fixed-size, alignment-constrained blocks of
// host memory. Blocks back guest-visible state (register files) that the
// execution engine addresses directly, so their placement must satisfy
// the alignment the widest access requires.
package hostmem

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

var (
	ErrBadSize      = errors.New("hostmem: block size must be positive")
	ErrBadAlignment = errors.New("hostmem: alignment must be a power of two")
)

// Block is one allocation. It keeps the raw slice alive so the aligned
// window inside it is never collected while the block is outstanding.
type Block struct {
	raw  []byte
	off  int
	size int
}

// Pointer returns the aligned start of the block.
func (b Block) Pointer() unsafe.Pointer {
	return unsafe.Pointer(&b.raw[b.off])
}

// Addr returns the aligned start as an integer, for alignment checks.
func (b Block) Addr() uintptr {
	return uintptr(b.Pointer())
}

// Bytes returns the aligned window. Its contents start zeroed.
func (b Block) Bytes() []byte {
	return b.raw[b.off : b.off+b.size]
}

func (b Block) Size() int {
	return b.size
}

// Allocator allocates aligned host blocks. It is safe for concurrent use
// by many callers; Outstanding exposes the live-block count so callers
// can verify allocation/free pairing.
type Allocator struct {
	mu          sync.Mutex
	outstanding int
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

func (a *Allocator) AllocAligned(size, align int) (Block, error) {
	if size <= 0 {
		return Block{}, errors.Wrapf(ErrBadSize, "size=%d", size)
	}

	if align <= 0 || align&(align-1) != 0 {
		return Block{}, errors.Wrapf(ErrBadAlignment, "align=%d", align)
	}

	// Over-allocate so an aligned window of the requested size always
	// fits, wherever the runtime placed the slice.
	raw := make([]byte, size+align-1)

	base := uintptr(unsafe.Pointer(&raw[0]))
	off := 0

	if rem := int(base % uintptr(align)); rem != 0 {
		off = align - rem
	}

	a.mu.Lock()
	a.outstanding++
	a.mu.Unlock()

	return Block{raw: raw, off: off, size: size}, nil
}

func (a *Allocator) Free(b Block) {
	a.mu.Lock()
	a.outstanding--
	a.mu.Unlock()
}

func (a *Allocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.outstanding
}
