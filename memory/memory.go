// Package memory models the guest address space: a host-resident backing
// range, a fixed guest-to-host translation base, and a heap allocator
// operating over guest addresses.
package memory

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/pkg/errors"
)

const PageSize = 65536 // (64 KB)

var ErrInvalidMemoryAccess = errors.New("invalid guest memory access")

// Memory is one contiguous guest range [Base, Base+Size) backed by host
// memory. All guest loads and stores are big-endian, matching the
// emulated processor.
type Memory struct {
	buf  []byte
	base uint32
	heap *Heap
}

func pageRound(sz uint32) uint32 {
	if sz < PageSize {
		return PageSize
	}

	diff := sz % PageSize
	if diff == 0 {
		return sz
	}

	// Rounding up past the top of the address space would wrap; clamp to
	// the largest whole-page multiple instead.
	if sz > math.MaxUint32-(PageSize-1) {
		return sz - diff
	}

	return sz + (PageSize - diff)
}

// New maps a guest range starting at base. The size is rounded up to a
// whole number of pages and the entire range is heap-managed.
func New(base, size uint32) *Memory {
	size = pageRound(size)

	m := &Memory{
		buf:  make([]byte, size),
		base: base,
	}

	m.heap = NewHeap(base, size)

	return m
}

func (m *Memory) Base() uint32 {
	return m.base
}

func (m *Memory) Size() uint32 {
	return uint32(len(m.buf))
}

func (m *Memory) Heap() *Heap {
	return m.heap
}

// TranslationBase is the offset such that for any guest address g inside
// the range, the host byte lives at TranslationBase()+g. The execution
// engine stashes this in each register file for fast address
// translation.
func (m *Memory) TranslationBase() uintptr {
	return uintptr(unsafe.Pointer(&m.buf[0])) - uintptr(m.base)
}

func (m *Memory) contains(addr uint32, sz uint32) bool {
	if addr < m.base {
		return false
	}

	off := uint64(addr-m.base) + uint64(sz)

	return off <= uint64(len(m.buf))
}

// Translate returns the host bytes backing [addr, addr+sz).
func (m *Memory) Translate(addr, sz uint32) ([]byte, error) {
	if !m.contains(addr, sz) {
		return nil, errors.Wrapf(ErrInvalidMemoryAccess, "error translating address=%x, size=%x", addr, sz)
	}

	off := addr - m.base

	return m.buf[off : off+sz], nil
}

func (m *Memory) ReadU8(addr uint32) (uint8, error) {
	b, err := m.Translate(addr, 1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (m *Memory) ReadU16(addr uint32) (uint16, error) {
	b, err := m.Translate(addr, 2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(b), nil
}

func (m *Memory) ReadU32(addr uint32) (uint32, error) {
	b, err := m.Translate(addr, 4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

func (m *Memory) ReadF32(addr uint32) (float32, error) {
	bits, err := m.ReadU32(addr)
	if err != nil {
		return 0, err
	}

	return math.Float32frombits(bits), nil
}

func (m *Memory) WriteU8(addr uint32, val uint8) error {
	b, err := m.Translate(addr, 1)
	if err != nil {
		return err
	}

	b[0] = val

	return nil
}

func (m *Memory) WriteU16(addr uint32, val uint16) error {
	b, err := m.Translate(addr, 2)
	if err != nil {
		return err
	}

	binary.BigEndian.PutUint16(b, val)

	return nil
}

func (m *Memory) WriteU32(addr uint32, val uint32) error {
	b, err := m.Translate(addr, 4)
	if err != nil {
		return err
	}

	binary.BigEndian.PutUint32(b, val)

	return nil
}

func (m *Memory) WriteF32(addr uint32, val float32) error {
	return m.WriteU32(addr, math.Float32bits(val))
}
