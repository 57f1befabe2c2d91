package cpu

import "unsafe"

// RegisterAlignment is the minimum alignment of a register file block.
// Vector loads and stores issued by translated code address the V array
// directly and require it.
const RegisterAlignment = 16

// Vec128 is one 128-bit vector register.
type Vec128 [16]byte

// Registers is the architectural state of one guest hardware thread. It
// lives in a host block obtained from an aligned allocator, and the
// execution engine reads and writes its fields directly on every
// emulated instruction.
//
// Membase, Processor and ThreadState are stashed here so callbacks
// running with only a register-file pointer (traps, syscall dispatch)
// can find their way back. They are lookup references, never ownership:
// the owning ThreadState keeps the referents alive.
type Registers struct {
	// General-purpose registers. R1 is the stack pointer and R13 the
	// thread-environment pointer, per the guest ABI.
	R [32]uint64

	LR  uint64
	CTR uint64
	XER uint64

	CR    uint32
	FPSCR uint32

	F [32]float64
	V [128]Vec128

	Membase     uintptr
	Processor   *Processor
	ThreadState *ThreadState
}

const registersSize = unsafe.Sizeof(Registers{})

// CRField extracts condition register field n (0 is the most
// significant nibble).
func (r *Registers) CRField(n uint) uint8 {
	return uint8(r.CR>>(28-n*4)) & 0xF
}

// SetCRField replaces condition register field n.
func (r *Registers) SetCRField(n uint, val uint8) {
	shift := 28 - n*4
	r.CR = r.CR&^(0xF<<shift) | uint32(val&0xF)<<shift
}

// SP returns the stack-pointer register.
func (r *Registers) SP() uint64 {
	return r.R[1]
}

// ThreadEnv returns the thread-environment register.
func (r *Registers) ThreadEnv() uint64 {
	return r.R[13]
}
