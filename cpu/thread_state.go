// Package cpu holds the execution state of the emulated processor: the
// shared Processor, and one ThreadState per guest hardware thread
// bundling a register file with a guest stack.
package cpu

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/minirop/xenia/hostmem"
	"github.com/minirop/xenia/log"
)

// ThreadState is the complete execution state of one guest hardware
// thread: a register file in an aligned host block, plus a stack
// allocated from the processor's guest heap. Both are acquired together
// by NewThreadState and released together by Release.
//
// Between construction and Release, the register file is mutated by
// exactly one execution stream; ThreadState itself performs no locking.
type ThreadState struct {
	threadID           uint32
	stackSize          uint32
	threadStateAddress uint32
	stackBase          uint32

	processor *Processor
	block     hostmem.Block
	regs      *Registers
}

// NewThreadState builds the execution state for a new guest thread.
//
// stackSize is the requested guest stack size in bytes.
// threadStateAddress is the guest address of the caller-managed
// thread-local block; it is stored into the thread-environment register
// verbatim and never dereferenced here.
//
// On failure nothing remains allocated: if the stack allocation fails
// after the register block succeeded, the block is released before the
// error is returned.
func NewThreadState(p *Processor, stackSize, threadStateAddress, threadID uint32) (*ThreadState, error) {
	if stackSize == 0 {
		return nil, errors.Wrapf(ErrBadStackSize, "thread=%d", threadID)
	}

	block, err := p.blocks.AllocAligned(int(registersSize), RegisterAlignment)
	if err != nil {
		return nil, errors.Wrapf(ErrHostBlockAlloc, "thread=%d: %v", threadID, err)
	}

	if block.Addr()%RegisterAlignment != 0 {
		panic(fmt.Sprintf("cpu: allocator returned misaligned register block: %#x", block.Addr()))
	}

	stackBase, err := p.mem.Heap().Alloc(stackSize)
	if err != nil {
		p.blocks.Free(block)
		return nil, errors.Wrapf(ErrGuestStackAlloc, "thread=%d size=%d: %v", threadID, stackSize, err)
	}

	ts := &ThreadState{
		threadID:           threadID,
		stackSize:          stackSize,
		threadStateAddress: threadStateAddress,
		stackBase:          stackBase,
		processor:          p,
		block:              block,
	}

	// The block arrives zeroed, so no stale architectural state leaks
	// between threads.
	regs := (*Registers)(block.Pointer())

	// Stash pointers to common structures that callbacks may need.
	regs.Membase = p.mem.TranslationBase()
	regs.Processor = p
	regs.ThreadState = ts

	// Initial ABI registers: the stack grows toward lower addresses, so
	// the stack pointer starts at the top of the allocation.
	regs.R[1] = uint64(stackBase) + uint64(stackSize)
	regs.R[13] = uint64(threadStateAddress)

	ts.regs = regs

	p.registerThread(ts)

	return ts, nil
}

// Release tears the thread state down: the guest stack is freed first,
// then the register block, then the processor reference is dropped.
// Callers must invoke Release exactly once, after the execution engine
// has stopped touching the register file; a second call is undefined.
func (ts *ThreadState) Release() {
	ts.processor.unregisterThread(ts)

	// A free failure means the contract was already broken (double
	// release, corrupted state); there is no caller to report it to.
	if err := ts.processor.mem.Heap().Free(ts.stackBase); err != nil {
		log.L.Trace("stack-free-failed", "thread", ts.threadID, "error", err)
	}

	ts.processor.blocks.Free(ts.block)

	ts.regs = nil
	ts.processor = nil
}

// Regs exposes the register file for the execution engine and for
// read-only introspection by debug tooling.
func (ts *ThreadState) Regs() *Registers {
	return ts.regs
}

func (ts *ThreadState) ThreadID() uint32 {
	return ts.threadID
}

func (ts *ThreadState) StackBase() uint32 {
	return ts.stackBase
}

func (ts *ThreadState) StackSize() uint32 {
	return ts.stackSize
}

func (ts *ThreadState) ThreadStateAddress() uint32 {
	return ts.threadStateAddress
}

// RegsAddr is the host address of the register file block.
func (ts *ThreadState) RegsAddr() uintptr {
	return uintptr(unsafe.Pointer(ts.regs))
}
