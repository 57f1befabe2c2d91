package cpu

import "github.com/pkg/errors"

var (
	// ErrHostBlockAlloc is returned by NewThreadState when the aligned
	// block allocator cannot supply a register file block. Nothing is
	// left allocated.
	ErrHostBlockAlloc = errors.New("cpu: register file block allocation failed")

	// ErrGuestStackAlloc is returned by NewThreadState when the guest
	// heap cannot supply the stack. The register file block allocated
	// earlier in the same call has already been released.
	ErrGuestStackAlloc = errors.New("cpu: guest stack allocation failed")

	// ErrBadStackSize is returned for a zero-sized stack request.
	ErrBadStackSize = errors.New("cpu: stack size must be positive")
)
