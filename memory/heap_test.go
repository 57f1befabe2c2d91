package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestHeap(t *testing.T) {
	n := neko.Modern(t)

	n.It("allocates from the low end of the range", func(t *testing.T) {
		h := NewHeap(0x70000000, 4*PageSize)

		addr, err := h.Alloc(4096)
		require.NoError(t, err)
		require.Equal(t, uint32(0x70000000), addr)

		next, err := h.Alloc(4096)
		require.NoError(t, err)
		require.Equal(t, uint32(0x70001000), next)
	})

	n.It("never hands out overlapping ranges", func(t *testing.T) {
		h := NewHeap(0x1000, 4*PageSize)

		type alloc struct {
			addr, size uint32
		}

		var allocs []alloc

		sizes := []uint32{16, 100, 4096, 7, 513, 65536, 24}
		for _, sz := range sizes {
			addr, err := h.Alloc(sz)
			require.NoError(t, err)

			allocs = append(allocs, alloc{addr, roundAlloc(sz)})
		}

		for i, a := range allocs {
			for j, b := range allocs {
				if i == j {
					continue
				}

				disjoint := a.addr+a.size <= b.addr || b.addr+b.size <= a.addr
				require.True(t, disjoint)
			}
		}
	})

	n.It("fails when the range is exhausted", func(t *testing.T) {
		h := NewHeap(0, PageSize)

		_, err := h.Alloc(PageSize + 1)
		require.ErrorIs(t, err, ErrHeapExhausted)

		// Exact fit still works.
		addr, err := h.Alloc(PageSize)
		require.NoError(t, err)
		require.Zero(t, addr)

		_, err = h.Alloc(16)
		require.ErrorIs(t, err, ErrHeapExhausted)
	})

	n.It("coalesces freed neighbors", func(t *testing.T) {
		h := NewHeap(0, PageSize)

		a, err := h.Alloc(PageSize / 4)
		require.NoError(t, err)

		b, err := h.Alloc(PageSize / 4)
		require.NoError(t, err)

		c, err := h.Alloc(PageSize / 2)
		require.NoError(t, err)

		require.NoError(t, h.Free(a))
		require.NoError(t, h.Free(c))
		require.NoError(t, h.Free(b))

		// Whole range free again; a full-span allocation must succeed.
		full, err := h.Alloc(PageSize)
		require.NoError(t, err)
		require.Zero(t, full)
	})

	n.It("tracks usage across alloc and free", func(t *testing.T) {
		h := NewHeap(0x2000, 2*PageSize)

		require.Zero(t, h.Outstanding())
		require.Zero(t, h.InUse())

		a, err := h.Alloc(100)
		require.NoError(t, err)

		require.Equal(t, 1, h.Outstanding())
		require.Equal(t, roundAlloc(100), h.InUse())

		require.NoError(t, h.Free(a))

		require.Zero(t, h.Outstanding())
		require.Zero(t, h.InUse())
	})

	n.It("rejects frees of unknown addresses", func(t *testing.T) {
		h := NewHeap(0, PageSize)

		require.ErrorIs(t, h.Free(0x40), ErrBadFree)

		addr, err := h.Alloc(64)
		require.NoError(t, err)

		require.NoError(t, h.Free(addr))
		require.ErrorIs(t, h.Free(addr), ErrBadFree)
	})

	n.It("rejects zero-sized allocations", func(t *testing.T) {
		h := NewHeap(0, PageSize)

		_, err := h.Alloc(0)
		require.ErrorIs(t, err, ErrBadAllocSize)
	})

	n.It("rejects requests whose rounding would wrap", func(t *testing.T) {
		h := NewHeap(0x70000000, PageSize)

		// Rounded up, this request wraps to zero; it must fail instead
		// of reserving an empty span.
		_, err := h.Alloc(0xFFFFFFF8)
		require.ErrorIs(t, err, ErrHeapExhausted)

		require.Zero(t, h.Outstanding())
		require.Zero(t, h.InUse())

		// The range is still intact for well-formed requests, and they
		// must not share addresses with anything.
		a, err := h.Alloc(4096)
		require.NoError(t, err)

		b, err := h.Alloc(4096)
		require.NoError(t, err)

		require.NotEqual(t, a, b)
	})

	n.It("is safe under concurrent alloc and free", func(t *testing.T) {
		const workers = 8
		const rounds = 50

		h := NewHeap(0x70000000, 64*PageSize)

		var wg sync.WaitGroup

		errs := make([]error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				for r := 0; r < rounds; r++ {
					addr, err := h.Alloc(4096)
					if err != nil {
						errs[i] = err
						return
					}

					if err := h.Free(addr); err != nil {
						errs[i] = err
						return
					}
				}
			}(i)
		}

		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}

		require.Zero(t, h.Outstanding())
		require.Zero(t, h.InUse())
	})

	n.Meow()
}
