package cpu

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/minirop/xenia/memory"
)

func TestProcessor(t *testing.T) {
	n := neko.Modern(t)

	n.It("attributes addresses to loaded modules", func(t *testing.T) {
		p := testProcessor(t, 0x82000000, 16*memory.PageSize)

		p.AddModule("default.xex", 0x82000000, 0x8000)

		require.Equal(t, "default.xex+0x1040", p.LocationOf(0x82001040))
		require.Equal(t, "0x82009000", p.LocationOf(0x82009000))
	})

	n.It("serves repeated lookups from the cache", func(t *testing.T) {
		p := testProcessor(t, 0x82000000, 16*memory.PageSize)

		p.AddModule("default.xex", 0x82000000, 0x8000)

		first := p.LocationOf(0x82000010)

		// A module added later does not invalidate cached results; the
		// cache answers before the registry is consulted.
		p.AddModule("other.xex", 0x82000000, 0x8000)

		require.Equal(t, first, p.LocationOf(0x82000010))
	})

	n.It("lists all live threads", func(t *testing.T) {
		p := testProcessor(t, 0x70000000, 16*memory.PageSize)

		a, err := NewThreadState(p, 4096, 0x7FE00000, 1)
		require.NoError(t, err)

		b, err := NewThreadState(p, 4096, 0x7FE01000, 2)
		require.NoError(t, err)

		require.ElementsMatch(t, []*ThreadState{a, b}, p.Threads())

		a.Release()
		b.Release()

		require.Empty(t, p.Threads())
	})

	n.Meow()
}
