package memory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestMemory(t *testing.T) {
	n := neko.Modern(t)

	n.It("stores scalars big-endian", func(t *testing.T) {
		m := New(0x1000, PageSize)

		require.NoError(t, m.WriteU32(0x1000, 0xDEADBEEF))

		b, err := m.Translate(0x1000, 4)
		require.NoError(t, err)
		require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, b)

		v16, err := m.ReadU16(0x1000)
		require.NoError(t, err)
		require.Equal(t, uint16(0xDEAD), v16)

		v8, err := m.ReadU8(0x1003)
		require.NoError(t, err)
		require.Equal(t, uint8(0xEF), v8)
	})

	n.It("round-trips floats through raw bits", func(t *testing.T) {
		m := New(0, PageSize)

		require.NoError(t, m.WriteF32(0x10, 3.5))

		f, err := m.ReadF32(0x10)
		require.NoError(t, err)
		require.Equal(t, float32(3.5), f)
	})

	n.It("rejects accesses outside the range", func(t *testing.T) {
		m := New(0x1000, PageSize)

		_, err := m.ReadU32(0xFFC)
		require.ErrorIs(t, err, ErrInvalidMemoryAccess)

		_, err = m.ReadU32(0x1000 + PageSize - 2)
		require.ErrorIs(t, err, ErrInvalidMemoryAccess)

		require.ErrorIs(t, m.WriteU8(0x1000+PageSize, 1), ErrInvalidMemoryAccess)
	})

	n.It("rounds the range up to whole pages", func(t *testing.T) {
		m := New(0, 100)
		require.Equal(t, uint32(PageSize), m.Size())

		m = New(0, PageSize+1)
		require.Equal(t, uint32(2*PageSize), m.Size())
	})

	n.It("clamps page rounding at the top of the address space", func(t *testing.T) {
		require.Equal(t, uint32(0xFFFF0000), pageRound(0xFFFFFFFF))
		require.Equal(t, uint32(0xFFFF0000), pageRound(0xFFFF0001))
		require.Equal(t, uint32(0xFFFF0000), pageRound(0xFFFF0000))
	})

	n.It("translates guest addresses through the translation base", func(t *testing.T) {
		m := New(0x1000, PageSize)

		require.NoError(t, m.WriteU8(0x1234, 0x5A))

		hostByte := *(*byte)(unsafe.Pointer(m.TranslationBase() + 0x1234))
		require.Equal(t, byte(0x5A), hostByte)
	})

	n.Meow()
}
