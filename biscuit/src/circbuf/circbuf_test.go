package circbuf

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"

func mkcb(t *testing.T, sz int) (*Circbuf_t, *mem.Physmem_t) {
	phys, err := mem.Phys_init(0x200000, 1)
	require.NoError(t, err)
	t.Cleanup(func() { phys.Close() })
	cb := &Circbuf_t{}
	cb.Cb_init(sz, phys)
	return cb, phys
}

func TestLazyAllocation(t *testing.T) {
	cb, phys := mkcb(t, 64)
	assert.Nil(t, cb.Buf)
	assert.Equal(t, 1, phys.Pgcount())
	_, err := cb.Write([]uint8("a\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, phys.Pgcount())
	cb.Cb_release()
	assert.Equal(t, 1, phys.Pgcount())
}

func TestNoPage(t *testing.T) {
	cb, phys := mkcb(t, 64)
	_, _, ok := phys.Refpg_new()
	require.True(t, ok)
	_, err := cb.Write([]uint8("x"))
	assert.Equal(t, defs.ENOMEM, err)
}

func TestEvictsWholeLines(t *testing.T) {
	cb, _ := mkcb(t, 16)
	cb.Write([]uint8("one\n"))
	cb.Write([]uint8("two\n"))
	cb.Write([]uint8("three\n"))
	assert.Equal(t, "one\ntwo\nthree\n", string(cb.Bytes()))

	// wraps and pushes out the first two lines
	cb.Write([]uint8("fourfour\n"))
	assert.Equal(t, "three\nfourfour\n", string(cb.Bytes()))
	assert.Equal(t, 15, cb.Used())

	dst := make([]uint8, 32)
	n := cb.Copyout_n(dst, 6)
	assert.Equal(t, "three\n", string(dst[:n]))
	assert.Equal(t, "fourfour\n", string(cb.Bytes()))
}

func TestOversizedWrite(t *testing.T) {
	cb, _ := mkcb(t, 8)
	n, err := cb.Write([]uint8("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.True(t, cb.Full())
	assert.Equal(t, "23456789", string(cb.Bytes()))
}

func TestAdvtail(t *testing.T) {
	cb, _ := mkcb(t, 16)
	assert.Equal(t, 16, cb.Left())
	cb.Write([]uint8("abcdef"))
	assert.Equal(t, 10, cb.Left())
	cb.Advtail(2)
	assert.Equal(t, "cdef", string(cb.Bytes()))
	assert.Equal(t, 12, cb.Left())
	cb.Advtail(0)
	assert.Panics(t, func() { cb.Advtail(5) })
	cb.Advtail(4)
	assert.True(t, cb.Empty())
	assert.Panics(t, func() { cb.Advtail(1) })
}
