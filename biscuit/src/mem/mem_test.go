package mem

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func mkphys(t *testing.T, npg int) *Physmem_t {
	phys, err := Phys_init(0x100000, npg)
	require.NoError(t, err)
	t.Cleanup(func() { phys.Close() })
	return phys
}

func TestPhysInitRejectsUnaligned(t *testing.T) {
	_, err := Phys_init(0x100010, 4)
	assert.Error(t, err)
	_, err = Phys_init(0x100000, 0)
	assert.Error(t, err)
}

func TestDmaAllocZeroedAligned(t *testing.T) {
	phys := mkphys(t, 8)

	pa, ok := phys.Dma_alloc(3 * PGSIZE)
	require.True(t, ok)
	assert.Zero(t, pa&PGOFFSET)
	assert.Equal(t, 5, phys.Pgcount())
	assert.Equal(t, 1, phys.Refcnt(pa))

	b := phys.Dmaplen(pa, 3*PGSIZE)
	for i := range b {
		b[i] = 0xa5
	}
	phys.Dma_free(pa)
	assert.Equal(t, 8, phys.Pgcount())

	// the same pages come back zeroed
	pa2, ok := phys.Dma_alloc(8 * PGSIZE)
	require.True(t, ok)
	for _, c := range phys.Dmaplen(pa2, 8*PGSIZE) {
		if c != 0 {
			t.Fatalf("page not zeroed")
		}
	}
}

func TestDmaAllocContiguousRuns(t *testing.T) {
	phys := mkphys(t, 6)

	a, ok := phys.Dma_alloc(PGSIZE)
	require.True(t, ok)
	b, ok := phys.Dma_alloc(2 * PGSIZE)
	require.True(t, ok)
	c, ok := phys.Dma_alloc(PGSIZE)
	require.True(t, ok)
	assert.Equal(t, a+Pa_t(PGSIZE), b)
	assert.Equal(t, b+Pa_t(2*PGSIZE), c)

	// a 3 page run only fits once b is gone and its neighbours are free
	phys.Dma_free(a)
	_, ok = phys.Dma_alloc(3 * PGSIZE)
	assert.False(t, ok)
	phys.Dma_free(b)
	p, ok := phys.Dma_alloc(3 * PGSIZE)
	require.True(t, ok)
	assert.Equal(t, a, p)
}

func TestDmaAllocExhausted(t *testing.T) {
	phys := mkphys(t, 2)
	_, ok := phys.Dma_alloc(2 * PGSIZE)
	require.True(t, ok)
	_, ok = phys.Dma_alloc(1)
	assert.False(t, ok)
	_, _, ok = phys.Refpg_new()
	assert.False(t, ok)
}

func TestRefcounting(t *testing.T) {
	phys := mkphys(t, 2)
	pg, pa, ok := phys.Refpg_new()
	require.True(t, ok)
	assert.Equal(t, 0, phys.Refcnt(pa))
	phys.Refup(pa)
	phys.Refup(pa)
	pg[0] = 7
	assert.False(t, phys.Refdown(pa))
	assert.Equal(t, uint8(7), phys.Dmap8(pa)[0])
	assert.True(t, phys.Refdown(pa))
	assert.Equal(t, 2, phys.Pgcount())
	assert.Panics(t, func() { phys.Refdown(pa) })
}

func TestDmapTranslation(t *testing.T) {
	phys := mkphys(t, 2)
	pa, ok := phys.Dma_alloc(PGSIZE)
	require.True(t, ok)

	b := phys.Dmaplen(pa+16, 8)
	assert.Equal(t, pa+16, phys.Dmap_v2p(b))

	w := phys.Dmaplen32(pa, 8)
	w[1] = 0xdeadbeef
	assert.Equal(t, uint8(0xef), phys.Dmap8(pa)[4])

	assert.Panics(t, func() { phys.Dmaplen32(pa+2, 4) })
	assert.Panics(t, func() { phys.Dmaplen(phys.Base()+Pa_t(2*PGSIZE), 1) })
}
