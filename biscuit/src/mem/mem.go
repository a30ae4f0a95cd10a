package mem

import "fmt"
import "sync"
import "sync/atomic"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/util"

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// Pa_t represents a physical address.
type Pa_t uintptr

/// Bytepg_t is a byte addressed page.
type Bytepg_t [PGSIZE]uint8

/// Page_i abstracts single page allocation.
type Page_i interface {
	Refpg_new() (*Bytepg_t, Pa_t, bool)
	Refpg_new_nozero() (*Bytepg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Bytepg_t
	Refup(Pa_t)
	Refdown(Pa_t) bool
}

/// Dma_i is the physical buffer provider consumed by DMA capable drivers.
/// Dma_alloc returns zero-filled, physically contiguous memory aligned to at
/// least PGSIZE with one reference held by the caller.
type Dma_i interface {
	Dma_alloc(sz int) (Pa_t, bool)
	Dma_free(Pa_t)
	Dmaplen(Pa_t, int) []uint8
}

func _pg2pgn(p_pg Pa_t) uint32 {
	return uint32(p_pg >> PGSHIFT)
}

/// Physpg_t describes a single physical page.
type Physpg_t struct {
	Refcnt int32
	// pages in the allocation headed by this page; zero for free pages and
	// for pages in the middle of a run
	nrun uint32
	used bool
}

/// Physmem_t manages a contiguous range of physical pages backed by a
/// host arena. Physical addresses start at the base given to Phys_init.
type Physmem_t struct {
	sync.Mutex
	Pgs    []Physpg_t
	startn uint32
	// index into Pgs where the next search for free pages starts
	freei   uint32
	freelen int32
	arena   []uint8
	unmap   func() error
}

/// Phys_init reserves npages pages of DMA capable memory whose first page has
/// physical address base.
func Phys_init(base Pa_t, npages int) (*Physmem_t, error) {
	if base&PGOFFSET != 0 {
		return nil, fmt.Errorf("mem: base %#x not page aligned", base)
	}
	if npages <= 0 {
		return nil, fmt.Errorf("mem: bad page count %v", npages)
	}
	arena, unmap, err := mkarena(npages * PGSIZE)
	if err != nil {
		return nil, fmt.Errorf("mem: reserving %v pages: %w", npages, err)
	}
	phys := &Physmem_t{}
	phys.Pgs = make([]Physpg_t, npages)
	phys.startn = _pg2pgn(base)
	phys.freelen = int32(npages)
	phys.arena = arena
	phys.unmap = unmap
	return phys, nil
}

/// Close releases the arena. No DMA may be in flight.
func (phys *Physmem_t) Close() error {
	phys.Lock()
	defer phys.Unlock()
	if phys.arena == nil {
		return nil
	}
	phys.arena = nil
	return phys.unmap()
}

/// Base returns the physical address of the first page.
func (phys *Physmem_t) Base() Pa_t {
	return Pa_t(phys.startn) << PGSHIFT
}

/// Pgcount returns the number of free pages.
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.freelen)
}

func (phys *Physmem_t) _idx(p_pg Pa_t) uint32 {
	pgn := _pg2pgn(p_pg)
	if pgn < phys.startn || int(pgn-phys.startn) >= len(phys.Pgs) {
		panic(fmt.Sprintf("pa %#x outside physmem", p_pg))
	}
	return pgn - phys.startn
}

// refaddr returns the refcount pointer and index for the given page.
func (phys *Physmem_t) refaddr(p_pg Pa_t) (*int32, uint32) {
	idx := phys._idx(p_pg)
	return &phys.Pgs[idx].Refcnt, idx
}

/// Refcnt returns the current reference count of a page.
func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	ref, _ := phys.refaddr(p_pg)
	return int(atomic.LoadInt32(ref))
}

/// Refup increments the reference count of a page.
func (phys *Physmem_t) Refup(p_pg Pa_t) {
	ref, idx := phys.refaddr(p_pg)
	if phys.Pgs[idx].nrun == 0 {
		panic("refup of page that heads no allocation")
	}
	c := atomic.AddInt32(ref, 1)
	// XXXPANIC
	if c <= 0 {
		panic("wut")
	}
}

/// Refdown decrements the reference count of a page.
/// It returns true when the allocation headed by the page is freed.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	ref, idx := phys.refaddr(p_pg)
	c := atomic.AddInt32(ref, -1)
	// XXXPANIC
	if c < 0 {
		panic("wut")
	}
	if c != 0 {
		return false
	}
	phys._phys_put(idx)
	return true
}

func (phys *Physmem_t) _phys_put(idx uint32) {
	phys.Lock()
	defer phys.Unlock()
	n := phys.Pgs[idx].nrun
	if n == 0 {
		panic("double free")
	}
	for i := idx; i < idx+n; i++ {
		phys.Pgs[i] = Physpg_t{}
	}
	phys.freelen += int32(n)
}

// finds and claims n consecutive free pages, first fit starting at freei.
func (phys *Physmem_t) _phys_new(n uint32) (Pa_t, bool) {
	phys.Lock()
	defer phys.Unlock()
	if phys.arena == nil {
		panic("physmem closed")
	}
	tot := uint32(len(phys.Pgs))
	if n == 0 || n > tot || int32(n) > phys.freelen {
		return 0, false
	}
	start := phys.freei
	if start+n > tot {
		start = 0
	}
	for tries := uint32(0); tries < tot; {
		if start+n > tot {
			start = 0
		}
		run := uint32(0)
		for run < n && !phys.Pgs[start+run].used {
			run++
		}
		if run == n {
			for i := start; i < start+n; i++ {
				phys.Pgs[i].used = true
			}
			phys.Pgs[start].nrun = n
			phys.Pgs[start].Refcnt = 0
			phys.freei = (start + n) % tot
			phys.freelen -= int32(n)
			return Pa_t(start+phys.startn) << PGSHIFT, true
		}
		// skip past the used page that ended the run
		start += run + 1
		tries += run + 1
	}
	return 0, false
}

/// Refpg_new allocates a zeroed page and returns its mapping and address.
/// The returned page's refcount is not incremented.
func (phys *Physmem_t) Refpg_new() (*Bytepg_t, Pa_t, bool) {
	pg, p_pg, ok := phys.Refpg_new_nozero()
	if !ok {
		return nil, 0, false
	}
	*pg = Bytepg_t{}
	return pg, p_pg, true
}

/// Refpg_new_nozero allocates an uninitialised page.
func (phys *Physmem_t) Refpg_new_nozero() (*Bytepg_t, Pa_t, bool) {
	p_pg, ok := phys._phys_new(1)
	if !ok {
		return nil, 0, false
	}
	return phys.Dmap(p_pg), p_pg, true
}

/// Dma_alloc allocates sz bytes rounded up to whole pages. The memory is
/// zeroed and the caller holds the only reference.
func (phys *Physmem_t) Dma_alloc(sz int) (Pa_t, bool) {
	if sz <= 0 {
		panic("bad dma size")
	}
	npg := util.Ceildiv(sz, PGSIZE)
	p_pg, ok := phys._phys_new(uint32(npg))
	if !ok {
		return 0, false
	}
	b := phys.Dmaplen(p_pg, npg*PGSIZE)
	for i := range b {
		b[i] = 0
	}
	phys.Refup(p_pg)
	return p_pg, true
}

/// Dma_free drops the caller's reference to a Dma_alloc region.
func (phys *Physmem_t) Dma_free(p_pg Pa_t) {
	phys.Refdown(p_pg)
}
