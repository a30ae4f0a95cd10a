package mem

import "fmt"
import "unsafe"

// the direct map is the arena itself: physical address p lives at arena
// offset p - Base().

func (phys *Physmem_t) _off(p Pa_t, l int) int {
	base := phys.Base()
	if p < base || l < 0 || int(p-base)+l > len(phys.arena) {
		panic(fmt.Sprintf("direct map not large enough: %#x+%#x", p, l))
	}
	return int(p - base)
}

/// Dmap returns the page containing physical address p.
func (phys *Physmem_t) Dmap(p Pa_t) *Bytepg_t {
	off := phys._off(p&PGMASK, PGSIZE)
	return (*Bytepg_t)(unsafe.Pointer(&phys.arena[off]))
}

/// Dmap8 returns a byte slice from p to the end of its page.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(p)
	off := p & PGOFFSET
	return pg[off:]
}

/// Dmaplen returns a slice over the direct map starting at p for l bytes.
func (phys *Physmem_t) Dmaplen(p Pa_t, l int) []uint8 {
	off := phys._off(p, l)
	return phys.arena[off : off+l : off+l]
}

/// Dmaplen32 is like Dmaplen but operates on 32-bit units.
/// p and l must be multiples of 4.
func (phys *Physmem_t) Dmaplen32(p Pa_t, l int) []uint32 {
	if p%4 != 0 || l%4 != 0 {
		panic("not 32bit aligned")
	}
	b := phys.Dmaplen(p, l)
	if l == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), l/4)
}

/// Dmap_v2p converts a slice of the direct map back to a physical address.
func (phys *Physmem_t) Dmap_v2p(v []uint8) Pa_t {
	if len(v) == 0 {
		panic("empty slice")
	}
	va := uintptr(unsafe.Pointer(&v[0]))
	lo := uintptr(unsafe.Pointer(&phys.arena[0]))
	if va < lo || va >= lo+uintptr(len(phys.arena)) {
		panic("address isn't in the direct map")
	}
	return phys.Base() + Pa_t(va-lo)
}
