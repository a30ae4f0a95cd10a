package msi

import "sort"
import "sync"

// Msivec_t represents an MSI interrupt vector. Zero means no vector: the
// device is driven by polling only.
type Msivec_t uint

// Msivecs_t tracks available MSI vectors.
type Msivecs_t struct {
	sync.Mutex
	avail map[Msivec_t]bool
}

// Mkmsivecs returns a pool of n vectors starting at first.
func Mkmsivecs(first Msivec_t, n int) *Msivecs_t {
	if first == 0 {
		panic("vector 0 is reserved")
	}
	m := &Msivecs_t{avail: make(map[Msivec_t]bool, n)}
	for i := 0; i < n; i++ {
		m.avail[first+Msivec_t(i)] = true
	}
	return m
}

var msivecs = Mkmsivecs(56, 8)

// Alloc allocates the lowest available vector.
func (m *Msivecs_t) Alloc() (Msivec_t, bool) {
	m.Lock()
	defer m.Unlock()

	if len(m.avail) == 0 {
		return 0, false
	}
	vs := make([]Msivec_t, 0, len(m.avail))
	for v := range m.avail {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	delete(m.avail, vs[0])
	return vs[0], true
}

// Free releases a previously allocated vector.
func (m *Msivecs_t) Free(vector Msivec_t) {
	m.Lock()
	defer m.Unlock()

	if m.avail[vector] {
		panic("double free")
	}
	m.avail[vector] = true
}

// Msi_alloc allocates a vector from the kernel's pool.
func Msi_alloc() Msivec_t {
	v, ok := msivecs.Alloc()
	if !ok {
		panic("no more MSI vecs")
	}
	return v
}

// Msi_free releases a vector to the kernel's pool.
func Msi_free(vector Msivec_t) {
	msivecs.Free(vector)
}
