package hashtable

import "fmt"
import "sort"
import "sync"
import "sync/atomic"

// A hashtable keyed by block number with a lock-free Get()

type elem_t[V any] struct {
	key   uint64
	value V
	khash uint32
	next  atomic.Pointer[elem_t[V]]
}

type bucket_t[V any] struct {
	sync.Mutex
	first atomic.Pointer[elem_t[V]]
}

func (b *bucket_t[V]) len() int {
	l := 0
	for e := b.first.Load(); e != nil; e = e.next.Load() {
		l++
	}
	return l
}

func (b *bucket_t[V]) iter(f func(uint64, V) bool) bool {
	for e := b.first.Load(); e != nil; e = e.next.Load() {
		if f(e.key, e.value) {
			return true
		}
	}
	return false
}

/// Hashtable_t maps block numbers to values. Readers never lock; writers
/// lock one bucket.
type Hashtable_t[V any] struct {
	table    []*bucket_t[V]
	maxchain atomic.Int32
}

/// MkHash allocates a table with size buckets.
func MkHash[V any](size int) *Hashtable_t[V] {
	if size <= 0 {
		panic("bad size")
	}
	ht := &Hashtable_t[V]{table: make([]*bucket_t[V], size)}
	for i := range ht.table {
		ht.table[i] = &bucket_t[V]{}
	}
	return ht
}

func (ht *Hashtable_t[V]) String() string {
	return fmt.Sprintf("hashtable: %d buckets, %d elems, maxchain %d",
		len(ht.table), ht.Size(), ht.maxchain.Load())
}

/// Size returns the number of stored keys.
func (ht *Hashtable_t[V]) Size() int {
	n := 0
	for _, b := range ht.table {
		n += b.len()
	}
	return n
}

/// Pair_t is one key/value pair.
type Pair_t[V any] struct {
	Key   uint64
	Value V
}

/// Elems returns all pairs sorted by key.
func (ht *Hashtable_t[V]) Elems() []Pair_t[V] {
	p := make([]Pair_t[V], 0)
	ht.Iter(func(k uint64, v V) bool {
		p = append(p, Pair_t[V]{k, v})
		return false
	})
	sort.Slice(p, func(i, j int) bool { return p[i].Key < p[j].Key })
	return p
}

/// Get looks up key.
func (ht *Hashtable_t[V]) Get(key uint64) (V, bool) {
	kh := khash(key)
	b := ht.bucket(kh)
	n := int32(0)
	for e := b.first.Load(); e != nil; e = e.next.Load() {
		if e.khash == kh && e.key == key {
			return e.value, true
		}
		n++
		if n > ht.maxchain.Load() {
			ht.maxchain.Store(n)
		}
	}
	var zero V
	return zero, false
}

// chains are sorted by key hash, then by key. returns the link that points
// at the first element not less than key.
func (b *bucket_t[V]) find(kh uint32, key uint64) (*atomic.Pointer[elem_t[V]], *elem_t[V]) {
	link := &b.first
	for e := link.Load(); e != nil; e = link.Load() {
		if kh < e.khash || (kh == e.khash && key <= e.key) {
			return link, e
		}
		link = &e.next
	}
	return link, nil
}

/// Set inserts key unless it is present. It returns the stored value and
/// whether the insert happened.
func (ht *Hashtable_t[V]) Set(key uint64, value V) (V, bool) {
	kh := khash(key)
	b := ht.bucket(kh)
	b.Lock()
	defer b.Unlock()

	link, e := b.find(kh, key)
	if e != nil && e.khash == kh && e.key == key {
		return e.value, false
	}
	n := &elem_t[V]{key: key, value: value, khash: kh}
	n.next.Store(e)
	link.Store(n)
	return value, true
}

/// Put stores value at key, replacing any previous value. Concurrent readers
/// see either the old or the new element.
func (ht *Hashtable_t[V]) Put(key uint64, value V) {
	kh := khash(key)
	b := ht.bucket(kh)
	b.Lock()
	defer b.Unlock()

	link, e := b.find(kh, key)
	n := &elem_t[V]{key: key, value: value, khash: kh}
	if e != nil && e.khash == kh && e.key == key {
		n.next.Store(e.next.Load())
	} else {
		n.next.Store(e)
	}
	link.Store(n)
}

/// Del removes key, which must be present.
func (ht *Hashtable_t[V]) Del(key uint64) {
	kh := khash(key)
	b := ht.bucket(kh)
	b.Lock()
	defer b.Unlock()

	link, e := b.find(kh, key)
	if e == nil || e.khash != kh || e.key != key {
		panic("del of non-existing key")
	}
	link.Store(e.next.Load())
}

/// Iter applies f to each pair until f returns true.
func (ht *Hashtable_t[V]) Iter(f func(uint64, V) bool) bool {
	for _, b := range ht.table {
		if b.iter(f) {
			return true
		}
	}
	return false
}

func (ht *Hashtable_t[V]) bucket(kh uint32) *bucket_t[V] {
	return ht.table[kh%uint32(len(ht.table))]
}

func khash(key uint64) uint32 {
	h := uint32(key) ^ uint32(key>>32)
	return uint32(2654435761) * h
}
