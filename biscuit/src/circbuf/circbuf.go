package circbuf

import "bytes"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"

/// Circbuf_t is a byte ring backed by a single physical page. Writers that
/// do not fit evict the oldest bytes, whole lines at a time. It is not safe
/// for concurrent use.
type Circbuf_t struct {
	mem   mem.Page_i /// page allocator interface
	Buf   []uint8    /// underlying buffer backing memory
	bufsz int        /// buffer capacity in bytes
	head  int        /// write position
	tail  int        /// read position
	p_pg  mem.Pa_t   /// physical page backing the buffer
}

/// Cb_init records the size and allocator; the page is allocated on first
/// use.
func (cb *Circbuf_t) Cb_init(sz int, m mem.Page_i) {
	bufmax := int(mem.PGSIZE)
	if sz <= 0 || sz > bufmax {
		panic("bad circbuf size")
	}
	cb.mem = m
	cb.bufsz = sz
	cb.head, cb.tail = 0, 0
}

func (cb *Circbuf_t) cb_init_phys(v []uint8, p_pg mem.Pa_t) {
	cb.mem.Refup(p_pg)
	cb.p_pg = p_pg
	cb.Buf = v
	cb.head, cb.tail = 0, 0
}

/// Cb_release drops the reference to the backing page.
func (cb *Circbuf_t) Cb_release() {
	if cb.Buf == nil {
		return
	}
	cb.mem.Refdown(cb.p_pg)
	cb.p_pg = 0
	cb.Buf = nil
	cb.head, cb.tail = 0, 0
}

/// Cb_ensure guarantees that the buffer is allocated. It returns ENOMEM
/// if no page is available.
func (cb *Circbuf_t) Cb_ensure() defs.Err_t {
	if cb.Buf != nil {
		return 0
	}
	if cb.bufsz == 0 {
		panic("not initted")
	}
	pg, p_pg, ok := cb.mem.Refpg_new_nozero()
	if !ok {
		return defs.ENOMEM
	}
	cb.cb_init_phys(pg[:cb.bufsz], p_pg)
	return 0
}

/// Full returns true when the buffer cannot accept more data.
func (cb *Circbuf_t) Full() bool {
	return cb.head-cb.tail == cb.bufsz
}

/// Empty reports whether the buffer contains any data.
func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

/// Left returns the remaining capacity in bytes.
func (cb *Circbuf_t) Left() int {
	return cb.bufsz - cb.Used()
}

/// Used returns the current number of bytes in the buffer.
func (cb *Circbuf_t) Used() int {
	return cb.head - cb.tail
}

/// Advtail discards sz bytes from the read side.
func (cb *Circbuf_t) Advtail(sz int) {
	if sz != 0 && (cb.Empty() || cb.Used() < sz) {
		panic("advancing empty cb")
	}
	cb.tail += sz
}

// drops whole lines from the tail until at least need bytes are free.
func (cb *Circbuf_t) _evict(need int) {
	for cb.Left() < need {
		r1, r2 := cb._data()
		n := bytes.IndexByte(r1, '\n')
		if n < 0 {
			if m := bytes.IndexByte(r2, '\n'); m >= 0 {
				n = len(r1) + m
			}
		}
		if n < 0 {
			cb.Advtail(cb.Used())
			return
		}
		cb.Advtail(n + 1)
	}
}

// returns the buffered bytes in order, split where they wrap.
func (cb *Circbuf_t) _data() ([]uint8, []uint8) {
	if cb.Empty() {
		return nil, nil
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	if ti < hi {
		return cb.Buf[ti:hi], nil
	}
	return cb.Buf[ti:], cb.Buf[:hi]
}

/// Write appends p, evicting the oldest lines when the buffer is full. Only
/// the last bufsz bytes of an oversized p are kept.
func (cb *Circbuf_t) Write(p []uint8) (int, error) {
	if err := cb.Cb_ensure(); err != 0 {
		return 0, err
	}
	n := len(p)
	if len(p) > cb.bufsz {
		p = p[len(p)-cb.bufsz:]
	}
	cb._evict(len(p))
	for len(p) != 0 {
		hi := cb.head % cb.bufsz
		c := copy(cb.Buf[hi:], p)
		cb.head += c
		p = p[c:]
	}
	return n, nil
}

/// Copyout_n copies up to max bytes, or all when max is zero, into dst and
/// consumes them.
func (cb *Circbuf_t) Copyout_n(dst []uint8, max int) int {
	r1, r2 := cb._data()
	lim := len(dst)
	if max != 0 && max < lim {
		lim = max
	}
	c := copy(dst[:lim], r1)
	c += copy(dst[c:lim], r2)
	cb.Advtail(c)
	return c
}

/// Bytes returns a copy of the buffered data without consuming it.
func (cb *Circbuf_t) Bytes() []uint8 {
	r1, r2 := cb._data()
	ret := make([]uint8, 0, len(r1)+len(r2))
	ret = append(ret, r1...)
	return append(ret, r2...)
}
