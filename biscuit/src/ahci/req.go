package ahci

import "fmt"
import "time"

import "github.com/sirupsen/logrus"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/util"

/// Dmacmd_t is the kind of transfer a request performs.
type Dmacmd_t int

const (
	DMA_READ Dmacmd_t = iota
	DMA_IDENTIFY
	DMA_WRITE
)

/// Dmabuf_t is one physically contiguous piece of a request's data.
type Dmabuf_t struct {
	Pa mem.Pa_t
	Sz int
}

/// Dmareq_t is a sector-addressed transfer staged in DMA buffers of at most
/// chunk bytes each.
type Dmareq_t struct {
	Cmd    Dmacmd_t
	Sector uint64
	Count  int
	Bufs   []Dmabuf_t
	off    int
	dma    mem.Dma_i

	pending   int  /// commands issued and not yet retired
	abandoned bool /// the caller gave up; the last retire frees the buffers
}

/// Mkdmareq allocates the buffers for count sectors starting at sector.
func Mkdmareq(dma mem.Dma_i, cmd Dmacmd_t, sector uint64, count int, chunk int) (*Dmareq_t, error) {
	if count <= 0 {
		panic("empty request")
	}
	r := &Dmareq_t{Cmd: cmd, Sector: sector, Count: count, dma: dma}
	for left := count * hba.SECTSZ; left > 0; {
		sz := util.Min(left, chunk)
		pa, ok := dma.Dma_alloc(sz)
		if !ok {
			r.Release()
			return nil, defs.ENOMEM
		}
		r.Bufs = append(r.Bufs, Dmabuf_t{Pa: pa, Sz: sz})
		left -= sz
	}
	return r, nil
}

/// Release returns the request's buffers.
func (r *Dmareq_t) Release() {
	for _, b := range r.Bufs {
		r.dma.Dma_free(b.Pa)
	}
	r.Bufs = nil
}

/// Abandon gives up on the request. Its buffers are returned at once if no
/// command still refers to them, otherwise when the last one is retired.
func (r *Dmareq_t) Abandon() {
	r.abandoned = true
	if r.pending == 0 {
		r.Release()
	}
}

// the HBA is done with one of r's commands.
func (r *Dmareq_t) retire() {
	if r.pending <= 0 {
		panic("retire without a command")
	}
	r.pending--
	if r.abandoned && r.pending == 0 {
		r.Release()
	}
}

/// Issued returns the number of sectors covered by issued commands.
func (r *Dmareq_t) Issued() int {
	return r.off
}

// the pieces of the buffers holding sectors [off, off+n) of the request.
func (r *Dmareq_t) at_offset(off, n int) []Dmabuf_t {
	a, b := off*hba.SECTSZ, (off+n)*hba.SECTSZ
	var ret []Dmabuf_t
	pos := 0
	for _, d := range r.Bufs {
		lo, hi := pos, pos+d.Sz
		pos = hi
		if hi <= a {
			continue
		}
		if lo >= b {
			break
		}
		s, e := lo, hi
		if s < a {
			s = a
		}
		if e > b {
			e = b
		}
		ret = append(ret, Dmabuf_t{Pa: d.Pa + mem.Pa_t(s-lo), Sz: e - s})
	}
	return ret
}

/// Copy_into copies the request's data, in order, into buf and returns the
/// bytes copied: len(buf) unless buf is longer than the request.
func (r *Dmareq_t) Copy_into(buf []uint8) int {
	c := 0
	for _, d := range r.Bufs {
		if c == len(buf) {
			break
		}
		c += copy(buf[c:], r.dma.Dmaplen(d.Pa, d.Sz))
	}
	return c
}

/// Copy_from fills the request's buffers from buf, in order.
func (r *Dmareq_t) Copy_from(buf []uint8) int {
	c := 0
	for _, d := range r.Bufs {
		if c == len(buf) {
			break
		}
		c += copy(r.dma.Dmaplen(d.Pa, d.Sz), buf[c:])
	}
	return c
}

// inflight_t is a command between issue and observed completion.
type inflight_t struct {
	req *Dmareq_t
	off int
	n   int
}

// cmd_t is one hardware command.
type cmd_t struct {
	ata   uint8
	lba   uint64
	count int
	feat  uint8
	write bool
	data  bool
	pkt   []uint8
	bufs  []Dmabuf_t
}

func (c *cmd_t) encode() (uint16, *hba.Fis_h2d_t) {
	var flags uint16
	if c.write {
		flags |= hba.CH_WRITE
	}
	if c.data {
		flags |= hba.CH_PREFETCH | hba.CH_CLEAR
	}
	fis := hba.Mkh2d(c.ata)
	fis.Featl = c.feat
	if c.pkt != nil {
		flags |= hba.CH_ATAPI
		return flags, fis
	}
	fis.Device = hba.DEV_LBA
	switch c.ata {
	case hba.ATA_READ_DMA, hba.ATA_WRITE_DMA:
		fis.Lba0 = uint8(c.lba)
		fis.Lba1 = uint8(c.lba >> 8)
		fis.Lba2 = uint8(c.lba >> 16)
		fis.Device |= uint8(c.lba>>24) & 0xf
		fis.Countl = uint8(c.count)
	default:
		fis.Set_lba(c.lba)
		fis.Set_count(uint16(c.count))
	}
	return flags, fis
}

func (p *Port_t) find_slot() (int, bool) {
	for i := 0; i < p.ncs; i++ {
		if p.inflight[i] == nil {
			return i, true
		}
	}
	return 0, false
}

func (p *Port_t) busy_slots() int {
	n := 0
	for i := 0; i < p.ncs; i++ {
		if p.inflight[i] != nil {
			n++
		}
	}
	return n
}

/// issue builds c in slot and sets the slot's command issue bit. A slot
/// out of range or still owned by an unreaped command is refused with
/// InvalidSlot.
func (p *Port_t) issue(slot int, c *cmd_t, inf *inflight_t) error {
	if p.state != PS_STARTED {
		panic(fmt.Sprintf("issue on %v port", p.state))
	}
	if slot < 0 || slot >= p.ncs || p.inflight[slot] != nil ||
		p.regs.Ci()&(1<<uint(slot)) != 0 {
		return p.fault(InvalidSlot, p.regs.Is())
	}
	flags, fis := c.encode()
	p.cs.fill(slot, flags, fis, c.pkt, c.bufs)
	if !spin(p.cfg.Spin_busy, func() bool {
		return p.regs.Tfd()&(hba.TFD_BSY|hba.TFD_DRQ) == 0
	}) {
		return p.hang("issue")
	}
	p.inflight[slot] = inf
	if inf.req != nil {
		inf.req.pending++
	}
	p.Stats.Ncmd.Inc()
	p.log.WithFields(logrus.Fields{
		"slot":  slot,
		"cmd":   fmt.Sprintf("%#x", c.ata),
		"lba":   c.lba,
		"count": c.count,
		"prds":  len(c.bufs),
	}).Trace("issue")
	p.regs.Set_ci(1 << uint(slot))
	return nil
}

// check returns the error the port status or the interrupt path reported.
func (p *Port_t) check() error {
	is := p.regs.Is()
	if kind, ok := classify(is); ok {
		return p.fault(kind, is)
	}
	if kind, ok := p.ctx.take_pending(p.Num); ok {
		return kind
	}
	return nil
}

/// reap frees the slots whose completion is visible in PxCI and returns
/// how many it freed. An error reported by the port is returned instead.
func (p *Port_t) reap() (int, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	ci := p.regs.Ci()
	n := 0
	for i := 0; i < p.ncs; i++ {
		if p.inflight[i] != nil && ci&(1<<uint(i)) == 0 {
			p.clear_slot(i)
			n++
		}
	}
	return n, nil
}

func (p *Port_t) clear_slot(slot int) {
	inf := p.inflight[slot]
	p.inflight[slot] = nil
	if inf != nil && inf.req != nil {
		inf.req.retire()
	}
}

// forgets every in-flight command. Only valid with the engines stopped.
func (p *Port_t) drop_inflight() {
	for i := range p.inflight {
		p.clear_slot(i)
	}
}

// spins reaping until done says stop.
func (p *Port_t) reap_until(op string, done func(n int) bool) error {
	var err error
	ok := spin(p.cfg.Spin_complete, func() bool {
		var n int
		n, err = p.reap()
		return err != nil || done(n)
	})
	if err != nil {
		return err
	}
	if !ok {
		return p.hang(op)
	}
	return nil
}

// fail recovers the port from a hardware error. Hangs and slot misuse
// leave the port as it is.
func (p *Port_t) fail(err error) error {
	if kind, ok := err.(Intrerr_t); ok && kind != InvalidSlot {
		p.recover()
	}
	return err
}

/// run_request issues commands of at most max sectors until the whole
/// request is covered, reaping completions whenever no slot is free, and
/// returns once every command completed.
func (p *Port_t) run_request(r *Dmareq_t, max int, mk func(r *Dmareq_t, off, n int) *cmd_t) error {
	st := time.Now()
	defer p.Stats.Tio.Add(st)
	for r.off < r.Count {
		slot, ok := p.find_slot()
		if !ok {
			p.Stats.Nnoslot.Inc()
			err := p.reap_until("reap", func(n int) bool { return n > 0 })
			if err != nil {
				return p.fail(err)
			}
			continue
		}
		n := util.Min(r.Count-r.off, max)
		inf := &inflight_t{req: r, off: r.off, n: n}
		if err := p.issue(slot, mk(r, r.off, n), inf); err != nil {
			return p.fail(err)
		}
		r.off += n
	}
	err := p.reap_until("complete", func(int) bool { return p.busy_slots() == 0 })
	if err != nil {
		return p.fail(err)
	}
	return nil
}

/// run_command issues a single command and waits for it, giving up after
/// limit polls. r, if not nil, is the request owning the command's buffers.
func (p *Port_t) run_command(c *cmd_t, r *Dmareq_t, limit int, op string) error {
	slot, ok := p.find_slot()
	if !ok {
		return p.fault(InvalidSlot, p.regs.Is())
	}
	if err := p.issue(slot, c, &inflight_t{req: r}); err != nil {
		return p.fail(err)
	}
	var err error
	done := spin(limit, func() bool {
		if err = p.check(); err != nil {
			return true
		}
		return p.regs.Ci()&(1<<uint(slot)) == 0
	})
	if err != nil {
		return p.fail(err)
	}
	if !done {
		return p.hang(op)
	}
	p.clear_slot(slot)
	return nil
}
