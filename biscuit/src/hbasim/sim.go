// Package hbasim is an in-memory AHCI host bus adapter. It implements
// hba.Mmio_i with the register semantics drivers depend on (write-1-to-clear
// status, engine running bits that follow their enables, command issue) and
// executes issued commands against simulated devices by reading the command
// list, command tables and PRDTs out of physical memory.
//
// Tests can make commands fail, complete late or out of order, keep the
// task file busy and keep a port's engines from stopping.
package hbasim

import "fmt"
import "sort"
import "sync"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/util"

/// Dmamem_i is the view of physical memory the simulated HBA masters.
type Dmamem_i interface {
	Dmaplen(mem.Pa_t, int) []uint8
}

/// Cmdrec_t records one command the HBA fetched.
type Cmdrec_t struct {
	Port   int
	Slot   int
	Cmd    uint8  /// ATA opcode
	Packet uint8  /// SCSI opcode of PACKET commands
	Lba    uint64 /// block address
	Count  int    /// sectors, or blocks for packets
	Feat   uint8
	Flags  uint16 /// command header flags
	Prds   []hba.Prd_t
}

type inject_t struct {
	after int
	bits  uint32
}

type port_t struct {
	dev     *Dev_t
	pending map[int]int
	delay   func(slot int) int
	stuck   bool
	busy    int
	inj     []inject_t
	ncmd    int
}

/// Sim_t is a simulated HBA.
type Sim_t struct {
	sync.Mutex
	regs  []uint32
	mem   Dmamem_i
	ports [hba.NPORTS]port_t
	log   []Cmdrec_t
}

const tfd_ok uint32 = 0x50 /// DRDY|DSC

/// Mksim returns an HBA supporting ncs command slots per port with every
/// port unimplemented.
func Mksim(m Dmamem_i, ncs int) *Sim_t {
	if ncs < 1 || ncs > hba.NSLOTS {
		panic("bad slot count")
	}
	s := &Sim_t{regs: make([]uint32, hba.MMIOLEN/4), mem: m}
	s.regs[hba.CAP/4] = hba.CAP_S64A | uint32(ncs-1)<<8 | (hba.NPORTS - 1)
	s.regs[hba.CAP2/4] = hba.CAP2_BOH
	s.regs[hba.BOHC/4] = hba.BOHC_BOS
	s.regs[hba.VS/4] = 0x00010301
	for i := range s.ports {
		s.ports[i].pending = make(map[int]int)
	}
	return s
}

func preg(pn int, r uintptr) int {
	return int(hba.PORTBASE+uintptr(pn)*hba.PORTLEN+r) / 4
}

func portreg(off uintptr) (int, uintptr, bool) {
	if off < hba.PORTBASE {
		return 0, 0, false
	}
	off -= hba.PORTBASE
	return int(off / hba.PORTLEN), off % hba.PORTLEN, true
}

func (s *Sim_t) idx(off uintptr) int {
	if off%4 != 0 || int(off) >= hba.MMIOLEN {
		panic(fmt.Sprintf("bad register %#x", off))
	}
	return int(off / 4)
}

/// Implement marks port pn implemented with nothing attached.
func (s *Sim_t) Implement(pn int) {
	s.Lock()
	defer s.Unlock()
	s.regs[hba.PI/4] |= 1 << uint(pn)
	s.regs[preg(pn, hba.PxSIG)] = 0xffffffff
	s.regs[preg(pn, hba.PxTFD)] = 0x7f
}

/// Attach implements port pn and plugs d into it.
func (s *Sim_t) Attach(pn int, d *Dev_t) {
	s.Implement(pn)
	s.Lock()
	defer s.Unlock()
	s.ports[pn].dev = d
	ipm := hba.SSTS_IPM_ACTIVE
	if d.Asleep {
		ipm = 2
	}
	// gen 1 speed
	s.regs[preg(pn, hba.PxSSTS)] = ipm<<8 | 1<<4 | hba.SSTS_DET_PRESENT
	s.regs[preg(pn, hba.PxSIG)] = d.Kind.sig()
	s.regs[preg(pn, hba.PxTFD)] = tfd_ok
}

/// Dev returns the device attached to port pn.
func (s *Sim_t) Dev(pn int) *Dev_t {
	s.Lock()
	defer s.Unlock()
	return s.ports[pn].dev
}

/// Ld32 implements hba.Mmio_i.
func (s *Sim_t) Ld32(off uintptr) uint32 {
	s.Lock()
	defer s.Unlock()
	i := s.idx(off)
	if pn, r, ok := portreg(off); ok {
		ps := &s.ports[pn]
		switch r {
		case hba.PxCI:
			s._tick(pn)
		case hba.PxTFD:
			if ps.busy != 0 {
				if ps.busy > 0 {
					ps.busy--
				}
				return s.regs[i] | hba.TFD_BSY
			}
		}
	}
	return s.regs[i]
}

/// St32 implements hba.Mmio_i.
func (s *Sim_t) St32(off uintptr, v uint32) {
	s.Lock()
	defer s.Unlock()
	i := s.idx(off)
	if pn, r, ok := portreg(off); ok {
		s._port_st(pn, r, i, v)
		return
	}
	switch off {
	case hba.IS:
		s.regs[i] &^= v
	case hba.GHC:
		s.regs[i] = v &^ hba.GHC_HR
	case hba.BOHC:
		// the firmware gives the controller up as soon as it is asked
		if v&hba.BOHC_OOS != 0 {
			v &^= hba.BOHC_BOS
		}
		s.regs[i] = v &^ hba.BOHC_BB
	case hba.CAP, hba.PI, hba.VS, hba.CAP2:
	default:
		s.regs[i] = v
	}
}

func (s *Sim_t) _port_st(pn int, r uintptr, i int, v uint32) {
	switch r {
	case hba.PxIS, hba.PxSERR:
		s.regs[i] &^= v
	case hba.PxCMD:
		s._cmd(pn, i, v)
	case hba.PxCI:
		s._issue(pn, v)
	case hba.PxTFD, hba.PxSIG, hba.PxSSTS:
	default:
		s.regs[i] = v
	}
}

func (s *Sim_t) _cmd(pn int, i int, v uint32) {
	old := s.regs[i]
	nv := v &^ (hba.CMD_CR | hba.CMD_FR)
	ps := &s.ports[pn]
	if nv&hba.CMD_ST != 0 {
		nv |= hba.CMD_CR
	} else {
		if old&hba.CMD_ST != 0 {
			s.regs[preg(pn, hba.PxCI)] = 0
			ps.pending = make(map[int]int)
		}
		if ps.stuck && old&hba.CMD_CR != 0 {
			nv |= hba.CMD_CR
		}
	}
	if nv&hba.CMD_FRE != 0 {
		nv |= hba.CMD_FR
	} else if ps.stuck && old&hba.CMD_FR != 0 {
		nv |= hba.CMD_FR
	}
	s.regs[i] = nv
}

func (s *Sim_t) _issue(pn int, v uint32) {
	if s.regs[preg(pn, hba.PxCMD)]&hba.CMD_ST == 0 {
		return
	}
	ci := &s.regs[preg(pn, hba.PxCI)]
	nb := v &^ *ci
	*ci |= nb
	for slot := 0; slot < hba.NSLOTS; slot++ {
		if nb&(1<<uint(slot)) != 0 {
			s._exec(pn, slot)
		}
	}
}

func (s *Sim_t) _raise(pn int, bits uint32) {
	s.regs[preg(pn, hba.PxIS)] |= bits
	s.regs[hba.IS/4] |= 1 << uint(pn)
}

func (s *Sim_t) _d2h(pn int, status, aerr uint8) {
	fb := uint64(s.regs[preg(pn, hba.PxFB)]) | uint64(s.regs[preg(pn, hba.PxFBU)])<<32
	if fb == 0 {
		return
	}
	f := hba.Fis_d2h_t{Type: hba.FIS_TYPE_D2H, Flags: 1 << 6, Status: status,
		Error: aerr}
	hba.Encode(s.mem.Dmaplen(mem.Pa_t(fb)+hba.RFIS_D2H, hba.D2H_LEN), &f)
}

func (s *Sim_t) _fail(pn int, bits uint32, aerr uint8) {
	s._raise(pn, bits)
	if bits&hba.IS_TFES != 0 {
		s.regs[preg(pn, hba.PxTFD)] = uint32(aerr)<<8 | tfd_ok | hba.TFD_ERR
		s._d2h(pn, uint8(tfd_ok|hba.TFD_ERR), aerr)
	}
}

func (s *Sim_t) _complete(pn int, slot int) {
	s.regs[preg(pn, hba.PxCI)] &^= 1 << uint(slot)
	s.regs[preg(pn, hba.PxTFD)] = tfd_ok
	s._d2h(pn, uint8(tfd_ok), 0)
	s._raise(pn, hba.IS_DHRS)
}

func (s *Sim_t) _tick(pn int) {
	ps := &s.ports[pn]
	slots := make([]int, 0, len(ps.pending))
	for slot := range ps.pending {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	for _, slot := range slots {
		ps.pending[slot]--
		if ps.pending[slot] <= 0 {
			delete(ps.pending, slot)
			s._complete(pn, slot)
		}
	}
}

func (s *Sim_t) _exec(pn int, slot int) {
	ps := &s.ports[pn]
	rec, hdr := s._decode(pn, slot)
	s.log = append(s.log, rec)
	ps.ncmd++
	for k, in := range ps.inj {
		if ps.ncmd > in.after {
			ps.inj = append(ps.inj[:k], ps.inj[k+1:]...)
			s._fail(pn, in.bits, hba.ATA_ERR_ABRT)
			return
		}
	}
	moved, aerr := s._run(ps.dev, &rec)
	util.Writen(hdr, 4, 4, moved)
	if aerr != 0 {
		s._fail(pn, hba.IS_TFES, aerr)
		return
	}
	d := 0
	if ps.delay != nil {
		d = ps.delay(slot)
	}
	if d <= 0 {
		s._complete(pn, slot)
	} else {
		ps.pending[slot] = d
	}
}

func (s *Sim_t) _decode(pn int, slot int) (Cmdrec_t, []uint8) {
	clb := uint64(s.regs[preg(pn, hba.PxCLB)]) | uint64(s.regs[preg(pn, hba.PxCLBU)])<<32
	hdr := s.mem.Dmaplen(mem.Pa_t(clb)+mem.Pa_t(slot*hba.CMDHDR_LEN), hba.CMDHDR_LEN)
	var ch hba.Cmdhdr_t
	if err := hba.Decode(hdr, &ch); err != nil {
		panic(err)
	}
	if ch.Ctba&0x7f != 0 {
		panic(fmt.Sprintf("port %v slot %v: unaligned command table %#x", pn, slot, ch.Ctba))
	}
	if ch.Cfl() != hba.H2D_LEN/4 {
		panic(fmt.Sprintf("port %v slot %v: bad cfl %v", pn, slot, ch.Cfl()))
	}
	tbl := s.mem.Dmaplen(mem.Pa_t(ch.Ctba), hba.Cmdtbl_len(int(ch.Prdtl)))
	var fis hba.Fis_h2d_t
	if err := hba.Decode(tbl[hba.CT_CFIS:], &fis); err != nil {
		panic(err)
	}
	rec := Cmdrec_t{Port: pn, Slot: slot, Cmd: fis.Command, Feat: fis.Featl,
		Flags: ch.Flags, Prds: make([]hba.Prd_t, ch.Prdtl)}
	for k := range rec.Prds {
		if err := hba.Decode(tbl[hba.CT_PRDT+k*hba.PRD_LEN:], &rec.Prds[k]); err != nil {
			panic(err)
		}
	}
	switch fis.Command {
	case hba.ATA_PACKET:
		acmd := tbl[hba.CT_ACMD : hba.CT_ACMD+hba.ACMD_LEN]
		rec.Packet = acmd[0]
		rec.Lba = uint64(util.Readbe(acmd, 4, 2))
		rec.Count = util.Readbe(acmd, 2, 7)
	case hba.ATA_READ_DMA, hba.ATA_WRITE_DMA:
		rec.Lba = uint64(fis.Lba0) | uint64(fis.Lba1)<<8 | uint64(fis.Lba2)<<16 |
			uint64(fis.Device&0xf)<<24
		rec.Count = int(fis.Countl)
		if rec.Count == 0 {
			rec.Count = 256
		}
	default:
		rec.Lba = fis.Lba()
		rec.Count = int(fis.Count())
		ext := fis.Command == hba.ATA_READ_DMAEXT || fis.Command == hba.ATA_WRITE_DMAEXT
		if ext && rec.Count == 0 {
			rec.Count = 65536
		}
	}
	return rec, hdr
}

// scatters data over the command's PRDs and returns the bytes moved.
func (s *Sim_t) _xfer_in(rec *Cmdrec_t, data []uint8) int {
	c := 0
	for _, p := range rec.Prds {
		if c == len(data) {
			break
		}
		dst := s.mem.Dmaplen(mem.Pa_t(p.Dba), p.Len())
		c += copy(dst, data[c:])
	}
	return c
}

func (s *Sim_t) _xfer_out(rec *Cmdrec_t, n int) []uint8 {
	ret := make([]uint8, 0, n)
	for _, p := range rec.Prds {
		if len(ret) == n {
			break
		}
		src := s.mem.Dmaplen(mem.Pa_t(p.Dba), p.Len())
		if l := n - len(ret); len(src) > l {
			src = src[:l]
		}
		ret = append(ret, src...)
	}
	return ret
}

// runs rec on d and returns the bytes transferred and the ATA error register
// value, zero on success.
func (s *Sim_t) _run(d *Dev_t, rec *Cmdrec_t) (int, uint8) {
	if d == nil {
		return 0, hba.ATA_ERR_ABRT
	}
	ata := d.Kind == DEV_ATA
	switch rec.Cmd {
	case hba.ATA_IDENTIFY:
		if !ata {
			return 0, hba.ATA_ERR_ABRT
		}
		return s._xfer_in(rec, d.Identify()), 0
	case hba.ATA_IDENTIFY_PKT:
		if d.Kind != DEV_ATAPI {
			return 0, hba.ATA_ERR_ABRT
		}
		return s._xfer_in(rec, d.Identify()), 0
	case hba.ATA_READ_DMA, hba.ATA_READ_DMAEXT, hba.ATA_WRITE_DMA, hba.ATA_WRITE_DMAEXT:
		if !ata {
			return 0, hba.ATA_ERR_ABRT
		}
		if rec.Lba+uint64(rec.Count) > d.Sectors {
			return 0, hba.ATA_ERR_IDNF
		}
		if rec.Cmd == hba.ATA_READ_DMA || rec.Cmd == hba.ATA_READ_DMAEXT {
			return s._xfer_in(rec, d.read(rec.Lba, rec.Count)), 0
		}
		data := s._xfer_out(rec, rec.Count*hba.SECTSZ)
		d.write(rec.Lba, data)
		return len(data), 0
	case hba.ATA_FLUSH_EXT:
		d.flushes++
		return 0, 0
	case hba.ATA_SET_FEATURES:
		if d.feats == nil {
			d.feats = make(map[uint8]bool)
		}
		d.feats[rec.Feat] = true
		return 0, 0
	case hba.ATA_PACKET:
		if d.Kind != DEV_ATAPI || d.Sectors == 0 {
			return 0, hba.ATA_ERR_ABRT
		}
		return s._packet(d, rec)
	}
	return 0, hba.ATA_ERR_ABRT
}

func (s *Sim_t) _packet(d *Dev_t, rec *Cmdrec_t) (int, uint8) {
	switch rec.Packet {
	case hba.SCSI_READ_CAPACITY:
		return s._xfer_in(rec, d.capacity()), 0
	case hba.SCSI_READ10, hba.SCSI_WRITE10:
		if rec.Lba+uint64(rec.Count) > d.Sectors {
			return 0, hba.ATA_ERR_ABRT
		}
		if rec.Packet == hba.SCSI_READ10 {
			return s._xfer_in(rec, d.read(rec.Lba, rec.Count)), 0
		}
		data := s._xfer_out(rec, rec.Count*d.blklen())
		d.write(rec.Lba, data)
		return len(data), 0
	}
	return 0, hba.ATA_ERR_ABRT
}
