// Package hba describes the AHCI host bus adapter register file and the
// memory structures the adapter reads and writes over DMA.
//
// Some useful docs:
// - AHCI: https://www.intel.com/content/dam/www/public/us/en/documents/technical-specifications/serial-ata-ahci-spec-rev1-3-1.pdf
// - FIS: http://www.ece.umd.edu/courses/enee759h.S2003/references/serialata10a.pdf
package hba

import "fmt"
import "sync/atomic"

/// Generic host control register offsets.
const (
	CAP       uintptr = 0x00 /// host capabilities
	GHC       uintptr = 0x04 /// global host control
	IS        uintptr = 0x08 /// interrupt status
	PI        uintptr = 0x0c /// ports implemented
	VS        uintptr = 0x10 /// version
	CCC_CTL   uintptr = 0x14 /// command completion coalescing control
	CCC_PORTS uintptr = 0x18 /// command completion coalescing ports
	EM_LOC    uintptr = 0x1c /// enclosure management location
	EM_CTL    uintptr = 0x20 /// enclosure management control
	CAP2      uintptr = 0x24 /// extended host capabilities
	BOHC      uintptr = 0x28 /// BIOS/OS handoff control and status
)

/// Port register offsets, relative to the port's block.
const (
	PxCLB  uintptr = 0x00 /// command list base address
	PxCLBU uintptr = 0x04
	PxFB   uintptr = 0x08 /// FIS base address
	PxFBU  uintptr = 0x0c
	PxIS   uintptr = 0x10 /// interrupt status
	PxIE   uintptr = 0x14 /// interrupt enable
	PxCMD  uintptr = 0x18 /// command and status
	PxTFD  uintptr = 0x20 /// task file data
	PxSIG  uintptr = 0x24 /// signature
	PxSSTS uintptr = 0x28 /// SStatus
	PxSCTL uintptr = 0x2c /// SControl
	PxSERR uintptr = 0x30 /// SError
	PxSACT uintptr = 0x34 /// SActive
	PxCI   uintptr = 0x38 /// command issue
	PxSNTF uintptr = 0x3c /// SNotification
	PxFBS  uintptr = 0x40 /// FIS-based switching control
)

const (
	NPORTS   = 32
	NSLOTS   = 32
	PORTBASE uintptr = 0x100
	PORTLEN  uintptr = 0x80
	/// MMIOLEN is the size of the register file covering all ports.
	MMIOLEN = int(PORTBASE + NPORTS*PORTLEN)
)

const (
	CAP_S64A uint32 = 1 << 31 /// 64-bit addressing
	CAP_NCQ  uint32 = 1 << 30

	GHC_AE uint32 = 1 << 31 /// AHCI enable
	GHC_IE uint32 = 1 << 1  /// interrupt enable
	GHC_HR uint32 = 1 << 0  /// HBA reset

	CAP2_BOH uint32 = 1 << 0 /// BIOS/OS handoff supported

	BOHC_BOS  uint32 = 1 << 0 /// BIOS owned semaphore
	BOHC_OOS  uint32 = 1 << 1 /// OS owned semaphore
	BOHC_SOOE uint32 = 1 << 2 /// SMI on OS ownership change enable
	BOHC_OOC  uint32 = 1 << 3 /// OS ownership change
	BOHC_BB   uint32 = 1 << 4 /// BIOS busy
)

const (
	CMD_ST    uint32 = 1 << 0  /// start
	CMD_SUD   uint32 = 1 << 1  /// spin-up device
	CMD_POD   uint32 = 1 << 2  /// power on device
	CMD_FRE   uint32 = 1 << 4  /// FIS receive enable
	CMD_FR    uint32 = 1 << 14 /// FIS receive running
	CMD_CR    uint32 = 1 << 15 /// command list running
	CMD_ATAPI uint32 = 1 << 24 /// device is ATAPI
	CMD_ICC   uint32 = 1 << 28 /// interface communication control: active
)

/// Port interrupt status bits; the enable register uses the same layout.
const (
	IS_DHRS uint32 = 1 << 0  /// D2H register FIS
	IS_PSS  uint32 = 1 << 1  /// PIO setup FIS
	IS_DSS  uint32 = 1 << 2  /// DMA setup FIS
	IS_SDBS uint32 = 1 << 3  /// set device bits FIS
	IS_UFS  uint32 = 1 << 4  /// unknown FIS
	IS_DPS  uint32 = 1 << 5  /// descriptor processed
	IS_PCS  uint32 = 1 << 6  /// port connect change
	IS_DMPS uint32 = 1 << 7  /// device mechanical presence
	IS_PRCS uint32 = 1 << 22 /// PhyRdy change
	IS_IPMS uint32 = 1 << 23 /// incorrect port multiplier
	IS_OFS  uint32 = 1 << 24 /// overflow
	IS_INFS uint32 = 1 << 26 /// interface non-fatal error
	IS_IFS  uint32 = 1 << 27 /// interface fatal error
	IS_HBDS uint32 = 1 << 28 /// host bus data error
	IS_HBFS uint32 = 1 << 29 /// host bus fatal error
	IS_TFES uint32 = 1 << 30 /// task file error
	IS_CPDS uint32 = 1 << 31 /// cold port detect

	IE_ALL uint32 = IS_DHRS | IS_PSS | IS_DSS | IS_SDBS | IS_UFS | IS_DPS |
		IS_PCS | IS_DMPS | IS_PRCS | IS_IPMS | IS_OFS | IS_INFS | IS_IFS |
		IS_HBDS | IS_HBFS | IS_TFES | IS_CPDS
)

const (
	TFD_ERR uint32 = 0x01 /// status: error
	TFD_DRQ uint32 = 0x08 /// status: data request
	TFD_BSY uint32 = 0x80 /// status: busy

	SSTS_DET_PRESENT uint32 = 3 /// device present, phy established
	SSTS_IPM_ACTIVE  uint32 = 1

	SCTL_IPM_DISABLE uint32 = 7 << 8 /// no partial, slumber or devsleep
)

/// Device signatures reported in PxSIG.
const (
	SIG_ATA   uint32 = 0x00000101
	SIG_ATAPI uint32 = 0xeb140101
	SIG_SEMB  uint32 = 0xc33c0101
	SIG_PM    uint32 = 0x96690101
)

/// Mmio_i is a window of 32-bit device registers. Every call touches the
/// device; implementations must not cache or merge accesses.
type Mmio_i interface {
	Ld32(off uintptr) uint32
	St32(off uintptr, v uint32)
}

/// Mmio32_t is an Mmio_i over mapped memory.
type Mmio32_t struct {
	regs []uint32
}

/// Mkmmio wraps a mapped register window, as returned by a Dmaplen32.
func Mkmmio(regs []uint32) *Mmio32_t {
	return &Mmio32_t{regs: regs}
}

func (m *Mmio32_t) _reg(off uintptr) *uint32 {
	if off%4 != 0 || int(off/4) >= len(m.regs) {
		panic(fmt.Sprintf("bad register offset %#x", off))
	}
	return &m.regs[off/4]
}

/// Ld32 loads the register at off.
func (m *Mmio32_t) Ld32(off uintptr) uint32 {
	return atomic.LoadUint32(m._reg(off))
}

/// St32 stores v to the register at off. Serial ATA AHCI 1.3.1, section 3:
/// locked accesses are not supported, so this is a plain store.
func (m *Mmio32_t) St32(off uintptr, v uint32) {
	atomic.StoreUint32(m._reg(off), v)
}

/// SET sets bits v in the register at off.
func SET(m Mmio_i, off uintptr, v uint32) {
	m.St32(off, m.Ld32(off)|v)
}

/// CLR clears bits v in the register at off.
func CLR(m Mmio_i, off uintptr, v uint32) {
	m.St32(off, m.Ld32(off)&^v)
}

/// Hba_t gives typed access to the generic host control registers.
type Hba_t struct {
	m Mmio_i
}

/// Mkhba wraps the register file of one controller.
func Mkhba(m Mmio_i) *Hba_t {
	return &Hba_t{m: m}
}

func (h *Hba_t) Cap() uint32 { return h.m.Ld32(CAP) }
func (h *Hba_t) Cap2() uint32 { return h.m.Ld32(CAP2) }
func (h *Hba_t) Ghc() uint32 { return h.m.Ld32(GHC) }
func (h *Hba_t) Set_ghc(v uint32) { h.m.St32(GHC, v) }
func (h *Hba_t) Is() uint32 { return h.m.Ld32(IS) }
func (h *Hba_t) Set_is(v uint32) { h.m.St32(IS, v) }
func (h *Hba_t) Pi() uint32 { return h.m.Ld32(PI) }
func (h *Hba_t) Vs() uint32 { return h.m.Ld32(VS) }
func (h *Hba_t) Bohc() uint32 { return h.m.Ld32(BOHC) }
func (h *Hba_t) Set_bohc(v uint32) { h.m.St32(BOHC, v) }

/// Ncs returns the number of command slots the controller supports.
func (h *Hba_t) Ncs() int {
	return int((h.Cap()>>8)&0x1f) + 1
}

/// Version returns the major and minor AHCI version.
func (h *Hba_t) Version() (int, int) {
	vs := h.Vs()
	return int(vs >> 16), int(vs & 0xffff)
}

/// Port returns the register block of port i.
func (h *Hba_t) Port(i int) *Port_t {
	if i < 0 || i >= NPORTS {
		panic("bad port")
	}
	return &Port_t{m: h.m, base: PORTBASE + uintptr(i)*PORTLEN}
}

/// Port_t gives typed access to one port's registers.
type Port_t struct {
	m    Mmio_i
	base uintptr
}

func (p *Port_t) ld(off uintptr) uint32 { return p.m.Ld32(p.base + off) }
func (p *Port_t) st(off uintptr, v uint32) { p.m.St32(p.base+off, v) }

func (p *Port_t) ld64(off uintptr) uint64 {
	return uint64(p.ld(off)) | uint64(p.ld(off+4))<<32
}

// low dword first.
func (p *Port_t) st64(off uintptr, v uint64) {
	p.st(off, uint32(v))
	p.st(off+4, uint32(v>>32))
}

func (p *Port_t) Clb() uint64 { return p.ld64(PxCLB) }
func (p *Port_t) Set_clb(pa uint64) { p.st64(PxCLB, pa) }
func (p *Port_t) Fb() uint64 { return p.ld64(PxFB) }
func (p *Port_t) Set_fb(pa uint64) { p.st64(PxFB, pa) }
func (p *Port_t) Is() uint32 { return p.ld(PxIS) }
func (p *Port_t) Set_is(v uint32) { p.st(PxIS, v) }
func (p *Port_t) Ie() uint32 { return p.ld(PxIE) }
func (p *Port_t) Set_ie(v uint32) { p.st(PxIE, v) }
func (p *Port_t) Cmd() uint32 { return p.ld(PxCMD) }
func (p *Port_t) Set_cmd(v uint32) { p.st(PxCMD, v) }
func (p *Port_t) Tfd() uint32 { return p.ld(PxTFD) }
func (p *Port_t) Sig() uint32 { return p.ld(PxSIG) }
func (p *Port_t) Ssts() uint32 { return p.ld(PxSSTS) }
func (p *Port_t) Sctl() uint32 { return p.ld(PxSCTL) }
func (p *Port_t) Set_sctl(v uint32) { p.st(PxSCTL, v) }
func (p *Port_t) Serr() uint32 { return p.ld(PxSERR) }
func (p *Port_t) Set_serr(v uint32) { p.st(PxSERR, v) }
func (p *Port_t) Sact() uint32 { return p.ld(PxSACT) }
func (p *Port_t) Ci() uint32 { return p.ld(PxCI) }
func (p *Port_t) Set_ci(v uint32) { p.st(PxCI, v) }
func (p *Port_t) Sntf() uint32 { return p.ld(PxSNTF) }
func (p *Port_t) Fbs() uint32 { return p.ld(PxFBS) }
func (p *Port_t) Set_cmdbits(v uint32) { SET(p.m, p.base+PxCMD, v) }
func (p *Port_t) Clr_cmdbits(v uint32) { CLR(p.m, p.base+PxCMD, v) }

/// Det returns the SStatus device detection field.
func (p *Port_t) Det() uint32 {
	return p.Ssts() & 0xf
}

/// Ipm returns the SStatus interface power management field.
func (p *Port_t) Ipm() uint32 {
	return (p.Ssts() >> 8) & 0xf
}

/// Portregs_t is a snapshot of a port's registers.
type Portregs_t struct {
	Is, Ie, Cmd, Tfd, Ssts, Sctl, Serr, Sact, Ci, Sntf, Fbs uint32
}

/// Dump reads every status register of the port once.
func (p *Port_t) Dump() Portregs_t {
	return Portregs_t{
		Is:   p.Is(),
		Ie:   p.Ie(),
		Cmd:  p.Cmd(),
		Tfd:  p.Tfd(),
		Ssts: p.Ssts(),
		Sctl: p.Sctl(),
		Serr: p.Serr(),
		Sact: p.Sact(),
		Ci:   p.Ci(),
		Sntf: p.Sntf(),
		Fbs:  p.Fbs(),
	}
}

func (r Portregs_t) String() string {
	return fmt.Sprintf("is=%#x ie=%#x cmd=%#x tfd=%#x ssts=%#x sctl=%#x "+
		"serr=%#x sact=%#x ci=%#x sntf=%#x fbs=%#x", r.Is, r.Ie, r.Cmd,
		r.Tfd, r.Ssts, r.Sctl, r.Serr, r.Sact, r.Ci, r.Sntf, r.Fbs)
}
