package ahci

import "fmt"
import "sync"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/circbuf"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/stats"

/// Intrerr_t classifies a port error reported through PxIS, or a misuse of
/// the command slots.
type Intrerr_t int

const (
	TaskFile       Intrerr_t = iota + 1 /// the device reported a command error
	HostBusFatal                        /// unrecoverable DMA or bus fault
	HostBusData                         /// corrupt data transferred
	InterfaceFatal                      /// SATA link layer fault
	InvalidSlot                         /// no free slot, or a slot out of range or in use
)

/// ERR_MASK are the PxIS bits that make the driver stop trusting a port.
const ERR_MASK = hba.IS_IFS | hba.IS_HBDS | hba.IS_HBFS | hba.IS_TFES | hba.IS_CPDS

var intrnames = map[Intrerr_t]string{
	TaskFile:       "TaskFile",
	HostBusFatal:   "HostBusFatal",
	HostBusData:    "HostBusData",
	InterfaceFatal: "InterfaceFatal",
	InvalidSlot:    "InvalidSlot",
}

var intrdetail = map[Intrerr_t]string{
	TaskFile:       "task file error: device aborted the command",
	HostBusFatal:   "host bus fatal error: DMA could not complete",
	HostBusData:    "host bus data error: corrupt data during DMA",
	InterfaceFatal: "interface fatal error: SATA link failed",
	InvalidSlot:    "invalid command slot",
}

func (e Intrerr_t) String() string {
	if s, ok := intrnames[e]; ok {
		return s
	}
	return fmt.Sprintf("Intrerr(%d)", int(e))
}

/// Error returns the detail message recorded as the last error.
func (e Intrerr_t) Error() string {
	if s, ok := intrdetail[e]; ok {
		return "ahci: " + s
	}
	return "ahci: " + e.String()
}

/// classify maps interrupt status to the most severe error kind it carries.
func classify(is uint32) (Intrerr_t, bool) {
	switch {
	case is&hba.IS_HBFS != 0:
		return HostBusFatal, true
	case is&hba.IS_HBDS != 0:
		return HostBusData, true
	case is&hba.IS_IFS != 0:
		return InterfaceFatal, true
	case is&hba.IS_TFES != 0:
		return TaskFile, true
	case is&hba.IS_CPDS != 0:
		return InterfaceFatal, true
	}
	return 0, false
}

/// Hang_t reports a bounded spin that ran out. It unwraps to ETIMEDOUT.
type Hang_t struct {
	Port int
	Op   string
}

func (h *Hang_t) Error() string {
	return fmt.Sprintf("ahci: port %d hung in %s", h.Port, h.Op)
}

func (h *Hang_t) Unwrap() error {
	return defs.ETIMEDOUT
}

/// Lasterr_t is the detail of the most recent port error.
type Lasterr_t struct {
	Port int
	Kind Intrerr_t
	Is   uint32
	Regs hba.Portregs_t
}

func (l Lasterr_t) String() string {
	return fmt.Sprintf("port %d: %v (is=%#x) [%v]", l.Port, l.Kind.Error(), l.Is, l.Regs)
}

const errlogsz = 2048

/// Ctx_t is the state the interrupt path shares with the ports of one
/// controller: the global interrupt status last seen, the last error, port
/// errors the interrupt path classified but no request has consumed, and a
/// ring of recent error lines.
type Ctx_t struct {
	sync.Mutex
	global_is uint32
	last      Lasterr_t
	haslast   bool
	pending   [hba.NPORTS]Intrerr_t
	ring      circbuf.Circbuf_t
	Nintr     stats.Counter_t
	Nerror    stats.Counter_t
}

/// Mkctx returns a context whose error ring lives in a page from pg.
func Mkctx(pg mem.Page_i) *Ctx_t {
	c := &Ctx_t{}
	c.ring.Cb_init(errlogsz, pg)
	return c
}

func (c *Ctx_t) record(port int, kind Intrerr_t, is uint32, regs hba.Portregs_t) {
	c.Lock()
	defer c.Unlock()
	c.last = Lasterr_t{Port: port, Kind: kind, Is: is, Regs: regs}
	c.haslast = true
	c.Nerror.Inc()
	// the ring drops its oldest lines when full
	c.ring.Write([]uint8(c.last.String() + "\n"))
}

/// Last returns the most recent port error.
func (c *Ctx_t) Last() (Lasterr_t, bool) {
	c.Lock()
	defer c.Unlock()
	return c.last, c.haslast
}

/// Global_is returns the global interrupt status the last interrupt saw.
func (c *Ctx_t) Global_is() uint32 {
	c.Lock()
	defer c.Unlock()
	return c.global_is
}

/// Errlog returns the recent error lines, oldest first.
func (c *Ctx_t) Errlog() string {
	c.Lock()
	defer c.Unlock()
	if c.ring.Buf == nil {
		return ""
	}
	return string(c.ring.Bytes())
}

// takes the error the interrupt path recorded for port, if any.
func (c *Ctx_t) take_pending(port int) (Intrerr_t, bool) {
	c.Lock()
	defer c.Unlock()
	e := c.pending[port]
	c.pending[port] = 0
	return e, e != 0
}

func (c *Ctx_t) clear_pending(port int) {
	c.Lock()
	c.pending[port] = 0
	c.Unlock()
}

/// Intr acknowledges an interrupt from h: it caches and clears the global
/// status, then classifies and clears the status of every implemented port.
/// It returns the ports that reported errors. Calling it again without new
/// hardware events changes nothing.
func (c *Ctx_t) Intr(h *hba.Hba_t) []int {
	gis := h.Is()
	h.Set_is(gis)
	if gis != 0 {
		c.Lock()
		c.global_is = gis
		c.Unlock()
	}
	c.Nintr.Inc()

	var bad []int
	pi := h.Pi()
	for i := 0; i < hba.NPORTS; i++ {
		if pi&(1<<uint(i)) == 0 {
			continue
		}
		p := h.Port(i)
		is := p.Is()
		if kind, ok := classify(is); ok {
			c.record(i, kind, is, p.Dump())
			c.Lock()
			c.pending[i] = kind
			c.Unlock()
			bad = append(bad, i)
		}
		p.Set_is(is)
	}
	return bad
}
