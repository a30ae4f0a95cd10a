package ahci

import "fmt"
import "sync"

import "github.com/sirupsen/logrus"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/stats"

/// Portkind_t is what a port's signature says is attached.
type Portkind_t int

const (
	KIND_NONE    Portkind_t = iota /// no usable device
	KIND_UNKNOWN                   /// unrecognised signature
	KIND_SATA                      /// SATA drive
	KIND_SATAPI                    /// SATA packet interface
	KIND_PM                        /// port multiplier
	KIND_SEMB                      /// enclosure management bridge
)

func (k Portkind_t) String() string {
	switch k {
	case KIND_NONE:
		return "none"
	case KIND_SATA:
		return "sata"
	case KIND_SATAPI:
		return "satapi"
	case KIND_PM:
		return "pm"
	case KIND_SEMB:
		return "semb"
	}
	return "unknown"
}

/// Sig2kind classifies a PxSIG value.
func Sig2kind(sig uint32) Portkind_t {
	switch sig {
	case hba.SIG_ATA:
		return KIND_SATA
	case hba.SIG_ATAPI:
		return KIND_SATAPI
	case hba.SIG_PM:
		return KIND_PM
	case hba.SIG_SEMB:
		return KIND_SEMB
	}
	return KIND_UNKNOWN
}

/// Portstate_t is a port's place in its life cycle.
type Portstate_t int

const (
	PS_IDLE Portstate_t = iota
	PS_PROBED
	PS_STARTED
	PS_STOPPED
)

func (s Portstate_t) String() string {
	return [...]string{"idle", "probed", "started", "stopped"}[s]
}

/// Portstats_t counts a port's activity.
type Portstats_t struct {
	Nread   stats.Counter_t
	Nwrite  stats.Counter_t
	Ncmd    stats.Counter_t
	Nnoslot stats.Counter_t
	Nerror  stats.Counter_t
	Nhang   stats.Counter_t
	Nflush  stats.Counter_t
	Tio     stats.Time_t
}

/// Port_t is the driver's handle on one port. It owns the port's registers,
/// command structures and in-flight commands; callers serialize use through
/// Ahci_t.Checkout.
type Port_t struct {
	held     sync.Mutex
	Num      int
	regs     *hba.Port_t
	ctx      *Ctx_t
	cfg      *Config_t
	log      *logrus.Entry
	ncs      int
	state    Portstate_t
	kind     Portkind_t
	cs       *cmdstruct_t
	inflight [hba.NSLOTS]*inflight_t
	ident    *Identify_t
	Stats    Portstats_t
}

func mkport(num int, h *hba.Hba_t, ctx *Ctx_t, cfg *Config_t, log *logrus.Logger) *Port_t {
	p := &Port_t{Num: num, regs: h.Port(num), ctx: ctx, cfg: cfg, ncs: h.Ncs()}
	if p.ncs > hba.NSLOTS {
		p.ncs = hba.NSLOTS
	}
	p.log = log.WithField("port", num)
	return p
}

/// Kind returns the port kind found by probe.
func (p *Port_t) Kind() Portkind_t {
	return p.kind
}

/// State returns the port's life cycle state.
func (p *Port_t) State() Portstate_t {
	return p.state
}

/// Ident returns the IDENTIFY result, or nil if identify failed.
func (p *Port_t) Ident() *Identify_t {
	return p.ident
}

// spin polls f up to limit times, forever when limit is zero.
func spin(limit int, f func() bool) bool {
	for i := 0; limit == 0 || i < limit; i++ {
		if f() {
			return true
		}
	}
	return false
}

func (p *Port_t) hang(op string) error {
	p.Stats.Nhang.Inc()
	p.log.WithFields(logrus.Fields{
		"op":   op,
		"regs": p.regs.Dump().String(),
	}).Warn("port hung")
	return &Hang_t{Port: p.Num, Op: op}
}

// records an error the port's status reported.
func (p *Port_t) fault(kind Intrerr_t, is uint32) Intrerr_t {
	regs := p.regs.Dump()
	p.Stats.Nerror.Inc()
	p.ctx.record(p.Num, kind, is, regs)
	p.log.WithFields(logrus.Fields{
		"kind": kind.String(),
		"is":   fmt.Sprintf("%#x", is),
		"regs": regs.String(),
	}).Error(kind.Error())
	return kind
}

/// probe reads SStatus and the signature. Only a present device with an
/// established link and an active interface moves the port to PS_PROBED.
func (p *Port_t) probe() Portkind_t {
	det, ipm := p.regs.Det(), p.regs.Ipm()
	if det != hba.SSTS_DET_PRESENT || ipm != hba.SSTS_IPM_ACTIVE {
		p.kind = KIND_NONE
		p.log.WithFields(logrus.Fields{"det": det, "ipm": ipm}).Debug("no device")
		return p.kind
	}
	sig := p.regs.Sig()
	p.kind = Sig2kind(sig)
	p.state = PS_PROBED
	p.log = p.log.WithField("kind", p.kind.String())
	p.log.WithField("sig", fmt.Sprintf("%#x", sig)).Debug("device present")
	return p.kind
}

/// start waits for the command list engine to stop running, then enables
/// FIS receive and starts the engine.
func (p *Port_t) start() error {
	if p.state != PS_PROBED && p.state != PS_STOPPED {
		panic(fmt.Sprintf("start from %v", p.state))
	}
	if !spin(p.cfg.Spin_start, func() bool { return p.regs.Cmd()&hba.CMD_CR == 0 }) {
		return p.hang("start")
	}
	p.regs.Set_cmdbits(hba.CMD_FRE)
	p.regs.Set_cmdbits(hba.CMD_ST)
	p.state = PS_STARTED
	return nil
}

func (p *Port_t) quiesce() error {
	p.regs.Clr_cmdbits(hba.CMD_ST)
	p.regs.Clr_cmdbits(hba.CMD_FRE)
	ok := spin(p.cfg.Spin_stop, func() bool {
		return p.regs.Cmd()&(hba.CMD_FR|hba.CMD_CR) == 0
	})
	if !ok {
		return p.hang("stop")
	}
	return nil
}

/// stop quiesces the engines. If the port reports an error the error kind
/// is returned and the port's status and command structures are left as
/// they are.
func (p *Port_t) stop() error {
	if err := p.quiesce(); err != nil {
		return err
	}
	if is := p.regs.Is(); is&ERR_MASK != 0 {
		kind, _ := classify(is)
		return p.fault(kind, is)
	}
	p.state = PS_STOPPED
	return nil
}

/// init_cmd installs the command structures: with the engines stopped it
/// points every header at its table, programs the list and FIS bases,
/// clears status and errors, enables interrupts, keeps the link out of
/// power saving states and powers up the device. The engines stay stopped.
func (p *Port_t) init_cmd(cs *cmdstruct_t) error {
	if err := p.quiesce(); err != nil {
		return err
	}
	p.cs = cs
	cs.point_headers()
	p.regs.Set_clb(uint64(cs.clb))
	p.regs.Set_fb(uint64(cs.fb))
	p.regs.Set_is(p.regs.Is())
	p.regs.Set_ie(hba.IE_ALL)
	p.regs.Set_serr(p.regs.Serr())
	p.regs.Set_sctl(p.regs.Sctl() | hba.SCTL_IPM_DISABLE)
	p.regs.Set_cmdbits(hba.CMD_POD | hba.CMD_SUD)
	if p.kind == KIND_SATAPI {
		p.regs.Set_cmdbits(hba.CMD_ATAPI)
	}
	p.state = PS_STOPPED
	p.ctx.clear_pending(p.Num)
	return nil
}

/// recover brings a port back after an error: the engines are stopped, the
/// status and error registers cleared, every in-flight command dropped and
/// the engines started again. Nothing is reissued.
func (p *Port_t) recover() error {
	if err := p.quiesce(); err != nil {
		return err
	}
	p.regs.Set_is(p.regs.Is())
	p.regs.Set_serr(p.regs.Serr())
	p.ctx.clear_pending(p.Num)
	p.drop_inflight()
	p.state = PS_STOPPED
	return p.start()
}

/// Read_is returns the port's interrupt status.
func (p *Port_t) Read_is() uint32 {
	return p.regs.Is()
}

/// Write_is writes the port's interrupt status; set bits are cleared.
func (p *Port_t) Write_is(v uint32) {
	p.regs.Set_is(v)
}

// release stops the port and frees its command structures. They are kept
// if the engines will not stop or the port reports an error.
func (p *Port_t) release() error {
	if p.cs == nil {
		return nil
	}
	if err := p.stop(); err != nil {
		return err
	}
	p.drop_inflight()
	p.cs.release()
	p.cs = nil
	p.state = PS_IDLE
	return nil
}
