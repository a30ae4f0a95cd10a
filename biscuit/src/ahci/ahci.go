// Package ahci drives AHCI SATA host bus adapters. Attach takes over a
// controller, probes every implemented port and exports each SATA disk and
// ATAPI device it finds as an fs.Disk_i. All waiting is done by polling
// registers; no goroutines are started.
package ahci

import "errors"
import "fmt"
import "strconv"
import "sync"

import "github.com/sirupsen/logrus"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/fs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/logging"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/pci"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/stats"

/// Physmem_i is what the driver needs from physical memory: DMA buffers and
/// a page for the error ring.
type Physmem_i interface {
	mem.Dma_i
	mem.Page_i
}

/// Ahci_t is one attached controller.
type Ahci_t struct {
	dev  pci.Pcidev_t
	hba  *hba.Hba_t
	cfg  Config_t
	phys Physmem_i
	ctx  *Ctx_t
	log  *logrus.Logger

	sync.RWMutex
	ports     [hba.NPORTS]*Port_t
	disks     []fs.Disk_i
	atapibufs []mem.Pa_t
}

/// Attach takes the controller at dev, whose registers are reachable
/// through m, from the firmware, enables AHCI mode and brings up every
/// implemented port that has a SATA or ATAPI device. Ports that fail are
/// logged and left out; only bad configuration fails Attach.
func Attach(dev pci.Pcidev_t, m hba.Mmio_i, phys Physmem_i, cfg Config_t,
	log *logrus.Logger) (*Ahci_t, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	hba.Verify()
	a := &Ahci_t{dev: dev, hba: hba.Mkhba(m), cfg: cfg, phys: phys,
		ctx: Mkctx(phys), log: log}
	l := log.WithFields(logrus.Fields{
		"pci":  dev.Tag.String(),
		"bar5": fmt.Sprintf("%#x", dev.Bar5),
	})

	a.handoff(l)
	ghc := hba.GHC_AE
	if dev.Vec != 0 {
		ghc |= hba.GHC_IE
	}
	a.hba.Set_ghc(a.hba.Ghc() | ghc)
	maj, min := a.hba.Version()
	pi := a.hba.Pi()
	l.WithFields(logrus.Fields{
		"version": fmt.Sprintf("%d.%d.%d", maj, min>>8, min&0xff),
		"slots":   a.hba.Ncs(),
		"pi":      fmt.Sprintf("%#x", pi),
		"vec":     dev.Vec,
	}).Info("ahci controller")

	gis := a.hba.Is()
	a.hba.Set_is(gis)
	a.ctx.Lock()
	a.ctx.global_is = gis
	a.ctx.Unlock()

	for i := 0; i < hba.NPORTS; i++ {
		if pi&(1<<uint(i)) != 0 {
			a.attach_port(i)
		}
	}
	return a, nil
}

// handoff asks the firmware to release the controller.
func (a *Ahci_t) handoff(l *logrus.Entry) {
	if a.hba.Cap2()&hba.CAP2_BOH == 0 {
		return
	}
	a.hba.Set_bohc(a.hba.Bohc() | hba.BOHC_OOS)
	ok := spin(a.cfg.Spin_handoff, func() bool {
		return a.hba.Bohc()&(hba.BOHC_BOS|hba.BOHC_BB) == 0
	})
	if !ok {
		l.WithField("bohc", fmt.Sprintf("%#x", a.hba.Bohc())).Warn("bios handoff timed out")
		return
	}
	l.Info("bios handoff")
}

func (a *Ahci_t) attach_port(i int) {
	p := mkport(i, a.hba, a.ctx, &a.cfg, a.log)
	switch p.probe() {
	case KIND_NONE:
		return
	case KIND_SATA, KIND_SATAPI:
	default:
		p.log.Info("unsupported device")
		return
	}
	cs, err := mkcmdstruct(a.phys, a.cfg.Nprd)
	if err != nil {
		p.log.WithError(err).Error("no memory for command structures")
		return
	}
	if err := p.init_cmd(cs); err != nil {
		cs.release()
		return
	}
	a.Lock()
	a.ports[i] = p
	a.Unlock()
	if err := p.start(); err != nil {
		return
	}
	// a device that does not identify is still a disk, of size 0
	var size uint64
	if id, err := p.identify(); err != nil {
		p.log.WithError(err).Warn("identify failed")
	} else {
		size = id.Size()
	}

	var d fs.Disk_i
	if p.kind == KIND_SATA {
		if p.ident != nil {
			a.features(p)
		}
		d = &Sata_disk_t{a: a, port: i, id: len(a.disks), size: size}
	} else {
		pa, ok := a.phys.Dma_alloc(a.cfg.Atapi_chunk)
		if !ok {
			p.log.Error("no memory for packet buffer")
			return
		}
		a.atapibufs = append(a.atapibufs, pa)
		d = &Atapi_disk_t{a: a, port: i, id: len(a.disks),
			buf: Dmabuf_t{Pa: pa, Sz: a.cfg.Atapi_chunk}}
	}
	a.Lock()
	a.disks = append(a.disks, d)
	a.Unlock()
}

func (a *Ahci_t) features(p *Port_t) {
	if a.cfg.Write_cache {
		if err := p.set_features(hba.FEAT_WCACHE_ON); err != nil {
			p.log.WithError(err).Warn("enabling write cache")
		}
	}
	if a.cfg.Read_ahead {
		if err := p.set_features(hba.FEAT_READAHEAD_ON); err != nil {
			p.log.WithError(err).Warn("enabling read-ahead")
		}
	}
}

/// Disks returns the devices found, in port order.
func (a *Ahci_t) Disks() []fs.Disk_i {
	a.RLock()
	defer a.RUnlock()
	return append([]fs.Disk_i(nil), a.disks...)
}

/// Ports returns the handles of the ports that were brought up.
func (a *Ahci_t) Ports() []*Port_t {
	a.RLock()
	defer a.RUnlock()
	var ret []*Port_t
	for _, p := range a.ports {
		if p != nil {
			ret = append(ret, p)
		}
	}
	return ret
}

/// Ctx returns the controller's interrupt and error context.
func (a *Ahci_t) Ctx() *Ctx_t {
	return a.ctx
}

func (a *Ahci_t) lookup(num int) (*Port_t, error) {
	if num < 0 || num >= hba.NPORTS {
		return nil, defs.ENODEV
	}
	a.RLock()
	p := a.ports[num]
	a.RUnlock()
	if p == nil {
		return nil, defs.ENODEV
	}
	return p, nil
}

// the port without checking it out, for status register passthrough.
func (a *Ahci_t) raw_port(num int) *Port_t {
	p, err := a.lookup(num)
	if err != nil {
		panic("no such port")
	}
	return p
}

/// Checkout gives the caller exclusive use of port num, or fails with
/// EBUSY if someone else holds it.
func (a *Ahci_t) Checkout(num int) (*Port_t, error) {
	p, err := a.lookup(num)
	if err != nil {
		return nil, err
	}
	if !p.held.TryLock() {
		return nil, defs.EBUSY
	}
	return p, nil
}

/// Wait_port is Checkout that waits for the holder to check the port in.
func (a *Ahci_t) Wait_port(num int) (*Port_t, error) {
	p, err := a.lookup(num)
	if err != nil {
		return nil, err
	}
	p.held.Lock()
	return p, nil
}

/// Checkin releases a port obtained from Checkout or Wait_port.
func (a *Ahci_t) Checkin(p *Port_t) {
	p.held.Unlock()
}

/// Intr is the interrupt handler; it may also be polled.
func (a *Ahci_t) Intr() []int {
	return a.ctx.Intr(a.hba)
}

/// Sources returns the per-port counters and the controller's counters for
/// stats.Collector_t and stats.Profile.
func (a *Ahci_t) Sources() []stats.Source_t {
	ret := []stats.Source_t{{Label: "hba", Stats: a.ctx}}
	for _, p := range a.Ports() {
		ret = append(ret, stats.Source_t{Label: strconv.Itoa(p.Num), Stats: &p.Stats})
	}
	return ret
}

/// Close stops every port and returns the driver's memory. Ports whose
/// engines do not stop keep their structures and are reported.
func (a *Ahci_t) Close() error {
	a.Lock()
	defer a.Unlock()
	var errs []error
	for i, p := range a.ports {
		if p == nil {
			continue
		}
		p.held.Lock()
		if err := p.release(); err != nil {
			errs = append(errs, err)
		}
		a.ports[i] = nil
		p.held.Unlock()
	}
	if len(errs) == 0 {
		for _, pa := range a.atapibufs {
			a.phys.Dma_free(pa)
		}
		a.atapibufs = nil
	}
	a.disks = nil
	a.ctx.Lock()
	a.ctx.ring.Cb_release()
	a.ctx.Unlock()
	return errors.Join(errs...)
}
