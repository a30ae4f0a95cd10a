package main

import "fmt"
import "io"

import "github.com/sirupsen/logrus"
import "github.com/spf13/cobra"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/ahci"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hbasim"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/logging"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/msi"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/pci"

const (
	physbase mem.Pa_t = 0x10000000
	bar5     mem.Pa_t = 0xfebf1000
)

// portcfg_t is one entry of sim.ports.
type portcfg_t struct {
	Port     int    `mapstructure:"port"`
	Kind     string `mapstructure:"kind"`
	Sectors  uint64 `mapstructure:"sectors"`
	Blklen   int    `mapstructure:"blklen"`
	Lba48    bool   `mapstructure:"lba48"`
	Model    string `mapstructure:"model"`
	Serial   string `mapstructure:"serial"`
	Firmware string `mapstructure:"firmware"`
	Asleep   bool   `mapstructure:"asleep"`
}

var kinds = map[string]hbasim.Devkind_t{
	"ata":   hbasim.DEV_ATA,
	"atapi": hbasim.DEV_ATAPI,
	"pm":    hbasim.DEV_PM,
	"semb":  hbasim.DEV_SEMB,
}

var default_ports = []portcfg_t{
	{Port: 0, Kind: "ata", Sectors: 2 << 20, Lba48: true, Model: "QEMU HARDDISK",
		Serial: "QM00001", Firmware: "2.5+"},
	{Port: 1, Kind: "atapi", Sectors: 4096, Model: "QEMU DVD-ROM",
		Serial: "QM00003", Firmware: "2.5+"},
}

// machine_t is a simulated controller with the driver attached.
type machine_t struct {
	log  *logrus.Logger
	phys *mem.Physmem_t
	sim  *hbasim.Sim_t
	ahci *ahci.Ahci_t
	vec  msi.Msivec_t
}

func (a *app_t) logger(w io.Writer) (*logrus.Logger, error) {
	lc := logging.Config_t{
		Filename:     a.v.GetString("logging.filename"),
		MaxAge:       a.v.GetDuration("logging.max_age"),
		MaxSize:      a.v.GetInt("logging.max_size"),
		ReportCaller: a.v.GetBool("logging.report_caller"),
		Level:        a.v.GetString("logging.level"),
		Timestamps:   a.v.GetBool("logging.timestamps"),
	}
	return logging.Setup(lc, w)
}

func (a *app_t) ports() ([]portcfg_t, error) {
	var ports []portcfg_t
	if err := a.v.UnmarshalKey("sim.ports", &ports); err != nil {
		return nil, fmt.Errorf("decoding sim.ports: %w", err)
	}
	if len(ports) == 0 {
		return default_ports, nil
	}
	seen := map[int]bool{}
	for _, p := range ports {
		if p.Port < 0 || p.Port >= hba.NPORTS {
			return nil, fmt.Errorf("sim.ports: port %d out of range", p.Port)
		}
		if seen[p.Port] {
			return nil, fmt.Errorf("sim.ports: port %d listed twice", p.Port)
		}
		seen[p.Port] = true
		if _, ok := kinds[p.Kind]; !ok && p.Kind != "" {
			return nil, fmt.Errorf("sim.ports: port %d: unknown kind %q", p.Port, p.Kind)
		}
	}
	return ports, nil
}

// boot builds the simulated controller and attaches the driver to it.
func (a *app_t) boot(cmd *cobra.Command) (*machine_t, error) {
	log, err := a.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	cfg, err := ahci.Config_from(a.v)
	if err != nil {
		return nil, err
	}
	ports, err := a.ports()
	if err != nil {
		return nil, err
	}
	phys, err := mem.Phys_init(physbase, a.v.GetInt("sim.pages"))
	if err != nil {
		return nil, err
	}
	m := &machine_t{log: log, phys: phys, sim: hbasim.Mksim(phys, a.v.GetInt("sim.slots"))}
	for _, p := range ports {
		if p.Kind == "" {
			m.sim.Implement(p.Port)
			continue
		}
		m.sim.Attach(p.Port, &hbasim.Dev_t{Kind: kinds[p.Kind], Sectors: p.Sectors,
			Blklen: p.Blklen, Lba48: p.Lba48, Model: p.Model, Serial: p.Serial,
			Firmware: p.Firmware, Asleep: p.Asleep})
	}

	dev := pci.Pcidev_t{Tag: pci.Mkpcitag(0, 31, 2), Vid: pci.PCI_VEND_INTEL,
		Did: pci.PCI_DEV_AHCI_QEMU, Class: pci.PCI_CLASS_STORAGE,
		Subclass: pci.PCI_SUBCLASS_SATA, Progif: pci.PCI_PROGIF_AHCI, Bar5: bar5}
	if !dev.Is_ahci() {
		panic("simulated function is not ahci")
	}
	if a.v.GetBool("sim.msi") {
		m.vec = msi.Msi_alloc()
		dev.Vec = m.vec
	}
	m.ahci, err = ahci.Attach(dev, m.sim, phys, cfg, log)
	if err != nil {
		m.release()
		return nil, err
	}
	return m, nil
}

func (m *machine_t) release() {
	if m.vec != 0 {
		msi.Msi_free(m.vec)
		m.vec = 0
	}
	m.phys.Close()
}

func (m *machine_t) shutdown() error {
	err := m.ahci.Close()
	if err != nil {
		m.log.WithError(err).Warn("ports did not stop")
	}
	m.release()
	return err
}
