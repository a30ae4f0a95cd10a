package pci

import "fmt"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/msi"

const (
	PCI_VEND_INTEL = 0x8086

	PCI_DEV_AHCI_QEMU = 0x2922
	PCI_DEV_AHCI_BHW  = 0x3b22
	PCI_DEV_AHCI_BHW2 = 0x8c02

	PCI_CLASS_STORAGE  = 0x01
	PCI_SUBCLASS_SATA  = 0x06
	PCI_PROGIF_AHCI    = 0x01
	BAR5               = 0x24
)

/// Pcitag_t names a PCI function by bus, device and function number.
type Pcitag_t uint

/// Mkpcitag encodes a bus/device/function triple.
func Mkpcitag(bus, dev, fnc int) Pcitag_t {
	return Pcitag_t(bus<<16 | dev<<11 | fnc<<8)
}

/// Breakpcitag decodes a tag into bus, device and function.
func Breakpcitag(tag Pcitag_t) (int, int, int) {
	bus := int((tag >> 16) & 0xff)
	dev := int((tag >> 11) & 0x1f)
	fnc := int((tag >> 8) & 0x7)
	return bus, dev, fnc
}

func (tag Pcitag_t) String() string {
	b, d, f := Breakpcitag(tag)
	return fmt.Sprintf("%02x:%02x.%x", b, d, f)
}

/// Pcidev_t is what platform discovery reports about a device: where its
/// registers live and which vector its interrupts are routed to.
type Pcidev_t struct {
	Tag      Pcitag_t
	Vid, Did int
	Class    int
	Subclass int
	Progif   int
	Bar5     mem.Pa_t
	Vec      msi.Msivec_t
}

/// Is_ahci reports whether the function is an AHCI SATA controller.
func (d *Pcidev_t) Is_ahci() bool {
	if d.Class == PCI_CLASS_STORAGE && d.Subclass == PCI_SUBCLASS_SATA &&
		d.Progif == PCI_PROGIF_AHCI {
		return true
	}
	if d.Vid != PCI_VEND_INTEL {
		return false
	}
	switch d.Did {
	case PCI_DEV_AHCI_QEMU, PCI_DEV_AHCI_BHW, PCI_DEV_AHCI_BHW2:
		return true
	}
	return false
}
