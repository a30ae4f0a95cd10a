package pci

import "testing"

import "github.com/stretchr/testify/assert"

func TestPcitag(t *testing.T) {
	tag := Mkpcitag(3, 31, 2)
	b, d, f := Breakpcitag(tag)
	assert.Equal(t, []int{3, 31, 2}, []int{b, d, f})
	assert.Equal(t, "03:1f.2", tag.String())
}

func TestIsAhci(t *testing.T) {
	d := &Pcidev_t{Class: 1, Subclass: 6, Progif: 1}
	assert.True(t, d.Is_ahci())
	d = &Pcidev_t{Vid: PCI_VEND_INTEL, Did: PCI_DEV_AHCI_QEMU}
	assert.True(t, d.Is_ahci())
	d = &Pcidev_t{Vid: PCI_VEND_INTEL, Did: 0x1234, Class: 1, Subclass: 1}
	assert.False(t, d.Is_ahci())
}
