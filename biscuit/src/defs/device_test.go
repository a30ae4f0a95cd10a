package defs

import "testing"

import "github.com/stretchr/testify/assert"

func TestMkdev(t *testing.T) {
	d := Mkdev(D_RAWDISK, 3)
	maj, min := Unmkdev(d)
	assert.Equal(t, D_RAWDISK, maj)
	assert.Equal(t, 3, min)
	assert.NotEqual(t, d, Mkdev(D_CDROM, 3))
	assert.Panics(t, func() { Mkdev(D_CDROM, 0x100) })
}
