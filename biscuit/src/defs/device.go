package defs

/// Device majors for block devices attached by the storage drivers.
const (
	D_RAWDISK int = 5 /// SATA disk, minor is the HBA port
	D_CDROM   int = 8 /// ATAPI device, minor is the HBA port
)

/// Mkdev encodes a major and minor device number into a 64-bit identifier.
func Mkdev(_maj, _min int) uint {
	maj := uint(_maj)
	min := uint(_min)
	if min > 0xff {
		panic("bad minor")
	}
	m := maj<<8 | min
	return uint(m << 32)
}

/// Unmkdev returns the major and minor components of a device number.
func Unmkdev(d uint) (int, int) {
	return int(d >> 40), int(uint8(d >> 32))
}
