package hbasim

import "strings"
import "sync"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hashtable"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/util"

/// Devkind_t is the kind of device attached to a simulated port.
type Devkind_t int

const (
	DEV_ATA Devkind_t = iota + 1
	DEV_ATAPI
	DEV_PM
	DEV_SEMB
)

func (k Devkind_t) sig() uint32 {
	switch k {
	case DEV_ATA:
		return hba.SIG_ATA
	case DEV_ATAPI:
		return hba.SIG_ATAPI
	case DEV_PM:
		return hba.SIG_PM
	case DEV_SEMB:
		return hba.SIG_SEMB
	}
	return 0xffffffff
}

/// Dev_t describes a simulated device and holds its media.
type Dev_t struct {
	Kind     Devkind_t
	Sectors  uint64 /// capacity in Blklen blocks
	Blklen   int    /// zero means 512 for ATA and 2048 for ATAPI
	Lba48    bool
	Model    string
	Serial   string
	Firmware string
	Asleep   bool /// link established but interface not active

	once    sync.Once
	blocks  *hashtable.Hashtable_t[[]uint8]
	feats   map[uint8]bool
	flushes int
}

func (d *Dev_t) blklen() int {
	if d.Blklen != 0 {
		return d.Blklen
	}
	if d.Kind == DEV_ATAPI {
		return 2048
	}
	return hba.SECTSZ
}

const mediabuckets = 1024

func (d *Dev_t) media() *hashtable.Hashtable_t[[]uint8] {
	d.once.Do(func() {
		d.blocks = hashtable.MkHash[[]uint8](mediabuckets)
	})
	return d.blocks
}

/// Block returns a copy of block lba; unwritten blocks read as zeros.
func (d *Dev_t) Block(lba uint64) []uint8 {
	ret := make([]uint8, d.blklen())
	if b, ok := d.media().Get(lba); ok {
		copy(ret, b)
	}
	return ret
}

/// Set_block stores data at block lba.
func (d *Dev_t) Set_block(lba uint64, data []uint8) {
	b := make([]uint8, d.blklen())
	copy(b, data)
	d.media().Put(lba, b)
}

/// Written returns the number of blocks that hold data.
func (d *Dev_t) Written() int {
	return d.media().Size()
}

/// Feature reports whether SET FEATURES subcommand f was received.
func (d *Dev_t) Feature(f uint8) bool {
	return d.feats[f]
}

/// Flushes returns the number of cache flushes received.
func (d *Dev_t) Flushes() int {
	return d.flushes
}

func (d *Dev_t) read(lba uint64, n int) []uint8 {
	bl := d.blklen()
	ret := make([]uint8, n*bl)
	for i := 0; i < n; i++ {
		if b, ok := d.media().Get(lba + uint64(i)); ok {
			copy(ret[i*bl:], b)
		}
	}
	return ret
}

func (d *Dev_t) write(lba uint64, data []uint8) {
	bl := d.blklen()
	for i := 0; i*bl < len(data); i++ {
		d.Set_block(lba+uint64(i), data[i*bl:])
	}
}

// packs s into words as the byte-swapped, space padded ATA string format.
func atastr(w []uint16, s string) {
	n := len(w) * 2
	if len(s) > n {
		s = s[:n]
	}
	s += strings.Repeat(" ", n-len(s))
	for i := range w {
		w[i] = uint16(s[2*i])<<8 | uint16(s[2*i+1])
	}
}

/// Identify returns the device's IDENTIFY (PACKET) DEVICE block.
func (d *Dev_t) Identify() []uint8 {
	var id hba.Ident_t
	w := id.Words[:]
	if d.Kind == DEV_ATAPI {
		// removable CD-ROM, 12 byte packets
		w[0] = 0x85c0
	} else {
		w[0] = 0x0040
		s28 := d.Sectors
		if s28 >= hba.LBA28_MAX {
			s28 = hba.LBA28_MAX - 1
		}
		w[hba.ID_LBA28] = uint16(s28)
		w[hba.ID_LBA28+1] = uint16(s28 >> 16)
		if d.Lba48 {
			w[hba.ID_CMDSET2] |= hba.ID_CMDSET2_LBA48
			for i := 0; i < 4; i++ {
				w[hba.ID_LBA48+i] = uint16(d.Sectors >> (16 * uint(i)))
			}
		}
	}
	atastr(w[hba.ID_SERIAL:hba.ID_SERIALEND], d.Serial)
	atastr(w[hba.ID_FW:hba.ID_FWEND], d.Firmware)
	atastr(w[hba.ID_MODEL:hba.ID_MODELEND], d.Model)
	b := make([]uint8, hba.IDENT_LEN)
	hba.Encode(b, &id)
	return b
}

func (d *Dev_t) capacity() []uint8 {
	b := make([]uint8, 8)
	util.Writebe(b, 4, 0, int(d.Sectors-1))
	util.Writebe(b, 4, 4, d.blklen())
	return b
}
