package ahci

import "strings"

import "golang.org/x/text/runes"
import "golang.org/x/text/transform"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"

/// Identify_t is the part of an IDENTIFY (PACKET) DEVICE response the
/// driver uses.
type Identify_t struct {
	Serial   string
	Firmware string
	Model    string
	Sectors  uint64
	Lba48    bool
}

/// Size returns the capacity in bytes.
func (id *Identify_t) Size() uint64 {
	return id.Sectors * hba.SECTSZ
}

func printable(r rune) rune {
	if r < 0x20 || r > 0x7e {
		return '?'
	}
	return r
}

// decodes an ATA string: two characters per word, high byte first, NULs
// dropped and the space padding trimmed.
func atastr(w []uint16) string {
	b := make([]uint8, 0, 2*len(w))
	for _, x := range w {
		for _, c := range [2]uint8{uint8(x >> 8), uint8(x)} {
			if c != 0 {
				b = append(b, c)
			}
		}
	}
	t := transform.Chain(runes.ReplaceIllFormed(), runes.Map(printable))
	s, _, err := transform.String(t, string(b))
	if err != nil {
		s = string(b)
	}
	return strings.TrimSpace(s)
}

/// Parse_identify decodes a 512 byte IDENTIFY block. The 48-bit sector
/// count in words 100-103 is used when non-zero, the 28-bit count in words
/// 60-61 otherwise.
func Parse_identify(b []uint8) (*Identify_t, error) {
	if len(b) < hba.IDENT_LEN {
		return nil, defs.EINVAL
	}
	var blk hba.Ident_t
	if err := hba.Decode(b, &blk); err != nil {
		return nil, err
	}
	w := blk.Words[:]
	id := &Identify_t{
		Serial:   atastr(w[hba.ID_SERIAL:hba.ID_SERIALEND]),
		Firmware: atastr(w[hba.ID_FW:hba.ID_FWEND]),
		Model:    atastr(w[hba.ID_MODEL:hba.ID_MODELEND]),
	}
	var s48 uint64
	for i := 3; i >= 0; i-- {
		s48 = s48<<16 | uint64(w[hba.ID_LBA48+i])
	}
	if s48 != 0 {
		id.Sectors = s48
		id.Lba48 = true
	} else {
		id.Sectors = uint64(w[hba.ID_LBA28]) | uint64(w[hba.ID_LBA28+1])<<16
	}
	return id, nil
}
