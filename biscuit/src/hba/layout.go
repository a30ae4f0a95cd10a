package hba

import "bytes"
import "fmt"

import "github.com/lunixbochs/struc"

/// Command header flag bits.
const (
	CH_CFL      uint16 = 0x1f    /// command FIS length in dwords
	CH_ATAPI    uint16 = 1 << 5  /// ACMD holds a SCSI packet
	CH_WRITE    uint16 = 1 << 6  /// host to device transfer
	CH_PREFETCH uint16 = 1 << 7  /// PRDs may be prefetched
	CH_RESET    uint16 = 1 << 8
	CH_BIST     uint16 = 1 << 9
	CH_CLEAR    uint16 = 1 << 10 /// clear busy upon R_OK
)

/// Sizes and offsets of the DMA structures.
const (
	CMDHDR_LEN   = 32
	CMDLIST_LEN  = NSLOTS * CMDHDR_LEN
	FIS_AREA_LEN = 0x100
	CT_CFIS      = 0x00
	CT_ACMD      = 0x40
	CT_PRDT      = 0x80
	ACMD_LEN     = 16
	PRD_LEN      = 16
	H2D_LEN      = 20
	D2H_LEN      = 20
	IDENT_LEN    = 512

	/// offset of the D2H register FIS inside the received FIS area
	RFIS_D2H = 0x40

	PRD_DBC      uint32 = 0x3fffff /// byte count minus one
	PRD_IOC      uint32 = 1 << 31  /// interrupt on completion
	MAX_PRD_SIZE        = 4 << 20
)

/// FIS types and register FIS fields.
const (
	FIS_TYPE_H2D uint8 = 0x27
	FIS_TYPE_D2H uint8 = 0x34
	FIS_C        uint8 = 1 << 7 /// H2D carries a new command
	DEV_LBA      uint8 = 1 << 6
)

/// Cmdtbl_len returns the size of a command table with nprd PRD entries.
func Cmdtbl_len(nprd int) int {
	return CT_PRDT + nprd*PRD_LEN
}

/// Cmdhdr_t is one entry of a port's command list.
type Cmdhdr_t struct {
	Flags uint16    `struc:"uint16,little"`
	Prdtl uint16    `struc:"uint16,little"` /// PRD table length in entries
	Prdbc uint32    `struc:"uint32,little"` /// bytes transferred
	Ctba  uint64    `struc:"uint64,little"` /// command table base, 128 byte aligned
	Rsv   [16]uint8 `struc:"[16]uint8"`
}

/// Cfl returns the command FIS length in dwords.
func (ch *Cmdhdr_t) Cfl() int {
	return int(ch.Flags & CH_CFL)
}

/// Prd_t is one physical region descriptor.
type Prd_t struct {
	Dba uint64 `struc:"uint64,little"`
	Rsv uint32 `struc:"uint32,little"`
	Dbc uint32 `struc:"uint32,little"`
}

/// Mkprd describes l bytes at pa. Only the last descriptor of a command
/// asks for an interrupt.
func Mkprd(pa uint64, l int, last bool) Prd_t {
	if pa&1 != 0 {
		panic("whut")
	}
	if l <= 0 || l%2 != 0 || l > MAX_PRD_SIZE {
		panic(fmt.Sprintf("bad prd length %v", l))
	}
	p := Prd_t{Dba: pa, Dbc: uint32(l-1) & PRD_DBC}
	if last {
		p.Dbc |= PRD_IOC
	}
	return p
}

/// Len returns the byte count described by the entry.
func (p *Prd_t) Len() int {
	return int(p.Dbc&PRD_DBC) + 1
}

/// Ioc reports whether completion of this entry raises an interrupt.
func (p *Prd_t) Ioc() bool {
	return p.Dbc&PRD_IOC != 0
}

/// Fis_h2d_t is a host to device register FIS.
type Fis_h2d_t struct {
	Type    uint8    `struc:"uint8"`
	Flags   uint8    `struc:"uint8"` /// port multiplier port, C bit
	Command uint8    `struc:"uint8"`
	Featl   uint8    `struc:"uint8"`
	Lba0    uint8    `struc:"uint8"`
	Lba1    uint8    `struc:"uint8"`
	Lba2    uint8    `struc:"uint8"`
	Device  uint8    `struc:"uint8"`
	Lba3    uint8    `struc:"uint8"`
	Lba4    uint8    `struc:"uint8"`
	Lba5    uint8    `struc:"uint8"`
	Feath   uint8    `struc:"uint8"`
	Countl  uint8    `struc:"uint8"`
	Counth  uint8    `struc:"uint8"`
	Icc     uint8    `struc:"uint8"`
	Control uint8    `struc:"uint8"`
	Rsv     [4]uint8 `struc:"[4]uint8"`
}

/// Mkh2d returns a command FIS for the ATA command cmd.
func Mkh2d(cmd uint8) *Fis_h2d_t {
	return &Fis_h2d_t{Type: FIS_TYPE_H2D, Flags: FIS_C, Command: cmd}
}

/// Set_lba splits a 48-bit block address over the six LBA fields.
func (f *Fis_h2d_t) Set_lba(lba uint64) {
	f.Lba0 = uint8(lba)
	f.Lba1 = uint8(lba >> 8)
	f.Lba2 = uint8(lba >> 16)
	f.Lba3 = uint8(lba >> 24)
	f.Lba4 = uint8(lba >> 32)
	f.Lba5 = uint8(lba >> 40)
}

/// Lba reassembles the 48-bit block address.
func (f *Fis_h2d_t) Lba() uint64 {
	return uint64(f.Lba0) | uint64(f.Lba1)<<8 | uint64(f.Lba2)<<16 |
		uint64(f.Lba3)<<24 | uint64(f.Lba4)<<32 | uint64(f.Lba5)<<40
}

/// Set_count splits a 16-bit sector count over the count fields.
func (f *Fis_h2d_t) Set_count(n uint16) {
	f.Countl = uint8(n)
	f.Counth = uint8(n >> 8)
}

/// Count returns the 16-bit sector count.
func (f *Fis_h2d_t) Count() uint16 {
	return uint16(f.Countl) | uint16(f.Counth)<<8
}

/// Fis_d2h_t is a device to host register FIS.
type Fis_d2h_t struct {
	Type   uint8    `struc:"uint8"`
	Flags  uint8    `struc:"uint8"` /// port multiplier port, I bit
	Status uint8    `struc:"uint8"`
	Error  uint8    `struc:"uint8"`
	Lba0   uint8    `struc:"uint8"`
	Lba1   uint8    `struc:"uint8"`
	Lba2   uint8    `struc:"uint8"`
	Device uint8    `struc:"uint8"`
	Lba3   uint8    `struc:"uint8"`
	Lba4   uint8    `struc:"uint8"`
	Lba5   uint8    `struc:"uint8"`
	Rsv0   uint8    `struc:"uint8"`
	Countl uint8    `struc:"uint8"`
	Counth uint8    `struc:"uint8"`
	Rsv1   [6]uint8 `struc:"[6]uint8"`
}

/// Ident_t is the 256-word response to IDENTIFY (PACKET) DEVICE.
type Ident_t struct {
	Words [256]uint16 `struc:"[256]uint16,little"`
}

/// Encode packs the wire structure v into the start of dst.
func Encode(dst []uint8, v interface{}) {
	var b bytes.Buffer
	if err := struc.Pack(&b, v); err != nil {
		panic(err)
	}
	if b.Len() > len(dst) {
		panic(fmt.Sprintf("encode: %T needs %v bytes, have %v", v, b.Len(), len(dst)))
	}
	copy(dst, b.Bytes())
}

/// Decode unpacks the wire structure v from the start of src.
func Decode(src []uint8, v interface{}) error {
	return struc.Unpack(bytes.NewReader(src), v)
}

/// Verify panics if a wire structure does not match the AHCI layout.
func Verify() {
	chk := func(v interface{}, want int) {
		sz, err := struc.Sizeof(v)
		if err != nil {
			panic(err)
		}
		if sz != want {
			panic(fmt.Sprintf("%T is %v bytes, want %v", v, sz, want))
		}
	}
	chk(&Cmdhdr_t{}, CMDHDR_LEN)
	chk(&Prd_t{}, PRD_LEN)
	chk(&Fis_h2d_t{}, H2D_LEN)
	chk(&Fis_d2h_t{}, D2H_LEN)
	chk(&Ident_t{}, IDENT_LEN)
}
