package hba

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestPortRegisterOffsets(t *testing.T) {
	regs := make([]uint32, MMIOLEN/4)
	h := Mkhba(Mkmmio(regs))

	p := h.Port(1)
	p.Set_cmd(0x11)
	assert.Equal(t, uint32(0x11), regs[(0x100+0x80+0x18)/4])

	p.Set_clb(0x1_2345_6000)
	assert.Equal(t, uint32(0x23456000), regs[(0x180+0x00)/4])
	assert.Equal(t, uint32(0x1), regs[(0x180+0x04)/4])
	assert.Equal(t, uint64(0x1_2345_6000), p.Clb())

	regs[(0x180+0x28)/4] = 0x113
	assert.Equal(t, SSTS_DET_PRESENT, p.Det())
	assert.Equal(t, SSTS_IPM_ACTIVE, p.Ipm())

	regs[PI/4] = 0x5
	regs[CAP/4] = 31 << 8
	regs[VS/4] = 0x00010301
	assert.Equal(t, uint32(5), h.Pi())
	assert.Equal(t, 32, h.Ncs())
	maj, min := h.Version()
	assert.Equal(t, 1, maj)
	assert.Equal(t, 0x301, min)

	assert.Panics(t, func() { h.Port(32) })
	assert.Panics(t, func() { Mkmmio(regs).Ld32(2) })
}

func TestSetClr(t *testing.T) {
	regs := make([]uint32, MMIOLEN/4)
	m := Mkmmio(regs)
	p := Mkhba(m).Port(0)
	p.Set_cmdbits(CMD_ST | CMD_FRE)
	assert.Equal(t, CMD_ST|CMD_FRE, p.Cmd())
	p.Clr_cmdbits(CMD_ST)
	assert.Equal(t, CMD_FRE, p.Cmd())
	SET(m, GHC, GHC_AE)
	assert.Equal(t, GHC_AE, Mkhba(m).Ghc())
}

func TestLayoutSizes(t *testing.T) {
	assert.NotPanics(t, Verify)
	assert.Equal(t, 0x100, Cmdtbl_len(8))
	assert.Equal(t, 1024, CMDLIST_LEN)
}

func TestCmdhdrEncoding(t *testing.T) {
	ch := &Cmdhdr_t{Flags: 5 | CH_WRITE, Prdtl: 2, Ctba: 0x1000_2080}
	b := make([]uint8, CMDHDR_LEN)
	Encode(b, ch)
	assert.Equal(t, []uint8{0x45, 0x00, 0x02, 0x00}, b[0:4])
	assert.Equal(t, []uint8{0x80, 0x20, 0x00, 0x10, 0, 0, 0, 0}, b[8:16])

	var back Cmdhdr_t
	require.NoError(t, Decode(b, &back))
	assert.Equal(t, 5, back.Cfl())
	assert.Equal(t, ch.Ctba, back.Ctba)
}

func TestH2dEncoding(t *testing.T) {
	f := Mkh2d(0x25)
	f.Device = DEV_LBA
	f.Set_lba(0x1234_5678_9abc)
	f.Set_count(300)
	b := make([]uint8, H2D_LEN)
	Encode(b, f)
	assert.Equal(t, FIS_TYPE_H2D, b[0])
	assert.Equal(t, FIS_C, b[1])
	assert.Equal(t, uint8(0x25), b[2])
	assert.Equal(t, []uint8{0xbc, 0x9a, 0x78, 0x40, 0x56, 0x34, 0x12}, b[4:11])
	assert.Equal(t, []uint8{44, 1}, b[12:14])
	assert.Equal(t, uint64(0x1234_5678_9abc), f.Lba())
	assert.Equal(t, uint16(300), f.Count())
}

func TestPrdEncoding(t *testing.T) {
	lens := []int{0x2000, 0x2000, 0x400}
	for i, l := range lens {
		last := i == len(lens)-1
		p := Mkprd(0x40000+uint64(i)*0x2000, l, last)
		assert.Equal(t, uint32(l-1), p.Dbc&PRD_DBC)
		assert.Equal(t, l, p.Len())
		assert.Equal(t, last, p.Ioc())
		if !last {
			assert.Zero(t, p.Dbc&PRD_IOC)
		}
	}
	assert.Panics(t, func() { Mkprd(0x1000, 511, true) })
	assert.Panics(t, func() { Mkprd(0x1001, 512, true) })
	assert.Panics(t, func() { Mkprd(0x1000, MAX_PRD_SIZE+2, true) })
}
