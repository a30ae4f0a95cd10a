package ahci

import "fmt"
import "strings"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hbasim"

func TestClassify(t *testing.T) {
	cases := []struct {
		is   uint32
		want Intrerr_t
	}{
		{hba.IS_TFES, TaskFile},
		{hba.IS_HBFS, HostBusFatal},
		{hba.IS_HBDS, HostBusData},
		{hba.IS_IFS, InterfaceFatal},
		{hba.IS_CPDS, InterfaceFatal},
		{hba.IS_TFES | hba.IS_IFS, InterfaceFatal},
		{hba.IS_IFS | hba.IS_HBDS, HostBusData},
		{hba.IS_HBDS | hba.IS_HBFS | hba.IS_TFES, HostBusFatal},
		{hba.IS_TFES | hba.IS_DHRS, TaskFile},
	}
	for _, c := range cases {
		got, ok := classify(c.is)
		assert.True(t, ok)
		assert.Equal(t, c.want, got, "is %#x", c.is)
	}
	for _, is := range []uint32{0, hba.IS_DHRS, hba.IS_SDBS | hba.IS_PCS, hba.IS_INFS} {
		_, ok := classify(is)
		assert.False(t, ok, "is %#x", is)
	}
	assert.Equal(t, "HostBusData", HostBusData.String())
	assert.Contains(t, InvalidSlot.Error(), "invalid command slot")
}

func TestIntrIdempotent(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{0: satadev(), 2: satadev()})
	h := hba.Mkhba(r.sim)
	r.sim.Raise(2, hba.IS_TFES|hba.IS_DHRS)

	bad := r.a.Intr()
	assert.Equal(t, []int{2}, bad)
	assert.Zero(t, h.Is())
	assert.Zero(t, h.Port(2).Is())
	assert.Zero(t, h.Port(0).Is())
	gis := r.a.Ctx().Global_is()
	assert.NotZero(t, gis&(1<<2))
	last, ok := r.a.Ctx().Last()
	require.True(t, ok)
	assert.Equal(t, 2, last.Port)
	assert.Equal(t, TaskFile, last.Kind)

	assert.Empty(t, r.a.Intr())
	assert.Equal(t, gis, r.a.Ctx().Global_is())
	again, _ := r.a.Ctx().Last()
	assert.Equal(t, last, again)
	assert.Equal(t, int64(2), r.a.Ctx().Nintr.Get())
	assert.Equal(t, int64(1), r.a.Ctx().Nerror.Get())
}

func TestIntrErrorFailsNextRequest(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{0: satadev()})
	d := r.a.Disks()[0]
	r.sim.Raise(0, hba.IS_HBFS)
	require.Equal(t, []int{0}, r.a.Intr())

	_, err := d.Read(0, make([]uint8, 1024))
	assert.ErrorIs(t, err, defs.EIO)
	assert.ErrorIs(t, err, HostBusFatal)

	_, err = d.Read(0, make([]uint8, 1024))
	assert.NoError(t, err)
}

func TestErrlogKeepsNewestLines(t *testing.T) {
	phys, _ := mksim(t, 32, nil)
	c := Mkctx(phys)
	assert.Empty(t, c.Errlog())
	assert.Equal(t, physpages, phys.Pgcount())

	for i := 0; i < 100; i++ {
		c.record(i%32, TaskFile, uint32(i), hba.Portregs_t{})
	}
	log := c.Errlog()
	assert.LessOrEqual(t, len(log), errlogsz)
	assert.True(t, strings.HasPrefix(log, "port "))
	last, _ := c.Last()
	assert.True(t, strings.HasSuffix(log, last.String()+"\n"))
	assert.Contains(t, log, fmt.Sprintf("is=%#x", 99))
	assert.NotContains(t, log, "(is=0x0)")
	assert.Equal(t, physpages-1, phys.Pgcount())
}
