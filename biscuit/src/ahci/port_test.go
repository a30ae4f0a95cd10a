package ahci

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hbasim"

func TestSig2kind(t *testing.T) {
	assert.Equal(t, KIND_SATA, Sig2kind(hba.SIG_ATA))
	assert.Equal(t, KIND_SATAPI, Sig2kind(hba.SIG_ATAPI))
	assert.Equal(t, KIND_PM, Sig2kind(hba.SIG_PM))
	assert.Equal(t, KIND_SEMB, Sig2kind(hba.SIG_SEMB))
	assert.Equal(t, KIND_UNKNOWN, Sig2kind(0xffffffff))
	assert.Equal(t, "satapi", KIND_SATAPI.String())
}

func TestAbsentDevicesSkipped(t *testing.T) {
	devs := map[int]*hbasim.Dev_t{
		0: satadev(),
		4: {Kind: hbasim.DEV_ATA, Sectors: 100, Asleep: true},
		5: {Kind: hbasim.DEV_PM},
	}
	phys, sim := mksim(t, 32, devs)
	sim.Implement(3)
	a, err := Attach(satapci(), sim, phys, Default_config(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ports := a.Ports()
	require.Len(t, ports, 1)
	assert.Equal(t, 0, ports[0].Num)

	h := hba.Mkhba(sim)
	for _, pn := range []int{3, 4, 5} {
		assert.Zero(t, h.Port(pn).Cmd()&(hba.CMD_ST|hba.CMD_FRE), "port %v", pn)
		assert.Zero(t, h.Port(pn).Clb(), "port %v", pn)
		_, err := a.Checkout(pn)
		assert.Equal(t, defs.ENODEV, err)
	}
	for _, c := range sim.Commands() {
		assert.Equal(t, 0, c.Port)
	}
}

func TestInitProgramsPort(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{
		0: satadev(),
		1: {Kind: hbasim.DEV_ATAPI, Sectors: 10},
	})
	for _, p := range r.a.Ports() {
		regs := p.regs
		assert.Equal(t, uint64(p.cs.clb), regs.Clb())
		assert.Equal(t, uint64(p.cs.fb), regs.Fb())
		assert.Equal(t, hba.IE_ALL, regs.Ie())
		assert.Equal(t, hba.SCTL_IPM_DISABLE, regs.Sctl()&hba.SCTL_IPM_DISABLE)
		want := hba.CMD_POD | hba.CMD_SUD | hba.CMD_FRE | hba.CMD_ST
		assert.Equal(t, want, regs.Cmd()&want)
		assert.Equal(t, p.Kind() == KIND_SATAPI, regs.Cmd()&hba.CMD_ATAPI != 0)

		for i := 0; i < hba.NSLOTS; i++ {
			var ch hba.Cmdhdr_t
			require.NoError(t, hba.Decode(p.cs.hdrbuf(i), &ch))
			assert.Equal(t, uint64(p.cs.tblpa(i)), ch.Ctba)
			assert.Zero(t, ch.Ctba%128)
		}
	}
}

func TestStopStart(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{0: satadev()})
	p, err := r.a.Checkout(0)
	require.NoError(t, err)
	defer r.a.Checkin(p)

	assert.Panics(t, func() { p.start() })
	require.NoError(t, p.stop())
	assert.Equal(t, PS_STOPPED, p.State())
	assert.Zero(t, p.regs.Cmd()&(hba.CMD_ST|hba.CMD_CR|hba.CMD_FRE|hba.CMD_FR))
	require.NoError(t, p.start())
	assert.Equal(t, PS_STARTED, p.State())
	_, err = p.rw(DMA_READ, 0, make([]uint8, 512))
	assert.NoError(t, err)
}

func TestStopReportsInterfaceFatal(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{0: satadev()})
	p, err := r.a.Checkout(0)
	require.NoError(t, err)
	defer r.a.Checkin(p)

	clb := p.regs.Clb()
	hdr := append([]uint8(nil), p.cs.hdrbuf(0)...)
	r.sim.Raise(0, hba.IS_IFS)

	err = p.stop()
	assert.Equal(t, InterfaceFatal, err)
	assert.NotZero(t, p.regs.Is()&hba.IS_IFS)
	assert.Equal(t, clb, p.regs.Clb())
	assert.Equal(t, hdr, p.cs.hdrbuf(0))
	assert.NotEqual(t, PS_STOPPED, p.State())

	require.NoError(t, p.recover())
	assert.Zero(t, p.regs.Is())
	assert.Equal(t, PS_STARTED, p.State())
}

func TestStopHangs(t *testing.T) {
	cfg := Default_config()
	cfg.Spin_stop = 20
	r := mkrig(t, cfg, map[int]*hbasim.Dev_t{0: satadev()})
	p, err := r.a.Checkout(0)
	require.NoError(t, err)
	defer r.a.Checkin(p)

	r.sim.Stick(0, true)
	err = p.stop()
	var h *Hang_t
	require.ErrorAs(t, err, &h)
	assert.Equal(t, "stop", h.Op)
	assert.ErrorIs(t, err, defs.ETIMEDOUT)
	assert.True(t, r.warned("port hung"))

	// structures stay while the engines run
	assert.Error(t, p.release())
	assert.NotNil(t, p.cs)
	r.sim.Stick(0, false)
}

func TestStartHangs(t *testing.T) {
	cfg := Default_config()
	cfg.Spin_start = 20
	r := mkrig(t, cfg, map[int]*hbasim.Dev_t{0: satadev()})
	p, err := r.a.Checkout(0)
	require.NoError(t, err)
	defer r.a.Checkin(p)

	require.NoError(t, p.stop())
	r.sim.Stick(0, true)
	err = p.start()
	var h *Hang_t
	require.ErrorAs(t, err, &h)
	assert.Equal(t, "start", h.Op)
	assert.Equal(t, PS_STOPPED, p.State())

	r.sim.Stick(0, false)
	require.NoError(t, p.start())
}
