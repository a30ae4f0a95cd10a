package ahci

import "bytes"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hbasim"

func counts(recs []hbasim.Cmdrec_t) []int {
	var ret []int
	for _, c := range recs {
		ret = append(ret, c.Count)
	}
	return ret
}

func TestReadSplitsAtCap(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{0: satadev()})
	d := r.a.Disks()[0]

	buf := make([]uint8, 300*hba.SECTSZ)
	n, err := d.Read(0, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	recs := r.sim.Commands()
	require.Len(t, recs, 3)
	assert.Equal(t, []int{128, 128, 44}, counts(recs))
	for i, c := range recs {
		assert.Equal(t, hba.ATA_READ_DMAEXT, c.Cmd)
		assert.Equal(t, uint64(i*128), c.Lba)
	}
	// 8K buffers: eight full ones per full command, 2.75 for the tail
	assert.Len(t, recs[0].Prds, 8)
	assert.Len(t, recs[2].Prds, 3)
	assert.Equal(t, 6144, recs[2].Prds[2].Len())
}

func TestCommandCountProperty(t *testing.T) {
	for _, max := range []int{16, 64, 128} {
		cfg := Default_config()
		cfg.Max_sectors = max
		r := mkrig(t, cfg, map[int]*hbasim.Dev_t{0: satadev()})
		d := r.a.Disks()[0]
		for _, n := range []int{1, max - 1, max, max + 1, 2*max + 3, 1000} {
			r.sim.Clear_log()
			_, err := d.Read(7, make([]uint8, n*hba.SECTSZ))
			require.NoError(t, err)

			recs := r.sim.Commands()
			assert.Len(t, recs, (n+max-1)/max, "n=%v max=%v", n, max)
			sum := 0
			lba := uint64(7)
			for _, c := range recs {
				assert.LessOrEqual(t, c.Count, max)
				assert.Equal(t, lba, c.Lba)
				lba += uint64(c.Count)
				sum += c.Count
			}
			assert.Equal(t, n, sum)
		}
	}
}

func TestPrdInterruptOnLastOnly(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{0: satadev()})
	_, err := r.a.Disks()[0].Write(0, pattern(300*hba.SECTSZ, 1))
	require.NoError(t, err)
	for _, c := range r.sim.Commands() {
		require.NotEmpty(t, c.Prds)
		total := 0
		for i, p := range c.Prds {
			assert.Equal(t, i == len(c.Prds)-1, p.Ioc())
			assert.Zero(t, p.Dba&1)
			total += p.Len()
		}
		assert.Equal(t, c.Count*hba.SECTSZ, total)
		assert.NotZero(t, c.Flags&hba.CH_WRITE)
		assert.Equal(t, hba.H2D_LEN/4, int(c.Flags&hba.CH_CFL))
	}
}

func TestCopyIntoOrder(t *testing.T) {
	phys, _ := mksim(t, 32, nil)
	req, err := Mkdmareq(phys, DMA_READ, 0, 5, 1024)
	require.NoError(t, err)
	defer req.Release()
	require.Len(t, req.Bufs, 3)
	assert.Equal(t, []int{1024, 1024, 512},
		[]int{req.Bufs[0].Sz, req.Bufs[1].Sz, req.Bufs[2].Sz})

	want := pattern(5*hba.SECTSZ, 9)
	assert.Equal(t, len(want), req.Copy_from(want))

	got := make([]uint8, len(want))
	assert.Equal(t, len(want), req.Copy_into(got))
	assert.True(t, bytes.Equal(want, got))

	short := make([]uint8, 1500)
	assert.Equal(t, 1500, req.Copy_into(short))
	assert.Equal(t, want[:1500], short)

	long := make([]uint8, 4000)
	assert.Equal(t, len(want), req.Copy_into(long))
}

func TestAtOffset(t *testing.T) {
	phys, _ := mksim(t, 32, nil)
	req, err := Mkdmareq(phys, DMA_READ, 0, 8, 2048)
	require.NoError(t, err)
	defer req.Release()

	all := req.at_offset(0, 8)
	assert.Equal(t, req.Bufs, all)

	mid := req.at_offset(3, 3)
	require.Len(t, mid, 2)
	assert.Equal(t, req.Bufs[0].Pa+3*hba.SECTSZ, mid[0].Pa)
	assert.Equal(t, hba.SECTSZ, mid[0].Sz)
	assert.Equal(t, req.Bufs[1].Pa, mid[1].Pa)
	assert.Equal(t, 2*hba.SECTSZ, mid[1].Sz)
}

func TestSlotExclusive(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{0: satadev()})
	p, err := r.a.Checkout(0)
	require.NoError(t, err)
	defer r.a.Checkin(p)

	req, err := Mkdmareq(p.cs.dma, DMA_READ, 0, 1, p.cfg.Chunk_size)
	require.NoError(t, err)
	defer req.Release()

	r.sim.Set_delay(0, func(int) int { return 1 << 30 })
	c := ata_rw(req, 0, 1, true)
	require.NoError(t, p.issue(0, c, &inflight_t{req: req, n: 1}))
	assert.Equal(t, 1, r.sim.Outstanding(0))

	assert.Equal(t, InvalidSlot, p.issue(0, c, &inflight_t{}))
	assert.Equal(t, InvalidSlot, p.issue(-1, c, &inflight_t{}))
	assert.Equal(t, InvalidSlot, p.issue(hba.NSLOTS, c, &inflight_t{}))
	assert.Len(t, r.sim.Commands(), 1)
	last, ok := r.a.Ctx().Last()
	require.True(t, ok)
	assert.Equal(t, InvalidSlot, last.Kind)

	r.sim.Set_delay(0, nil)
	require.NoError(t, p.recover())
	assert.Zero(t, r.sim.Outstanding(0))
	assert.Zero(t, p.busy_slots())
	n, err := p.rw(DMA_READ, 0, make([]uint8, 512))
	require.NoError(t, err)
	assert.Equal(t, 512, n)
}

func TestReapWhenSlotsRunOut(t *testing.T) {
	cfg := Default_config()
	cfg.Max_sectors = 16
	r := mkrig_dev(t, cfg, 2, satapci(), map[int]*hbasim.Dev_t{0: satadev()})
	d := r.a.Disks()[0]
	want := pattern(200*hba.SECTSZ, 3)
	_, err := d.Write(50, want)
	require.NoError(t, err)

	// slot 0 finishes after slot 1
	r.sim.Set_delay(0, func(slot int) int { return 4 - 2*slot })
	got := make([]uint8, len(want))
	_, err = d.Read(50, got)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(want, got))

	p := r.a.Ports()[0]
	assert.NotZero(t, p.Stats.Nnoslot.Get())
	for _, c := range r.sim.Commands() {
		assert.Less(t, c.Slot, 2)
	}
}

func TestOutOfOrderCompletion(t *testing.T) {
	r := mkrig(t, Default_config(), map[int]*hbasim.Dev_t{0: satadev()})
	d := r.a.Disks()[0]
	want := pattern(1000*hba.SECTSZ, 5)
	_, err := d.Write(0, want)
	require.NoError(t, err)

	// later slots finish first
	r.sim.Set_delay(0, func(slot int) int { return 20 - 2*slot })
	got := make([]uint8, len(want))
	n, err := d.Read(0, got)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.True(t, bytes.Equal(want, got))
}

func TestCompletionHang(t *testing.T) {
	cfg := Default_config()
	cfg.Spin_complete = 50
	r := mkrig(t, cfg, map[int]*hbasim.Dev_t{0: satadev()})
	r.sim.Set_delay(0, func(int) int { return 1 << 30 })
	_, err := r.a.Disks()[0].Read(0, make([]uint8, 4096))
	require.Error(t, err)
	var h *Hang_t
	require.ErrorAs(t, err, &h)
	assert.Equal(t, "complete", h.Op)
	assert.True(t, r.warned("port hung"))
	assert.Equal(t, int64(1), r.a.Ports()[0].Stats.Nhang.Get())
}

func TestHungRequestBuffersReturnOnCompletion(t *testing.T) {
	cfg := Default_config()
	cfg.Spin_complete = 50
	r := mkrig(t, cfg, map[int]*hbasim.Dev_t{0: satadev()})
	d := r.a.Disks()[0]
	free := r.phys.Pgcount()

	r.sim.Set_delay(0, func(int) int { return 200 })
	_, err := d.Read(0, make([]uint8, 4096))
	var h *Hang_t
	require.ErrorAs(t, err, &h)
	assert.Equal(t, free-1, r.phys.Pgcount(), "hba may still write the buffer")

	r.sim.Set_delay(0, nil)
	regs := hba.Mkhba(r.sim).Port(0)
	for r.sim.Outstanding(0) > 0 {
		regs.Ci()
	}
	// the next request reaps the hung command's slot
	_, err = d.Read(8, make([]uint8, 4096))
	require.NoError(t, err)
	assert.Equal(t, free, r.phys.Pgcount())
	assert.Zero(t, r.a.Ports()[0].busy_slots())
}
