package ahci

import "fmt"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/mem"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/util"

// cmdhdr_t mirrors one command header. tbl is the index of the command
// table the header points at; the header and its table belong to the same
// slot.
type cmdhdr_t struct {
	tbl   int
	flags uint16
	prdtl uint16
}

// cmdstruct_t owns a port's command list, received FIS area and the array
// of command tables.
type cmdstruct_t struct {
	dma    mem.Dma_i
	nprd   int
	tbllen int
	clb    mem.Pa_t
	fb     mem.Pa_t
	ctba   mem.Pa_t
	hdrs   [hba.NSLOTS]cmdhdr_t
}

func mkcmdstruct(dma mem.Dma_i, nprd int) (*cmdstruct_t, error) {
	cs := &cmdstruct_t{dma: dma, nprd: nprd}
	cs.tbllen = util.Roundup(hba.Cmdtbl_len(nprd), 128)
	var ok bool
	if cs.clb, ok = dma.Dma_alloc(hba.CMDLIST_LEN); !ok {
		return nil, defs.ENOMEM
	}
	if cs.fb, ok = dma.Dma_alloc(hba.FIS_AREA_LEN); !ok {
		dma.Dma_free(cs.clb)
		return nil, defs.ENOMEM
	}
	if cs.ctba, ok = dma.Dma_alloc(hba.NSLOTS * cs.tbllen); !ok {
		dma.Dma_free(cs.clb)
		dma.Dma_free(cs.fb)
		return nil, defs.ENOMEM
	}
	for i := range cs.hdrs {
		cs.hdrs[i].tbl = i
	}
	return cs, nil
}

func (cs *cmdstruct_t) release() {
	cs.dma.Dma_free(cs.ctba)
	cs.dma.Dma_free(cs.fb)
	cs.dma.Dma_free(cs.clb)
}

func (cs *cmdstruct_t) tblpa(t int) mem.Pa_t {
	return cs.ctba + mem.Pa_t(t*cs.tbllen)
}

func (cs *cmdstruct_t) tbl(slot int) []uint8 {
	return cs.dma.Dmaplen(cs.tblpa(cs.hdrs[slot].tbl), cs.tbllen)
}

func (cs *cmdstruct_t) hdrbuf(slot int) []uint8 {
	return cs.dma.Dmaplen(cs.clb+mem.Pa_t(slot*hba.CMDHDR_LEN), hba.CMDHDR_LEN)
}

func (cs *cmdstruct_t) write_hdr(slot int) {
	h := &cs.hdrs[slot]
	ch := hba.Cmdhdr_t{Flags: h.flags, Prdtl: h.prdtl,
		Ctba: uint64(cs.tblpa(h.tbl))}
	hba.Encode(cs.hdrbuf(slot), &ch)
}

// points every header at its table.
func (cs *cmdstruct_t) point_headers() {
	for i := range cs.hdrs {
		cs.hdrs[i].flags = 0
		cs.hdrs[i].prdtl = 0
		cs.write_hdr(i)
	}
}

// builds the command in slot: the FIS, the ATAPI packet if any, one PRD per
// buffer and the header.
func (cs *cmdstruct_t) fill(slot int, flags uint16, fis *hba.Fis_h2d_t,
	acmd []uint8, bufs []Dmabuf_t) {
	if len(bufs) > cs.nprd {
		panic(fmt.Sprintf("%v buffers, table holds %v", len(bufs), cs.nprd))
	}
	t := cs.tbl(slot)
	for i := range t {
		t[i] = 0
	}
	hba.Encode(t[hba.CT_CFIS:], fis)
	if acmd != nil {
		copy(t[hba.CT_ACMD:hba.CT_ACMD+hba.ACMD_LEN], acmd)
	}
	for i, b := range bufs {
		prd := hba.Mkprd(uint64(b.Pa), b.Sz, i == len(bufs)-1)
		hba.Encode(t[hba.CT_PRDT+i*hba.PRD_LEN:], &prd)
	}
	h := &cs.hdrs[slot]
	h.flags = flags | uint16(hba.H2D_LEN/4)
	h.prdtl = uint16(len(bufs))
	cs.write_hdr(slot)
}

// bytes the HBA reports having transferred for the command in slot.
func (cs *cmdstruct_t) prdbc(slot int) int {
	return util.Readn(cs.hdrbuf(slot), 4, 4)
}

// the last D2H register FIS the device sent.
func (cs *cmdstruct_t) d2h() hba.Fis_d2h_t {
	var f hba.Fis_d2h_t
	b := cs.dma.Dmaplen(cs.fb+hba.RFIS_D2H, hba.D2H_LEN)
	if err := hba.Decode(b, &f); err != nil {
		panic(err)
	}
	return f
}
