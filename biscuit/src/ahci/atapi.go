package ahci

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/util"

/// Atapi_disk_t is the device on a SATA packet interface port. Transfers go
/// through one contiguous DMA buffer, a chunk at a time. The capacity from
/// READ CAPACITY is cached until a command fails. Every field is guarded
/// by the port checkout.
type Atapi_disk_t struct {
	a      *Ahci_t
	port   int
	id     int
	buf    Dmabuf_t
	capok  bool
	nblk   uint64
	blklen int
}

// mkpacket builds a 16 byte SCSI command block with big-endian address and
// length fields.
func mkpacket(op uint8, lba uint64, n int) []uint8 {
	pkt := make([]uint8, hba.ACMD_LEN)
	pkt[0] = op
	if op != hba.SCSI_READ_CAPACITY {
		util.Writebe(pkt, 4, 2, int(lba))
		util.Writebe(pkt, 2, 7, n)
	}
	return pkt
}

// sends a packet moving sz bytes through the shared buffer.
func (d *Atapi_disk_t) packet(p *Port_t, op uint8, lba uint64, n int, sz int) error {
	c := &cmd_t{
		ata:   hba.ATA_PACKET,
		feat:  1, // DMA
		pkt:   mkpacket(op, lba, n),
		write: op == hba.SCSI_WRITE10,
		bufs:  []Dmabuf_t{{Pa: d.buf.Pa, Sz: sz}},
	}
	err := p.run_command(c, nil, p.cfg.Spin_complete, "packet")
	if err != nil {
		d.capok = false
	}
	return err
}

/// read_cap issues READ CAPACITY unless the answer is cached.
func (d *Atapi_disk_t) read_cap(p *Port_t) error {
	if d.capok {
		return nil
	}
	if err := d.packet(p, hba.SCSI_READ_CAPACITY, 0, 0, 8); err != nil {
		return err
	}
	b := p.cs.dma.Dmaplen(d.buf.Pa, 8)
	last := uint64(util.Readbe(b, 4, 0))
	bl := util.Readbe(b, 4, 4)
	if bl == 0 || bl > d.buf.Sz || d.buf.Sz%bl != 0 {
		p.log.WithField("blklen", bl).Warn("unusable block length")
		return defs.EIO
	}
	d.nblk = last + 1
	d.blklen = bl
	d.capok = true
	return nil
}

func (d *Atapi_disk_t) xfer(p *Port_t, write bool, block uint64, buf []uint8) (int, error) {
	if err := d.read_cap(p); err != nil {
		return 0, err
	}
	bl := d.blklen
	if write && len(buf)%bl != 0 {
		return 0, defs.EINVAL
	}
	nb := util.Ceildiv(len(buf), bl)
	if end := block + uint64(nb); end > d.nblk || end > 1<<32 {
		return 0, defs.ERANGE
	}
	op := hba.SCSI_READ10
	if write {
		op = hba.SCSI_WRITE10
	}
	per := d.buf.Sz / bl
	dbuf := p.cs.dma.Dmaplen(d.buf.Pa, d.buf.Sz)
	c := 0
	for off := 0; off < nb; off += per {
		n := util.Min(per, nb-off)
		if write {
			copy(dbuf, buf[off*bl:(off+n)*bl])
		}
		if err := d.packet(p, op, block+uint64(off), n, n*bl); err != nil {
			return 0, err
		}
		if write {
			c += n * bl
		} else {
			c += copy(buf[off*bl:], dbuf[:n*bl])
		}
	}
	if write {
		p.Stats.Nwrite.Inc()
	} else {
		p.Stats.Nread.Inc()
	}
	return c, nil
}

func (d *Atapi_disk_t) Id() int {
	return d.id
}

/// Port returns the port number the device is attached to.
func (d *Atapi_disk_t) Port() int {
	return d.port
}

func (d *Atapi_disk_t) Dev() uint {
	return defs.Mkdev(defs.D_CDROM, d.port)
}

/// Size returns the capacity from READ CAPACITY, or 0 if there is no
/// readable medium.
func (d *Atapi_disk_t) Size() uint64 {
	p, err := d.a.Wait_port(d.port)
	if err != nil {
		return 0
	}
	defer d.a.Checkin(p)
	if d.read_cap(p) != nil {
		return 0
	}
	return d.nblk * uint64(d.blklen)
}

/// Blklen returns the logical block length, or 0 if it is not known.
func (d *Atapi_disk_t) Blklen() int {
	p, err := d.a.Wait_port(d.port)
	if err != nil {
		return 0
	}
	defer d.a.Checkin(p)
	if d.read_cap(p) != nil {
		return 0
	}
	return d.blklen
}

/// Read reads len(buf) bytes starting at block.
func (d *Atapi_disk_t) Read(block uint64, buf []uint8) (int, error) {
	p, err := d.a.Wait_port(d.port)
	if err != nil {
		return 0, err
	}
	defer d.a.Checkin(p)
	n, err := d.xfer(p, false, block, buf)
	return n, ioerr(d.port, "read", block, err)
}

/// Write writes buf, a whole number of blocks, at block.
func (d *Atapi_disk_t) Write(block uint64, buf []uint8) (int, error) {
	p, err := d.a.Wait_port(d.port)
	if err != nil {
		return 0, err
	}
	defer d.a.Checkin(p)
	n, err := d.xfer(p, true, block, buf)
	return n, ioerr(d.port, "write", block, err)
}

func (d *Atapi_disk_t) Read_is() uint32 {
	return d.a.raw_port(d.port).Read_is()
}

func (d *Atapi_disk_t) Write_is(v uint32) {
	d.a.raw_port(d.port).Write_is(v)
}
