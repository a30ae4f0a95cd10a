package ahci

import "fmt"

import "github.com/sirupsen/logrus"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/util"

/// identify sends IDENTIFY DEVICE, or IDENTIFY PACKET DEVICE to ATAPI
/// devices, and parses the answer.
func (p *Port_t) identify() (*Identify_t, error) {
	op := hba.ATA_IDENTIFY
	if p.kind == KIND_SATAPI {
		op = hba.ATA_IDENTIFY_PKT
	}
	r, err := Mkdmareq(p.cs.dma, DMA_IDENTIFY, 0, 1, p.cfg.Chunk_size)
	if err != nil {
		return nil, err
	}
	c := &cmd_t{ata: op, bufs: r.Bufs}
	if err := p.run_command(c, r, p.cfg.Spin_identify, "identify"); err != nil {
		r.Abandon()
		return nil, err
	}
	buf := make([]uint8, hba.IDENT_LEN)
	r.Copy_into(buf)
	r.Release()
	id, err := Parse_identify(buf)
	if err != nil {
		return nil, err
	}
	p.ident = id
	p.log.WithFields(logrus.Fields{
		"model":    id.Model,
		"serial":   id.Serial,
		"firmware": id.Firmware,
		"sectors":  id.Sectors,
		"lba48":    id.Lba48,
	}).Info("identified")
	return id, nil
}

/// LBA28_CAP is the most sectors a 28-bit READ or WRITE DMA can move.
const LBA28_CAP = 256

// builds the command for sectors [off, off+n) of r, with 48-bit opcodes if
// ext.
func ata_rw(r *Dmareq_t, off, n int, ext bool) *cmd_t {
	c := &cmd_t{lba: r.Sector + uint64(off), count: n, data: true,
		bufs: r.at_offset(off, n)}
	switch r.Cmd {
	case DMA_READ:
		c.ata = hba.ATA_READ_DMA
		if ext {
			c.ata = hba.ATA_READ_DMAEXT
		}
	case DMA_WRITE:
		c.write = true
		c.ata = hba.ATA_WRITE_DMA
		if ext {
			c.ata = hba.ATA_WRITE_DMAEXT
		}
	default:
		panic("not a data request")
	}
	return c
}

/// rw moves buf to or from the disk at sector. Reads may end mid sector;
/// writes must be whole sectors.
func (p *Port_t) rw(cmd Dmacmd_t, sector uint64, buf []uint8) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if cmd == DMA_WRITE && len(buf)%hba.SECTSZ != 0 {
		return 0, defs.EINVAL
	}
	// without IDENTIFY the disk has no sectors
	var nsect uint64
	var lba48 bool
	if p.ident != nil {
		nsect, lba48 = p.ident.Sectors, p.ident.Lba48
	}
	count := util.Ceildiv(len(buf), hba.SECTSZ)
	end := sector + uint64(count)
	if end > nsect || end < sector {
		return 0, defs.ERANGE
	}
	ext := lba48 || end > hba.LBA28_MAX
	max := p.cfg.Max_sectors
	if !ext {
		max = util.Min(max, LBA28_CAP)
	}
	r, err := Mkdmareq(p.cs.dma, cmd, sector, count, p.cfg.Chunk_size)
	if err != nil {
		return 0, err
	}
	if cmd == DMA_WRITE {
		r.Copy_from(buf)
	}
	err = p.run_request(r, max, func(r *Dmareq_t, off, n int) *cmd_t {
		return ata_rw(r, off, n, ext)
	})
	if err != nil {
		r.Abandon()
		return 0, err
	}
	n := len(buf)
	if cmd == DMA_READ {
		n = r.Copy_into(buf)
		p.Stats.Nread.Inc()
	} else {
		p.Stats.Nwrite.Inc()
	}
	r.Release()
	return n, nil
}

/// flush sends FLUSH CACHE EXT.
func (p *Port_t) flush() error {
	p.Stats.Nflush.Inc()
	return p.run_command(&cmd_t{ata: hba.ATA_FLUSH_EXT}, nil, p.cfg.Spin_complete, "flush")
}

/// set_features sends SET FEATURES with subcommand sub.
func (p *Port_t) set_features(sub uint8) error {
	c := &cmd_t{ata: hba.ATA_SET_FEATURES, feat: sub}
	return p.run_command(c, nil, p.cfg.Spin_complete, "set features")
}

// ioerr turns a port error into what disk callers see: hardware errors are
// EIO, hangs ETIMEDOUT and everything else passes through.
func ioerr(port int, op string, block uint64, err error) error {
	if err == nil {
		return nil
	}
	if kind, ok := err.(Intrerr_t); ok {
		return fmt.Errorf("ahci: port %d: %s block %d: %w: %w", port, op, block, defs.EIO, kind)
	}
	return fmt.Errorf("ahci: port %d: %s block %d: %w", port, op, block, err)
}

/// Sata_disk_t is the disk on a SATA port.
type Sata_disk_t struct {
	a    *Ahci_t
	port int
	id   int
	size uint64
}

func (d *Sata_disk_t) Id() int {
	return d.id
}

/// Size returns the capacity from IDENTIFY, or 0 if the device did not
/// identify.
func (d *Sata_disk_t) Size() uint64 {
	return d.size
}

func (d *Sata_disk_t) Blklen() int {
	return hba.SECTSZ
}

/// Port returns the port number the disk is attached to.
func (d *Sata_disk_t) Port() int {
	return d.port
}

/// Dev returns the disk's device number, minor number the port.
func (d *Sata_disk_t) Dev() uint {
	return defs.Mkdev(defs.D_RAWDISK, d.port)
}

/// Read reads len(buf) bytes from block, waiting for the port if another
/// caller holds it.
func (d *Sata_disk_t) Read(block uint64, buf []uint8) (int, error) {
	p, err := d.a.Wait_port(d.port)
	if err != nil {
		return 0, err
	}
	defer d.a.Checkin(p)
	n, err := p.rw(DMA_READ, block, buf)
	return n, ioerr(d.port, "read", block, err)
}

/// Write writes buf, a whole number of sectors, at block.
func (d *Sata_disk_t) Write(block uint64, buf []uint8) (int, error) {
	p, err := d.a.Wait_port(d.port)
	if err != nil {
		return 0, err
	}
	defer d.a.Checkin(p)
	n, err := p.rw(DMA_WRITE, block, buf)
	return n, ioerr(d.port, "write", block, err)
}

/// Flush writes back the drive's volatile cache.
func (d *Sata_disk_t) Flush() error {
	p, err := d.a.Wait_port(d.port)
	if err != nil {
		return err
	}
	defer d.a.Checkin(p)
	return ioerr(d.port, "flush", 0, p.flush())
}

func (d *Sata_disk_t) Read_is() uint32 {
	return d.a.raw_port(d.port).Read_is()
}

func (d *Sata_disk_t) Write_is(v uint32) {
	d.a.raw_port(d.port).Write_is(v)
}
