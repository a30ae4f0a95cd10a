package fs

import "fmt"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"

/// Disk_i is the block device capability a storage driver exports for each
/// device it found. Offsets and sizes are in device blocks of Blklen bytes.
type Disk_i interface {
	Id() int
	Size() uint64
	Blklen() int
	Read(block uint64, buf []uint8) (int, error)
	Write(block uint64, buf []uint8) (int, error)
	// Read_is and Write_is expose the port interrupt status for callers
	// that drive completion themselves.
	Read_is() uint32
	Write_is(uint32)
}

/// Flusher_i is implemented by disks with a volatile write cache.
type Flusher_i interface {
	Flush() error
}

/// Devnum_i is implemented by disks that have a device number.
type Devnum_i interface {
	Dev() uint
}

/// Bdevcmd_t enumerates disk request types.
type Bdevcmd_t uint

const (
	BDEV_WRITE Bdevcmd_t = 1 /// write blocks
	BDEV_READ  Bdevcmd_t = 2 /// read blocks
	BDEV_FLUSH Bdevcmd_t = 3 /// flush outstanding writes
)

func (c Bdevcmd_t) String() string {
	switch c {
	case BDEV_WRITE:
		return "write"
	case BDEV_READ:
		return "read"
	case BDEV_FLUSH:
		return "flush"
	}
	return fmt.Sprintf("bdevcmd(%d)", int(c))
}

/// Bdev_req_t is one request against a disk.
type Bdev_req_t struct {
	Cmd   Bdevcmd_t
	Block uint64
	Buf   []uint8
}

/// MkRequest creates a request for buf at block.
func MkRequest(cmd Bdevcmd_t, block uint64, buf []uint8) *Bdev_req_t {
	return &Bdev_req_t{Cmd: cmd, Block: block, Buf: buf}
}

/// Do runs the request on d and returns the number of bytes moved. A flush
/// on a disk without a write cache succeeds trivially.
func (r *Bdev_req_t) Do(d Disk_i) (int, error) {
	switch r.Cmd {
	case BDEV_READ:
		return d.Read(r.Block, r.Buf)
	case BDEV_WRITE:
		return d.Write(r.Block, r.Buf)
	case BDEV_FLUSH:
		if f, ok := d.(Flusher_i); ok {
			return 0, f.Flush()
		}
		return 0, nil
	}
	return 0, defs.EINVAL
}

/// Nblocks returns the capacity of d in blocks.
func Nblocks(d Disk_i) uint64 {
	if d.Blklen() == 0 {
		return 0
	}
	return d.Size() / uint64(d.Blklen())
}

/// Describe returns a one line summary of d.
func Describe(d Disk_i) string {
	s := fmt.Sprintf("disk %d: %d blocks of %d bytes (%d MiB)", d.Id(),
		Nblocks(d), d.Blklen(), d.Size()>>20)
	if n, ok := d.(Devnum_i); ok {
		maj, min := defs.Unmkdev(n.Dev())
		s += fmt.Sprintf(" dev %d,%d", maj, min)
	}
	return s
}
