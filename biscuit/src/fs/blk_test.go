package fs

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"

type ramdisk_t struct {
	data    []uint8
	flushes int
	is      uint32
}

func (r *ramdisk_t) Id() int { return 3 }
func (r *ramdisk_t) Size() uint64 { return uint64(len(r.data)) }
func (r *ramdisk_t) Blklen() int { return 512 }
func (r *ramdisk_t) Read_is() uint32 { return r.is }
func (r *ramdisk_t) Write_is(v uint32) { r.is = v }
func (r *ramdisk_t) Flush() error { r.flushes++; return nil }

type numbered_t struct {
	*ramdisk_t
}

func (n *numbered_t) Dev() uint { return defs.Mkdev(defs.D_RAWDISK, 2) }

func (r *ramdisk_t) Read(block uint64, buf []uint8) (int, error) {
	return copy(buf, r.data[block*512:]), nil
}

func (r *ramdisk_t) Write(block uint64, buf []uint8) (int, error) {
	return copy(r.data[block*512:], buf), nil
}

func TestRequests(t *testing.T) {
	d := &ramdisk_t{data: make([]uint8, 4*512)}
	n, err := MkRequest(BDEV_WRITE, 2, []uint8{1, 2, 3}).Do(d)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]uint8, 3)
	_, err = MkRequest(BDEV_READ, 2, buf).Do(d)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 3}, buf)

	_, err = MkRequest(BDEV_FLUSH, 0, nil).Do(d)
	require.NoError(t, err)
	assert.Equal(t, 1, d.flushes)

	_, err = MkRequest(Bdevcmd_t(9), 0, nil).Do(d)
	assert.Equal(t, defs.EINVAL, err)
	assert.Equal(t, "bdevcmd(9)", Bdevcmd_t(9).String())

	assert.Equal(t, uint64(4), Nblocks(d))
	assert.Equal(t, "disk 3: 4 blocks of 512 bytes (0 MiB)", Describe(d))
	assert.Equal(t, "disk 3: 4 blocks of 512 bytes (0 MiB) dev 5,2",
		Describe(&numbered_t{d}))
}
