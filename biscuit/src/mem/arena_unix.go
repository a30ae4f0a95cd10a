//go:build unix

package mem

import "golang.org/x/sys/unix"

// anonymous shared mappings are page aligned and never moved by the Go
// allocator, so physical addresses handed to devices stay valid.
func mkarena(sz int) ([]uint8, func() error, error) {
	b, err := unix.Mmap(-1, 0, sz, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return b, func() error { return unix.Munmap(b) }, nil
}
