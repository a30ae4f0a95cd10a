//go:build !unix

package mem

func mkarena(sz int) ([]uint8, func() error, error) {
	b := make([]uint8, sz)
	return b, func() error { return nil }, nil
}
