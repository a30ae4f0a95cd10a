package main

import "bytes"
import "errors"
import "fmt"
import "io"
import "time"

import "github.com/avast/retry-go"
import "github.com/sirupsen/logrus"
import "github.com/spf13/cobra"
import "golang.org/x/sync/errgroup"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/defs"
import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/fs"

type rwopts_t struct {
	block    uint64
	nblk     int
	passes   int
	attempts uint
}

func (o *rwopts_t) flags(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&o.block, "block", 0, "first block of the test range")
	cmd.Flags().IntVar(&o.nblk, "blocks", 300, "blocks per transfer")
	cmd.Flags().IntVar(&o.passes, "passes", 4, "write and read back this many times")
	cmd.Flags().UintVar(&o.attempts, "attempts", 3, "tries per transfer before giving up")
}

func newRwCmd(a *app_t) *cobra.Command {
	o := &rwopts_t{}
	cmd := &cobra.Command{
		Use:   "rw",
		Short: "Write a pattern to every disk concurrently and read it back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.boot(cmd)
			if err != nil {
				return err
			}
			defer m.shutdown()
			return rw_all(m, o, cmd.OutOrStdout())
		},
	}
	o.flags(cmd)
	return cmd
}

// transfer runs req on d, retrying device errors.
func transfer(l *logrus.Entry, d fs.Disk_i, req *fs.Bdev_req_t, attempts uint) error {
	return retry.Do(func() error {
		_, err := req.Do(d)
		return err
	},
		retry.Attempts(attempts),
		retry.Delay(time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, defs.EIO) }),
		retry.OnRetry(func(n uint, err error) {
			l.WithError(err).WithFields(logrus.Fields{
				"cmd":     req.Cmd.String(),
				"block":   req.Block,
				"attempt": n + 1,
			}).Warn("retrying")
		}))
}

func fill(buf []uint8, id, pass int) {
	for i := range buf {
		buf[i] = uint8(i>>9) ^ uint8(i) ^ uint8(id<<4) ^ uint8(pass)
	}
}

func rw_disk(m *machine_t, d fs.Disk_i, o *rwopts_t) (string, error) {
	bl := d.Blklen()
	if bl == 0 {
		return fmt.Sprintf("disk %d: no medium", d.Id()), nil
	}
	nblk := uint64(o.nblk)
	if o.block+nblk > fs.Nblocks(d) {
		return fmt.Sprintf("disk %d: range past end, skipped", d.Id()), nil
	}
	l := m.log.WithField("disk", d.Id())
	want := make([]uint8, o.nblk*bl)
	got := make([]uint8, len(want))
	for pass := 0; pass < o.passes; pass++ {
		fill(want, d.Id(), pass)
		if err := transfer(l, d, fs.MkRequest(fs.BDEV_WRITE, o.block, want), o.attempts); err != nil {
			return "", fmt.Errorf("disk %d: %w", d.Id(), err)
		}
		if err := transfer(l, d, fs.MkRequest(fs.BDEV_READ, o.block, got), o.attempts); err != nil {
			return "", fmt.Errorf("disk %d: %w", d.Id(), err)
		}
		if !bytes.Equal(want, got) {
			return "", fmt.Errorf("disk %d: pass %d: data mismatch", d.Id(), pass)
		}
	}
	if err := transfer(l, d, fs.MkRequest(fs.BDEV_FLUSH, 0, nil), o.attempts); err != nil {
		return "", fmt.Errorf("disk %d: %w", d.Id(), err)
	}
	return fmt.Sprintf("disk %d: %d passes of %d blocks ok", d.Id(), o.passes, o.nblk), nil
}

// rw_all runs rw_disk on every disk at once.
func rw_all(m *machine_t, o *rwopts_t, w io.Writer) error {
	disks := m.ahci.Disks()
	res := make([]string, len(disks))
	var g errgroup.Group
	for i, d := range disks {
		i, d := i, d
		g.Go(func() error {
			s, err := rw_disk(m, d, o)
			res[i] = s
			return err
		})
	}
	err := g.Wait()
	for _, s := range res {
		if s != "" {
			fmt.Fprintln(w, s)
		}
	}
	return err
}
