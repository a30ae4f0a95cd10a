package main

import "fmt"

import "github.com/spf13/cobra"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/hba"

var faults = map[string]uint32{
	"taskfile":   hba.IS_TFES,
	"hostbus":    hba.IS_HBFS,
	"hostdata":   hba.IS_HBDS,
	"interface":  hba.IS_IFS,
	"colddetect": hba.IS_CPDS,
}

func newDiagCmd(a *app_t) *cobra.Command {
	var inject string
	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Show the last port error and the recent error log",
		Long: `diag attaches the driver, optionally makes the next command on every
port fail with --inject, reads the first block of every disk and then
prints the error state the driver recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var bits uint32
			if inject != "" {
				var ok bool
				if bits, ok = faults[inject]; !ok {
					return fmt.Errorf("unknown fault %q", inject)
				}
			}
			m, err := a.boot(cmd)
			if err != nil {
				return err
			}
			defer m.shutdown()

			w := cmd.OutOrStdout()
			for _, p := range m.ahci.Ports() {
				if bits != 0 {
					m.sim.Inject(p.Num, 0, bits)
				}
			}
			for _, d := range m.ahci.Disks() {
				bl := d.Blklen()
				if bl == 0 {
					continue
				}
				if _, err := d.Read(0, make([]uint8, bl)); err != nil {
					fmt.Fprintf(w, "disk %d: %v\n", d.Id(), err)
				}
			}
			if bad := m.ahci.Intr(); len(bad) != 0 {
				fmt.Fprintf(w, "ports with errors pending: %v\n", bad)
			}
			ctx := m.ahci.Ctx()
			fmt.Fprintf(w, "global is %#x\n", ctx.Global_is())
			last, ok := ctx.Last()
			if !ok {
				fmt.Fprintln(w, "no errors")
				return nil
			}
			fmt.Fprintf(w, "last error: %v\n", last)
			fmt.Fprintf(w, "error log:\n%s", ctx.Errlog())
			return nil
		},
	}
	cmd.Flags().StringVar(&inject, "inject", "", "fault to inject: taskfile, hostbus, hostdata, interface or colddetect")
	return cmd
}
