package main

import "fmt"

import "github.com/spf13/cobra"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/fs"

func newProbeCmd(a *app_t) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Attach the driver and list the ports and disks it found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.boot(cmd)
			if err != nil {
				return err
			}
			defer m.shutdown()

			w := cmd.OutOrStdout()
			for _, p := range m.ahci.Ports() {
				fmt.Fprintf(w, "port %d: %v %v\n", p.Num, p.Kind(), p.State())
				if id := p.Ident(); id != nil {
					fmt.Fprintf(w, "    model %q serial %q firmware %q\n",
						id.Model, id.Serial, id.Firmware)
					fmt.Fprintf(w, "    %d sectors, lba48 %v\n", id.Sectors, id.Lba48)
				}
			}
			for _, d := range m.ahci.Disks() {
				fmt.Fprintln(w, fs.Describe(d))
			}
			return nil
		},
	}
}
