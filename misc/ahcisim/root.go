package main

import "fmt"
import "os"
import "runtime/debug"

import "github.com/sirupsen/logrus"
import "github.com/spf13/cobra"
import "github.com/spf13/viper"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/ahci"

type app_t struct {
	cfgfile string
	v       *viper.Viper
}

func newapp() *app_t {
	a := &app_t{v: ahci.Mkviper()}
	a.v.SetDefault("logging.level", "info")
	a.v.SetDefault("sim.slots", 32)
	a.v.SetDefault("sim.pages", 8192)
	a.v.SetDefault("sim.msi", false)
	return a
}

func (a *app_t) load() error {
	if a.cfgfile == "" {
		return nil
	}
	a.v.SetConfigFile(a.cfgfile)
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", a.cfgfile, err)
	}
	return nil
}

func NewRootCmd() *cobra.Command {
	a := newapp()
	cmd := &cobra.Command{
		Use:   "ahcisim",
		Short: "Run the AHCI driver against a simulated controller",
		Long: `ahcisim builds a simulated AHCI controller from the "sim" section of
the config file, attaches the driver with the "ahci" section and runs
a command against the disks it finds. Without a config file one SATA
disk and one ATAPI drive are simulated.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgfile, "config", "", "config file with ahci, logging and sim sections")
	cmd.MarkPersistentFlagFilename("config", "yaml", "yml")

	cmd.PersistentFlags().String("logging.level", "info", "Log level we support")
	a.v.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("logging.level"))

	cmd.PersistentFlags().String("logging.filename", "", "filename to write log to")
	a.v.BindPFlag("logging.filename", cmd.PersistentFlags().Lookup("logging.filename"))
	cmd.MarkPersistentFlagFilename("logging.filename", "log")

	cmd.PersistentFlags().Int("ahci.max_sectors", ahci.Default_config().Max_sectors, "sectors per command")
	a.v.BindPFlag("ahci.max_sectors", cmd.PersistentFlags().Lookup("ahci.max_sectors"))

	cmd.AddCommand(
		newProbeCmd(a),
		newRwCmd(a),
		newStatsCmd(a),
		newDiagCmd(a),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	defer func() {
		if err := recover(); err != nil {
			logrus.Errorf("ahcisim got panic: %s\n%s", err, debug.Stack())
			os.Exit(2)
		}
	}()
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
