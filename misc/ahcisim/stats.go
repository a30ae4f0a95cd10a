package main

import "errors"
import "fmt"
import "net/http"
import "net/http/pprof"
import "os"
import "os/signal"

import "github.com/google/pprof/profile"
import "github.com/prometheus/client_golang/prometheus"
import "github.com/prometheus/client_golang/prometheus/promhttp"
import "github.com/spf13/cobra"

import "github.com/kennystrawnmusic/cryptos-sub000/biscuit/src/stats"

func newStatsCmd(a *app_t) *cobra.Command {
	o := &rwopts_t{}
	var profpath, endpoint string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Run the rw workload and report the driver counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.boot(cmd)
			if err != nil {
				return err
			}
			defer m.shutdown()

			w := cmd.OutOrStdout()
			if err := rw_all(m, o, w); err != nil {
				return err
			}
			m.ahci.Intr()
			for _, s := range m.ahci.Sources() {
				fmt.Fprintf(w, "%s:%s", s.Label, stats.Stats2String(s.Stats))
			}
			if profpath != "" {
				if err := write_profile(profpath, stats.Profile(m.ahci.Sources())); err != nil {
					return err
				}
			}
			if endpoint != "" {
				return serve(cmd, endpoint, m)
			}
			return nil
		},
	}
	o.flags(cmd)
	cmd.Flags().StringVar(&profpath, "pprof", "", "write the counters as a pprof profile to this file")
	cmd.Flags().StringVar(&endpoint, "debug.endpoint", "", "ip:port to expose metrics and runtime profiles on")
	return cmd
}

func write_profile(path string, p *profile.Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// serve exposes /metrics and /debug/pprof/ until interrupted.
func serve(cmd *cobra.Command, endpoint string, m *machine_t) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(stats.Mkcollector("ahci", "port", m.ahci.Sources))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	srv := &http.Server{Addr: endpoint, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	m.log.WithField("endpoint", endpoint).Info("serving metrics")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
