// Command rwsemtest runs reader, writer and downgrader goroutines against a
// rwsem.RWSem for a fixed time and prints how many acquisitions they made.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/thetarby/rwsem/internal/harness"
	"github.com/thetarby/rwsem/internal/metrics"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	metricsAddr string
	verbose     bool
	flags       harness.Config
}

func newRootCmd() *cobra.Command {
	opts := options{flags: harness.DefaultConfig()}
	cmd := &cobra.Command{
		Use:          "rwsemtest",
		Short:        "Stress-test a downgradable reader/writer semaphore",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, &opts)
		},
	}

	bindFlags(cmd.Flags(), &opts)
	return cmd
}

func bindFlags(f *pflag.FlagSet, opts *options) {
	f.IntVarP(&opts.flags.Readers, "readers", "r", opts.flags.Readers, "number of reader goroutines")
	f.IntVarP(&opts.flags.Writers, "writers", "w", opts.flags.Writers, "number of writer goroutines")
	f.IntVarP(&opts.flags.Downgraders, "downgraders", "d", opts.flags.Downgraders, "number of downgrader goroutines")
	f.DurationVar(&opts.flags.Elapse, "elapse", opts.flags.Elapse, "how long to run for, with a unit (5s, 1m)")
	f.BoolVar(&opts.flags.Yield, "yield", opts.flags.Yield, "yield the processor after every lock cycle")
	f.DurationVar(&opts.flags.Grace, "grace", opts.flags.Grace, "how long goroutines get to stop once the run is over, with a unit (10s)")
	f.StringVar(&opts.configPath, "config", "", "YAML config file; flags given explicitly override it")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "human-readable debug logging")
}

func run(cmd *cobra.Command, opts *options) error {
	log, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := loadConfig(cmd.Flags(), opts)
	if err != nil {
		return err
	}
	h, err := harness.New(cfg, harness.WithLogger(log))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		shutdown, err := serveMetrics(opts.metricsAddr, h, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	report, err := h.Run(ctx)
	fmt.Fprint(cmd.OutOrStdout(), report.String())
	if err != nil {
		log.Error("rwsem test failed", zap.Error(err))
		return err
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig starts from the config file, if any, and applies the flags the
// user set explicitly.
func loadConfig(f *pflag.FlagSet, opts *options) (harness.Config, error) {
	if opts.configPath == "" {
		return opts.flags, nil
	}
	cfg, err := harness.LoadConfig(opts.configPath)
	if err != nil {
		return harness.Config{}, err
	}
	if f.Changed("readers") {
		cfg.Readers = opts.flags.Readers
	}
	if f.Changed("writers") {
		cfg.Writers = opts.flags.Writers
	}
	if f.Changed("downgraders") {
		cfg.Downgraders = opts.flags.Downgraders
	}
	if f.Changed("elapse") {
		cfg.Elapse = opts.flags.Elapse
	}
	if f.Changed("yield") {
		cfg.Yield = opts.flags.Yield
	}
	if f.Changed("grace") {
		cfg.Grace = opts.flags.Grace
	}
	return cfg, nil
}

func serveMetrics(addr string, h *harness.Harness, log *zap.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := metrics.New(h.Stats(), h.Locker()).Register(reg); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
