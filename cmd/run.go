package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"

	"firestige.xyz/wifilab/internal/config"
	"firestige.xyz/wifilab/internal/experiment"
	"firestige.xyz/wifilab/internal/log"
	"firestige.xyz/wifilab/internal/metrics"
	"firestige.xyz/wifilab/internal/netsim"
	"firestige.xyz/wifilab/internal/report"
	"firestige.xyz/wifilab/internal/scenario"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one experiment",
		Long: `Run one experiment and print the per-flow report.

Examples:
  wifilab run --stations 8 --load 50e6
  wifilab run --band 6GHz --ack-mode MU-BAR --rate-index 11 -o yaml
  wifilab run -c experiment.yml --tracing --trace-filter arp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			return runExperiment(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	addScenarioFlags(cmd)
	addOutputFlags(cmd)
	addEngineFlags(cmd)
	return cmd
}

func runExperiment(ctx context.Context, cfg *config.GlobalConfig, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sc, err := cfg.Scenario.Build()
	if err != nil {
		return err
	}

	rec, stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	runner := newRunner(cfg, rec, false)
	res, err := runner.Run(ctx, sc)
	if err != nil {
		return err
	}

	if err := writeReport(cfg.Output, stdout, func(w io.Writer) error {
		if cfg.Output.Format == "yaml" {
			return report.WriteYAML(w, res)
		}
		return report.WriteText(w, res, cfg.Output.ShowDetails)
	}); err != nil {
		return err
	}
	return writeTextfile(cfg.Metrics, rec)
}

// newRunner wires the reference backend. With uniqueTraces every run gets its own
// pcap file, numbered in build order.
func newRunner(cfg *config.GlobalConfig, rec *metrics.Recorder, uniqueTraces bool) *experiment.Runner {
	ec := cfg.Engine
	logger := log.GetLogger()
	var built atomic.Int64

	factory := func(sc scenario.Config) (experiment.Engine, error) {
		prefix := ec.TracePrefix
		if uniqueTraces {
			prefix = fmt.Sprintf("%s-%d", prefix, built.Add(1))
		}
		overhead := ec.FrameOverhead
		if overhead == 0 {
			// a configured zero means no overhead, not the backend default
			overhead = -1
		}
		return netsim.New(sc, netsim.Options{
			QueueLimit:    ec.QueueLimit,
			FrameOverhead: overhead,
			Verbose:       ec.Verbose,
			Trace: netsim.TraceOptions{
				Enabled: ec.Tracing,
				Prefix:  prefix,
				Filter:  ec.TraceFilter,
			},
			Seed:   sc.Seed,
			Logger: logger,
		})
	}

	return experiment.NewRunner(factory, experiment.Options{
		Timeline: experiment.Timeline{
			ServerStart: ec.ServerStart,
			ClientStart: ec.ClientStart,
			StopPadding: ec.StopPadding,
		},
		MaxPackets:     ec.MaxPackets,
		Port:           ec.Port,
		SeedResolution: ec.SeedResolution,
		Progress:       ec.Progress,
		Logger:         logger,
		Metrics:        rec,
	})
}

// startMetrics returns the recorder, nil when metrics are off, and starts the HTTP
// endpoint when one is configured.
func startMetrics(ctx context.Context, mc config.MetricsConfig) (*metrics.Recorder, func(), error) {
	if !mc.Enabled {
		return nil, func() {}, nil
	}
	rec := metrics.New()
	if mc.Listen == "" {
		return rec, func() {}, nil
	}
	srv := metrics.NewServer(mc.Listen, mc.Path, rec)
	if err := srv.Start(ctx); err != nil {
		return nil, nil, err
	}
	return rec, func() {
		if err := srv.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("stop metrics server")
		}
	}, nil
}

func writeTextfile(mc config.MetricsConfig, rec *metrics.Recorder) error {
	if rec == nil || mc.Textfile == "" {
		return nil
	}
	if err := rec.WriteTextfile(mc.Textfile); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// writeReport sends the report to output.path, or stdout when none is set.
func writeReport(oc config.OutputConfig, stdout io.Writer, write func(io.Writer) error) error {
	if oc.Path == "" {
		return write(stdout)
	}
	f, err := os.Create(oc.Path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
