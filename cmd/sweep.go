package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/wifilab/internal/config"
	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/experiment"
	"firestige.xyz/wifilab/internal/report"
)

func newSweepCmd(a *app) *cobra.Command {
	var vary []string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the base scenario once per sweep entry",
		Long: `Run the base scenario once per entry of the configured sweep list, or per
combination of --vary values. Each entry overrides scenario keys of the base
scenario; runs execute in parallel on independent simulations.

Examples:
  wifilab sweep -c sweep.yml --parallel 4
  wifilab sweep --vary stations=1,2,4,8 --vary ack_mode=NO-OFDMA,MU-BAR -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			if len(vary) > 0 {
				overrides, err := expandVary(vary)
				if err != nil {
					return err
				}
				cfg.Sweep = overrides
			}
			return runSweep(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	addScenarioFlags(cmd)
	addOutputFlags(cmd)
	addEngineFlags(cmd)
	cmd.Flags().Int("parallel", 1, "maximum concurrent runs")
	cmd.Flags().StringArrayVar(&vary, "vary", nil, "key=v1,v2,... scenario values to sweep; repeated flags multiply")
	return cmd
}

func runSweep(ctx context.Context, cfg *config.GlobalConfig, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rec, stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	runner := newRunner(cfg, rec, true)
	results, err := runner.Sweep(ctx, cfg.Scenario, cfg.Sweep, cfg.Parallel)
	if err != nil {
		return err
	}

	if err := writeReport(cfg.Output, stdout, func(w io.Writer) error {
		if cfg.Output.Format == "yaml" {
			return report.WriteYAML(w, results...)
		}
		for i, res := range results {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "=== Run %d/%d: %s\n", i+1, len(results), runTitle(res))
			if err := report.WriteText(w, res, cfg.Output.ShowDetails); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	return writeTextfile(cfg.Metrics, rec)
}

func runTitle(res *experiment.Result) string {
	c := res.Config
	return fmt.Sprintf("%d stations, %s, %s, %s, %d MHz, %s",
		c.Stations, c.Band, c.AckMode, c.DataMode(), c.ChannelWidth, c.Direction)
}

// expandVary turns repeated key=v1,v2 flags into the cartesian product of overrides.
func expandVary(specs []string) ([]map[string]any, error) {
	out := []map[string]any{{}}
	for _, spec := range specs {
		key, list, ok := strings.Cut(spec, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.TrimSpace(list) == "" {
			return nil, fmt.Errorf("%w: --vary %q: want key=v1,v2,...", core.ErrConfigInvalid, spec)
		}
		values := strings.Split(list, ",")
		next := make([]map[string]any, 0, len(out)*len(values))
		for _, base := range out {
			for _, v := range values {
				m := make(map[string]any, len(base)+1)
				for k, bv := range base {
					m[k] = bv
				}
				m[key] = strings.TrimSpace(v)
				next = append(next, m)
			}
		}
		out = next
	}
	return out, nil
}
