package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/wifilab/internal/report"
)

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a scenario and print the derived values",
		Long: `Validate a scenario without simulating it. The derived send interval, channel
settings, data and control modes and the expected channel utilization are printed.

The exit status tells failures apart: 2 invalid scenario, 3 unsupported band,
4 invalid ack mode, 5 invalid rate index, 7 invalid configuration.

Examples:
  wifilab validate --stations 300
  wifilab validate -c experiment.yml -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			sc, err := cfg.Scenario.Build()
			if err != nil {
				return err
			}
			if cfg.Output.Format == "yaml" {
				return report.WriteDescriptionYAML(cmd.OutOrStdout(), sc.Describe())
			}
			return report.WriteDescription(cmd.OutOrStdout(), sc.Describe())
		},
	}
	addScenarioFlags(cmd)
	cmd.Flags().StringP("output", "o", "text", "output format: text or yaml")
	return cmd
}
