// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"firestige.xyz/wifilab/internal/config"
	"firestige.xyz/wifilab/internal/log"
)

// app carries what every subcommand shares: the config file flag and the viper
// instance flags are bound onto.
type app struct {
	configFile string
	v          *viper.Viper
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "wifilab",
		Short: "wifilab - WiFi load and acknowledgment experiment driver",
		Long: `wifilab runs load experiments on a simulated 802.11ax network: N stations
and one access point share a channel, each station offers an equal share of an
aggregate load, and per-flow throughput, delay and loss are reported.

Features:
  - Band, channel width, HE MCS and guard interval selection
  - Single-user and OFDMA acknowledgment sequences
  - Seeded address resolution so measurements carry no ARP traffic
  - Parameter sweeps run in parallel
  - Text and YAML reports, Prometheus textfile export, pcap traces`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ReadFile(a.v, a.configFile)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "",
		"config file path (defaults and WIFILAB_* env vars apply without one)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newValidateCmd(a))
	rootCmd.AddCommand(newSweepCmd(a))
	return rootCmd
}

// Execute runs the command tree. This is called by main.main().
func Execute() error {
	return NewRootCommand().Execute()
}

// load binds cmd's flags, decodes the merged configuration and installs the process
// logger.
func (a *app) load(cmd *cobra.Command) (*config.GlobalConfig, error) {
	if err := bindFlags(a.v, cmd); err != nil {
		return nil, err
	}
	cfg, err := config.Decode(a.v)
	if err != nil {
		return nil, err
	}
	if err := log.Init(&cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}
