package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"firestige.xyz/wifilab/internal/config"
	"firestige.xyz/wifilab/internal/scenario"
)

// flagKeys maps flag names onto config keys below the root key.
var flagKeys = map[string]string{
	"log-level": "log.level",

	"stations":       "scenario.stations",
	"duration":       "scenario.duration",
	"payload":        "scenario.payload",
	"load":           "scenario.load",
	"band":           "scenario.band",
	"ack-mode":       "scenario.ack_mode",
	"channel-width":  "scenario.channel_width",
	"rate-index":     "scenario.rate_index",
	"guard-interval": "scenario.guard_interval",
	"tcp":            "scenario.tcp",
	"downlink":       "scenario.downlink",
	"spectrum":       "scenario.spectrum",
	"seed":           "scenario.seed",

	"output":       "output.format",
	"output-file":  "output.path",
	"show-details": "output.show_details",

	"tracing":          "engine.tracing",
	"trace-prefix":     "engine.trace_prefix",
	"trace-filter":     "engine.trace_filter",
	"verbose":          "engine.verbose",
	"seed-resolution":  "engine.seed_resolution",
	"progress":         "engine.progress",
	"metrics-textfile": "metrics.textfile",

	"parallel": "parallel",
}

// bindFlags binds the flags of the command being executed. Binding happens at run
// time because subcommands share flag names and viper keeps one flag per key. Unset
// flags leave the file, env or default value in place.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	visit := func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(config.Key(key), f)
	}
	cmd.InheritedFlags().VisitAll(visit)
	cmd.Flags().VisitAll(visit)
	return err
}

// addScenarioFlags registers one flag per scenario parameter.
func addScenarioFlags(cmd *cobra.Command) {
	d := scenario.DefaultParams()
	fs := cmd.Flags()
	fs.Int("stations", d.Stations, "number of stations (1-254)")
	fs.Float64("duration", d.Duration, "measurement duration in seconds")
	fs.Int("payload", d.PayloadBytes, "datagram payload in bytes")
	fs.Float64("load", d.AggregateLoad, "aggregate offered load in bit/s, split evenly across stations")
	fs.String("band", d.Band, "frequency band: 2.4GHz, 5GHz or 6GHz")
	fs.String("ack-mode", d.AckMode, "acknowledgment sequence: NO-OFDMA, ACK-SU-FORMAT, MU-BAR, AGGR-MU-BAR")
	fs.Int("channel-width", d.ChannelWidth, "channel width in MHz")
	fs.Int("rate-index", d.RateIndex, "HE MCS index (0-11)")
	fs.Int("guard-interval", d.GuardInterval, "guard interval in ns: 800, 1600 or 3200")
	fs.Bool("tcp", d.TCP, "send TCP segments instead of UDP datagrams")
	fs.Bool("downlink", d.Downlink, "send from the access point to the stations")
	fs.Bool("spectrum", d.Spectrum, "request the spectrum channel model")
	fs.Int64("seed", d.Seed, "random seed")
}

// addOutputFlags registers the report flags.
func addOutputFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringP("output", "o", "text", "report format: text or yaml")
	fs.String("output-file", "", "write the report to this file instead of stdout")
	fs.Bool("show-details", true, "print the per-flow counter block")
}

// addEngineFlags registers the simulation backend flags.
func addEngineFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Bool("tracing", false, "write a pcap trace of every transmitted frame")
	fs.String("trace-prefix", "wifilab", "pcap file prefix")
	fs.String("trace-filter", "all", "frames to trace: all, arp or data")
	fs.Bool("verbose", false, "log every sent and received packet")
	fs.Bool("seed-resolution", true, "pre-populate address resolution tables")
	fs.Duration("progress", 0, "log the simulated clock at this period")
	fs.String("metrics-textfile", "", "write Prometheus metrics to this file")
}
