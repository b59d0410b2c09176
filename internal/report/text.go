// Package report renders run results for people and for machines.
package report

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"

	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/experiment"
	"firestige.xyz/wifilab/internal/scenario"
)

// WriteText writes the per-flow listing followed by the offered load and the total
// throughput. showDetails adds the counter block under every flow.
func WriteText(w io.Writer, res *experiment.Result, showDetails bool) error {
	bw := bufio.NewWriter(w)
	for _, f := range res.Summary.Flows {
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, " Flow %d From (%s) with IP : %s To (%s) with address : %s\n",
			f.ID, role(res, f.Key.Src), f.Key.Src, role(res, f.Key.Dst), f.Key.Dst)
		if !showDetails {
			continue
		}
		fmt.Fprintf(bw, "  Tx Packets: %d\n", f.TxPackets)
		fmt.Fprintf(bw, "  Tx Bytes:   %d\n", f.TxBytes)
		fmt.Fprintf(bw, "  TxOffered:  %s Mbps\n", num(f.TxOfferedMbps))
		fmt.Fprintf(bw, "  Rx Packets: %d\n", f.RxPackets)
		fmt.Fprintf(bw, "  Rx Bytes:   %d\n", f.RxBytes)
		fmt.Fprintf(bw, "  Lost:       %d (%s)\n", f.LostPackets, num(f.LossRatio))
		if f.HasDelay() {
			fmt.Fprintf(bw, "  Mean Delay: %s s\n", num(*f.MeanDelay))
		} else {
			fmt.Fprintf(bw, "  Mean Delay: n/a\n")
		}
	}
	fmt.Fprintf(bw, "Offered = %s\n", num(res.Load.PerStationLoadBps))
	fmt.Fprintf(bw, "Throughput = %s\n", num(res.Summary.Aggregate.ThroughputMbps))
	return bw.Flush()
}

// WriteDescription prints a derived scenario, one key per line.
func WriteDescription(w io.Writer, d scenario.Description) error {
	spectrum := fmt.Sprint(d.Spectrum)
	if d.SpectrumForced {
		spectrum += " (forced by ack mode)"
	}
	pairs := [][2]string{
		{"Stations", fmt.Sprint(d.Stations)},
		{"Duration", num(d.Duration) + " s"},
		{"Payload", fmt.Sprintf("%d bytes", d.PayloadBytes)},
		{"Aggregate load", num(d.AggregateLoadBps) + " bps"},
		{"Per-station load", num(d.PerStationLoadBps) + " bps"},
		{"Interval", num(d.IntervalSeconds) + " s"},
		{"Band", d.Band},
		{"Channel", d.Channel},
		{"Data mode", d.DataMode},
		{"Control mode", d.ControlMode},
		{"Data rate", num(d.DataRateMbps) + " Mbps"},
		{"Utilization", num(d.Utilization)},
		{"Ack mode", d.AckMode},
		{"Spectrum", spectrum},
		{"Transport", d.Transport},
		{"Direction", d.Direction},
		{"Seed", fmt.Sprint(d.Seed)},
	}
	bw := bufio.NewWriter(w)
	for _, kv := range pairs {
		fmt.Fprintf(bw, "%-18s %s\n", kv[0]+":", kv[1])
	}
	return bw.Flush()
}

func role(res *experiment.Result, addr netip.Addr) string {
	if n, ok := res.Node(addr); ok {
		return n.Role.String()
	}
	return core.RoleStation.String()
}

// num formats like a default iostream: six significant digits.
func num(v float64) string {
	return fmt.Sprintf("%.6g", v)
}
