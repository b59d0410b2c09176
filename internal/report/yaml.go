package report

import (
	"fmt"
	"io"

	"github.com/google/gopacket/layers"
	"gopkg.in/yaml.v3"

	"firestige.xyz/wifilab/internal/experiment"
	"firestige.xyz/wifilab/internal/scenario"
)

type document struct {
	Runs []runDocument `yaml:"runs"`
}

type runDocument struct {
	RunID      string               `yaml:"run_id"`
	Scenario   scenario.Description `yaml:"scenario"`
	Resolution resolutionDocument   `yaml:"resolution"`
	Flows      []flowDocument       `yaml:"flows"`
	Aggregate  aggregateDocument    `yaml:"aggregate"`
	Events     uint64               `yaml:"events"`
	WallTime   string               `yaml:"wall_time"`
}

type resolutionDocument struct {
	Seeded   bool   `yaml:"seeded"`
	Bindings int    `yaml:"bindings"`
	Requests uint64 `yaml:"requests"`
	Replies  uint64 `yaml:"replies"`
	Learned  uint64 `yaml:"learned"`
}

type flowDocument struct {
	ID             uint32   `yaml:"id"`
	Source         string   `yaml:"source"`
	Destination    string   `yaml:"destination"`
	Protocol       string   `yaml:"protocol"`
	TxPackets      uint64   `yaml:"tx_packets"`
	TxBytes        uint64   `yaml:"tx_bytes"`
	RxPackets      uint64   `yaml:"rx_packets"`
	RxBytes        uint64   `yaml:"rx_bytes"`
	TxOfferedMbps  float64  `yaml:"tx_offered_mbps"`
	ThroughputMbps float64  `yaml:"throughput_mbps"`
	MeanDelay      *float64 `yaml:"mean_delay_s,omitempty"`
	LostPackets    uint64   `yaml:"lost_packets"`
	LossRatio      float64  `yaml:"loss_ratio"`
}

type aggregateDocument struct {
	Flows          int      `yaml:"flows"`
	OfferedMbps    float64  `yaml:"offered_mbps"`
	ThroughputMbps float64  `yaml:"throughput_mbps"`
	TxPackets      uint64   `yaml:"tx_packets"`
	RxPackets      uint64   `yaml:"rx_packets"`
	LostPackets    uint64   `yaml:"lost_packets"`
	MeanDelay      *float64 `yaml:"mean_delay_s,omitempty"`
}

// WriteYAML exports results as a single `runs:` document. Undefined delays are omitted.
func WriteYAML(w io.Writer, results ...*experiment.Result) error {
	doc := document{Runs: make([]runDocument, 0, len(results))}
	for _, res := range results {
		doc.Runs = append(doc.Runs, newRunDocument(res))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// WriteDescriptionYAML exports a derived scenario.
func WriteDescriptionYAML(w io.Writer, d scenario.Description) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	return enc.Close()
}

func newRunDocument(res *experiment.Result) runDocument {
	s := res.Summary
	d := runDocument{
		RunID:    res.RunID,
		Scenario: res.Config.Describe(),
		Resolution: resolutionDocument{
			Seeded:   res.Bindings > 0,
			Bindings: res.Bindings,
			Requests: res.Resolution.Requests,
			Replies:  res.Resolution.Replies,
			Learned:  res.Resolution.Learned,
		},
		Flows: make([]flowDocument, 0, len(s.Flows)),
		Aggregate: aggregateDocument{
			Flows:          s.Aggregate.Flows,
			OfferedMbps:    s.Aggregate.OfferedMbps,
			ThroughputMbps: s.Aggregate.ThroughputMbps,
			TxPackets:      s.Aggregate.TxPackets,
			RxPackets:      s.Aggregate.RxPackets,
			LostPackets:    s.Aggregate.LostPackets,
			MeanDelay:      s.Aggregate.MeanDelay,
		},
		Events:   res.Events,
		WallTime: res.WallTime.String(),
	}
	for _, f := range s.Flows {
		d.Flows = append(d.Flows, flowDocument{
			ID:             uint32(f.ID),
			Source:         fmt.Sprintf("%s:%d", f.Key.Src, f.Key.SrcPort),
			Destination:    fmt.Sprintf("%s:%d", f.Key.Dst, f.Key.DstPort),
			Protocol:       protocolName(f.Key.Proto),
			TxPackets:      f.TxPackets,
			TxBytes:        f.TxBytes,
			RxPackets:      f.RxPackets,
			RxBytes:        f.RxBytes,
			TxOfferedMbps:  f.TxOfferedMbps,
			ThroughputMbps: f.ThroughputMbps,
			MeanDelay:      f.MeanDelay,
			LostPackets:    f.LostPackets,
			LossRatio:      f.LossRatio,
		})
	}
	return d
}

func protocolName(proto uint8) string {
	return layers.IPProtocol(proto).String()
}
