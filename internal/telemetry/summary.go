// Package telemetry turns the engine's raw per-flow counters into reportable metrics.
package telemetry

import (
	"fmt"
	"math"
	"slices"

	"firestige.xyz/wifilab/internal/core"
)

// Classifier maps flow handles back to their 5-tuple.
type Classifier interface {
	FindFlow(id core.FlowID) (core.FlowKey, bool)
}

// FlowReport is the derived view of one flow.
type FlowReport struct {
	ID             core.FlowID
	Key            core.FlowKey
	TxPackets      uint64
	TxBytes        uint64
	RxPackets      uint64
	RxBytes        uint64
	TxOfferedMbps  float64
	ThroughputMbps float64
	MeanDelay      *float64 // seconds; nil when nothing was received
	LostPackets    uint64
	LossRatio      float64
}

// HasDelay reports whether the mean delay is defined.
func (r FlowReport) HasDelay() bool {
	return r.MeanDelay != nil
}

// AggregateReport rolls up every reported flow.
type AggregateReport struct {
	Flows          int
	ThroughputMbps float64
	OfferedMbps    float64
	TxPackets      uint64
	RxPackets      uint64
	TxBytes        uint64
	RxBytes        uint64
	LostPackets    uint64
	MeanDelay      *float64 // packet weighted, over flows with a defined delay
}

// Summary is the result of one aggregation pass.
type Summary struct {
	Duration  float64
	Flows     []FlowReport
	Aggregate AggregateReport
}

// Summarize reads the counters once. The sentinel flow is skipped and reports come out
// in ascending flow id order. Aggregate throughput is the sum of per-flow throughput.
func Summarize(counters map[core.FlowID]core.FlowCounters, classifier Classifier, duration float64) (Summary, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return Summary{}, fmt.Errorf("%w: measurement duration %v s", core.ErrInvalidScenario, duration)
	}

	ids := make([]core.FlowID, 0, len(counters))
	for id := range counters {
		if id == core.SentinelFlowID {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	s := Summary{
		Duration: duration,
		Flows:    make([]FlowReport, 0, len(ids)),
	}
	var delaySum float64
	var delayed uint64
	for _, id := range ids {
		c := counters[id]
		r := newFlowReport(id, c, duration)
		if classifier != nil {
			if key, ok := classifier.FindFlow(id); ok {
				r.Key = key
			}
		}
		s.Flows = append(s.Flows, r)

		agg := &s.Aggregate
		agg.Flows++
		agg.ThroughputMbps += r.ThroughputMbps
		agg.OfferedMbps += r.TxOfferedMbps
		agg.TxPackets += r.TxPackets
		agg.RxPackets += r.RxPackets
		agg.TxBytes += r.TxBytes
		agg.RxBytes += r.RxBytes
		agg.LostPackets += r.LostPackets
		if r.HasDelay() {
			delaySum += c.DelaySum.Seconds()
			delayed += c.RxPackets
		}
	}
	if delayed > 0 {
		mean := delaySum / float64(delayed)
		s.Aggregate.MeanDelay = &mean
	}
	return s, nil
}

func newFlowReport(id core.FlowID, c core.FlowCounters, duration float64) FlowReport {
	r := FlowReport{
		ID:             id,
		TxPackets:      c.TxPackets,
		TxBytes:        c.TxBytes,
		RxPackets:      c.RxPackets,
		RxBytes:        c.RxBytes,
		TxOfferedMbps:  mbps(c.TxBytes, duration),
		ThroughputMbps: mbps(c.RxBytes, duration),
	}
	if c.RxPackets > 0 {
		d := c.DelaySum.Seconds() / float64(c.RxPackets)
		r.MeanDelay = &d
	}
	if c.TxPackets > c.RxPackets {
		r.LostPackets = c.TxPackets - c.RxPackets
	}
	if c.TxPackets > 0 {
		r.LossRatio = float64(r.LostPackets) / float64(c.TxPackets)
	}
	return r
}

func mbps(bytes uint64, duration float64) float64 {
	return float64(bytes) * 8 / (duration * 1e6)
}
