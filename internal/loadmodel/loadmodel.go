// Package loadmodel derives per-station traffic parameters from a target aggregate load.
package loadmodel

import (
	"fmt"
	"math"
	"time"

	"firestige.xyz/wifilab/internal/core"
)

// MaxStations is the addressable range of the one-octet host addressing scheme.
const MaxStations = 254

// Model is the derived per-station load for one scenario.
type Model struct {
	AggregateLoadBps  float64
	Stations          int
	PayloadBytes      int
	PerStationLoadBps float64
	Interval          float64 // seconds between two sends of one station
}

// New validates the inputs and derives the per-station load and send interval.
func New(aggregateLoadBps float64, stations, payloadBytes int) (Model, error) {
	if stations <= 0 || stations > MaxStations {
		return Model{}, fmt.Errorf("%w: station count %d outside [1, %d]", core.ErrInvalidScenario, stations, MaxStations)
	}
	if aggregateLoadBps <= 0 || math.IsNaN(aggregateLoadBps) || math.IsInf(aggregateLoadBps, 0) {
		return Model{}, fmt.Errorf("%w: aggregate load %v bit/s must be positive and finite", core.ErrInvalidScenario, aggregateLoadBps)
	}
	if payloadBytes <= 0 {
		return Model{}, fmt.Errorf("%w: payload size %d bytes must be positive", core.ErrInvalidScenario, payloadBytes)
	}

	perStation := aggregateLoadBps / float64(stations)
	return Model{
		AggregateLoadBps:  aggregateLoadBps,
		Stations:          stations,
		PayloadBytes:      payloadBytes,
		PerStationLoadBps: perStation,
		Interval:          float64(payloadBytes*8) / perStation,
	}, nil
}

// ComputeInterval returns the per-station send interval in seconds.
func ComputeInterval(aggregateLoadBps float64, stations, payloadBytes int) (float64, error) {
	m, err := New(aggregateLoadBps, stations, payloadBytes)
	if err != nil {
		return 0, err
	}
	return m.Interval, nil
}

// IntervalDuration rounds the interval to the nearest nanosecond.
func (m Model) IntervalDuration() time.Duration {
	return time.Duration(math.Round(m.Interval * float64(time.Second)))
}

// PacketsPerSecond is the send rate of a single station.
func (m Model) PacketsPerSecond() float64 {
	return 1 / m.Interval
}

// PacketsInWindow is the number of whole intervals that fit in window seconds.
// Counts are always floored.
func (m Model) PacketsInWindow(window float64) uint64 {
	if window <= 0 || m.Interval <= 0 {
		return 0
	}
	return uint64(math.Floor(window / m.Interval))
}

// Utilization is the aggregate offered load relative to a PHY data rate.
func (m Model) Utilization(dataRateBps float64) float64 {
	if dataRateBps <= 0 {
		return math.Inf(1)
	}
	return m.AggregateLoadBps / dataRateBps
}
