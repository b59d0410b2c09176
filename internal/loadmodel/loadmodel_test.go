package loadmodel

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wifilab/internal/core"
)

func TestComputeIntervalExample(t *testing.T) {
	m, err := New(10_000_000, 2, 1024)
	require.NoError(t, err)

	assert.Equal(t, 5_000_000.0, m.PerStationLoadBps)
	assert.InDelta(t, 0.0016384, m.Interval, 1e-15)
	assert.Equal(t, 1638400*time.Nanosecond, m.IntervalDuration())

	interval, err := ComputeInterval(10_000_000, 2, 1024)
	require.NoError(t, err)
	assert.Equal(t, m.Interval, interval)
}

func TestComputeIntervalRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		load     float64
		stations int
		payload  int
	}{
		{"zero stations", 1e6, 0, 1024},
		{"negative stations", 1e6, -1, 1024},
		{"too many stations", 1e6, 255, 1024},
		{"zero load", 0, 2, 1024},
		{"negative load", -5, 2, 1024},
		{"nan load", math.NaN(), 2, 1024},
		{"inf load", math.Inf(1), 2, 1024},
		{"zero payload", 1e6, 2, 0},
		{"negative payload", 1e6, 2, -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeInterval(tt.load, tt.stations, tt.payload)
			assert.ErrorIs(t, err, core.ErrInvalidScenario)
		})
	}
}

func TestBoundaryStationCounts(t *testing.T) {
	for _, n := range []int{1, MaxStations} {
		_, err := ComputeInterval(1e6, n, 100)
		assert.NoError(t, err, "stations=%d", n)
	}
}

func TestPacketsInWindowFloors(t *testing.T) {
	m, err := New(8000, 1, 1) // one packet per millisecond
	require.NoError(t, err)

	assert.Equal(t, uint64(9), m.PacketsInWindow(0.0099))
	assert.Equal(t, uint64(10), m.PacketsInWindow(0.0100001))
	assert.Equal(t, uint64(0), m.PacketsInWindow(-1))
	assert.InDelta(t, 1000.0, m.PacketsPerSecond(), 1e-9)
}

func TestUtilization(t *testing.T) {
	m, err := New(10e6, 4, 1024)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, m.Utilization(20e6), 1e-12)
	assert.True(t, math.IsInf(m.Utilization(0), 1))
}

func TestIntervalProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("interval equals payload*8*stations/load", prop.ForAll(
		func(stations int, load float64, payload int) bool {
			interval, err := ComputeInterval(load, stations, payload)
			if err != nil {
				return false
			}
			want := float64(payload*8) * float64(stations) / load
			return interval > 0 && math.Abs(interval-want) <= 1e-9*want
		},
		gen.IntRange(1, MaxStations),
		gen.Float64Range(1, 1e10),
		gen.IntRange(1, 65000),
	))

	properties.Property("out of range station counts fail", prop.ForAll(
		func(stations int) bool {
			_, err := ComputeInterval(1e6, stations, 1024)
			return err != nil
		},
		gen.OneGenOf(gen.IntRange(-1000, 0), gen.IntRange(MaxStations+1, 10000)),
	))

	properties.TestingRun(t)
}
