package telemetry

import (
	"math"
	"net/netip"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wifilab/internal/core"
)

type mapClassifier map[core.FlowID]core.FlowKey

func (m mapClassifier) FindFlow(id core.FlowID) (core.FlowKey, bool) {
	k, ok := m[id]
	return k, ok
}

func TestSummarizeSingleFlowExample(t *testing.T) {
	counters := map[core.FlowID]core.FlowCounters{
		1: {TxPackets: 100, TxBytes: 100 * 1024, RxPackets: 95, RxBytes: 95 * 1024, DelaySum: 950 * time.Millisecond},
	}
	key := core.FlowKey{
		Src: netip.MustParseAddr("10.1.1.1"), Dst: netip.MustParseAddr("10.1.0.1"),
		Proto: core.ProtoUDP, SrcPort: 49153, DstPort: 9,
	}

	s, err := Summarize(counters, mapClassifier{1: key}, 10)
	require.NoError(t, err)
	require.Len(t, s.Flows, 1)

	r := s.Flows[0]
	assert.Equal(t, key, r.Key)
	assert.InDelta(t, 0.0778240, r.ThroughputMbps, 1e-9)
	require.True(t, r.HasDelay())
	assert.InDelta(t, 0.01, *r.MeanDelay, 1e-12)
	assert.Equal(t, uint64(5), r.LostPackets)
	assert.InDelta(t, 0.05, r.LossRatio, 1e-12)
	assert.InDelta(t, 0.08192, r.TxOfferedMbps, 1e-9)
}

func TestSummarizeSkipsSentinel(t *testing.T) {
	counters := map[core.FlowID]core.FlowCounters{
		core.SentinelFlowID: {TxPackets: 10, RxPackets: 10, RxBytes: 1e6},
	}

	s, err := Summarize(counters, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, s.Flows)
	assert.Zero(t, s.Aggregate.ThroughputMbps)
	assert.Zero(t, s.Aggregate.Flows)
	assert.Nil(t, s.Aggregate.MeanDelay)
}

func TestSummarizeUndefinedDelay(t *testing.T) {
	counters := map[core.FlowID]core.FlowCounters{
		1: {TxPackets: 10, TxBytes: 10240},
		2: {TxPackets: 10, TxBytes: 10240, RxPackets: 10, RxBytes: 10240, DelaySum: 20 * time.Millisecond},
	}

	s, err := Summarize(counters, nil, 1)
	require.NoError(t, err)
	require.Len(t, s.Flows, 2)

	assert.False(t, s.Flows[0].HasDelay(), "no packets received means no delay, not zero delay")
	assert.Equal(t, uint64(10), s.Flows[0].LostPackets)
	assert.Equal(t, 1.0, s.Flows[0].LossRatio)

	require.NotNil(t, s.Aggregate.MeanDelay)
	assert.InDelta(t, 0.002, *s.Aggregate.MeanDelay, 1e-12, "undefined flows are excluded from the average")
}

func TestSummarizeOrdersByFlowID(t *testing.T) {
	counters := map[core.FlowID]core.FlowCounters{}
	for _, id := range []core.FlowID{7, 3, 11, 1, 5} {
		counters[id] = core.FlowCounters{TxPackets: 1, RxPackets: 1, RxBytes: uint64(id)}
	}

	s, err := Summarize(counters, nil, 1)
	require.NoError(t, err)

	var got []core.FlowID
	for _, f := range s.Flows {
		got = append(got, f.ID)
	}
	assert.Equal(t, []core.FlowID{1, 3, 5, 7, 11}, got)
}

func TestSummarizeRejectsBadDuration(t *testing.T) {
	for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Summarize(nil, nil, d)
		assert.ErrorIs(t, err, core.ErrInvalidScenario, "duration=%v", d)
	}
}

func TestLossNeverUnderflows(t *testing.T) {
	s, err := Summarize(map[core.FlowID]core.FlowCounters{
		1: {TxPackets: 3, RxPackets: 4, RxBytes: 400, DelaySum: time.Millisecond},
	}, nil, 1)
	require.NoError(t, err)
	assert.Zero(t, s.Flows[0].LostPackets)
}

func TestPerFlowThroughputUsesOwnBytes(t *testing.T) {
	s, err := Summarize(map[core.FlowID]core.FlowCounters{
		1: {TxPackets: 1, RxPackets: 1, RxBytes: 1_000_000},
		2: {TxPackets: 1, RxPackets: 1, RxBytes: 3_000_000},
	}, nil, 8)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.Flows[0].ThroughputMbps, 1e-12)
	assert.InDelta(t, 3.0, s.Flows[1].ThroughputMbps, 1e-12)
	assert.InDelta(t, 4.0, s.Aggregate.ThroughputMbps, 1e-12)
}

func TestAggregationIsAdditive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate throughput is the sum of flow throughput", prop.ForAll(
		func(rx []uint32, duration float64) bool {
			counters := make(map[core.FlowID]core.FlowCounters, len(rx)+1)
			counters[core.SentinelFlowID] = core.FlowCounters{RxBytes: 1 << 30}
			for i, b := range rx {
				counters[core.FlowID(i+1)] = core.FlowCounters{TxPackets: 1, RxPackets: 1, RxBytes: uint64(b)}
			}
			s, err := Summarize(counters, nil, duration)
			if err != nil || len(s.Flows) != len(rx) {
				return false
			}
			var sum float64
			for _, f := range s.Flows {
				sum += f.ThroughputMbps
			}
			return sum == s.Aggregate.ThroughputMbps
		},
		gen.SliceOfN(16, gen.UInt32()).SuchThat(func(v []uint32) bool { return len(v) > 0 }),
		gen.Float64Range(0.001, 1000),
	))

	properties.TestingRun(t)
}
