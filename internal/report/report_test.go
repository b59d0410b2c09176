package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/experiment"
	"firestige.xyz/wifilab/internal/netsim"
	"firestige.xyz/wifilab/internal/scenario"
	"firestige.xyz/wifilab/internal/telemetry"
)

type classifier map[core.FlowID]core.FlowKey

func (c classifier) FindFlow(id core.FlowID) (core.FlowKey, bool) {
	k, ok := c[id]
	return k, ok
}

func testResult(t *testing.T, counters map[core.FlowID]core.FlowCounters) *experiment.Result {
	t.Helper()
	cfg, err := scenario.NewBuilder().Build()
	require.NoError(t, err)
	sim, err := netsim.New(cfg, netsim.Options{})
	require.NoError(t, err)

	keys := classifier{
		1: {Src: netsim.StationAddr(1), Dst: netsim.CoordinatorAddr, Proto: core.ProtoUDP, SrcPort: 49153, DstPort: 9},
		2: {Src: netsim.StationAddr(2), Dst: netsim.CoordinatorAddr, Proto: core.ProtoUDP, SrcPort: 49154, DstPort: 9},
	}
	summary, err := telemetry.Summarize(counters, keys, cfg.Duration)
	require.NoError(t, err)

	return &experiment.Result{
		RunID:        "run-1",
		Config:       cfg,
		Load:         cfg.Load(),
		Participants: sim.Participants(),
		Bindings:     3,
		Summary:      summary,
		Events:       1234,
		WallTime:     15 * time.Millisecond,
	}
}

func TestWriteText(t *testing.T) {
	res := testResult(t, map[core.FlowID]core.FlowCounters{
		core.SentinelFlowID: {TxPackets: 4},
		1: {
			TxPackets: 100, TxBytes: 105200,
			RxPackets: 95, RxBytes: 99940,
			DelaySum: 95 * 500 * time.Microsecond,
		},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, res, true))

	want := "\n" +
		" Flow 1 From (Station) with IP : 10.1.1.1 To (AP) with address : 10.1.0.1\n" +
		"  Tx Packets: 100\n" +
		"  Tx Bytes:   105200\n" +
		"  TxOffered:  0.08416 Mbps\n" +
		"  Rx Packets: 95\n" +
		"  Rx Bytes:   99940\n" +
		"  Lost:       5 (0.05)\n" +
		"  Mean Delay: 0.0005 s\n" +
		"Offered = 5e+06\n" +
		"Throughput = 0.079952\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTextWithoutDetails(t *testing.T) {
	res := testResult(t, map[core.FlowID]core.FlowCounters{
		1: {TxPackets: 10, TxBytes: 10520},
		2: {TxPackets: 10, TxBytes: 10520, RxPackets: 10, RxBytes: 10520},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, res, false))

	want := "\n" +
		" Flow 1 From (Station) with IP : 10.1.1.1 To (AP) with address : 10.1.0.1\n" +
		"\n" +
		" Flow 2 From (Station) with IP : 10.1.1.2 To (AP) with address : 10.1.0.1\n" +
		"Offered = 5e+06\n" +
		"Throughput = 0.008416\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteYAML(t *testing.T) {
	res := testResult(t, map[core.FlowID]core.FlowCounters{
		1: {TxPackets: 10, TxBytes: 10520},
		2: {TxPackets: 10, TxBytes: 10520, RxPackets: 10, RxBytes: 10520, DelaySum: 10 * time.Millisecond},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, res, res))

	var doc struct {
		Runs []map[string]any `yaml:"runs"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Runs, 2)

	run := doc.Runs[0]
	assert.Equal(t, "run-1", run["run_id"])
	flows := run["flows"].([]any)
	require.Len(t, flows, 2)

	first := flows[0].(map[string]any)
	assert.NotContains(t, first, "mean_delay_s", "nothing received, delay undefined")
	assert.Equal(t, "UDP", first["protocol"])
	assert.Equal(t, "10.1.1.1:49153", first["source"])

	second := flows[1].(map[string]any)
	assert.InDelta(t, 0.001, second["mean_delay_s"], 1e-12)

	sc := run["scenario"].(map[string]any)
	assert.Equal(t, "HeMcs9", sc["data_mode"])
	assert.Equal(t, "{0, 80, BAND_5GHZ, 0}", sc["channel"])
}

func TestWriteDescription(t *testing.T) {
	cfg, err := scenario.NewBuilder().AckMode("AGGR-MU-BAR").Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDescription(&buf, cfg.Describe()))
	out := buf.String()
	assert.Contains(t, out, "Interval:          0.0016384 s\n")
	assert.Contains(t, out, "Control mode:      OfdmRate54Mbps\n")
	assert.Contains(t, out, "Spectrum:          true (forced by ack mode)\n")

	buf.Reset()
	require.NoError(t, WriteDescriptionYAML(&buf, cfg.Describe()))
	assert.Contains(t, buf.String(), "ack_mode: AGGR-MU-BAR")
}
