package experiment

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/engine"
	"firestige.xyz/wifilab/internal/metrics"
	"firestige.xyz/wifilab/internal/netsim"
	"firestige.xyz/wifilab/internal/scenario"
)

type fakeEngine struct {
	nodes      []*core.Node
	servers    []core.ServerSpec
	generators []core.TrafficSpec
	runUntil   time.Duration
	closed     bool
	stopped    bool
	stats      map[core.FlowID]core.FlowCounters
	keys       map[core.FlowID]core.FlowKey

	seededBeforeTraffic bool
	scheduled           []time.Duration
}

func node(id int, role core.Role, addr string, mac byte) *core.Node {
	return &core.Node{ID: id, Role: role, Interfaces: []*core.Interface{
		{Index: 0, Name: "lo", Addrs: []netip.Addr{netip.MustParseAddr("127.0.0.1")}},
		{Index: 1, Name: "wlan0", MAC: net.HardwareAddr{0, 0, 0, 0, 0, mac}, Addrs: []netip.Addr{netip.MustParseAddr(addr)}},
	}}
}

func newFakeEngine(stations int) *fakeEngine {
	e := &fakeEngine{seededBeforeTraffic: true}
	for i := 1; i <= stations; i++ {
		e.nodes = append(e.nodes, node(i, core.RoleStation, netsim.StationAddr(i).String(), byte(i)))
	}
	e.nodes = append(e.nodes, node(0, core.RoleCoordinator, "10.1.0.1", byte(stations+1)))
	return e
}

func (e *fakeEngine) Participants() []*core.Node { return e.nodes }
func (e *fakeEngine) Schedule(at time.Duration, _ engine.Priority, action func()) {
	e.scheduled = append(e.scheduled, at)
	action()
}
func (e *fakeEngine) InstallServer(spec core.ServerSpec) error {
	e.servers = append(e.servers, spec)
	return nil
}
func (e *fakeEngine) InstallGenerator(spec core.TrafficSpec) error {
	if spec.Source.PrimaryInterface().Resolver() == nil {
		e.seededBeforeTraffic = false
	}
	e.generators = append(e.generators, spec)
	return nil
}
func (e *fakeEngine) Run(until time.Duration) { e.runUntil = until }
func (e *fakeEngine) Stop()                    { e.stopped = true }
func (e *fakeEngine) FlowStats() map[core.FlowID]core.FlowCounters {
	return e.stats
}
func (e *fakeEngine) FindFlow(id core.FlowID) (core.FlowKey, bool) {
	k, ok := e.keys[id]
	return k, ok
}
func (e *fakeEngine) ResolutionStats() core.ResolutionStats { return core.ResolutionStats{} }
func (e *fakeEngine) Processed() uint64                     { return 42 }
func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

func factoryOf(e *fakeEngine) EngineFactory {
	return func(scenario.Config) (Engine, error) { return e, nil }
}

func TestRunUplink(t *testing.T) {
	cfg, err := scenario.NewBuilder().Stations(3).Build()
	require.NoError(t, err)

	fe := newFakeEngine(3)
	key := core.FlowKey{Src: netsim.StationAddr(1), Dst: netsim.CoordinatorAddr, Proto: core.ProtoUDP, SrcPort: 49153, DstPort: 9}
	fe.keys = map[core.FlowID]core.FlowKey{1: key}
	fe.stats = map[core.FlowID]core.FlowCounters{
		core.SentinelFlowID: {TxPackets: 4},
		1:                   {TxPackets: 100, TxBytes: 105200, RxPackets: 100, RxBytes: 105200, DelaySum: time.Second},
	}

	rec := metrics.New()
	opts := DefaultOptions()
	opts.Metrics = rec
	res, err := NewRunner(factoryOf(fe), opts).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Bindings, "three stations plus the coordinator")
	assert.True(t, fe.seededBeforeTraffic)
	assert.True(t, fe.closed)
	assert.Equal(t, 11*time.Second, fe.runUntil)

	require.Len(t, fe.servers, 1)
	assert.Equal(t, core.ServerSpec{Node: fe.nodes[3], Port: 9, Start: time.Second, Stop: 11 * time.Second}, fe.servers[0])

	require.Len(t, fe.generators, 3)
	for i, g := range fe.generators {
		assert.Equal(t, fe.nodes[i], g.Source)
		assert.Equal(t, netsim.CoordinatorAddr, g.Destination)
		assert.Equal(t, uint16(49153+i), g.SrcPort)
		assert.Equal(t, uint16(9), g.DstPort)
		assert.Equal(t, core.ProtoUDP, g.Proto)
		assert.Equal(t, 2*time.Second, g.Start)
		assert.Equal(t, 11*time.Second, g.Stop)
		assert.Equal(t, uint64(10000), g.MaxPackets)
		assert.Equal(t, cfg.Load().IntervalDuration(), g.Interval)
	}

	require.Len(t, res.Summary.Flows, 1, "sentinel skipped")
	assert.InDelta(t, 105200*8/10e6, res.Summary.Aggregate.ThroughputMbps, 1e-9)
	assert.Equal(t, uint64(42), res.Events)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.RunsTotal.WithLabelValues(metrics.OutcomeOK)))
	assert.Equal(t, 4.0, testutil.ToFloat64(rec.ResolutionBindings))
	assert.Equal(t, 42.0, testutil.ToFloat64(rec.EventsProcessedTotal))

	n, ok := res.Node(netsim.CoordinatorAddr)
	require.True(t, ok)
	assert.Equal(t, core.RoleCoordinator, n.Role)
}

func TestRunDownlinkTCP(t *testing.T) {
	cfg, err := scenario.NewBuilder().Stations(2).Downlink(true).TCP(true).Build()
	require.NoError(t, err)
	fe := newFakeEngine(2)

	_, err = NewRunner(factoryOf(fe), DefaultOptions()).Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, fe.servers, 2)
	assert.Equal(t, fe.nodes[0], fe.servers[0].Node)
	assert.Equal(t, fe.nodes[1], fe.servers[1].Node)
	require.Len(t, fe.generators, 2)
	for i, g := range fe.generators {
		assert.Equal(t, fe.nodes[2], g.Source)
		assert.Equal(t, netsim.StationAddr(i+1), g.Destination)
		assert.Equal(t, core.ProtoTCP, g.Proto)
	}
}

func TestRunAbortsOnConflict(t *testing.T) {
	cfg, err := scenario.NewBuilder().Build()
	require.NoError(t, err)
	fe := newFakeEngine(2)
	// station 2 claims station 1's address with its own link address
	fe.nodes[1].Interfaces[1].Addrs = []netip.Addr{netsim.StationAddr(1)}

	rec := metrics.New()
	opts := DefaultOptions()
	opts.Metrics = rec
	_, err = NewRunner(factoryOf(fe), opts).Run(context.Background(), cfg)

	require.ErrorIs(t, err, core.ErrAddressConflict)
	assert.Equal(t, core.ExitAddressConflict, core.ExitCode(err))
	assert.Empty(t, fe.generators)
	assert.Empty(t, fe.servers)
	assert.Zero(t, fe.runUntil)
	assert.True(t, fe.closed)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.RunsTotal.WithLabelValues(metrics.OutcomeConflict)))
}

func TestRunWithoutSeeding(t *testing.T) {
	cfg, err := scenario.NewBuilder().Build()
	require.NoError(t, err)
	fe := newFakeEngine(2)
	opts := DefaultOptions()
	opts.SeedResolution = false

	res, err := NewRunner(factoryOf(fe), opts).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Zero(t, res.Bindings)
	assert.False(t, fe.seededBeforeTraffic)
}

func TestRunProgress(t *testing.T) {
	cfg, err := scenario.NewBuilder().Duration(2).Build()
	require.NoError(t, err)
	fe := newFakeEngine(1)
	opts := DefaultOptions()
	opts.Progress = time.Second

	_, err = NewRunner(factoryOf(fe), opts).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, fe.scheduled)
}

func TestRunCancelled(t *testing.T) {
	cfg, err := scenario.NewBuilder().Build()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewRunner(factoryOf(newFakeEngine(2)), DefaultOptions()).Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCancelledMidRunStopsEngine(t *testing.T) {
	cfg, err := scenario.NewBuilder().Build()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fe := newFakeEngine(2)
	factory := func(scenario.Config) (Engine, error) {
		cancel()
		return fe, nil
	}
	_, err = NewRunner(factory, DefaultOptions()).Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, fe.stopped)
	assert.Equal(t, []time.Duration{time.Second}, fe.scheduled, "no checks after the stop")
	assert.True(t, fe.closed)
}

func TestSweep(t *testing.T) {
	r := NewRunner(func(cfg scenario.Config) (Engine, error) {
		return newFakeEngine(cfg.Stations), nil
	}, DefaultOptions())

	results, err := r.Sweep(context.Background(), scenario.DefaultParams(), []map[string]any{
		{"stations": 1},
		{"stations": "4", "band": "6GHz"},
		{"stations": 8, "ack_mode": "mu-bar"},
	}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	var built []int
	for _, res := range results {
		built = append(built, res.Config.Stations)
	}
	assert.Equal(t, []int{1, 4, 8}, built)
	assert.Equal(t, scenario.Band6GHz, results[1].Config.Band)
	assert.True(t, results[2].Config.SpectrumForced())
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
}

func TestSweepRejectsBadEntries(t *testing.T) {
	r := NewRunner(factoryOf(newFakeEngine(2)), DefaultOptions())

	_, err := r.Sweep(context.Background(), scenario.DefaultParams(), []map[string]any{{"antennas": 2}}, 1)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = r.Sweep(context.Background(), scenario.DefaultParams(), []map[string]any{{"band": "60GHz"}}, 1)
	assert.ErrorIs(t, err, core.ErrUnsupportedBand)

	_, err = r.Sweep(context.Background(), scenario.DefaultParams(), []map[string]any{{"stations": 255}}, 1)
	assert.ErrorIs(t, err, core.ErrInvalidScenario)
}

func TestRunOnReferenceEngine(t *testing.T) {
	cfg, err := scenario.NewBuilder().Duration(3).Build()
	require.NoError(t, err)
	factory := func(cfg scenario.Config) (Engine, error) {
		return netsim.New(cfg, netsim.Options{Seed: cfg.Seed})
	}

	res, err := NewRunner(factory, DefaultOptions()).Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, res.Summary.Flows, 2)
	assert.Zero(t, res.Resolution.Requests, "seeded table answers every lookup")
	for i, f := range res.Summary.Flows {
		assert.Equal(t, core.FlowID(i+1), f.ID)
		assert.Equal(t, netsim.CoordinatorAddr, f.Key.Dst)
		assert.LessOrEqual(t, f.LostPackets, uint64(1), "a datagram in flight when the sink closes")
		// two seconds of sending at one datagram per 1.6384 ms, averaged over three
		assert.InDelta(t, 3.424, f.ThroughputMbps, 0.01)
		require.True(t, f.HasDelay())
		assert.Less(t, *f.MeanDelay, 0.001)
	}
	assert.InDelta(t, 6.848, res.Summary.Aggregate.ThroughputMbps, 0.02)
}
