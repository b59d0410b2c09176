// Package netsim is the reference simulation backend: a single shared channel modelled
// as a FIFO queue, carrying real Ethernet/IPv4 frames between one coordinator and its
// stations.
package netsim

import (
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"os"
	"time"

	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/engine"
	"firestige.xyz/wifilab/internal/log"
	"firestige.xyz/wifilab/internal/scenario"
)

var (
	// Network is the subnet every participant lives on.
	Network = netip.MustParsePrefix("10.1.0.0/16")
	// CoordinatorAddr is the coordinator's address.
	CoordinatorAddr = netip.MustParseAddr("10.1.0.1")

	loopbackAddr = netip.MustParseAddr("127.0.0.1")
)

// StationAddr is the address of station i, 1-based: 10.1.1.<i>.
func StationAddr(i int) netip.Addr {
	return netip.AddrFrom4([4]byte{10, 1, 1, byte(i)})
}

// DefaultFrameOverhead is the fixed channel time every frame costs on top of its bits.
const DefaultFrameOverhead = 100 * time.Microsecond

// Options tunes the backend.
type Options struct {
	QueueLimit    int
	FrameOverhead time.Duration // 0 selects DefaultFrameOverhead, negative means none
	Verbose       bool
	Trace         TraceOptions
	Seed          int64
	Logger        log.Logger
}

// TraceOptions enables pcap output of every transmitted frame.
type TraceOptions struct {
	Enabled bool
	Prefix  string // file is <Prefix>.pcap
	Filter  string // all | arp | data
}

func (o *Options) applyDefaults() {
	if o.QueueLimit <= 0 {
		o.QueueLimit = 1000
	}
	switch {
	case o.FrameOverhead == 0:
		o.FrameOverhead = DefaultFrameOverhead
	case o.FrameOverhead < 0:
		o.FrameOverhead = 0
	}
	if o.Logger == nil {
		o.Logger = log.GetLogger()
	}
}

type listener struct {
	port  uint16
	start time.Duration
	stop  time.Duration
}

// Sim is one simulated network. It is driven by a single event loop and must not be
// used from more than one goroutine at a time.
type Sim struct {
	sim     *engine.Simulation
	opts    Options
	logger  log.Logger
	rng     *rand.Rand
	medium  *medium
	flows   *FlowRegistry
	decoder *decoder
	tracer  *tracer

	nodes  []*core.Node
	hosts  []*host
	byMAC  map[string]*host
	byAddr map[netip.Addr]*host

	resolution core.ResolutionStats
	ipID       uint16
}

// New builds the topology for cfg: cfg.Stations stations and one coordinator.
func New(cfg scenario.Config, opts Options) (*Sim, error) {
	opts.applyDefaults()
	s := &Sim{
		sim:     engine.NewSimulation(),
		opts:    opts,
		logger:  opts.Logger.WithField("engine", "netsim"),
		rng:     rand.New(rand.NewSource(opts.Seed)),
		flows:   NewFlowRegistry(),
		decoder: newDecoder(),
		byMAC:   make(map[string]*host),
		byAddr:  make(map[netip.Addr]*host),
	}
	s.medium = newMedium(s.sim, cfg.DataRateBps(), opts.FrameOverhead, opts.QueueLimit, s.deliver)

	macs := newMACAllocator()
	for i := 1; i <= cfg.Stations; i++ {
		s.addHost(newNode(i, core.RoleStation, StationAddr(i), macs.next()))
	}
	s.addHost(newNode(0, core.RoleCoordinator, CoordinatorAddr, macs.next()))

	if opts.Trace.Enabled {
		path := opts.Trace.Prefix + ".pcap"
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create trace file: %w", err)
		}
		t, err := newTracer(f, opts.Trace.Filter)
		if err != nil {
			f.Close()
			return nil, err
		}
		s.tracer = t
		s.logger.WithField("path", path).Info("pcap tracing enabled")
	}

	s.logger.WithFields(map[string]interface{}{
		"stations":  cfg.Stations,
		"channel":   cfg.Channel().String(),
		"data_mode": cfg.DataMode(),
		"rate_mbps": cfg.DataRateBps() / 1e6,
	}).Debug("topology built")
	return s, nil
}

func newNode(id int, role core.Role, addr netip.Addr, mac net.HardwareAddr) *core.Node {
	return &core.Node{
		ID:   id,
		Role: role,
		Interfaces: []*core.Interface{
			{Index: 0, Name: "lo", Addrs: []netip.Addr{loopbackAddr}},
			{Index: 1, Name: "wlan0", MAC: mac, Addrs: []netip.Addr{addr}},
		},
	}
}

func (s *Sim) addHost(n *core.Node) {
	iface := n.PrimaryInterface()
	addr, _ := n.PrimaryAddr()
	h := &host{
		sim:     s,
		node:    n,
		iface:   iface,
		addr:    addr,
		cache:   make(map[netip.Addr]net.HardwareAddr),
		pending: make(map[netip.Addr]*pendingResolution),
	}
	s.nodes = append(s.nodes, n)
	s.hosts = append(s.hosts, h)
	s.byMAC[string(iface.MAC)] = h
	s.byAddr[addr] = h
}

// Participants returns the stations in id order followed by the coordinator.
func (s *Sim) Participants() []*core.Node {
	return s.nodes
}

// Schedule defers action to at, ordered by prio among same-time events.
func (s *Sim) Schedule(at time.Duration, prio engine.Priority, action func()) {
	s.sim.ScheduleAt(at, prio, action)
}

// InstallServer opens a sink on spec.Node that counts datagrams arriving on spec.Port
// between Start and Stop.
func (s *Sim) InstallServer(spec core.ServerSpec) error {
	addr, ok := spec.Node.PrimaryAddr()
	if !ok {
		return fmt.Errorf("server node %s has no address", spec.Node)
	}
	h, ok := s.byAddr[addr]
	if !ok {
		return fmt.Errorf("server node %s is not part of this network", spec.Node)
	}
	h.listeners = append(h.listeners, listener{port: spec.Port, start: spec.Start, stop: spec.Stop})
	return nil
}

// InstallGenerator starts a constant-interval sender. The first packet goes out at
// Start plus a seeded jitter below one interval.
func (s *Sim) InstallGenerator(spec core.TrafficSpec) error {
	if spec.Interval <= 0 {
		return fmt.Errorf("%w: generator interval must be positive", core.ErrInvalidScenario)
	}
	if spec.PayloadBytes <= 0 {
		return fmt.Errorf("%w: generator payload must be positive", core.ErrInvalidScenario)
	}
	if n := ipLength(spec.Proto, spec.PayloadBytes); n > maxIPLength {
		return fmt.Errorf("%w: %d byte datagram exceeds the IPv4 total length limit", core.ErrInvalidScenario, n)
	}
	addr, ok := spec.Source.PrimaryAddr()
	if !ok {
		return fmt.Errorf("generator node %s has no address", spec.Source)
	}
	h, ok := s.byAddr[addr]
	if !ok {
		return fmt.Errorf("generator node %s is not part of this network", spec.Source)
	}

	g := &generator{
		host: h,
		spec: spec,
		key: core.FlowKey{
			Src:     addr,
			Dst:     spec.Destination,
			Proto:   spec.Proto,
			SrcPort: spec.SrcPort,
			DstPort: spec.DstPort,
		},
	}
	jitter := time.Duration(s.rng.Int63n(int64(spec.Interval)))
	s.sim.ScheduleAt(spec.Start+jitter, engine.PriorityTraffic, g.tick)
	return nil
}

// Run processes events up to until.
func (s *Sim) Run(until time.Duration) {
	s.sim.Run(until)
	s.logger.WithFields(map[string]interface{}{
		"now":       s.sim.Now(),
		"processed": s.sim.Processed(),
		"pending":   s.sim.PendingEvents(),
		"flows":     s.flows.Count(),
		"drops":     s.QueueDrops(),
		"backlog":   s.medium.backlog(),
	}).Debug("simulation stopped")
}

// Stop ends Run after the event being processed.
func (s *Sim) Stop() {
	s.sim.Stop()
}

// Now is the current simulated time.
func (s *Sim) Now() time.Duration {
	return s.sim.Now()
}

// FlowStats snapshots the per-flow counters.
func (s *Sim) FlowStats() map[core.FlowID]core.FlowCounters {
	return s.flows.Snapshot()
}

// FindFlow maps a flow id back to its 5-tuple.
func (s *Sim) FindFlow(id core.FlowID) (core.FlowKey, bool) {
	return s.flows.FindFlow(id)
}

// ResolutionStats counts the ARP traffic the run needed.
func (s *Sim) ResolutionStats() core.ResolutionStats {
	return s.resolution
}

// Processed is the number of events run.
func (s *Sim) Processed() uint64 {
	return s.sim.Processed()
}

// QueueDrops is the number of frames the medium discarded.
func (s *Sim) QueueDrops() uint64 {
	return s.medium.drops
}

// Close flushes the trace file, if any.
func (s *Sim) Close() error {
	if s.tracer == nil {
		return nil
	}
	s.logger.WithField("frames", s.tracer.frames).Debug("pcap trace closed")
	err := s.tracer.Close()
	s.tracer = nil
	return err
}

// transmit hands f to the medium and the tracer.
func (s *Sim) transmit(f *frame) {
	if s.tracer != nil {
		if err := s.tracer.record(f.data, s.sim.Now()); err != nil {
			s.logger.WithError(err).Warn("pcap write failed, tracing disabled")
			_ = s.tracer.Close()
			s.tracer = nil
		}
	}
	if !s.medium.send(f) && s.opts.Verbose {
		s.logger.Debugf("queue full at %s, frame dropped", s.sim.Now())
	}
}

// deliver runs when f leaves the channel.
func (s *Sim) deliver(f *frame) {
	kind, key, ipLen, err := s.decoder.decode(f.data)
	if err != nil {
		s.logger.WithError(err).Warn("undecodable frame on the medium")
		return
	}
	dst := f.data[0:6]
	if kind == kindARP {
		s.flows.RecordRx(core.SentinelFlowID, arpLen, f.sentAt, s.sim.Now())
		sender, target := s.decoder.arpAddrs()
		srcMAC := append(net.HardwareAddr(nil), s.decoder.arp.SourceHwAddress...)
		op := s.decoder.arp.Operation
		if string(dst) == string(broadcastMAC) {
			for _, h := range s.hosts {
				if string(h.iface.MAC) != string(srcMAC) {
					h.receiveARP(op, sender, srcMAC, target)
				}
			}
			return
		}
		if h, ok := s.byMAC[string(dst)]; ok {
			h.receiveARP(op, sender, srcMAC, target)
		}
		return
	}
	if kind != kindData {
		return
	}
	h, ok := s.byMAC[string(dst)]
	if !ok || h.addr != key.Dst {
		return
	}
	h.receiveData(f, key, ipLen)
}

func (s *Sim) nextIPID() uint16 {
	s.ipID++
	return s.ipID
}

type macAllocator struct {
	last uint64
}

func newMACAllocator() *macAllocator {
	return &macAllocator{}
}

// next returns sequential MAC-48 addresses starting at 00:00:00:00:00:01.
func (a *macAllocator) next() net.HardwareAddr {
	a.last++
	mac := make(net.HardwareAddr, 6)
	for i := 5; i >= 0; i-- {
		mac[i] = byte(a.last >> (8 * (5 - i)))
	}
	return mac
}
