package netsim

import (
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/engine"
)

// Resolution timing follows the usual ARP cache defaults.
const (
	pendingQueueSize = 3
	arpWaitReply     = time.Second
	arpMaxRetries    = 3
)

type pendingResolution struct {
	frames  []*frame
	retries int
}

// host is the network stack of one participant.
type host struct {
	sim   *Sim
	node  *core.Node
	iface *core.Interface
	addr  netip.Addr

	// learned at runtime; the seeded table installed on iface is consulted first
	cache   map[netip.Addr]net.HardwareAddr
	pending map[netip.Addr]*pendingResolution

	listeners []listener
}

func (h *host) lookup(addr netip.Addr) (net.HardwareAddr, bool) {
	if r := h.iface.Resolver(); r != nil {
		if mac, ok := r.Lookup(addr); ok {
			return mac, true
		}
	}
	mac, ok := h.cache[addr]
	return mac, ok
}

// send resolves dst and transmits f, queueing it behind an ARP exchange on a miss.
// Delay is measured from when the application handed f down, resolution included.
func (h *host) send(f *frame, dst netip.Addr) {
	if mac, ok := h.lookup(dst); ok {
		f.setDstMAC(mac)
		h.sim.transmit(f)
		return
	}

	p, ok := h.pending[dst]
	if ok {
		if len(p.frames) < pendingQueueSize {
			p.frames = append(p.frames, f)
		}
		return
	}
	h.pending[dst] = &pendingResolution{frames: []*frame{f}}
	h.request(dst)
}

func (h *host) request(dst netip.Addr) {
	data, err := buildARP(layers.ARPRequest, h.iface.MAC, h.addr, nil, dst)
	if err != nil {
		h.sim.logger.WithError(err).Error("build arp request")
		return
	}
	h.sim.resolution.Requests++
	h.sendARP(data)

	h.sim.sim.Schedule(arpWaitReply, engine.PrioritySetup, func() {
		p, ok := h.pending[dst]
		if !ok {
			return
		}
		if p.retries >= arpMaxRetries {
			h.sim.logger.WithField("addr", dst).Warn("address resolution gave up, dropping queued packets")
			delete(h.pending, dst)
			return
		}
		p.retries++
		h.request(dst)
	})
}

func (h *host) sendARP(data []byte) {
	f := &frame{data: data, kind: kindARP, sentAt: h.sim.Now()}
	h.sim.flows.RecordTx(core.SentinelFlowID, arpLen, h.sim.Now())
	h.sim.transmit(f)
}

func (h *host) learn(addr netip.Addr, mac net.HardwareAddr) {
	if _, ok := h.cache[addr]; !ok {
		h.sim.resolution.Learned++
	}
	h.cache[addr] = mac

	p, ok := h.pending[addr]
	if !ok {
		return
	}
	delete(h.pending, addr)
	for _, f := range p.frames {
		f.setDstMAC(mac)
		h.sim.transmit(f)
	}
}

func (h *host) receiveARP(op uint16, sender netip.Addr, senderMAC net.HardwareAddr, target netip.Addr) {
	switch op {
	case layers.ARPRequest:
		if target != h.addr {
			return
		}
		h.learn(sender, senderMAC)
		data, err := buildARP(layers.ARPReply, h.iface.MAC, h.addr, senderMAC, sender)
		if err != nil {
			h.sim.logger.WithError(err).Error("build arp reply")
			return
		}
		h.sim.resolution.Replies++
		h.sendARP(data)
	case layers.ARPReply:
		if target == h.addr {
			h.learn(sender, senderMAC)
		}
	}
}

func (h *host) receiveData(f *frame, key core.FlowKey, ipLen int) {
	now := h.sim.Now()
	for _, l := range h.listeners {
		if l.port == key.DstPort && now >= l.start && now < l.stop {
			h.sim.flows.RecordRx(f.flow, ipLen, f.sentAt, now)
			if h.sim.opts.Verbose {
				h.sim.logger.Debugf("%s received %d bytes from %s at %.6fs",
					h.node, ipLen, netip.AddrPortFrom(key.Src, key.SrcPort), now.Seconds())
			}
			return
		}
	}
}

// generator is a constant-interval sender on one host.
type generator struct {
	host *host
	spec core.TrafficSpec
	key  core.FlowKey
	sent uint64
}

func (g *generator) tick() {
	s := g.host.sim
	now := s.Now()
	if now >= g.spec.Stop {
		return
	}
	if g.spec.MaxPackets > 0 && g.sent >= g.spec.MaxPackets {
		return
	}

	data, err := buildData(g.host.iface.MAC, g.key, uint32(g.sent), s.nextIPID(), g.spec.PayloadBytes)
	if err != nil {
		s.logger.WithError(err).Error("build data frame")
		return
	}
	id := s.flows.Classify(g.key)
	f := &frame{data: data, kind: kindData, flow: id, sentAt: now}
	s.flows.RecordTx(id, ipLength(g.key.Proto, g.spec.PayloadBytes), now)
	g.sent++
	if s.opts.Verbose {
		s.logger.Debugf("%s sent %d bytes to %s at %.6fs",
			g.host.node, g.spec.PayloadBytes, netip.AddrPortFrom(g.key.Dst, g.key.DstPort), now.Seconds())
	}
	g.host.send(f, g.key.Dst)

	s.sim.Schedule(g.spec.Interval, engine.PriorityTraffic, g.tick)
}
