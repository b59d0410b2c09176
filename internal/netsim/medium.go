package netsim

import (
	"time"

	"firestige.xyz/wifilab/internal/engine"
)

// medium is the shared channel: one transmission at a time, served first come first
// served. A frame occupies the channel for its bits at the PHY rate plus a fixed
// per-frame overhead.
type medium struct {
	sim      *engine.Simulation
	rateBps  float64
	overhead time.Duration
	limit    int

	queue   []*frame
	busy    bool
	drops   uint64
	deliver func(*frame)
}

func newMedium(sim *engine.Simulation, rateBps float64, overhead time.Duration, limit int, deliver func(*frame)) *medium {
	return &medium{
		sim:      sim,
		rateBps:  rateBps,
		overhead: overhead,
		limit:    limit,
		deliver:  deliver,
	}
}

// airtime is how long f holds the channel.
func (m *medium) airtime(f *frame) time.Duration {
	bits := float64(len(f.data) * 8)
	return time.Duration(bits/m.rateBps*float64(time.Second)) + m.overhead
}

// send transmits f now or queues it. It returns false when the queue is full and
// the frame was dropped.
func (m *medium) send(f *frame) bool {
	if !m.busy {
		m.start(f)
		return true
	}
	if len(m.queue) >= m.limit {
		m.drops++
		return false
	}
	m.queue = append(m.queue, f)
	return true
}

func (m *medium) start(f *frame) {
	m.busy = true
	m.sim.Schedule(m.airtime(f), engine.PriorityDelivery, func() {
		m.deliver(f)
		m.next()
	})
}

func (m *medium) next() {
	if len(m.queue) == 0 {
		m.busy = false
		return
	}
	f := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.start(f)
}

// backlog is the number of frames waiting behind the one on air.
func (m *medium) backlog() int {
	return len(m.queue)
}
