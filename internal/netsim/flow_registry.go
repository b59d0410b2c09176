package netsim

import (
	"sync"
	"time"

	"firestige.xyz/wifilab/internal/core"
)

// FlowRegistry assigns flow ids and keeps per-flow counters. Ids start at 1 in
// first-transmission order; resolution frames are accounted under the sentinel id.
// It is safe for concurrent readers while the event loop writes.
type FlowRegistry struct {
	mu       sync.RWMutex
	ids      map[core.FlowKey]core.FlowID
	keys     []core.FlowKey // keys[id-1]
	counters map[core.FlowID]*core.FlowCounters
}

// NewFlowRegistry creates an empty registry.
func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{
		ids:      make(map[core.FlowKey]core.FlowID),
		counters: make(map[core.FlowID]*core.FlowCounters),
	}
}

// Classify returns the id for key, assigning the next one on first sight.
func (r *FlowRegistry) Classify(key core.FlowKey) core.FlowID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[key]; ok {
		return id
	}
	r.keys = append(r.keys, key)
	id := core.FlowID(len(r.keys))
	r.ids[key] = id
	return id
}

// RecordTx counts a transmission of ipBytes on flow id at now.
func (r *FlowRegistry) RecordTx(id core.FlowID, ipBytes int, now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.get(id)
	if c.TxPackets == 0 {
		c.FirstTx = now
	}
	c.TxPackets++
	c.TxBytes += uint64(ipBytes)
}

// RecordRx counts a reception of ipBytes on flow id, sent at sentAt.
func (r *FlowRegistry) RecordRx(id core.FlowID, ipBytes int, sentAt, now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.get(id)
	c.RxPackets++
	c.RxBytes += uint64(ipBytes)
	c.DelaySum += now - sentAt
	c.LastRx = now
}

func (r *FlowRegistry) get(id core.FlowID) *core.FlowCounters {
	c, ok := r.counters[id]
	if !ok {
		c = &core.FlowCounters{}
		r.counters[id] = c
	}
	return c
}

// FindFlow maps an id back to its 5-tuple. The sentinel id has no key.
func (r *FlowRegistry) FindFlow(id core.FlowID) (core.FlowKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == core.SentinelFlowID || int(id) > len(r.keys) {
		return core.FlowKey{}, false
	}
	return r.keys[id-1], true
}

// Snapshot copies the counters. Packets sent but never received count as lost.
func (r *FlowRegistry) Snapshot() map[core.FlowID]core.FlowCounters {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[core.FlowID]core.FlowCounters, len(r.counters))
	for id, c := range r.counters {
		cp := *c
		if cp.TxPackets > cp.RxPackets {
			cp.LostPackets = cp.TxPackets - cp.RxPackets
		}
		out[id] = cp
	}
	return out
}

// Count returns the number of classified flows, excluding the sentinel.
func (r *FlowRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}
