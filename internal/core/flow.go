package core

import (
	"fmt"
	"net/netip"
	"time"
)

// FlowID is an opaque handle assigned by the flow monitor.
type FlowID uint32

// SentinelFlowID marks engine bookkeeping, never a data flow.
const SentinelFlowID FlowID = 0

// IANA protocol numbers used by the traffic generators.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// FlowKey uniquely identifies a unidirectional flow using 5-tuple.
type FlowKey struct {
	Src     netip.Addr
	Dst     netip.Addr
	Proto   uint8
	SrcPort uint16
	DstPort uint16
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s -> %s proto=%d",
		netip.AddrPortFrom(k.Src, k.SrcPort), netip.AddrPortFrom(k.Dst, k.DstPort), k.Proto)
}

// FlowCounters are the raw per-flow counters kept by the engine during a run.
// TxBytes and RxBytes count IP-layer bytes (header included).
type FlowCounters struct {
	TxPackets uint64
	TxBytes   uint64
	RxPackets uint64
	RxBytes   uint64
	DelaySum  time.Duration

	// Filled by the engine at end of run.
	LostPackets uint64
	FirstTx     time.Duration
	LastRx      time.Duration
}
