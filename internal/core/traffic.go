package core

import (
	"net/netip"
	"time"
)

// TrafficSpec parameterizes one constant-interval traffic generator.
type TrafficSpec struct {
	Source       *Node
	Destination  netip.Addr
	Proto        uint8
	SrcPort      uint16
	DstPort      uint16
	Interval     time.Duration
	PayloadBytes int
	Start        time.Duration
	Stop         time.Duration
	MaxPackets   uint64 // 0 means unbounded
}

// ServerSpec parameterizes one sink application.
type ServerSpec struct {
	Node  *Node
	Port  uint16
	Start time.Duration
	Stop  time.Duration
}

// ResolutionStats counts runtime address resolution traffic seen by the engine.
type ResolutionStats struct {
	Requests uint64
	Replies  uint64
	Learned  uint64
}
