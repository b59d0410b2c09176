package experiment

import (
	"time"

	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/engine"
	"firestige.xyz/wifilab/internal/scenario"
)

// Engine is the simulation backend a run drives. Implementations own their topology
// and are used by one run at a time.
type Engine interface {
	// Participants returns every node; address assignment is complete.
	Participants() []*core.Node
	// Schedule defers action to simulated time at.
	Schedule(at time.Duration, prio engine.Priority, action func())
	InstallServer(spec core.ServerSpec) error
	InstallGenerator(spec core.TrafficSpec) error
	Run(until time.Duration)
	// Stop ends Run after the current event. It is called from scheduled actions only.
	Stop()
	FlowStats() map[core.FlowID]core.FlowCounters
	FindFlow(id core.FlowID) (core.FlowKey, bool)
	ResolutionStats() core.ResolutionStats
	Processed() uint64
	Close() error
}

// EngineFactory builds a fresh engine for one validated scenario.
type EngineFactory func(cfg scenario.Config) (Engine, error)
