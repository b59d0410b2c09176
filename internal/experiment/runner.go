// Package experiment drives one or more simulation runs end to end.
package experiment

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/wifilab/internal/arp"
	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/engine"
	"firestige.xyz/wifilab/internal/loadmodel"
	"firestige.xyz/wifilab/internal/log"
	"firestige.xyz/wifilab/internal/metrics"
	"firestige.xyz/wifilab/internal/scenario"
	"firestige.xyz/wifilab/internal/telemetry"
)

// FirstClientPort is the source port of station 1; station i uses FirstClientPort+i-1.
const FirstClientPort = 49153

// Timeline places the applications in simulated time.
type Timeline struct {
	ServerStart time.Duration
	ClientStart time.Duration
	// StopPadding is added to the run duration for the application stop and the
	// simulation horizon.
	StopPadding time.Duration
}

// DefaultTimeline starts the sink at 1 s, the senders at 2 s and stops everything one
// second after the run duration.
func DefaultTimeline() Timeline {
	return Timeline{ServerStart: time.Second, ClientStart: 2 * time.Second, StopPadding: time.Second}
}

// Options tunes a Runner.
type Options struct {
	Timeline       Timeline
	MaxPackets     uint64 // per sender, 0 = unbounded
	Port           uint16
	SeedResolution bool
	Progress       time.Duration // simulated time between progress logs, 0 = off
	Logger         log.Logger
	Metrics        *metrics.Recorder
}

// DefaultOptions returns the options of the reference experiment.
func DefaultOptions() Options {
	return Options{
		Timeline:       DefaultTimeline(),
		MaxPackets:     10000,
		Port:           9,
		SeedResolution: true,
	}
}

// Result is everything one run produced.
type Result struct {
	RunID        string
	Config       scenario.Config
	Load         loadmodel.Model
	Participants []*core.Node
	Bindings     int // seeded resolution entries, 0 when seeding is off
	Summary      telemetry.Summary
	Resolution   core.ResolutionStats
	Events       uint64
	WallTime     time.Duration
}

// Node returns the participant owning addr.
func (r *Result) Node(addr netip.Addr) (*core.Node, bool) {
	for _, n := range r.Participants {
		for _, iface := range n.Interfaces {
			for _, a := range iface.Addrs {
				if a == addr {
					return n, true
				}
			}
		}
	}
	return nil, false
}

// Runner executes scenarios on engines built by its factory.
type Runner struct {
	factory EngineFactory
	opts    Options
	logger  log.Logger
}

func NewRunner(factory EngineFactory, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Port == 0 {
		opts.Port = 9
	}
	return &Runner{factory: factory, opts: opts, logger: opts.Logger}
}

// Run executes one scenario. Resolution is seeded after the topology is built and
// before any generator exists; on a seeding conflict the run aborts with no traffic
// installed. Telemetry is read once, after the engine returns.
func (r *Runner) Run(ctx context.Context, cfg scenario.Config) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := time.Now()
	res := &Result{RunID: uuid.New().String(), Config: cfg, Load: cfg.Load()}
	logger := r.logger.WithField("run", res.RunID)

	if cfg.SpectrumForced() {
		logger.WithField("ack_mode", cfg.AckMode.String()).
			Warn("multi-user acknowledgment requires the spectrum channel model, overriding the requested backend")
	}

	eng, err := r.factory(cfg)
	if err != nil {
		r.opts.Metrics.ObserveRun(metrics.OutcomeError, time.Since(started))
		return nil, fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.WithError(err).Warn("close engine")
		}
	}()
	res.Participants = eng.Participants()

	if r.opts.SeedResolution {
		table, err := arp.Seed(res.Participants)
		if err != nil {
			r.opts.Metrics.ObserveRun(metrics.OutcomeConflict, time.Since(started))
			return nil, err
		}
		res.Bindings = table.Len()
		logger.WithField("bindings", table.Len()).Debug("address resolution seeded")
	}

	if err := r.install(eng, cfg, res.Participants); err != nil {
		r.opts.Metrics.ObserveRun(metrics.OutcomeError, time.Since(started))
		return nil, err
	}

	stop := seconds(cfg.Duration) + r.opts.Timeline.StopPadding
	if r.opts.MaxPackets > 0 {
		window := (stop - r.opts.Timeline.ClientStart).Seconds()
		if want := res.Load.PacketsInWindow(window); want > r.opts.MaxPackets {
			logger.WithFields(map[string]interface{}{
				"max_packets": r.opts.MaxPackets,
				"window":      want,
			}).Warn("packet cap stops senders before the end of the run, offered load will not be reached")
		}
	}
	logger.WithFields(map[string]interface{}{
		"stations":  cfg.Stations,
		"interval":  res.Load.IntervalDuration(),
		"pps":       res.Load.PacketsPerSecond(),
		"band":      cfg.Band.String(),
		"data_mode": cfg.DataMode(),
		"ack_mode":  cfg.AckMode.String(),
		"direction": cfg.Direction.String(),
		"stop":      stop,
	}).Info("simulation starting")

	r.scheduleWatch(ctx, eng, logger, stop)
	eng.Run(stop)
	if err := ctx.Err(); err != nil {
		r.opts.Metrics.ObserveRun(metrics.OutcomeError, time.Since(started))
		return nil, err
	}

	summary, err := telemetry.Summarize(eng.FlowStats(), eng, cfg.Duration)
	if err != nil {
		r.opts.Metrics.ObserveRun(metrics.OutcomeError, time.Since(started))
		return nil, err
	}
	res.Summary = summary
	res.Resolution = eng.ResolutionStats()
	res.Events = eng.Processed()
	res.WallTime = time.Since(started)

	r.record(res)
	logger.WithFields(map[string]interface{}{
		"flows":           len(summary.Flows),
		"throughput_mbps": summary.Aggregate.ThroughputMbps,
		"events":          res.Events,
		"wall":            res.WallTime,
	}).Info("simulation finished")
	return res, nil
}

// install places the sink and one sender per station. Uplink sends from every station
// to the coordinator; downlink sends from the coordinator to every station.
func (r *Runner) install(eng Engine, cfg scenario.Config, nodes []*core.Node) error {
	var coordinator *core.Node
	var stations []*core.Node
	for _, n := range nodes {
		if n.Role == core.RoleCoordinator {
			coordinator = n
		} else {
			stations = append(stations, n)
		}
	}
	if coordinator == nil {
		return fmt.Errorf("%w: topology has no coordinator", core.ErrInvalidScenario)
	}
	apAddr, ok := coordinator.PrimaryAddr()
	if !ok {
		return fmt.Errorf("%w: coordinator has no address", core.ErrInvalidScenario)
	}

	tl := r.opts.Timeline
	stop := seconds(cfg.Duration) + tl.StopPadding
	interval := cfg.Load().IntervalDuration()

	sinks := []*core.Node{coordinator}
	if cfg.Direction == scenario.Downlink {
		sinks = stations
	}
	for _, n := range sinks {
		if err := eng.InstallServer(core.ServerSpec{Node: n, Port: r.opts.Port, Start: tl.ServerStart, Stop: stop}); err != nil {
			return err
		}
	}

	for i, sta := range stations {
		staAddr, ok := sta.PrimaryAddr()
		if !ok {
			return fmt.Errorf("%w: %s has no address", core.ErrInvalidScenario, sta)
		}
		spec := core.TrafficSpec{
			Source:       sta,
			Destination:  apAddr,
			Proto:        cfg.Transport.Proto(),
			SrcPort:      uint16(FirstClientPort + i),
			DstPort:      r.opts.Port,
			Interval:     interval,
			PayloadBytes: cfg.PayloadBytes,
			Start:        tl.ClientStart,
			Stop:         stop,
			MaxPackets:   r.opts.MaxPackets,
		}
		if cfg.Direction == scenario.Downlink {
			spec.Source, spec.Destination = coordinator, staAddr
		}
		if err := eng.InstallGenerator(spec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) record(res *Result) {
	m := r.opts.Metrics
	if m == nil {
		return
	}
	m.ObserveRun(metrics.OutcomeOK, res.WallTime)
	m.ObserveResolution(res.Bindings, res.Resolution.Requests)
	m.ObserveEvents(res.Events)
	for _, f := range res.Summary.Flows {
		m.ObserveFlow(res.RunID, strconv.FormatUint(uint64(f.ID), 10), f.ThroughputMbps, f.LossRatio)
	}
	m.ObserveAggregate(res.RunID, res.Summary.Aggregate.ThroughputMbps)
}

// Sweep runs base with each override map applied, at most parallel at a time. Every
// run gets its own engine. Results keep the order of overrides. The first failure
// cancels the runs not yet started.
func (r *Runner) Sweep(ctx context.Context, base scenario.Params, overrides []map[string]any, parallel int) ([]*Result, error) {
	if len(overrides) == 0 {
		overrides = []map[string]any{{}}
	}
	configs := make([]scenario.Config, len(overrides))
	for i, o := range overrides {
		p, err := scenario.ApplyOverrides(base, o)
		if err != nil {
			return nil, fmt.Errorf("sweep entry %d: %w", i, err)
		}
		cfg, err := p.Build()
		if err != nil {
			return nil, fmt.Errorf("sweep entry %d: %w", i, err)
		}
		configs[i] = cfg
	}

	if parallel <= 0 {
		parallel = 1
	}
	results := make([]*Result, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			res, err := r.Run(gctx, cfg)
			if err != nil {
				return fmt.Errorf("sweep entry %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scheduleWatch checks ctx every progress period (one simulated second when progress
// logging is off) and stops the engine once it is cancelled.
func (r *Runner) scheduleWatch(ctx context.Context, eng Engine, logger log.Logger, stop time.Duration) {
	period := r.opts.Progress
	if period <= 0 {
		period = time.Second
	}
	var tick func(at time.Duration)
	tick = func(at time.Duration) {
		eng.Schedule(at, engine.PriorityApplication, func() {
			if ctx.Err() != nil {
				logger.Warnf("run cancelled at %s", at)
				eng.Stop()
				return
			}
			if r.opts.Progress > 0 {
				logger.Infof("simulated %s of %s", at, stop)
			}
			if next := at + period; next <= stop {
				tick(next)
			}
		})
	}
	tick(period)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
