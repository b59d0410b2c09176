// Package engine implements a single-threaded discrete-event loop.
package engine

import (
	"container/heap"
	"time"
)

// Priority orders events that share a timestamp; lower runs first.
type Priority int

const (
	// PrioritySetup is for topology and resolution seeding callbacks.
	PrioritySetup Priority = iota
	// PriorityApplication starts and stops applications.
	PriorityApplication
	// PriorityTraffic emits packets.
	PriorityTraffic
	// PriorityDelivery completes transmissions.
	PriorityDelivery
)

// Event is a scheduled action.
type Event struct {
	Time     time.Duration
	Priority Priority
	Action   func()

	seq uint64
}

type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].Time != q[j].Time {
		return q[i].Time < q[j].Time
	}
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*Event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Simulation owns simulated time. Actions run one at a time, in (time, priority,
// insertion) order, and may schedule further events.
type Simulation struct {
	now       time.Duration
	events    eventQueue
	seq       uint64
	processed uint64
	stopped   bool
}

func NewSimulation() *Simulation {
	return &Simulation{}
}

// Now is the current simulated time.
func (s *Simulation) Now() time.Duration {
	return s.now
}

// Schedule runs action after delay from now.
func (s *Simulation) Schedule(delay time.Duration, prio Priority, action func()) {
	if delay < 0 {
		delay = 0
	}
	s.ScheduleAt(s.now+delay, prio, action)
}

// ScheduleAt runs action at an absolute time. Times in the past are dropped.
func (s *Simulation) ScheduleAt(at time.Duration, prio Priority, action func()) {
	if at < s.now {
		return
	}
	s.seq++
	heap.Push(&s.events, &Event{Time: at, Priority: prio, Action: action, seq: s.seq})
}

// Run processes events up to and including until. Events left after until stay queued.
func (s *Simulation) Run(until time.Duration) {
	s.stopped = false
	for len(s.events) > 0 && !s.stopped {
		if s.events[0].Time > until {
			break
		}
		e := heap.Pop(&s.events).(*Event)
		s.now = e.Time
		s.processed++
		e.Action()
	}
	if !s.stopped && s.now < until {
		s.now = until
	}
}

// Stop ends Run after the current action returns.
func (s *Simulation) Stop() {
	s.stopped = true
}

// PendingEvents is the number of queued events.
func (s *Simulation) PendingEvents() int {
	return len(s.events)
}

// Processed is the number of actions run so far.
func (s *Simulation) Processed() uint64 {
	return s.processed
}
