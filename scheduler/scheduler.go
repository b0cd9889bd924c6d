// Package scheduler delivers timed note events from timer callbacks to the
// main loop. Events are armed on one-shot timers; when a timer fires the event
// moves into a bounded ready queue which the main loop drains and sends.
package scheduler

import (
	"sync"
	"time"

	"ghost-looper/debug"
	"ghost-looper/timebase"
)

// DefaultCapacity is the number of events that may be outstanding
// (armed or ready) at once.
const DefaultCapacity = 16

// Sender performs the actual note output. Only called from DispatchPending.
type Sender interface {
	SendNote(channel, note, velocity uint8)
}

// Event is a note to be sent at Deadline
type Event struct {
	Deadline time.Time
	Channel  uint8
	Note     uint8
	Velocity uint8
}

// queued is a ready event tagged with the reset generation it was armed in
type queued struct {
	ev         Event
	generation uint64
}

// Scheduler is a bounded two-stage note queue
type Scheduler struct {
	clock    timebase.Clock
	out      Sender
	capacity int

	mu          sync.Mutex
	outstanding int // armed + ready, never above capacity
	armed       map[uint64]timebase.Timer
	nextID      uint64
	closed      bool
	generation  uint64 // bumped by Reset

	// Timer callbacks try-send here under mu; sized to capacity so a send
	// can only fail if the slot accounting is broken.
	ready chan queued

	dropped uint64
}

// New creates a scheduler. capacity <= 0 means DefaultCapacity.
func New(clock timebase.Clock, out Sender, capacity int) *Scheduler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Scheduler{
		clock:    clock,
		out:      out,
		capacity: capacity,
		armed:    make(map[uint64]timebase.Timer, capacity),
		ready:    make(chan queued, capacity),
	}
}

// Schedule arms a one-shot event. Returns false (and drops the event) when
// capacity is exhausted. Deadlines in the past fire immediately.
func (s *Scheduler) Schedule(deadline time.Time, channel, note, velocity uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.outstanding >= s.capacity {
		s.dropped++
		debug.Debugf("sched", "drop ch=%d note=%d vel=%d (outstanding=%d)", channel, note, velocity, s.outstanding)
		return false
	}

	ev := Event{Deadline: deadline, Channel: channel, Note: note, Velocity: velocity}
	id := s.nextID
	s.nextID++
	s.outstanding++

	delay := deadline.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.armed[id] = s.clock.AfterFunc(delay, func() { s.fire(id, ev) })
	return true
}

// fire runs in the timer context: move the event from armed to ready.
// The hand-over happens under mu so Reset never sees it half done.
func (s *Scheduler) fire(id uint64, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.armed[id]; !ok {
		// cancelled by Reset/Close after the timer had already fired
		return
	}
	delete(s.armed, id)

	select {
	case s.ready <- queued{ev: ev, generation: s.generation}:
	default:
		s.outstanding--
		debug.Log("sched", "ready queue full, dropped note=%d", ev.Note)
	}
}

// release frees the slot of a dispatched event. Events taken before a
// Reset already had their slot freed by it.
func (s *Scheduler) release(generation uint64) {
	s.mu.Lock()
	if generation == s.generation && s.outstanding > 0 {
		s.outstanding--
	}
	s.mu.Unlock()
}

// DispatchPending sends every ready event and returns how many were sent.
// Main loop only; never blocks.
func (s *Scheduler) DispatchPending() int {
	n := 0
	for {
		select {
		case q := <-s.ready:
			s.release(q.generation)
			s.out.SendNote(q.ev.Channel, q.ev.Note, q.ev.Velocity)
			n++
		default:
			return n
		}
	}
}

// Pending returns the number of outstanding events
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// Capacity returns the slot table size
func (s *Scheduler) Capacity() int {
	return s.capacity
}

// Dropped returns how many events were rejected since creation
func (s *Scheduler) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Reset cancels every armed timer and discards ready events
func (s *Scheduler) Reset() {
	s.mu.Lock()
	for id, t := range s.armed {
		t.Stop()
		delete(s.armed, id)
	}
	for {
		select {
		case <-s.ready:
			continue
		default:
		}
		break
	}
	s.outstanding = 0
	s.generation++
	s.mu.Unlock()
}

// Close resets the scheduler and rejects all further events
func (s *Scheduler) Close() {
	s.Reset()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
