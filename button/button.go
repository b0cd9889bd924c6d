// Package button turns a raw on/off button level into classified gestures:
// press, short click, and releases after progressively longer holds.
package button

import (
	"sync"
	"time"

	"ghost-looper/timebase"
)

// Event is a classified button gesture
type Event int

const (
	None Event = iota
	Down
	ShortPressRelease
	LongPressBegin
	LongPressRelease    // released after LongPress
	LongHoldRelease     // released after LongHold
	VeryLongHoldRelease // released after VeryLongHold
)

var eventNames = [...]string{
	None:                "none",
	Down:                "down",
	ShortPressRelease:   "short-press-release",
	LongPressBegin:      "long-press-begin",
	LongPressRelease:    "long-press-release",
	LongHoldRelease:     "long-hold-release",
	VeryLongHoldRelease: "very-long-hold-release",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}

// Source is polled once per main loop iteration
type Source interface {
	Poll() Event
}

const (
	DebounceCount = 10 // consecutive polls needed for a stable level
	LongPress     = 500 * time.Millisecond
	LongHold      = 2 * time.Second
	VeryLongHold  = 5 * time.Second

	injectQueueSize = 8
)

type fsmState int

const (
	idle fsmState = iota
	pressed
	longActive
)

// Classifier debounces a raw level and classifies presses. The raw level
// is set from any goroutine (MIDI input, keyboard); Poll runs the state
// machine from the main loop.
type Classifier struct {
	clock timebase.Clock

	mu  sync.Mutex
	raw bool

	// main loop only
	counter    int
	stable     bool
	state      fsmState
	pressStart time.Time

	injected chan Event
}

// NewClassifier creates an idle classifier
func NewClassifier(clock timebase.Clock) *Classifier {
	return &Classifier{
		clock:    clock,
		injected: make(chan Event, injectQueueSize),
	}
}

// SetLevel records the raw button level (true = held)
func (c *Classifier) SetLevel(down bool) {
	c.mu.Lock()
	c.raw = down
	c.mu.Unlock()
}

// Inject queues an already classified event, for inputs that have no
// release edge (terminal keys). Drops when the queue is full.
func (c *Classifier) Inject(ev Event) bool {
	select {
	case c.injected <- ev:
		return true
	default:
		return false
	}
}

// Poll returns the next event. Injected events take priority over the
// sampled level.
func (c *Classifier) Poll() Event {
	select {
	case ev := <-c.injected:
		return ev
	default:
	}

	c.mu.Lock()
	raw := c.raw
	c.mu.Unlock()

	return c.step(c.debounce(raw), c.clock.Now())
}

func (c *Classifier) debounce(raw bool) bool {
	if raw {
		if c.counter < DebounceCount {
			c.counter++
		}
	} else if c.counter > 0 {
		c.counter--
	}
	switch c.counter {
	case DebounceCount:
		c.stable = true
	case 0:
		c.stable = false
	}
	return c.stable
}

func (c *Classifier) step(down bool, now time.Time) Event {
	switch c.state {
	case idle:
		if down {
			c.state = pressed
			c.pressStart = now
			return Down
		}
	case pressed:
		if !down {
			c.state = idle
			return ShortPressRelease
		}
		if now.Sub(c.pressStart) > LongPress {
			c.state = longActive
			return LongPressBegin
		}
	case longActive:
		if !down {
			c.state = idle
			return Classify(now.Sub(c.pressStart))
		}
	}
	return None
}

// Classify maps a hold duration (already past LongPress) to its release event
func Classify(held time.Duration) Event {
	switch {
	case held >= VeryLongHold:
		return VeryLongHoldRelease
	case held >= LongHold:
		return LongHoldRelease
	case held > LongPress:
		return LongPressRelease
	default:
		return ShortPressRelease
	}
}
