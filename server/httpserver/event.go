package httpserver

import (
	"time"
)

const forceBreakTimeout = 2 * time.Second

// EventLoop serializes all reply writes onto a single goroutine. Handlers
// and gate checks run on other goroutines and hand the actual socket write
// over as a posted closure, so no two replies ever interleave. Other
// subsystems may piggyback their own events on the loop through Post and
// PostAfter.
type EventLoop struct {
	events chan func()
	quit   chan struct{}
	done   chan struct{}
}

func newEventLoop() *EventLoop {
	return &EventLoop{
		events: make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// run executes posted events until stop is called. A nil event is the clean
// exit request; closing quit is the forced break.
func (el *EventLoop) run() {
	defer close(el.done)
	for {
		select {
		case f := <-el.events:
			if f == nil {
				return
			}
			f()
		case <-el.quit:
			return
		}
	}
}

// Post hands f to the loop goroutine and returns once it was accepted. It
// returns false when the loop already exited, in which case f never runs.
func (el *EventLoop) Post(f func()) bool {
	select {
	case el.events <- f:
		return true
	case <-el.done:
		return false
	}
}

// PostAfter posts f to the loop once the given delay has passed. The
// returned timer can be used to cancel the event while it is still pending.
func (el *EventLoop) PostAfter(f func(), delay time.Duration) *time.Timer {
	return afterFunc(delay, func() {
		el.Post(f)
	})
}

// stop asks the loop to exit after the events posted so far were executed.
// If the loop doesn't get to the exit request within the grace period it is
// broken out of forcefully. stop returns once the loop goroutine finished.
func (el *EventLoop) stop() {
	select {
	case el.events <- nil:
	case <-el.done:
	case <-time.After(forceBreakTimeout):
		log.Warnf("HTTP event loop did not exit within %s, breaking it", forceBreakTimeout)
		close(el.quit)
	}
	<-el.done
}
