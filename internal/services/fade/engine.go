// Package fade animates keyboard-backlight brightness transitions. At most
// one fade job mutates the device at a time; starting a new job first
// cancels and awaits any in-flight one.
package fade

import (
	"log"
	"sync"
	"time"

	"github.com/lucsky/cuid"
)

const (
	// Steps is the number of evenly spaced sub-intervals per fade. Both
	// endpoints are applied.
	Steps = 20

	// CancelWait bounds the wait for a cancelled job to terminate.
	CancelWait = 500 * time.Millisecond

	// DefaultDuration is used when a job carries no duration.
	DefaultDuration = 500 * time.Millisecond
)

// Job describes one brightness transition. Apply is called once per step
// with the interpolated value; OnDone, if set, receives the last applied
// value after the job finishes or is cancelled.
type Job struct {
	From     int
	To       int
	Duration time.Duration
	Apply    func(value int)
	OnDone   func(final int)
}

// Engine owns the single fade slot.
type Engine struct {
	// startMu serializes whole Start calls: cancelling the prior job,
	// awaiting its termination, and installing the new slot must be one
	// atomic sequence, or two racing starters can both launch.
	startMu sync.Mutex

	mu sync.Mutex

	jobID      string
	cancelChan chan struct{}
	doneChan   chan struct{}
}

// NewEngine creates an idle fade engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Active reports whether a fade is currently mutating the device.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doneChan != nil
}

// Start cancels and awaits any in-flight job, then runs the new one.
// A zero-span job (From==To) degrades to one immediate write. Returns the
// job ID.
func (e *Engine) Start(job Job) string {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.CancelAndWait()

	id := cuid.Slug()

	if job.Duration <= 0 {
		job.Duration = DefaultDuration
	}

	if job.From == job.To {
		if job.Apply != nil {
			job.Apply(job.To)
		}
		if job.OnDone != nil {
			job.OnDone(job.To)
		}
		return id
	}

	e.mu.Lock()
	e.jobID = id
	e.cancelChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	cancelChan, doneChan := e.cancelChan, e.doneChan
	e.mu.Unlock()

	go e.run(job, cancelChan, doneChan)
	return id
}

// CancelAndWait requests cancellation of the in-flight job, if any, and
// waits for its termination within CancelWait. Returns false when the wait
// timed out.
func (e *Engine) CancelAndWait() bool {
	e.mu.Lock()
	if e.doneChan == nil {
		e.mu.Unlock()
		return true
	}
	select {
	case <-e.cancelChan:
		// already cancelled, just wait for termination
	default:
		close(e.cancelChan)
	}
	done := e.doneChan
	e.mu.Unlock()

	select {
	case <-done:
		return true
	case <-time.After(CancelWait):
		log.Printf("fade: job did not stop within %v", CancelWait)
		return false
	}
}

// run interpolates linearly across Steps sub-intervals, checking the
// cancellation flag at every suspension point.
func (e *Engine) run(job Job, cancelChan, doneChan chan struct{}) {
	stepDuration := job.Duration / Steps

	final := job.From
	for i := 0; i <= Steps; i++ {
		select {
		case <-cancelChan:
			e.finish(job, final, doneChan)
			return
		default:
		}

		value := job.From + (job.To-job.From)*i/Steps
		if job.Apply != nil {
			job.Apply(value)
		}
		final = value

		if i == Steps {
			break
		}
		select {
		case <-cancelChan:
			e.finish(job, final, doneChan)
			return
		case <-time.After(stepDuration):
		}
	}

	e.finish(job, final, doneChan)
}

// finish releases the fade slot and reports the last applied value.
func (e *Engine) finish(job Job, final int, doneChan chan struct{}) {
	e.mu.Lock()
	if e.doneChan == doneChan {
		e.jobID = ""
		e.cancelChan = nil
		e.doneChan = nil
	}
	e.mu.Unlock()

	close(doneChan)

	if job.OnDone != nil {
		job.OnDone(final)
	}
}
