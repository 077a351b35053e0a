// internal/circuit/circuit.go
package circuit

import (
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker trips after a run of consecutive database failures and stops
// admitting work until the recovery timeout elapses, then probes with live
// traffic until enough successes close it again.
//
// OnChange, when set, is called after every state transition with the old
// and new state. It runs outside the breaker's lock; the callback may call
// back into the breaker.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int

	state     State
	failures  int // consecutive failures while CLOSED
	successes int // consecutive successes while HALF_OPEN
	openedAt  time.Time

	OnChange func(from, to State)

	now func() time.Time
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	ProbeSuccesses      int    `json:"probe_successes"`
	RetryAfterSeconds   int    `json:"retry_after_seconds,omitempty"`
}

// New returns a closed breaker. It opens after failureThreshold consecutive
// failures, waits recoveryTimeout before probing, and closes again after
// successThreshold consecutive probe successes.
func New(failureThreshold int, recoveryTimeout time.Duration, successThreshold int) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		successThreshold: successThreshold,
		now:              time.Now,
	}
}

// Permit reports whether a request may proceed. While OPEN it denies with
// the time remaining until recovery; the first Permit after the recovery
// timeout moves the breaker to HALF_OPEN and admits the probe.
func (b *Breaker) Permit() (bool, time.Duration) {
	b.mu.Lock()

	switch b.state {
	case Closed:
		b.mu.Unlock()
		return true, 0
	case HalfOpen:
		b.mu.Unlock()
		return true, 0
	default: // Open
		remaining := b.recoveryTimeout - b.now().Sub(b.openedAt)
		if remaining > 0 {
			b.mu.Unlock()
			return false, remaining
		}
		notify := b.transition(HalfOpen)
		b.mu.Unlock()
		notify()
		return true, 0
	}
}

// RecordSuccess feeds a successful database operation into the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	notify := func() {}

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			notify = b.transition(Closed)
		}
	}
	b.mu.Unlock()
	notify()
}

// RecordFailure feeds a failed database operation into the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	notify := func() {}

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			notify = b.transition(Open)
		}
	case HalfOpen:
		// One failed probe reopens immediately and restarts the wait.
		notify = b.transition(Open)
	}
	b.mu.Unlock()
	notify()
}

// Snapshot returns the current state for status reporting.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		ProbeSuccesses:      b.successes,
	}
	if b.state == Open {
		if remaining := b.recoveryTimeout - b.now().Sub(b.openedAt); remaining > 0 {
			s.RetryAfterSeconds = int(remaining/time.Second) + 1
		}
	}
	return s
}

// transition moves to the target state, resets the counters that belong to
// it, and returns the OnChange notification to run once the lock is
// released. Callers hold the lock.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to

	switch to {
	case Open:
		b.openedAt = b.now()
		b.successes = 0
	case HalfOpen:
		b.successes = 0
	case Closed:
		b.failures = 0
		b.successes = 0
	}

	cb := b.OnChange
	if cb == nil || from == to {
		return func() {}
	}
	return func() { cb(from, to) }
}
