package executor

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Breaker is the failure/recovery state machine of one endpoint.
// All transitions happen under mu.
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	recovery    time.Duration
	now         func() time.Time
	state       State
	failures    int
	lastFailure time.Time
	trial       bool   // a HALF_OPEN trial is in flight
	generation  uint64 // bumped on every trial grant
}

func NewBreaker(threshold int, recovery time.Duration, now func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{threshold: threshold, recovery: recovery, now: now}
}

// Admission is the outcome of one admission check. A caller holding the
// HALF_OPEN trial carries its generation so only it can hand the trial back.
type Admission struct {
	Allowed bool
	trial   uint64
}

// Trial reports whether this admission is the HALF_OPEN trial.
func (a Admission) Trial() bool { return a.trial != 0 }

// Admit decides whether a call may go to the network. Once recovery has
// elapsed the first caller becomes the single HALF_OPEN trial and everyone
// else is rejected until that trial reports.
func (b *Breaker) Admit() Admission {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return Admission{Allowed: true}
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.recovery {
			return Admission{}
		}
		b.state = StateHalfOpen
		return b.grantTrialLocked()
	default:
		if b.trial {
			return Admission{}
		}
		return b.grantTrialLocked()
	}
}

func (b *Breaker) grantTrialLocked() Admission {
	b.trial = true
	b.generation++
	return Admission{Allowed: true, trial: b.generation}
}

// Allow is Admit without the trial token.
func (b *Breaker) Allow() bool {
	return b.Admit().Allowed
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.trial = false
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	b.trial = false
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
	}
}

// Abandon frees a HALF_OPEN trial that ended without an observed outcome.
// Only the admission that was granted the current trial can free it; a
// caller admitted while CLOSED, or holding an older trial, is a no-op.
func (b *Breaker) Abandon(a Admission) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a.trial == 0 || a.trial != b.generation {
		return
	}
	if b.state == StateHalfOpen {
		b.trial = false
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerSnapshot is a point-in-time view for the ops endpoints.
type BreakerSnapshot struct {
	Endpoint    string    `json:"endpoint"`
	State       string    `json:"state"`
	Failures    int       `json:"failure_count"`
	LastFailure time.Time `json:"last_failure_at,omitempty"`
}

func (b *Breaker) Snapshot(endpoint string) BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Endpoint:    endpoint,
		State:       b.state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}
