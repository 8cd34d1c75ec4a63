package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	calls []time.Time // ascending; pruned lazily on acquire
}

// Throttle is a sliding-window limiter keyed by endpoint. A caller over the
// limit waits for the oldest call to age out; calls are delayed, never dropped.
type Throttle struct {
	mu          sync.Mutex
	m           map[string]*window
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

type Option func(*Throttle)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) { t.now = now }
}

func New(maxRequests int, span time.Duration, opts ...Option) *Throttle {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	t := &Throttle{
		m:           make(map[string]*window),
		maxRequests: maxRequests,
		window:      span,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Slot is one admitted call inside an endpoint window.
type Slot struct {
	t        *Throttle
	endpoint string
	at       time.Time
	once     sync.Once

	// Waited is how long Acquire blocked before admitting the call.
	Waited time.Duration
}

// Release gives the slot back when the call never reached the network.
func (s *Slot) Release() {
	if s == nil || s.t == nil {
		return
	}
	s.once.Do(func() { s.t.remove(s.endpoint, s.at) })
}

// Acquire blocks until endpoint has room in its window or ctx is done.
// A cancelled wait leaves the window untouched.
func (t *Throttle) Acquire(ctx context.Context, endpoint string) (*Slot, error) {
	start := t.now()
	for {
		t.mu.Lock()
		w, ok := t.m[endpoint]
		if !ok {
			w = &window{}
			t.m[endpoint] = w
		}
		now := t.now()
		t.pruneLocked(w, now)
		if len(w.calls) < t.maxRequests {
			w.calls = append(w.calls, now)
			t.mu.Unlock()
			return &Slot{t: t, endpoint: endpoint, at: now, Waited: now.Sub(start)}, nil
		}
		wait := w.calls[0].Add(t.window).Sub(now)
		t.mu.Unlock()

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// InWindow reports how many calls endpoint has inside the trailing window.
func (t *Throttle) InWindow(endpoint string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.m[endpoint]
	if !ok {
		return 0
	}
	t.pruneLocked(w, t.now())
	return len(w.calls)
}

func (t *Throttle) pruneLocked(w *window, now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

func (t *Throttle) remove(endpoint string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.m[endpoint]
	if !ok {
		return
	}
	for i, c := range w.calls {
		if c.Equal(at) {
			w.calls = append(w.calls[:i], w.calls[i+1:]...)
			return
		}
	}
}
