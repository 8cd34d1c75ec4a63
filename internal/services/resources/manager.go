package resources

import (
	"context"
	"sort"
	"sync"
	"time"

	"Confluence/internal/domain/repository"
	"Confluence/pkg/logger"
	"Confluence/pkg/metrics"
)

type Config struct {
	HeadroomPercent   float64
	DefaultMaxOps     int
	MaxOps            map[string]int // per-component override
	ReleaseTimeout    time.Duration
	StaleAfter        time.Duration
	SweepInterval     time.Duration
	RecomputeInterval time.Duration
}

// Usage is what a component reports about itself.
type Usage struct {
	MemoryBytes uint64  `json:"memory_bytes"`
	CPUPercent  float64 `json:"cpu_percent"`
}

// Thresholds are the limits a component is held to. Zero means unlimited.
type Thresholds struct {
	MemoryBytes uint64  `json:"memory_bytes"`
	CPUPercent  float64 `json:"cpu_percent"`
	MaxOps      int     `json:"max_ops"`
}

type component struct {
	usage      Usage
	inFlight   int
	lastActive time.Time
	leases     []*Lease // oldest first
}

// Lease is one granted acquisition. Release is idempotent and the lease
// releases itself after the configured timeout.
type Lease struct {
	m         *Manager
	component string
	timer     *time.Timer
	released  bool
}

func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.m.release(l, false)
}

// Manager guards local memory, CPU and concurrency budgets per component.
// It is independent of upstream health.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	probe      HostProbe
	now        func() time.Time
	components map[string]*component
	limits     Thresholds // per component, before MaxOps override
	pressure   bool       // host itself is inside the headroom
	log        *logger.Logger
	metrics    repository.Metrics
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithMetrics(r repository.Metrics) Option {
	return func(m *Manager) { m.metrics = r }
}

func NewManager(cfg Config, probe HostProbe, opts ...Option) *Manager {
	if cfg.DefaultMaxOps <= 0 {
		cfg.DefaultMaxOps = 16
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	m := &Manager{
		cfg:        cfg,
		probe:      probe,
		now:        time.Now,
		components: make(map[string]*component),
		log:        logger.Nop(),
		metrics:    metrics.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TryAcquire grants one operation slot to name if it is within its budget.
func (m *Manager) TryAcquire(name string) bool {
	return m.Acquire(name) != nil
}

// Acquire is TryAcquire returning the lease; nil means denied.
func (m *Manager) Acquire(name string) *Lease {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.componentLocked(name)
	if reason := m.denyReasonLocked(name, c); reason != "" {
		m.metrics.RecordResourceDenied(name)
		m.log.Debug("resource acquisition denied",
			logger.String("component", name),
			logger.String("reason", reason),
		)
		return nil
	}

	l := &Lease{m: m, component: name}
	l.timer = time.AfterFunc(m.cfg.ReleaseTimeout, func() { m.release(l, true) })
	c.inFlight++
	c.leases = append(c.leases, l)
	c.lastActive = m.now()
	return l
}

// Release frees the oldest outstanding acquisition of name.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	c, ok := m.components[name]
	if !ok || len(c.leases) == 0 {
		m.mu.Unlock()
		return
	}
	l := c.leases[0]
	m.mu.Unlock()
	m.release(l, false)
}

func (m *Manager) release(l *Lease, auto bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	l.timer.Stop()

	c, ok := m.components[l.component]
	if !ok {
		return
	}
	for i, cur := range c.leases {
		if cur == l {
			c.leases = append(c.leases[:i], c.leases[i+1:]...)
			break
		}
	}
	if c.inFlight > 0 {
		c.inFlight--
	}
	c.lastActive = m.now()
	if auto {
		m.log.Warn("resource lease auto-released",
			logger.String("component", l.component),
			logger.Duration("timeout", m.cfg.ReleaseTimeout),
		)
	}
}

// Report records a component's current usage and marks it active.
func (m *Manager) Report(name string, u Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.componentLocked(name)
	c.usage = u
	c.lastActive = m.now()
}

func (m *Manager) componentLocked(name string) *component {
	c, ok := m.components[name]
	if !ok {
		c = &component{lastActive: m.now()}
		m.components[name] = c
	}
	return c
}

func (m *Manager) denyReasonLocked(name string, c *component) string {
	t := m.thresholdsLocked(name)
	switch {
	case m.pressure:
		return "host_pressure"
	case t.MaxOps > 0 && c.inFlight >= t.MaxOps:
		return "max_ops"
	case t.MemoryBytes > 0 && c.usage.MemoryBytes > t.MemoryBytes:
		return "memory"
	case t.CPUPercent > 0 && c.usage.CPUPercent > t.CPUPercent:
		return "cpu"
	}
	return ""
}

func (m *Manager) thresholdsLocked(name string) Thresholds {
	t := m.limits
	t.MaxOps = m.cfg.DefaultMaxOps
	if n, ok := m.cfg.MaxOps[name]; ok && n > 0 {
		t.MaxOps = n
	}
	return t
}

// Thresholds returns the limits currently applied to name.
func (m *Manager) Thresholds(name string) Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholdsLocked(name)
}

// InFlight reports outstanding acquisitions of name.
func (m *Manager) InFlight(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.components[name]; ok {
		return c.inFlight
	}
	return 0
}

// RecomputeThresholds splits host capacity minus headroom across registered
// components. A failed probe keeps the previous thresholds.
func (m *Manager) RecomputeThresholds(ctx context.Context) {
	r, err := m.probe.Read(ctx)
	if err != nil {
		m.log.Warn("host probe failed, keeping thresholds", logger.Error(err))
		return
	}

	usable := 1 - m.cfg.HeadroomPercent/100

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.components)
	if n == 0 {
		n = 1
	}
	m.limits = Thresholds{
		MemoryBytes: uint64(float64(r.MemTotal) * usable / float64(n)),
		CPUPercent:  100 * usable / float64(n),
	}

	wasPressure := m.pressure
	m.pressure = r.MemUsedPct >= 100*usable || r.CPUPercent >= 100*usable
	if m.pressure != wasPressure {
		m.log.Warn("host pressure changed",
			logger.Bool("pressure", m.pressure),
			logger.Float64("mem_used_pct", r.MemUsedPct),
			logger.Float64("cpu_pct", r.CPUPercent),
		)
	}
}

// Sweep unregisters components with no activity within StaleAfter and
// returns their names.
func (m *Manager) Sweep() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.cfg.StaleAfter)
	var removed []string
	for name, c := range m.components {
		if c.lastActive.After(cutoff) {
			continue
		}
		for _, l := range c.leases {
			l.released = true
			l.timer.Stop()
		}
		delete(m.components, name)
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		m.log.Info("swept stale components", logger.Strings("components", removed))
	}
	return removed
}

// Run recomputes thresholds and sweeps on their intervals until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.RecomputeThresholds(ctx)

	recompute := time.NewTicker(orDefault(m.cfg.RecomputeInterval, 30*time.Second))
	defer recompute.Stop()
	sweep := time.NewTicker(orDefault(m.cfg.SweepInterval, time.Minute))
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-recompute.C:
			m.RecomputeThresholds(ctx)
		case <-sweep.C:
			m.Sweep()
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// ComponentView is one row of the ops resource dump.
type ComponentView struct {
	Name       string     `json:"name"`
	InFlight   int        `json:"in_flight"`
	Usage      Usage      `json:"usage"`
	Thresholds Thresholds `json:"thresholds"`
	LastActive time.Time  `json:"last_active"`
	Pressure   bool       `json:"host_pressure"`
}

// Components lists every registered component sorted by name.
func (m *Manager) Components() []ComponentView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ComponentView, 0, len(m.components))
	for name, c := range m.components {
		out = append(out, ComponentView{
			Name:       name,
			InFlight:   c.inFlight,
			Usage:      c.usage,
			Thresholds: m.thresholdsLocked(name),
			LastActive: c.lastActive,
			Pressure:   m.pressure,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
