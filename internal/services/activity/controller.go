package activity

import (
	"sort"
	"sync"
	"time"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/repository"
	"Confluence/pkg/metrics"
)

// Policy maps observed activity to a polling cadence.
type Policy struct {
	MinInterval     time.Duration
	MaxInterval     time.Duration
	DefaultInterval time.Duration

	HighVolumeThreshold     float64
	LowVolumeThreshold      float64
	HighVolatilityThreshold float64
	LowVolatilityThreshold  float64

	// Multipliers scale the base interval per data kind; missing kinds use 1.
	Multipliers map[models.DataKind]float64
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinInterval:             time.Second,
		MaxInterval:             30 * time.Second,
		DefaultInterval:         5 * time.Second,
		HighVolumeThreshold:     2,
		LowVolumeThreshold:      0.5,
		HighVolatilityThreshold: 2,
		LowVolatilityThreshold:  0.5,
		Multipliers: map[models.DataKind]float64{
			models.KindTicker:    1,
			models.KindOrderBook: 1,
			models.KindTrades:    1,
			models.KindOHLCV:     2,
		},
	}
}

// Base picks min, max or default interval from one sample.
func (p Policy) Base(s models.ActivitySample) time.Duration {
	var d time.Duration
	switch {
	case s.VolumeRatio >= p.HighVolumeThreshold || s.Volatility >= p.HighVolatilityThreshold:
		d = p.MinInterval
	case s.VolumeRatio <= p.LowVolumeThreshold && s.Volatility <= p.LowVolatilityThreshold:
		d = p.MaxInterval
	default:
		d = p.DefaultInterval
	}
	return clamp(d, p.MinInterval, p.MaxInterval)
}

// ForKind applies the kind multiplier and re-clamps to [min, 2*max].
func (p Policy) ForKind(base time.Duration, kind models.DataKind) time.Duration {
	m, ok := p.Multipliers[kind]
	if !ok || m <= 0 {
		m = 1
	}
	scaled := time.Duration(float64(base) * m)
	return clamp(scaled, p.MinInterval, 2*p.MaxInterval)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// Controller keeps the current base interval per symbol. It only decides
// cadence and never performs I/O.
type Controller struct {
	mu      sync.RWMutex
	policy  Policy
	sampler *Sampler
	base    map[string]time.Duration
	metrics repository.Metrics
}

func NewController(policy Policy, sampler *Sampler, m repository.Metrics) *Controller {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Controller{
		policy:  policy,
		sampler: sampler,
		base:    make(map[string]time.Duration),
		metrics: m,
	}
}

// Update samples symbol and stores the resulting base interval.
func (c *Controller) Update(symbol string) models.ActivitySample {
	s := c.sampler.Sample(symbol)
	d := c.policy.Base(s)

	c.mu.Lock()
	c.base[symbol] = d
	c.mu.Unlock()

	for _, k := range models.AllKinds {
		c.metrics.RecordInterval(symbol, string(k), c.policy.ForKind(d, k).Seconds())
	}
	return s
}

// CurrentInterval is the sleep before the next poll of (symbol, kind).
func (c *Controller) CurrentInterval(symbol string, kind models.DataKind) time.Duration {
	c.mu.RLock()
	base, ok := c.base[symbol]
	c.mu.RUnlock()
	if !ok {
		base = clamp(c.policy.DefaultInterval, c.policy.MinInterval, c.policy.MaxInterval)
	}
	return c.policy.ForKind(base, kind)
}

// IntervalView is one row of the ops interval dump.
type IntervalView struct {
	Symbol    string            `json:"symbol"`
	Base      string            `json:"base"`
	PerKind   map[string]string `json:"per_kind"`
	LastCheck *time.Time        `json:"last_sample,omitempty"`
}

// Snapshot lists the current cadence of every known symbol, sorted by symbol.
func (c *Controller) Snapshot() []IntervalView {
	c.mu.RLock()
	symbols := make([]string, 0, len(c.base))
	for s := range c.base {
		symbols = append(symbols, s)
	}
	c.mu.RUnlock()
	sort.Strings(symbols)

	out := make([]IntervalView, 0, len(symbols))
	for _, sym := range symbols {
		v := IntervalView{Symbol: sym, PerKind: make(map[string]string, len(models.AllKinds))}
		for _, k := range models.AllKinds {
			v.PerKind[string(k)] = c.CurrentInterval(sym, k).String()
		}
		c.mu.RLock()
		v.Base = c.base[sym].String()
		c.mu.RUnlock()
		if h := c.sampler.History(sym); len(h) > 0 {
			ts := h[len(h)-1].Timestamp
			v.LastCheck = &ts
		}
		out = append(out, v)
	}
	return out
}
