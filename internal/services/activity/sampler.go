package activity

import (
	"sort"
	"sync"
	"time"

	"Confluence/internal/domain/models"
	"Confluence/internal/services/features"
)

// ring is a fixed-size ActivitySample history.
type ring struct {
	buf  []models.ActivitySample
	next int
	full bool
}

func newRing(n int) *ring { return &ring{buf: make([]models.ActivitySample, n)} }

func (r *ring) push(s models.ActivitySample) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// items returns the history oldest first.
func (r *ring) items() []models.ActivitySample {
	if !r.full {
		return append([]models.ActivitySample(nil), r.buf[:r.next]...)
	}
	out := make([]models.ActivitySample, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Sampler keeps recent ticks per symbol and turns them into ActivitySamples.
type Sampler struct {
	mu       sync.Mutex
	recent   time.Duration
	baseline time.Duration
	size     int
	now      func() time.Time
	ticks    map[string][]models.Tick
	history  map[string]*ring
	marks    map[string]*tradeMark
}

// tradeMark is the newest polled trade timestamp of a symbol plus the trades
// already taken at exactly that instant. Polled trade batches overlap.
type tradeMark struct {
	at   time.Time
	seen map[string]struct{}
}

type SamplerOption func(*Sampler)

// WithWindows sets the recent window and the baseline lookback it is compared to.
func WithWindows(recent, baseline time.Duration) SamplerOption {
	return func(s *Sampler) {
		s.recent = recent
		s.baseline = baseline
	}
}

func WithHistorySize(n int) SamplerOption {
	return func(s *Sampler) { s.size = n }
}

func WithSamplerClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) { s.now = now }
}

func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{
		recent:   time.Minute,
		baseline: 15 * time.Minute,
		size:     100,
		now:      time.Now,
		ticks:    make(map[string][]models.Tick),
		history:  make(map[string]*ring),
		marks:    make(map[string]*tradeMark),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.baseline < s.recent {
		s.baseline = s.recent
	}
	if s.size <= 0 {
		s.size = 1
	}
	return s
}

// Observe records one tick. Ticks older than the baseline lookback are dropped.
func (s *Sampler) Observe(t models.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeLocked(t)
}

func (s *Sampler) observeLocked(t models.Tick) {
	cutoff := s.now().Add(-s.baseline)
	if t.Timestamp.Before(cutoff) {
		return
	}
	ticks := append(s.ticks[t.Symbol], t)
	// streams and polled trades interleave; keep ticks time ordered
	if n := len(ticks); n > 1 && ticks[n-1].Timestamp.Before(ticks[n-2].Timestamp) {
		sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Timestamp.Before(ticks[j].Timestamp) })
	}
	s.ticks[t.Symbol] = prune(ticks, cutoff)
}

// ObserveTrades feeds polled trades as ticks. Each poll returns the latest
// trades, so consecutive batches overlap; trades at or before the symbol's
// watermark that were already taken are skipped.
func (s *Sampler) ObserveTrades(symbol string, trades []models.Trade) {
	if len(trades) == 0 {
		return
	}
	sorted := append([]models.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	s.mu.Lock()
	defer s.mu.Unlock()
	mark, ok := s.marks[symbol]
	if !ok {
		mark = &tradeMark{seen: make(map[string]struct{})}
		s.marks[symbol] = mark
	}
	for _, tr := range sorted {
		key := tradeKey(tr)
		switch {
		case tr.Timestamp.Before(mark.at):
			continue
		case tr.Timestamp.Equal(mark.at):
			if _, dup := mark.seen[key]; dup {
				continue
			}
		default:
			mark.at = tr.Timestamp
			clear(mark.seen)
		}
		mark.seen[key] = struct{}{}

		price, _ := tr.Price.Float64()
		size, _ := tr.Size.Float64()
		s.observeLocked(models.Tick{Symbol: symbol, Price: price, Volume: size, Timestamp: tr.Timestamp})
	}
}

func tradeKey(tr models.Trade) string {
	return tr.Price.String() + "|" + tr.Size.String() + "|" + string(tr.Side)
}

func prune(ticks []models.Tick, cutoff time.Time) []models.Tick {
	i := 0
	for i < len(ticks) && ticks[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return ticks
	}
	return append(ticks[:0], ticks[i:]...)
}

// Sample observes recent ticks of symbol and appends the result to its history.
//
// VolumeRatio is recent-window volume over the mean per-window volume of the
// older part of the baseline lookback, 1 when there is no baseline.
// Volatility is the standard deviation of recent log returns in percent.
func (s *Sampler) Sample(symbol string) models.ActivitySample {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	recentStart := now.Add(-s.recent)
	baselineStart := now.Add(-s.baseline)

	var recentVol, baseVol float64
	var prices []float64
	for _, t := range s.ticks[symbol] {
		switch {
		case t.Timestamp.Before(baselineStart):
		case t.Timestamp.Before(recentStart):
			baseVol += t.Volume
		default:
			recentVol += t.Volume
			prices = append(prices, t.Price)
		}
	}

	ratio := 1.0
	if windows := float64(s.baseline-s.recent) / float64(s.recent); windows > 0 && baseVol > 0 {
		ratio = recentVol / (baseVol / windows)
	}

	active := 0
	for _, ticks := range s.ticks {
		if n := len(ticks); n > 0 && !ticks[n-1].Timestamp.Before(recentStart) {
			active++
		}
	}

	sample := models.ActivitySample{
		Symbol:        symbol,
		VolumeRatio:   ratio,
		Volatility:    features.StdDev(features.LogReturns(prices)) * 100,
		ActiveSymbols: active,
		Timestamp:     now,
	}

	h, ok := s.history[symbol]
	if !ok {
		h = newRing(s.size)
		s.history[symbol] = h
	}
	h.push(sample)
	return sample
}

// History returns the retained samples for symbol, oldest first.
func (s *Sampler) History(symbol string) []models.ActivitySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[symbol]
	if !ok {
		return nil
	}
	return h.items()
}
