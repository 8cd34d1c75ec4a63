package middleware

import (
	"errors"
	"math"
	"sync"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
)

// TickSink receives accepted ticks. Implemented by activity.Sampler.
type TickSink interface {
	Observe(t models.Tick)
}

// TickPipeline sits between a TickSource and the sampler. It validates ticks
// and caps the per-symbol rate so one noisy symbol cannot dominate sampling.
type TickPipeline struct {
	sink    TickSink
	metrics domrepo.Metrics
	maxRPS  int
	now     func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the max ticks per second per symbol. Zero disables the cap.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *TickPipeline) { p.now = now }
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(sink TickSink, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:     sink,
		metrics:  metrics,
		maxRPS:   20,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates and throttles t, then forwards it. Throttled ticks are
// dropped without error; invalid ticks return the validation error.
func (p *TickPipeline) Process(t *models.Tick) error {
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.Symbol, p.now()) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	p.sink.Observe(*t)
	return nil
}

func validateTick(t *models.Tick) error {
	switch {
	case t == nil:
		return errors.New("tick nil")
	case t.Symbol == "":
		return errors.New("symbol empty")
	case t.Timestamp.IsZero():
		return errors.New("timestamp invalid")
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || math.IsNaN(t.Volume) || math.IsInf(t.Volume, 0):
		return errors.New("non-finite price/volume")
	case t.Price <= 0 || t.Volume < 0:
		return errors.New("negative price/volume")
	}
	return nil
}

func (p *TickPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
