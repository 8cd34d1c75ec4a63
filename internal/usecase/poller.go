package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	"Confluence/internal/service/executor"
	"Confluence/internal/services/activity"
	"Confluence/internal/services/resources"
	"Confluence/pkg/logger"
)

// ErrResourceDenied means the resource manager refused the poll slot.
var ErrResourceDenied = errors.New("poll denied by resource manager")

type PollerConfig struct {
	Symbols        []string
	TradesLimit    int
	OHLCVLimit     int
	OHLCVTimeframe domrepo.Timeframe
}

// Poller runs one loop per symbol and data kind. Each loop sleeps the
// controller's current interval, fetches through the endpoint's executor and
// refreshes the fused signal. A failed cycle is skipped, never retried here.
type Poller struct {
	cfg        PollerConfig
	registry   *executor.Registry
	controller *activity.Controller
	sampler    *activity.Sampler
	resources  *resources.Manager
	fusion     *SignalFusion
	metrics    domrepo.Metrics
	l          *logger.Logger

	mu       sync.RWMutex
	snaps    map[string]*models.Snapshot
	retained map[retainedKey]uint64
}

type retainedKey struct {
	symbol string
	kind   models.DataKind
}

func NewPoller(
	cfg PollerConfig,
	registry *executor.Registry,
	controller *activity.Controller,
	sampler *activity.Sampler,
	rm *resources.Manager,
	fusion *SignalFusion,
	m domrepo.Metrics,
	l *logger.Logger,
) *Poller {
	if cfg.TradesLimit <= 0 {
		cfg.TradesLimit = 100
	}
	if cfg.OHLCVLimit <= 0 {
		cfg.OHLCVLimit = 60
	}
	if !domrepo.IsValidTimeframe(cfg.OHLCVTimeframe) {
		cfg.OHLCVTimeframe = domrepo.DefaultTimeframe()
	}
	if l == nil {
		l = logger.Nop()
	}
	p := &Poller{
		cfg:        cfg,
		registry:   registry,
		controller: controller,
		sampler:    sampler,
		resources:  rm,
		fusion:     fusion,
		metrics:    m,
		l:          l.With(logger.String("component", "poller")),
		snaps:      make(map[string]*models.Snapshot, len(cfg.Symbols)),
		retained:   make(map[retainedKey]uint64),
	}
	for _, s := range cfg.Symbols {
		p.snaps[s] = &models.Snapshot{Symbol: s}
	}
	return p
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range p.cfg.Symbols {
		for _, kind := range models.AllKinds {
			symbol, kind := symbol, kind
			g.Go(func() error {
				p.loop(gctx, symbol, kind)
				return nil
			})
		}
	}
	p.l.Info("poller started", logger.Strings("symbols", p.cfg.Symbols), logger.Int("loops", len(p.cfg.Symbols)*len(models.AllKinds)))
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, symbol string, kind models.DataKind) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := p.PollOnce(ctx, symbol, kind); err != nil && ctx.Err() == nil {
			p.l.Warn("poll cycle skipped",
				logger.String("symbol", symbol),
				logger.String("kind", string(kind)),
				logger.Error(err),
			)
		}
		timer.Reset(p.controller.CurrentInterval(symbol, kind))
	}
}

// PollOnce runs a single fetch of kind for symbol and refreshes fusion.
func (p *Poller) PollOnce(ctx context.Context, symbol string, kind models.DataKind) error {
	lease := p.resources.Acquire("poller:" + string(kind))
	if lease == nil {
		return ErrResourceDenied
	}
	defer lease.Release()

	start := time.Now()
	retained, err := p.fetch(ctx, symbol, kind)
	if err != nil {
		p.metrics.RecordError(models.KindOf(err).String())
		return fmt.Errorf("poll %s %s: %w", symbol, kind, err)
	}
	p.metrics.RecordLatency("poll_"+string(kind), time.Since(start).Seconds())
	p.report(kind, retained)

	sample := p.controller.Update(symbol)
	snap := p.update(symbol, func(s *models.Snapshot) { s.Activity = &sample })
	p.fusion.Fuse(ctx, snap)
	return nil
}

// fetch stores the kind's payload in the snapshot and returns an estimate of
// the bytes the snapshots now retain for that kind across all symbols.
func (p *Poller) fetch(ctx context.Context, symbol string, kind models.DataKind) (uint64, error) {
	ex := p.registry.For(string(kind))
	var size uint64
	switch kind {
	case models.KindTicker:
		tk, err := executor.Execute(ctx, ex, func(ctx context.Context, c domrepo.ExchangeClient) (*models.Ticker, error) {
			return c.FetchTicker(ctx, symbol)
		})
		if err != nil {
			return 0, err
		}
		size = uint64(unsafe.Sizeof(*tk))
		p.update(symbol, func(s *models.Snapshot) { s.Ticker = tk })
	case models.KindOrderBook:
		ob, err := executor.Execute(ctx, ex, func(ctx context.Context, c domrepo.ExchangeClient) (*models.OrderBook, error) {
			return c.FetchOrderBook(ctx, symbol)
		})
		if err != nil {
			return 0, err
		}
		size = uint64(unsafe.Sizeof(*ob)) + uint64(len(ob.Bids)+len(ob.Asks))*uint64(unsafe.Sizeof(models.Level{}))
		p.update(symbol, func(s *models.Snapshot) { s.OrderBook = ob })
	case models.KindTrades:
		trades, err := executor.Execute(ctx, ex, func(ctx context.Context, c domrepo.ExchangeClient) ([]models.Trade, error) {
			return c.FetchTrades(ctx, symbol, p.cfg.TradesLimit)
		})
		if err != nil {
			return 0, err
		}
		size = uint64(len(trades)) * uint64(unsafe.Sizeof(models.Trade{}))
		p.sampler.ObserveTrades(symbol, trades)
		p.update(symbol, func(s *models.Snapshot) { s.Trades = trades })
	case models.KindOHLCV:
		candles, err := executor.Execute(ctx, ex, func(ctx context.Context, c domrepo.ExchangeClient) ([]models.Candle, error) {
			return c.FetchOHLCV(ctx, symbol, p.cfg.OHLCVTimeframe, p.cfg.OHLCVLimit)
		})
		if err != nil {
			return 0, err
		}
		size = uint64(len(candles)) * uint64(unsafe.Sizeof(models.Candle{}))
		p.update(symbol, func(s *models.Snapshot) { s.Candles = candles })
	default:
		return 0, fmt.Errorf("unknown data kind %q", kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.retained[retainedKey{symbol, kind}] = size
	var total uint64
	for k, n := range p.retained {
		if k.kind == kind {
			total += n
		}
	}
	return total, nil
}

// report hands the kind's retained payload size to the resource manager so
// its memory budget applies to the next acquisition.
func (p *Poller) report(kind models.DataKind, retained uint64) {
	p.resources.Report("poller:"+string(kind), resources.Usage{MemoryBytes: retained})
}

// update applies fn to the symbol's snapshot and returns a copy of the result.
func (p *Poller) update(symbol string, fn func(*models.Snapshot)) *models.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.snaps[symbol]
	if !ok {
		s = &models.Snapshot{Symbol: symbol}
		p.snaps[symbol] = s
	}
	fn(s)
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp
}

// Snapshot returns a copy of the latest records for symbol.
func (p *Poller) Snapshot(symbol string) (models.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.snaps[symbol]
	if !ok {
		return models.Snapshot{}, false
	}
	return *s, true
}
