package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/repository"
	"Confluence/internal/service/ratelimit"
	"Confluence/pkg/logger"
	"Confluence/pkg/metrics"
)

// Config controls retries and per-attempt timeouts.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	MaxRetries       int
	BaseDelay        time.Duration
	AttemptTimeout   time.Duration
}

// Call performs one upstream request on the supplied client handle.
type Call func(ctx context.Context, c repository.ExchangeClient) error

// Executor wraps every call to one endpoint with throttling, circuit breaking
// and retry with exponential backoff. It is the only owner of that endpoint's
// breaker state and throttle window.
type Executor struct {
	endpoint string
	cfg      Config
	throttle *ratelimit.Throttle
	breaker  *Breaker
	factory  repository.ClientFactory
	log      *logger.Logger
	metrics  repository.Metrics

	mu     sync.Mutex
	client repository.ExchangeClient
}

type Option func(*Executor)

func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock drives the breaker's recovery timer.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.breaker.now = now }
}

func New(endpoint string, cfg Config, th *ratelimit.Throttle, factory repository.ClientFactory, opts ...Option) *Executor {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	e := &Executor{
		endpoint: endpoint,
		cfg:      cfg,
		throttle: th,
		breaker:  NewBreaker(cfg.FailureThreshold, cfg.RecoveryTimeout, time.Now),
		factory:  factory,
		log:      logger.Nop(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.String("endpoint", endpoint))
	return e
}

func (e *Executor) Endpoint() string { return e.endpoint }

func (e *Executor) Breaker() *Breaker { return e.breaker }

// Execute runs fn under the executor's protections and returns its value.
func Execute[T any](ctx context.Context, e *Executor, fn func(ctx context.Context, c repository.ExchangeClient) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context, c repository.ExchangeClient) error {
		v, err := fn(ctx, c)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Do runs one logical call. Transient failures are retried with a delay of
// BaseDelay*2^attempt; Fatal errors return immediately. A cancelled ctx
// abandons the call and records nothing on the breaker.
func (e *Executor) Do(ctx context.Context, fn Call) error {
	start := time.Now()
	defer func() {
		e.metrics.RecordLatency("upstream_"+e.endpoint, time.Since(start).Seconds())
	}()

	slot, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	admission := e.breaker.Admit()
	if !admission.Allowed {
		slot.Release()
		e.metrics.RecordCall(e.endpoint, models.CircuitOpen.String())
		return fmt.Errorf("%s: %w", e.endpoint, models.ErrCircuitOpen)
	}
	e.metrics.RecordBreakerState(e.endpoint, int(e.breaker.State()))

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if _, err := e.acquire(ctx); err != nil {
				return e.abandon(admission, err)
			}
		}

		lastErr = e.attempt(ctx, fn)
		if lastErr == nil {
			e.breaker.RecordSuccess()
			e.metrics.RecordBreakerState(e.endpoint, int(StateClosed))
			e.metrics.RecordCall(e.endpoint, "success")
			return nil
		}
		if ctx.Err() != nil {
			return e.abandon(admission, ctx.Err())
		}

		kind := models.KindOf(lastErr)
		if kind == models.ProtocolDesync {
			e.discardClient()
		}
		if !kind.Transient() {
			e.fail(kind, lastErr)
			return lastErr
		}
		if attempt >= e.cfg.MaxRetries {
			break
		}

		delay := e.cfg.BaseDelay << attempt
		e.metrics.RecordRetry(e.endpoint, kind.String())
		e.log.Debug("retrying upstream call",
			logger.Int("attempt", attempt+1),
			logger.String("kind", kind.String()),
			logger.Duration("backoff", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return e.abandon(admission, ctx.Err())
		case <-timer.C:
		}
	}

	e.fail(models.KindOf(lastErr), lastErr)
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (e *Executor) acquire(ctx context.Context) (*ratelimit.Slot, error) {
	slot, err := e.throttle.Acquire(ctx, e.endpoint)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordThrottleWait(e.endpoint, slot.Waited.Seconds())
	return slot, nil
}

func (e *Executor) attempt(ctx context.Context, fn Call) error {
	actx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	client, err := e.handle(actx)
	if err != nil {
		return err
	}
	return fn(actx, client)
}

func (e *Executor) abandon(admission Admission, err error) error {
	e.breaker.Abandon(admission)
	e.metrics.RecordCall(e.endpoint, "cancelled")
	return err
}

func (e *Executor) fail(kind models.ErrorKind, err error) {
	e.breaker.RecordFailure()
	state := e.breaker.State()
	e.metrics.RecordBreakerState(e.endpoint, int(state))
	e.metrics.RecordCall(e.endpoint, kind.String())
	e.metrics.RecordError(kind.String())
	if state == StateOpen {
		e.log.Warn("circuit open",
			logger.String("kind", kind.String()),
			logger.Error(err),
		)
	}
}

// handle returns the live client, dialing a fresh one when none is held.
func (e *Executor) handle(ctx context.Context) (repository.ExchangeClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	c, err := e.factory(ctx)
	if err != nil {
		var ue *models.UpstreamError
		if errors.As(err, &ue) {
			return nil, err
		}
		return nil, models.NewUpstreamError(models.KindOf(err), e.endpoint+": dial", err)
	}
	e.client = c
	return c, nil
}

// discardClient drops the desynchronized handle so the retry dials a new one.
func (e *Executor) discardClient() {
	e.mu.Lock()
	old := e.client
	e.client = nil
	e.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			e.log.Debug("close desynced client", logger.Error(err))
		}
	}
}

// Close releases the held client handle.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
