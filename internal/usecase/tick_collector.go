package usecase

import (
	"context"

	"Confluence/internal/domain/models"
	drepo "Confluence/internal/domain/repository"
	mid "Confluence/internal/middleware"
	"Confluence/pkg/logger"
)

// TickCollector pumps a TickSource through the tick pipeline, reconnecting
// whenever the source fails.
type TickCollector struct {
	stream  drepo.TickSource
	pipe    *mid.TickPipeline
	metrics drepo.Metrics
	l       *logger.Logger
}

// NewTickCollector creates a new TickCollector instance.
func NewTickCollector(stream drepo.TickSource, pipe *mid.TickPipeline, metrics drepo.Metrics, l *logger.Logger) *TickCollector {
	if l == nil {
		l = logger.Nop()
	}
	return &TickCollector{stream: stream, pipe: pipe, metrics: metrics, l: l}
}

// IsConnected returns true if the tick source is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Run connects and consumes until ctx is cancelled.
func (c *TickCollector) Run(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	defer c.stream.Close()

	for {
		tickCh, errCh := c.stream.Read(ctx)
		c.consume(ctx, tickCh)
		if ctx.Err() != nil {
			return nil
		}
		if err := <-errCh; err != nil {
			c.metrics.RecordError("stream")
			c.l.Warn("tick stream failed, reconnecting", logger.Error(err))
		}
		// keep trying until a reconnect sticks or ctx ends
		for {
			err := c.stream.Reconnect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			c.l.Warn("tick stream reconnect failed", logger.Error(err))
		}
	}
}

func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-tickCh:
			if !ok {
				return
			}
			if err := c.pipe.Process(t); err != nil {
				c.l.Debug("tick rejected", logger.Error(err))
			}
		}
	}
}
