package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	pkgkafka "Confluence/pkg/kafka"
	applogger "Confluence/pkg/logger"
)

// Runner is a long-lived component that blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunFunc adapts a function to Runner.
type RunFunc func(ctx context.Context) error

func (f RunFunc) Run(ctx context.Context) error { return f(ctx) }

type namedRunner struct {
	name string
	r    Runner
}

type namedCloser struct {
	name  string
	close func() error
}

// App encapsulates the application lifecycle: every runner shares one
// context, the first failure cancels the rest, closers run last in reverse
// registration order.
type App struct {
	l       *applogger.Logger
	runners []namedRunner
	closers []namedCloser
}

// New creates an empty App.
func New(l *applogger.Logger) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{l: l}
}

// AddRunner registers a component started by Run.
func (a *App) AddRunner(name string, r Runner) {
	a.runners = append(a.runners, namedRunner{name: name, r: r})
}

// AddCloser registers infrastructure released after every runner returned.
func (a *App) AddCloser(name string, close func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: close})
}

// Run blocks until ctx is cancelled or a runner fails.
func (a *App) Run(ctx context.Context) error {
	if len(a.runners) == 0 {
		return errors.New("no runners registered")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, nr := range a.runners {
		g.Go(func() error {
			a.l.Info("component started", applogger.String("component", nr.name))
			if err := nr.r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.l.Error("component failed", applogger.String("component", nr.name), applogger.Error(err))
				return fmt.Errorf("%s: %w", nr.name, err)
			}
			a.l.Info("component stopped", applogger.String("component", nr.name))
			return nil
		})
	}
	err := g.Wait()
	a.shutdown()
	return err
}

func (a *App) shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
}

// ConsumerRunner starts c, waits for ctx and stops it within timeout.
func ConsumerRunner(c *pkgkafka.Consumer, timeout time.Duration) Runner {
	return RunFunc(func(ctx context.Context) error {
		if err := c.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return c.Stop(sctx)
	})
}
