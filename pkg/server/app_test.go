package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_RunStopsOnCancel(t *testing.T) {
	app := New(nil)
	var closed []string
	var mu sync.Mutex
	app.AddRunner("a", RunFunc(func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }))
	app.AddRunner("b", RunFunc(func(ctx context.Context) error { <-ctx.Done(); return nil }))
	app.AddCloser("first", func() error { mu.Lock(); closed = append(closed, "first"); mu.Unlock(); return nil })
	app.AddCloser("second", func() error { mu.Lock(); closed = append(closed, "second"); mu.Unlock(); return errors.New("ignored") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"second", "first"}, closed)
}

func TestApp_FailureCancelsOthers(t *testing.T) {
	app := New(nil)
	boom := errors.New("boom")
	stopped := make(chan struct{})
	app.AddRunner("failing", RunFunc(func(context.Context) error { return boom }))
	app.AddRunner("waiting", RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}))

	err := app.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	<-stopped
}

func TestApp_NoRunners(t *testing.T) {
	assert.Error(t, New(nil).Run(context.Background()))
}
