package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/repository"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second, DepthLimit: 5})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFetchTickerDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ticker", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","last":"50000.5","bid":"50000","ask":"50001","volume_24h":"1200","change_24h":2.5,"ts":1700000000000}`))
	})

	tk, err := c.FetchTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "50000.5", tk.Last.String())
	assert.Equal(t, 2.5, tk.Change24h)
	assert.Equal(t, int64(1700000000), tk.Timestamp.Unix())
}

func TestFetchOrderBookAndTrades(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/orderbook":
			assert.Equal(t, "5", r.URL.Query().Get("depth"))
			_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","bids":[["100","2"]],"asks":[["101","3"],["102","1"]]}`))
		case "/v1/trades":
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[{"price":"100","size":"1","side":"SELL","ts":1700000000},{"price":"101","size":"2","side":"buy","ts":1700000001}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ob, err := c.FetchOrderBook(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, ob.Bids, 1)
	require.Len(t, ob.Asks, 2)
	assert.Equal(t, "101", ob.Asks[0].Price.String())

	trades, err := c.FetchTrades(context.Background(), "ETHUSDT", 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, models.SideSell, trades[0].Side)
	assert.Equal(t, models.SideBuy, trades[1].Side)
}

func TestFetchOHLCV(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`[[1700000000000,1,2,0.5,1.5,10],[1700000300000,1.5,2.5,1,2,12]]`))
	})

	candles, err := c.FetchOHLCV(context.Background(), "BTCUSDT", repository.TF5m, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 2.0, candles[1].Close)
	assert.Equal(t, int64(1700000300), candles[1].Bucket.Unix())
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name string
		h    http.HandlerFunc
		want models.ErrorKind
	}{
		{"rate limited", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		}, models.RateLimited},
		{"bad gateway", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, models.Timeout},
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}, models.Fatal},
		{"garbled body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"symbol":`))
		}, models.ProtocolDesync},
		{"wrong symbol", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","last":"1"}`))
		}, models.ProtocolDesync},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}, models.Timeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.h)
			defer srv.Close()
			c := NewClient(Config{BaseURL: srv.URL, Timeout: 100 * time.Millisecond})
			defer c.Close()

			_, err := c.FetchTicker(context.Background(), "BTCUSDT")
			require.Error(t, err)
			var ue *models.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tc.want, ue.Kind)
			assert.Equal(t, "fetch_ticker", ue.Op)
		})
	}
}

func TestCancelledCallIsNotClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchTicker(ctx, "BTCUSDT")
	require.ErrorIs(t, err, context.Canceled)
	var ue *models.UpstreamError
	assert.False(t, errors.As(err, &ue))
}

func TestFactoryHandlesAreIndependent(t *testing.T) {
	f := NewFactory(Config{BaseURL: "http://127.0.0.1:1"})
	a, err := f(context.Background())
	require.NoError(t, err)
	b, err := f(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a.(*Client).base.client, b.(*Client).base.client)
}
