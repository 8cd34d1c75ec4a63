package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
)

type fakeProducer struct {
	topic string
	key   []byte
	value interface{}
	err   error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.topic, f.key, f.value = topic, key, value
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

func TestSignalPublisherKeysBySymbol(t *testing.T) {
	fp := &fakeProducer{}
	p := newSignalPublisher(fp, "confluence.signals")
	p.newID = func() string { return "id-1" }

	res := &models.ConfluenceResult{Symbol: "BTCUSDT", Score: 72, Sentiment: models.Bullish}
	require.NoError(t, p.Publish(context.Background(), res))

	assert.Equal(t, "confluence.signals", fp.topic)
	assert.Equal(t, "BTCUSDT", string(fp.key))
	ev, ok := fp.value.(models.SignalEvent)
	require.True(t, ok)
	assert.Equal(t, "id-1", ev.ID)
	assert.Equal(t, 72.0, ev.Result.Score)
}

func TestSignalPublisherWrapsErrors(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	p := newSignalPublisher(fp, "t")
	err := p.Publish(context.Background(), &models.ConfluenceResult{Symbol: "ETHUSDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ETHUSDT")
	assert.NoError(t, p.Publish(context.Background(), nil))
}

type liveClient struct{ domrepo.ExchangeClient }

func (liveClient) FetchOHLCV(context.Context, string, domrepo.Timeframe, int) ([]models.Candle, error) {
	return nil, errors.New("live ohlcv should not be called")
}

type fakeStore struct {
	candles []models.Candle
	err     error
}

func (f fakeStore) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return f.candles, f.err
}

func TestStoredOHLCVServesFromStore(t *testing.T) {
	want := []models.Candle{{Symbol: "BTCUSDT", Close: 10, Bucket: time.Unix(60, 0)}}
	factory := WithStoredOHLCV(func(context.Context) (domrepo.ExchangeClient, error) {
		return liveClient{}, nil
	}, fakeStore{candles: want})

	c, err := factory(context.Background())
	require.NoError(t, err)
	got, err := c.FetchOHLCV(context.Background(), "BTCUSDT", domrepo.TF1m, 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoredOHLCVClassifiesStoreErrors(t *testing.T) {
	cases := []struct {
		err  error
		want models.ErrorKind
	}{
		{context.DeadlineExceeded, models.Timeout},
		{driver.ErrBadConn, models.ProtocolDesync},
		{errors.New("table missing"), models.Fatal},
	}
	for _, tc := range cases {
		c := &storedOHLCVClient{ExchangeClient: liveClient{}, store: fakeStore{err: tc.err}}
		_, err := c.FetchOHLCV(context.Background(), "BTCUSDT", domrepo.TF5m, 10)
		assert.Equal(t, tc.want, models.KindOf(err), tc.err.Error())
	}
}

func TestLatestCandlesQuery(t *testing.T) {
	q, err := latestCandlesQuery("market.candles_1m", domrepo.TF15m)
	require.NoError(t, err)
	assert.Contains(t, q, "INTERVAL 900 SECOND")
	assert.True(t, strings.Contains(q, "FROM market.candles_1m"))

	_, err = latestCandlesQuery("t", domrepo.Timeframe("7m"))
	assert.Error(t, err)
}

func TestReverseCandles(t *testing.T) {
	cs := []models.Candle{{Close: 3}, {Close: 2}, {Close: 1}}
	reverseCandles(cs)
	assert.Equal(t, 1.0, cs[0].Close)
	assert.Equal(t, 3.0, cs[2].Close)
}
