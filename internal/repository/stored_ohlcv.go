package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
)

// storedOHLCVClient answers FetchOHLCV from a CandleStore and delegates every
// other call to the live client.
type storedOHLCVClient struct {
	domrepo.ExchangeClient
	store domrepo.CandleStore
}

// WithStoredOHLCV wraps factory so every handle it dials serves candles from store.
func WithStoredOHLCV(factory domrepo.ClientFactory, store domrepo.CandleStore) domrepo.ClientFactory {
	return func(ctx context.Context) (domrepo.ExchangeClient, error) {
		c, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		return &storedOHLCVClient{ExchangeClient: c, store: store}, nil
	}
}

func (c *storedOHLCVClient) FetchOHLCV(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	candles, err := c.store.GetLatestNCandles(ctx, symbol, limit, tf)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return candles, nil
}

func classifyStoreErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := models.KindOf(err)
	if errors.Is(err, driver.ErrBadConn) {
		kind = models.ProtocolDesync
	}
	return models.NewUpstreamError(kind, "fetch_ohlcv", err)
}
