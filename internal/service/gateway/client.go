package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/repository"
	xhttp "Confluence/pkg/http"
	"Confluence/pkg/util"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	DepthLimit int
}

// Client is an ExchangeClient backed by a normalizing REST gateway. Every
// error it returns is a classified *models.UpstreamError.
type Client struct {
	base  httpBase
	depth int
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	depth := cfg.DepthLimit
	if depth <= 0 {
		depth = 20
	}
	return &Client{
		base: httpBase{
			baseURL: strings.TrimRight(cfg.BaseURL, "/"),
			apiKey:  cfg.APIKey,
			client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		},
		depth: depth,
	}
}

// NewFactory returns a ClientFactory whose handles never share connections.
func NewFactory(cfg Config) repository.ClientFactory {
	return func(context.Context) (repository.ExchangeClient, error) {
		return NewClient(cfg), nil
	}
}

type tickerDTO struct {
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	Change24h float64         `json:"change_24h"`
	TS        int64           `json:"ts"`
}

type bookDTO struct {
	Symbol string               `json:"symbol"`
	Bids   [][2]decimal.Decimal `json:"bids"`
	Asks   [][2]decimal.Decimal `json:"asks"`
	TS     int64                `json:"ts"`
}

type tradeDTO struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Side   string          `json:"side"`
	TS     int64           `json:"ts"`
}

// candle rows are [ts_ms, open, high, low, close, volume]
type candleDTO [6]float64

func (c *Client) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	const op = "fetch_ticker"
	var dto tickerDTO
	if err := c.base.getJSON(ctx, "/v1/ticker", symbolQuery(symbol), &dto); err != nil {
		return nil, classify(op, err)
	}
	if err := checkSymbol(op, symbol, dto.Symbol); err != nil {
		return nil, err
	}
	return &models.Ticker{
		Symbol:    symbol,
		Last:      dto.Last,
		Bid:       dto.Bid,
		Ask:       dto.Ask,
		Volume24h: dto.Volume24h,
		Change24h: dto.Change24h,
		Timestamp: stamp(dto.TS),
	}, nil
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	const op = "fetch_order_book"
	var dto bookDTO
	if err := c.base.getJSON(ctx, "/v1/orderbook", symbolQuery(symbol, "depth", itoa(c.depth)), &dto); err != nil {
		return nil, classify(op, err)
	}
	if err := checkSymbol(op, symbol, dto.Symbol); err != nil {
		return nil, err
	}
	return &models.OrderBook{
		Symbol:    symbol,
		Bids:      levels(dto.Bids),
		Asks:      levels(dto.Asks),
		Timestamp: stamp(dto.TS),
	}, nil
}

func (c *Client) FetchTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	const op = "fetch_trades"
	var dtos []tradeDTO
	if err := c.base.getJSON(ctx, "/v1/trades", symbolQuery(symbol, "limit", itoa(limit)), &dtos); err != nil {
		return nil, classify(op, err)
	}
	out := make([]models.Trade, 0, len(dtos))
	for _, d := range dtos {
		if err := checkSymbol(op, symbol, d.Symbol); err != nil {
			return nil, err
		}
		side := models.SideBuy
		if strings.EqualFold(d.Side, string(models.SideSell)) {
			side = models.SideSell
		}
		out = append(out, models.Trade{
			Symbol:    symbol,
			Price:     d.Price,
			Size:      d.Size,
			Side:      side,
			Timestamp: stamp(d.TS),
		})
	}
	return out, nil
}

func (c *Client) FetchOHLCV(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, error) {
	const op = "fetch_ohlcv"
	var rows []candleDTO
	q := symbolQuery(symbol, "interval", string(tf), "limit", itoa(limit))
	if err := c.base.getJSON(ctx, "/v1/ohlcv", q, &rows); err != nil {
		return nil, classify(op, err)
	}
	out := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Candle{
			Bucket: stamp(int64(r[0])),
			Symbol: symbol,
			Open:   r[1],
			High:   r[2],
			Low:    r[3],
			Close:  r[4],
			Volume: r[5],
		})
	}
	return out, nil
}

// Close drops the handle's pooled connections.
func (c *Client) Close() error {
	c.base.client.CloseIdleConnections()
	return nil
}

// checkSymbol rejects a well-formed reply that answers a different request.
func checkSymbol(op, want, got string) error {
	if got == "" || got == want {
		return nil
	}
	return models.NewUpstreamError(models.ProtocolDesync, op,
		fmt.Errorf("response for %q while requesting %q", got, want))
}

func levels(rows [][2]decimal.Decimal) []models.Level {
	out := make([]models.Level, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Level{Price: r[0], Size: r[1]})
	}
	return out
}

func stamp(ts int64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	return util.FromUnixAuto(ts)
}

var _ repository.ExchangeClient = (*Client)(nil)
