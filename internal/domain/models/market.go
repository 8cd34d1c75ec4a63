package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DataKind identifies a polled market data stream.
type DataKind string

const (
	KindTicker    DataKind = "ticker"
	KindOrderBook DataKind = "orderbook"
	KindTrades    DataKind = "trades"
	KindOHLCV     DataKind = "ohlcv"
)

// AllKinds lists the kinds polled per symbol.
var AllKinds = []DataKind{KindTicker, KindOrderBook, KindTrades, KindOHLCV}

type Ticker struct {
	Symbol    string
	Last      decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume24h decimal.Decimal
	Change24h float64 // percent
	Timestamp time.Time
}

type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

type OrderBook struct {
	Symbol    string
	Bids      []Level // best first
	Asks      []Level // best first
	Timestamp time.Time
}

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Trade struct {
	Symbol    string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Side      Side
	Timestamp time.Time
}

// Candle represents an OHLCV bar.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Tick is a single price/volume observation fed to the activity sampler.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Snapshot holds the latest record of every kind for one symbol.
type Snapshot struct {
	Symbol    string
	Ticker    *Ticker
	OrderBook *OrderBook
	Trades    []Trade
	Candles   []Candle
	Activity  *ActivitySample
	UpdatedAt time.Time
}
