package features

import (
	"math"

	"github.com/shopspring/decimal"

	"Confluence/internal/domain/models"
)

// Default fusion dimensions.
const (
	DimTechnical      = "technical"
	DimVolume         = "volume"
	DimOrderflow      = "orderflow"
	DimOrderbook      = "orderbook"
	DimPriceStructure = "price_structure"
	DimSentiment      = "sentiment"
)

var Dimensions = []string{DimTechnical, DimVolume, DimOrderflow, DimOrderbook, DimPriceStructure, DimSentiment}

// Scorer derives the default dimensions from a snapshot. Every dimension is
// present in the output; NaN marks one whose inputs are missing.
type Scorer struct {
	maPeriod      int
	depthLevels   int
	momentumScale float64 // percent distance from MA that maps to tanh(1)
	changeScale   float64 // 24h change percent that maps to tanh(1)
}

type ScorerOption func(*Scorer)

func WithMAPeriod(n int) ScorerOption {
	return func(s *Scorer) { s.maPeriod = n }
}

func WithDepthLevels(n int) ScorerOption {
	return func(s *Scorer) { s.depthLevels = n }
}

func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		maPeriod:      20,
		depthLevels:   10,
		momentumScale: 2,
		changeScale:   5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scorer) Score(snap *models.Snapshot) map[string]float64 {
	out := make(map[string]float64, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = math.NaN()
	}
	if snap == nil {
		return out
	}

	closes := make([]float64, 0, len(snap.Candles))
	for _, c := range snap.Candles {
		closes = append(closes, c.Close)
	}

	if v, ok := s.technical(closes); ok {
		out[DimTechnical] = v
	}
	if v, ok := s.volume(snap, closes); ok {
		out[DimVolume] = v
	}
	if v, ok := orderflow(snap.Trades); ok {
		out[DimOrderflow] = v
	}
	if v, ok := s.orderbook(snap.OrderBook); ok {
		out[DimOrderbook] = v
	}
	if v, ok := priceStructure(snap.Candles); ok {
		out[DimPriceStructure] = v
	}
	if snap.Ticker != nil {
		out[DimSentiment] = Centered(math.Tanh(snap.Ticker.Change24h / s.changeScale))
	}
	return out
}

// technical is momentum of the last close against its moving average.
func (s *Scorer) technical(closes []float64) (float64, bool) {
	if len(closes) < s.maPeriod {
		return 0, false
	}
	sma := Mean(closes[len(closes)-s.maPeriod:])
	if sma <= 0 {
		return 0, false
	}
	pct := (closes[len(closes)-1] - sma) / sma * 100
	return Centered(math.Tanh(pct / s.momentumScale)), true
}

// volume rewards above-baseline participation in the direction price moved.
// Below-baseline volume carries no conviction and scores neutral.
func (s *Scorer) volume(snap *models.Snapshot, closes []float64) (float64, bool) {
	ratio := 0.0
	switch {
	case snap.Activity != nil:
		ratio = snap.Activity.VolumeRatio
	case len(snap.Candles) >= 2:
		vols := make([]float64, 0, len(snap.Candles)-1)
		for _, c := range snap.Candles[:len(snap.Candles)-1] {
			vols = append(vols, c.Volume)
		}
		if m := Mean(vols); m > 0 {
			ratio = snap.Candles[len(snap.Candles)-1].Volume / m
		}
	}
	if ratio <= 0 {
		return 0, false
	}

	dir := 0.0
	switch {
	case len(closes) >= 2:
		dir = sign(closes[len(closes)-1] - closes[0])
	case snap.Ticker != nil:
		dir = sign(snap.Ticker.Change24h)
	}
	strength := math.Max(0, math.Tanh(math.Log(ratio)))
	return Centered(dir * strength), true
}

// orderflow is the taker buy/sell size imbalance of recent trades.
func orderflow(trades []models.Trade) (float64, bool) {
	buy, sell := decimal.Zero, decimal.Zero
	for _, t := range trades {
		switch t.Side {
		case models.SideBuy:
			buy = buy.Add(t.Size)
		case models.SideSell:
			sell = sell.Add(t.Size)
		}
	}
	total := buy.Add(sell)
	if !total.IsPositive() {
		return 0, false
	}
	imb, _ := buy.Sub(sell).Div(total).Float64()
	return Centered(imb), true
}

// orderbook is the resting size imbalance across the top levels.
func (s *Scorer) orderbook(ob *models.OrderBook) (float64, bool) {
	if ob == nil {
		return 0, false
	}
	bids := depth(ob.Bids, s.depthLevels)
	asks := depth(ob.Asks, s.depthLevels)
	total := bids.Add(asks)
	if !total.IsPositive() {
		return 0, false
	}
	imb, _ := bids.Sub(asks).Div(total).Float64()
	return Centered(imb), true
}

func depth(levels []models.Level, n int) decimal.Decimal {
	sum := decimal.Zero
	for i, l := range levels {
		if i >= n {
			break
		}
		sum = sum.Add(l.Size)
	}
	return sum
}

// priceStructure places the last close inside the observed high/low range.
func priceStructure(candles []models.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	hi, lo := candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	if hi <= lo {
		return 50, true
	}
	last := candles[len(candles)-1].Close
	return Clamp((last-lo)/(hi-lo)*100, 0, 100), true
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
