package models

import "time"

// Sentiment is the directional classification of a fused score.
type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
)

// ComponentScore is one analysis dimension fed into fusion.
// Value is expected on 0..100 but may arrive NaN/Inf.
type ComponentScore struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// ConfluenceResult is the fused signal for one symbol. Immutable once produced.
type ConfluenceResult struct {
	Symbol     string                    `json:"symbol"`
	Score      float64                   `json:"score"`
	Consensus  float64                   `json:"consensus"`
	Confidence float64                   `json:"confidence"`
	Sentiment  Sentiment                 `json:"sentiment"`
	Components map[string]ComponentScore `json:"components"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// ComponentBreakdown is the per-dimension detail stored under the breakdown key.
type ComponentBreakdown struct {
	Score      float64 `json:"score"`
	Weight     float64 `json:"weight"`
	Normalized float64 `json:"normalized"`
	Sanitized  bool    `json:"sanitized,omitempty"`
}

// Breakdown is the payload of confluence:breakdown:<symbol>.
type Breakdown struct {
	Symbol     string                        `json:"symbol"`
	Signal     float64                       `json:"signal"`
	Dispersion float64                       `json:"dispersion"`
	BaseScore  float64                       `json:"base_score"`
	Amplified  bool                          `json:"amplified"`
	Components map[string]ComponentBreakdown `json:"components"`
	Timestamp  time.Time                     `json:"timestamp"`
}

// SignalEvent is the published form of a fused result.
type SignalEvent struct {
	ID     string           `json:"id"`
	Result ConfluenceResult `json:"result"`
}

// SymbolRequest is the query of the per-symbol read endpoints.
type SymbolRequest struct {
	Symbol string `query:"symbol" validate:"required,min=1,max=32"`
}
