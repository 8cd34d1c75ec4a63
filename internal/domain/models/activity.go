package models

import "time"

// ActivitySample is one observation of market activity for a symbol.
type ActivitySample struct {
	Symbol        string    `json:"symbol"`
	VolumeRatio   float64   `json:"volume_ratio"`
	Volatility    float64   `json:"volatility"`
	ActiveSymbols int       `json:"active_symbols"`
	Timestamp     time.Time `json:"timestamp"`
}
