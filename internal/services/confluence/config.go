package confluence

import "time"

// Config tunes fusion. Thresholds are configuration, not constants: the
// 0.50/0.75 pair is the default and the older 0.70/0.80 pair is still valid.
type Config struct {
	Weights map[string]float64

	ConfThreshold float64
	ConsThreshold float64
	BuyThreshold  float64
	SellThreshold float64

	// Sensitivity is k in consensus = exp(-V*k).
	Sensitivity      float64
	MaxAmplification float64
	Dampening        float64

	Now func() time.Time
}

// DefaultWeights are the six standard dimensions.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"technical":       0.30,
		"volume":          0.20,
		"orderflow":       0.20,
		"orderbook":       0.15,
		"price_structure": 0.10,
		"sentiment":       0.05,
	}
}

func DefaultConfig() Config {
	return Config{
		Weights:          DefaultWeights(),
		ConfThreshold:    0.50,
		ConsThreshold:    0.75,
		BuyThreshold:     60,
		SellThreshold:    40,
		Sensitivity:      2,
		MaxAmplification: 0.15,
		Dampening:        0.05,
		Now:              time.Now,
	}
}
