package confluence

import (
	"math"
	"sort"
	"time"

	"Confluence/internal/domain/models"
	domsvc "Confluence/internal/domain/service"
)

const neutral = 50.0

// Engine fuses component scores into one bounded signal. Apart from the
// result timestamp it is a pure function of its inputs.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if len(cfg.Weights) == 0 {
		cfg.Weights = def.Weights
	}
	if cfg.Sensitivity <= 0 {
		cfg.Sensitivity = def.Sensitivity
	}
	if cfg.BuyThreshold == 0 && cfg.SellThreshold == 0 {
		cfg.BuyThreshold, cfg.SellThreshold = def.BuyThreshold, def.SellThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg}
}

// Weights returns the configured default weights.
func (e *Engine) Weights() map[string]float64 { return e.cfg.Weights }

type component struct {
	name      string
	score     float64
	sanitized bool
	weight    float64
	n         float64
}

// Fuse combines scores with weights (the configured weights when nil).
//
// The component set is the supplied score names; a non-finite score counts
// as neutral and a name without a usable weight gets none. When no supplied
// score is finite there is nothing to fuse and the result is neutral.
func (e *Engine) Fuse(symbol string, scores, weights map[string]float64) (models.ConfluenceResult, models.Breakdown) {
	if weights == nil {
		weights = e.cfg.Weights
	}
	now := e.cfg.Now()

	comps := collect(scores, weights)
	if !anyObserved(comps) {
		res := models.ConfluenceResult{
			Symbol:     symbol,
			Score:      neutral,
			Sentiment:  models.Neutral,
			Components: map[string]models.ComponentScore{},
			Timestamp:  now,
		}
		bd := models.Breakdown{
			Symbol:     symbol,
			BaseScore:  neutral,
			Components: map[string]models.ComponentBreakdown{},
			Timestamp:  now,
		}
		return res, bd
	}

	renormalize(comps)

	signal := 0.0
	for _, c := range comps {
		signal += c.weight * c.n
	}
	signal = clip(signal, -1, 1)

	v := dispersion(comps, signal)
	consensus := clip(math.Exp(-v*e.cfg.Sensitivity), 0, 1)
	confidence := clip(math.Abs(signal)*consensus, 0, 1)
	base := clip(signal*50+neutral, 0, 100)

	score, amplified := e.adjust(base, confidence, consensus)

	res := models.ConfluenceResult{
		Symbol:     symbol,
		Score:      score,
		Consensus:  consensus,
		Confidence: confidence,
		Sentiment:  e.sentiment(score),
		Components: make(map[string]models.ComponentScore, len(comps)),
		Timestamp:  now,
	}
	bd := models.Breakdown{
		Symbol:     symbol,
		Signal:     signal,
		Dispersion: v,
		BaseScore:  base,
		Amplified:  amplified,
		Components: make(map[string]models.ComponentBreakdown, len(comps)),
		Timestamp:  now,
	}
	for _, c := range comps {
		res.Components[c.name] = models.ComponentScore{Name: c.name, Value: c.score, Weight: c.weight}
		bd.Components[c.name] = models.ComponentBreakdown{
			Score:      c.score,
			Weight:     c.weight,
			Normalized: c.n,
			Sanitized:  c.sanitized,
		}
	}
	return res, bd
}

// collect sanitizes every component to a finite score before any arithmetic.
// Names are sorted so summation order, and therefore the result, is stable.
func collect(scores, weights map[string]float64) []component {
	out := make([]component, 0, len(scores))
	for name, s := range scores {
		c := component{name: name, score: neutral, sanitized: true}
		if !math.IsNaN(s) && !math.IsInf(s, 0) {
			c.score = s
			c.sanitized = false
		}
		if w := weights[name]; finitePositive(w) {
			c.weight = w
		}
		c.n = clip((c.score-neutral)/neutral, -1, 1)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func anyObserved(comps []component) bool {
	for _, c := range comps {
		if !c.sanitized {
			return true
		}
	}
	return false
}

// renormalize scales weights to sum to 1, falling back to equal weights when
// none of the present components carries weight.
func renormalize(comps []component) {
	total := 0.0
	for _, c := range comps {
		total += c.weight
	}
	if total <= 0 {
		eq := 1 / float64(len(comps))
		for i := range comps {
			comps[i].weight = eq
		}
		return
	}
	for i := range comps {
		comps[i].weight /= total
	}
}

// dispersion is the weighted spread around the signal. A heavily disagreeing
// component with a small weight moves it only in proportion to that weight.
func dispersion(comps []component, signal float64) float64 {
	v := 0.0
	for _, c := range comps {
		d := c.n - signal
		v += c.weight * d * d
	}
	return v
}

// adjust pushes a confident, agreeing score away from neutral and pulls
// everything else toward it.
func (e *Engine) adjust(base, confidence, consensus float64) (float64, bool) {
	if confidence > e.cfg.ConfThreshold && consensus > e.cfg.ConsThreshold {
		span := 1 - e.cfg.ConfThreshold
		boost := e.cfg.MaxAmplification
		if span > 0 {
			boost = math.Min(e.cfg.MaxAmplification, e.cfg.MaxAmplification*(confidence-e.cfg.ConfThreshold)/span)
		}
		return clip(neutral+(base-neutral)*(1+boost), 0, 100), true
	}
	return clip(neutral+(base-neutral)*(1-e.cfg.Dampening), 0, 100), false
}

func (e *Engine) sentiment(score float64) models.Sentiment {
	switch {
	case score >= e.cfg.BuyThreshold:
		return models.Bullish
	case score <= e.cfg.SellThreshold:
		return models.Bearish
	default:
		return models.Neutral
	}
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func finitePositive(w float64) bool {
	return w > 0 && !math.IsInf(w, 0)
}

var _ domsvc.Fuser = (*Engine)(nil)
