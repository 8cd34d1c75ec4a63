package service

import (
	"Confluence/internal/domain/models"
)

// ComponentScorer turns a market snapshot into per-dimension scores on 0..100.
// Missing inputs are reported as NaN rather than omitted.
type ComponentScorer interface {
	Score(snap *models.Snapshot) map[string]float64
}

// Fuser combines component scores into one confluence result.
type Fuser interface {
	Fuse(symbol string, scores, weights map[string]float64) (models.ConfluenceResult, models.Breakdown)
}
