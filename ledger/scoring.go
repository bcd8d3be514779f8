package ledger

import (
	"math"
	"time"
)

// ScoringConfig holds the thresholds for the risk and pattern heuristics.
// The values are tunable configuration, not a contract: the defaults mirror
// the placeholder arithmetic of the system this service models.
type ScoringConfig struct {
	// Recency weighting for risk scoring.
	RecencyHot  time.Duration `yaml:"recency_hot"`
	RecencyWarm time.Duration `yaml:"recency_warm"`
	HotWeight   float64       `yaml:"hot_weight"`
	WarmWeight  float64       `yaml:"warm_weight"`
	ColdWeight  float64       `yaml:"cold_weight"`

	// Magnitude weighting for risk scoring, amounts in ether.
	LargeAmount  float64 `yaml:"large_amount"`
	MediumAmount float64 `yaml:"medium_amount"`
	LargeWeight  float64 `yaml:"large_weight"`
	MediumWeight float64 `yaml:"medium_weight"`

	// Burst detection for pattern scoring.
	BurstWindow time.Duration `yaml:"burst_window"`
	RapidWindow time.Duration `yaml:"rapid_window"`
	BurstWeight float64       `yaml:"burst_weight"`
	RapidWeight float64       `yaml:"rapid_weight"`

	// Amount-similarity detection for pattern scoring. Tolerance is the
	// relative delta below which two amounts count as similar.
	SimilarityTolerance float64 `yaml:"similarity_tolerance"`
	SimilarityWeight    float64 `yaml:"similarity_weight"`

	// MaxScore caps both scores.
	MaxScore float64 `yaml:"max_score"`
}

// DefaultScoringConfig returns the stock thresholds.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		RecencyHot:          time.Hour,
		RecencyWarm:         24 * time.Hour,
		HotWeight:           20,
		WarmWeight:          10,
		ColdWeight:          5,
		LargeAmount:         100,
		MediumAmount:        10,
		LargeWeight:         30,
		MediumWeight:        15,
		BurstWindow:         5 * time.Minute,
		RapidWindow:         time.Hour,
		BurstWeight:         30,
		RapidWeight:         10,
		SimilarityTolerance: 0.10,
		SimilarityWeight:    20,
		MaxScore:            100,
	}
}

// RiskScore combines a recency signal and a magnitude signal per item and
// averages over the set. Returns 0 for an empty set.
func (c ScoringConfig) RiskScore(items []TransactionData, now time.Time) float64 {
	if len(items) == 0 {
		return 0
	}

	total := 0.0
	for _, tx := range items {
		age := now.Sub(time.UnixMilli(tx.Timestamp))
		score := c.ColdWeight
		if age < c.RecencyHot {
			score = c.HotWeight
		} else if age < c.RecencyWarm {
			score = c.WarmWeight
		}

		if tx.Amount > c.LargeAmount {
			score += c.LargeWeight
		} else if tx.Amount > c.MediumAmount {
			score += c.MediumWeight
		}
		total += score
	}
	return math.Min(total/float64(len(items)), c.MaxScore)
}

// PatternScore weighs consecutive pairs: a burst weight when the time delta
// between two items is short, and a similarity weight when their amounts are
// within tolerance of each other. Returns 0 for fewer than two items.
func (c ScoringConfig) PatternScore(items []TransactionData) float64 {
	if len(items) < 2 {
		return 0
	}

	total := 0.0
	pairs := 0
	for i := 0; i < len(items)-1; i++ {
		a, b := items[i], items[i+1]
		delta := time.Duration(b.Timestamp-a.Timestamp) * time.Millisecond
		if delta < 0 {
			delta = -delta
		}

		score := 0.0
		if delta < c.BurstWindow {
			score += c.BurstWeight
		} else if delta < c.RapidWindow {
			score += c.RapidWeight
		}

		if similar(a.Amount, b.Amount, c.SimilarityTolerance) {
			score += c.SimilarityWeight
		}
		total += score
		pairs++
	}
	return math.Min(total/float64(pairs), c.MaxScore)
}

func similar(a, b, tolerance float64) bool {
	max := math.Max(math.Abs(a), math.Abs(b))
	if max == 0 {
		return true
	}
	return math.Abs(a-b)/max < tolerance
}
