// Package scoring provides the shared float helpers every scoring stage
// (Target Inferer, Discovery Engine, Tier-2 Scorer) uses to keep confidences
// and scores in [0,1] with two-decimal rounding, avoiding the floating-point
// drift spec.md calls out explicitly ("0.6000000000000001").
package scoring

import "math"

// Clamp01 clamps v to the closed interval [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round2 rounds v to two decimal places using round-half-away-from-zero,
// avoiding binary floating point artifacts like 0.6000000000000001.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ClampRound composes Clamp01 and Round2, the common case for a final
// score or confidence value.
func ClampRound(v float64) float64 {
	return Round2(Clamp01(v))
}

// Tier2Weights configures the Tier-2 Scorer's structural and modernity
// terms (spec.md §4.8); the tier1 term carries weight 1 implicitly.
type Tier2Weights struct {
	Structural float64
	Modernity  float64
}

// Tier2 combines the Tier-1 score, structural match count, and modernity
// score into a final rank (spec.md §4.8):
//
//	tier2 = clamp01(tier1 + w_structural*min(matchCount,3)/3 + w_modernity*modernityScore)
//
// Deterministic over its inputs; ties are broken by the caller on tier1
// descending, since this function only computes the scalar.
func Tier2(tier1 float64, matchCount int, modernityScore float64, w Tier2Weights) float64 {
	structuralTerm := w.Structural * float64(min(matchCount, 3)) / 3
	modernityTerm := w.Modernity * modernityScore
	return ClampRound(tier1 + structuralTerm + modernityTerm)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
