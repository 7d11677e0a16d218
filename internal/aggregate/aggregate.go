// Package aggregate implements Component D, the score aggregator: pure
// reductions of a per-illustration score vector into a single
// per-artist score.
package aggregate

import "sort"

// Strategy names the reduction rule. The zero value is not valid; use
// one of the named constants.
type Strategy string

const (
	Max          Strategy = "max"
	Mean         Strategy = "mean"
	WeightedMean Strategy = "weighted_mean"
	TopKMean     Strategy = "top_k_mean"
)

// Valid reports whether s is one of the four known strategies.
func Valid(s Strategy) bool {
	switch s {
	case Max, Mean, WeightedMean, TopKMean:
		return true
	default:
		return false
	}
}

// Aggregate reduces a non-empty sequence of per-illustration scores
// (already mapped to [0, 1]) to a single artist score. An empty scores
// slice is a programmer error — callers must filter artists with no
// embeddings before aggregation — and panics rather than silently
// returning 0.
func Aggregate(strategy Strategy, scores []float32, topK int) float32 {
	if len(scores) == 0 {
		panic("aggregate: Aggregate called with no scores")
	}

	switch strategy {
	case Max:
		return maxOf(scores)
	case Mean:
		return meanOf(scores)
	case WeightedMean:
		return weightedMeanOf(scores)
	case TopKMean:
		return topKMeanOf(scores, topK)
	default:
		panic("aggregate: unknown strategy " + string(strategy))
	}
}

func maxOf(scores []float32) float32 {
	m := scores[0]
	for _, s := range scores[1:] {
		if s > m {
			m = s
		}
	}
	return m
}

func meanOf(scores []float32) float32 {
	var sum float32
	for _, s := range scores {
		sum += s
	}
	return sum / float32(len(scores))
}

// weightedMeanOf computes (Σsᵢ²)/(Σsᵢ), falling back to 0 when all
// scores are 0 (Σsᵢ = 0 would otherwise divide by zero).
func weightedMeanOf(scores []float32) float32 {
	var sumSq, sum float32
	for _, s := range scores {
		sumSq += s * s
		sum += s
	}
	if sum <= 0 {
		return 0
	}
	return sumSq / sum
}

// topKMeanOf returns the mean of the min(k, n) largest values.
func topKMeanOf(scores []float32, k int) float32 {
	if k <= 0 {
		k = 3
	}
	if k > len(scores) {
		k = len(scores)
	}

	sorted := make([]float32, len(scores))
	copy(sorted, scores)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	var sum float32
	for _, s := range sorted[:k] {
		sum += s
	}
	return sum / float32(k)
}

// CosineToScore maps a cosine similarity in [-1, 1] to a score in
// [0, 1], clamping to absorb float rounding at the boundaries.
func CosineToScore(cosine float32) float32 {
	s := (cosine + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
