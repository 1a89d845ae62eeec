package detector

import (
	"math"
	"sort"
)

// calculateMean calculates the mean of values
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculatePopulationStdDev divides by N. Used by the detection rules.
func calculatePopulationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// calculateStdDev calculates the sample standard deviation (N-1) of values
func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// CalculateZScore calculates the Z-score for a value given mean and standard
// deviation. A zero or undefined deviation yields 0.
func CalculateZScore(value, mean, stdDev float64) float64 {
	if stdDev == 0 || math.IsNaN(stdDev) || math.IsInf(stdDev, 0) {
		return 0
	}
	return (value - mean) / stdDev
}

// negligible reports whether stdDev is zero up to floating point noise
// relative to the magnitude of mean.
func negligible(stdDev, mean float64) bool {
	return stdDev <= 1e-12*math.Max(1, math.Abs(mean))
}

// quantile returns the q-th quantile of values using linear interpolation
// between closest ranks. values need not be sorted.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
