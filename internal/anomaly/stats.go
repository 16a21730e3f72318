package anomaly

import (
	"math"
	"sort"
)

// computeBaseline derives statistics from the non-missing samples. Population
// std; percentiles use linear interpolation.
func computeBaseline(values []float64) Baseline {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Baseline{}
	}

	sum := 0.0
	for _, v := range clean {
		sum += v
	}
	mean := sum / float64(len(clean))

	variance := 0.0
	for _, v := range clean {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(clean))

	sorted := append([]float64(nil), clean...)
	sort.Float64s(sorted)

	return Baseline{
		Mean:   mean,
		Std:    math.Sqrt(variance),
		Median: percentile(sorted, 50),
		Q1:     percentile(sorted, 25),
		Q3:     percentile(sorted, 75),
	}
}

// percentile expects sorted input.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
