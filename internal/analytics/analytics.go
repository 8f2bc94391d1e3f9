// Package analytics holds stateless price-scale features over the base
// stream. Every function degrades to 0 on insufficient data.
package analytics

import "math"

// Momentum returns the percent change between the newest value and the value
// spanMinutes earlier, stepping back span/base samples.
func Momentum(values []float64, spanMinutes, baseMinutes int) float64 {
	if baseMinutes <= 0 || spanMinutes <= 0 {
		return 0
	}
	steps := spanMinutes / baseMinutes
	if steps < 1 {
		steps = 1
	}
	n := len(values)
	if n < steps+1 {
		return 0
	}
	ref := values[n-1-steps]
	if ref == 0 {
		return 0
	}
	return (values[n-1] - ref) / ref * 100
}

// PseudoATR is the mean absolute one-step change over the last window diffs
// ending at index i. Fewer diffs are used when the history is shorter.
func PseudoATR(values []float64, i, window int) float64 {
	if i <= 0 || i >= len(values) || window <= 0 {
		return 0
	}
	start := i - window
	if start < 0 {
		start = 0
	}
	var sum float64
	for j := start + 1; j <= i; j++ {
		sum += math.Abs(values[j] - values[j-1])
	}
	return sum / float64(i-start)
}

// Volatility is the sample standard deviation of the last window values
// ending at index i.
func Volatility(values []float64, i, window int) float64 {
	if i < 0 || i >= len(values) || window < 2 {
		return 0
	}
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	return StdDev(values[start : i+1])
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation (n-1 denominator), or 0 when
// fewer than two values exist.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Percent expresses v as a percentage of price; 0 when price is not positive.
func Percent(v, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return v / price * 100
}
