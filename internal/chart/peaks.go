package chart

import (
	"math"
	"sort"
)

// PeakOptions constrains FindPeaks. Zero values disable a constraint.
type PeakOptions struct {
	// Distance is the minimal index separation between kept peaks. Higher
	// peaks win; the value is rounded up.
	Distance float64
	// Prominence is the minimal topographic prominence of a kept peak.
	Prominence float64
}

// FindPeaks returns the indices of local maxima of x in ascending order.
// A flat top counts once, at its midpoint (rounded down); the first and last
// samples are never peaks. Distance filtering runs before prominence.
func FindPeaks(x []float64, opt PeakOptions) []int {
	peaks := localMaxima(x)
	if opt.Distance > 1 && len(peaks) > 1 {
		peaks = selectByDistance(x, peaks, int(math.Ceil(opt.Distance)))
	}
	if opt.Prominence > 0 && len(peaks) > 0 {
		prom := Prominences(x, peaks)
		kept := peaks[:0:0]
		for i, p := range peaks {
			if prom[i] >= opt.Prominence {
				kept = append(kept, p)
			}
		}
		peaks = kept
	}
	return peaks
}

// FindTroughs is FindPeaks on the negated series.
func FindTroughs(x []float64, opt PeakOptions) []int {
	neg := make([]float64, len(x))
	for i, v := range x {
		neg[i] = -v
	}
	return FindPeaks(neg, opt)
}

func localMaxima(x []float64) []int {
	var peaks []int
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				left, right := i, ahead-1
				peaks = append(peaks, (left+right)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// selectByDistance keeps the highest peaks first and removes any lower peak
// closer than distance to a kept one.
func selectByDistance(x []float64, peaks []int, distance int) []int {
	n := len(peaks)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[peaks[order[a]]] < x[peaks[order[b]]] })

	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	for i := n - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < n && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, n)
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// Prominences computes the topographic prominence of each peak: its height
// above the higher of the lowest points reachable on either side before
// meeting a higher sample.
func Prominences(x []float64, peaks []int) []float64 {
	out := make([]float64, len(peaks))
	for i, p := range peaks {
		h := x[p]

		leftMin := h
		for j := p; j >= 0 && x[j] <= h; j-- {
			if x[j] < leftMin {
				leftMin = x[j]
			}
		}
		rightMin := h
		for j := p; j < len(x) && x[j] <= h; j++ {
			if x[j] < rightMin {
				rightMin = x[j]
			}
		}
		out[i] = h - math.Max(leftMin, rightMin)
	}
	return out
}
