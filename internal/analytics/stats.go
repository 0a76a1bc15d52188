package analytics

import (
	"math"
	"slices"
)

// round rounds half away from zero to the given number of decimals
func round(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}

// decade floors a year to its decade
func decade(year int32) int32 {
	return int32(math.Floor(float64(year)/10)) * 10
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median interpolates between the two middle values of an even-sized sample
func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// limit truncates s to at most n elements
func limit[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
