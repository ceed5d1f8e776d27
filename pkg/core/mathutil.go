package core

import "golang.org/x/exp/constraints"

// Clamp limits v to the closed range [lo, hi]
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NextPowerOfTwo returns the smallest power of two that is >= v (and >= 1)
func NextPowerOfTwo[T constraints.Integer](v T) T {
	var p T = 1
	for p < v {
		p <<= 1
	}
	return p
}
