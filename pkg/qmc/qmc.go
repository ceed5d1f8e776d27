// Package qmc generates the low-discrepancy sequences used to place jittered
// samples. Every value is a pure function of (dimension, index), so sample
// positions never depend on evaluation order.
package qmc

import "math/bits"

// MaxSigmaOrder bounds the order accepted by Sigma
const MaxSigmaOrder = 15

// NumDimensions is the number of Halton dimensions available
const NumDimensions = 128

var (
	primes [NumDimensions]int
	faure  [NumDimensions][]int
)

func init() {
	primes[0] = 2
	for i := 1; i < NumDimensions; i++ {
		primes[i] = nextPrime(primes[i-1])
	}

	// Faure permutations are built incrementally for every base up to the
	// largest prime: even bases double the half-size permutation, odd bases
	// insert their median into the previous one.
	largest := primes[NumDimensions-1]
	table := make([][]int, largest+1)
	table[2] = []int{0, 1}
	for b := 3; b <= largest; b++ {
		perm := make([]int, b)
		if b&1 == 0 {
			prev := table[b>>1]
			for j, v := range prev {
				perm[j] = 2 * v
				perm[len(prev)+j] = 2*v + 1
			}
		} else {
			prev := table[b-1]
			med := (b - 1) >> 1
			bump := func(v int) int {
				if v >= med {
					return v + 1
				}
				return v
			}
			for j := 0; j < med; j++ {
				perm[j] = bump(prev[j])
				perm[med+j+1] = bump(prev[med+j])
			}
			perm[med] = med
		}
		table[b] = perm
	}
	for d, p := range primes {
		faure[d] = table[p]
	}
}

func nextPrime(p int) int {
	p = p + (p & 1) + 1
	for {
		isPrime := true
		for div := 3; isPrime && div*div <= p; div += 2 {
			isPrime = p%div != 0
		}
		if isPrime {
			return p
		}
		p += 2
	}
}

// Prime returns the base used for dimension d
func Prime(d int) int {
	return primes[d]
}

// Halton returns the i-th element of the generalized Halton sequence in
// dimension d, in [0,1). Dimension 0 is the base-2 radical inverse, dimension
// 1 the plain base-3 radical inverse, and higher dimensions use prime bases
// with Faure-scrambled digits.
func Halton(d, i int) float64 {
	switch d {
	case 0:
		return float64(bits.Reverse32(uint32(i))) / (1 << 32)
	case 1:
		return radicalInverse(3, nil, i)
	}
	return radicalInverse(primes[d], faure[d], i)
}

func radicalInverse(base int, perm []int, i int) float64 {
	v := 0.0
	inv := 1.0 / float64(base)
	p := inv
	for n := uint32(i); n != 0; n /= uint32(base) {
		digit := int(n % uint32(base))
		if perm != nil {
			digit = perm[digit]
		}
		v += float64(digit) * p
		p *= inv
	}
	return v
}

// Sigma is the bit-reversal permutation of [0, 2^order): it equals
// 2^order * Halton(0, i) and is used to seed per-pixel sample indices.
func Sigma(i, order int) int {
	return int(bits.Reverse32(uint32(i)) >> (32 - uint(order)))
}

// Mod1 returns the fractional part of a non-negative x
func Mod1(x float64) float64 {
	return x - float64(int64(x))
}
