package engine

import "math"

// RNG is a SplitMix64 stream. It is small, fast, and its output for a given
// seed is fixed, which keeps expansions reproducible across platforms and Go
// releases. Position counts the values drawn so far.
type RNG struct {
	state uint64
	pos   int64
}

const golden = 0x9E3779B97F4A7C15

func NewRNG(seed uint64) *RNG {
	return &RNG{state: seed}
}

func (r *RNG) Uint64() uint64 {
	r.pos++
	r.state += golden
	return mix64(r.state)
}

// Float64 returns a uniform value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.Uint64()>>11) * (1.0 / (1 << 53))
}

// IntN returns a uniform value in [0, n). It returns 0 without drawing when
// n <= 1.
func (r *RNG) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	v := int(r.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// WeightedIndex picks an index with probability proportional to its weight
// by inverse CDF: the first index whose cumulative weight exceeds the drawn
// value wins. Non-positive weights are never picked unless every weight is
// non-positive, in which case the pick is uniform. One value is drawn per
// call, even for a single candidate.
func (r *RNG) WeightedIndex(weights []float64) int {
	if len(weights) == 0 {
		return -1
	}

	total := 0.0
	last := -1
	for i, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			total += w
			last = i
		}
	}
	if total <= 0 {
		return r.IntN(len(weights))
	}

	target := r.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		if w <= 0 || math.IsInf(w, 0) {
			continue
		}
		cumulative += w
		if target < cumulative {
			return i
		}
	}
	return last
}

// Shuffle permutes n elements with Fisher–Yates.
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		swap(i, j)
	}
}

func (r *RNG) Position() int64 {
	return r.pos
}

// DeriveSeed returns an independent seed for sub-stream n of seed. It is used
// to give parallel expansions their own streams.
func DeriveSeed(seed uint64, n uint64) uint64 {
	return mix64(seed ^ mix64((n+1)*golden))
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
