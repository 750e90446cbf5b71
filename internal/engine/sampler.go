package engine

import "sort"

// pickWithoutReplacement draws k distinct indices by weight, removing each
// chosen weight from the pool before the next draw. The result is sorted
// into declaration order.
func pickWithoutReplacement(rng *RNG, weights []float64, k int) []int {
	n := len(weights)
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if k <= 0 {
		return nil
	}

	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}
	pool := make([]float64, n)
	copy(pool, weights)

	chosen := make([]int, 0, k)
	for len(chosen) < k {
		at := rng.WeightedIndex(pool)
		chosen = append(chosen, remaining[at])
		remaining = append(remaining[:at], remaining[at+1:]...)
		pool = append(pool[:at], pool[at+1:]...)
	}

	sort.Ints(chosen)
	return chosen
}

func shuffleInts(rng *RNG, v []int) {
	rng.Shuffle(len(v), func(i, j int) { v[i], v[j] = v[j], v[i] })
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
