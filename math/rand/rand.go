package rand

import (
	"math/rand"

	"github.com/seehuhn/mt19937"
)

func NewMt19937(seed int64) *rand.Rand {
	src := mt19937.New()
	src.Seed(seed)
	return rand.New(src)
}

// IntByWeight draws an index by inverse-CDF over ws. ws need not be normalized.
func IntByWeight[X ~float32 | ~float64](ws []X, rng *rand.Rand) int {
	var sum float64
	for _, w := range ws {
		sum += float64(w)
	}
	threshold := rng.Float64() * sum
	var cum float64
	last := 0
	for i, w := range ws {
		if w <= 0 {
			continue
		}
		cum += float64(w)
		last = i
		if threshold < cum {
			return i
		}
	}
	// 丸め誤差対策
	return last
}

func Choice[S ~[]E, E any](s S, rng *rand.Rand) E {
	return s[rng.Intn(len(s))]
}

func Bool(p float64, rng *rand.Rand) bool {
	return rng.Float64() < p
}
