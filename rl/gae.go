package rl

import (
	"fmt"

	"github.com/chewxy/math32"
)

const NormalizeEpsilon = 1e-8

// GAE walks the rollout backward. The bootstrap value is zero past the end of
// the buffer and on any step with done set, so advantages never cross episodes.
func GAE(rewards, values []float32, dones []bool, gamma, lambda float32) (advantages, returns []float32, err error) {
	n := len(rewards)
	if len(values) != n || len(dones) != n {
		return nil, nil, fmt.Errorf("gae: length mismatch rewards=%d values=%d dones=%d", n, len(values), len(dones))
	}

	advantages = make([]float32, n)
	returns = make([]float32, n)
	var next float32
	for t := n - 1; t >= 0; t-- {
		var nextValue float32
		if t+1 < n {
			nextValue = values[t+1]
		}
		notDone := float32(1.0)
		if dones[t] {
			notDone = 0.0
		}
		delta := rewards[t] + gamma*nextValue*notDone - values[t]
		next = delta + gamma*lambda*next*notDone
		advantages[t] = next
		returns[t] = next + values[t]
	}
	return advantages, returns, nil
}

func (b *Buffer) GAE(gamma, lambda float32) ([]float32, []float32, error) {
	return GAE(b.Rewards(), b.Values(), b.Dones(), gamma, lambda)
}

// Normalize rescales xs in place to zero mean and unit standard deviation.
func Normalize(xs []float32) {
	n := len(xs)
	if n == 0 {
		return
	}
	var mean float32
	for _, x := range xs {
		mean += x
	}
	mean /= float32(n)

	var variance float32
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float32(n)
	std := math32.Sqrt(variance) + NormalizeEpsilon

	for i := range xs {
		xs[i] = (xs[i] - mean) / std
	}
}
