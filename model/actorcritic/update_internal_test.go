package actorcritic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cmath "github.com/sw965/brawler/math"
	crand "github.com/sw965/brawler/math/rand"
	"github.com/sw965/brawler/rl"
)

func TestBackwardMatchesNumericalGradient(t *testing.T) {
	p, err := New(Config{ObsSize: 3, ActionSize: 4, HiddenSize: 6, LearningRate: 1e-3}, crand.NewMt19937(11))
	require.NoError(t, err)

	obs := []float32{0.4, -0.9, 1.3}
	s, err := p.SampleAction(obs, SampleOptions{}, crand.NewMt19937(11))
	require.NoError(t, err)
	tr := rl.Transition{Observation: obs, Action: s.Action, LogProb: s.LogProb}

	cfg := DefaultUpdateConfig()
	cfg.EntropyCoef = 0.1
	const advantage, ret = 0.7, 1.5

	loss := func() float32 {
		res, err := p.backward(tr, advantage, ret, cfg, nil)
		require.NoError(t, err)
		return res.policyLoss + cfg.ValueCoef*res.valueLoss - cfg.EntropyCoef*res.entropy
	}

	params := p.parameters()
	grads := params.NewGradsZerosLike()
	_, err = p.backward(tr, advantage, ret, cfg, grads)
	require.NoError(t, err)

	for i := range params {
		if params[i].IsEmpty() {
			continue
		}
		w := params[i].Weight.Data
		numerical := cmath.NumericalGradient(w, 1e-3, func([]float32) float32 { return loss() })
		for j := range w {
			assert.InDelta(t, numerical[j], grads[i].Weight.Data[j], 5e-3, "param %d weight %d", i, j)
		}
		b := params[i].Bias.Data
		numerical = cmath.NumericalGradient(b, 1e-3, func([]float32) float32 { return loss() })
		for j := range b {
			assert.InDelta(t, numerical[j], grads[i].Bias.Data[j], 5e-3, "param %d bias %d", i, j)
		}
	}
}
