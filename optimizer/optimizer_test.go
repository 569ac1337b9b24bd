package optimizer_test

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tensor2d "github.com/sw965/brawler/blas32/tensor/2d"
	"github.com/sw965/brawler/blas32/vector"
	"github.com/sw965/brawler/model/mlp"
	"github.com/sw965/brawler/optimizer"
)

// f(w) = sum (w - 3)^2
func quadratic() (mlp.Parameters, func(mlp.Parameters) mlp.GradBuffers) {
	params := mlp.Parameters{{
		Weight: tensor2d.NewZeros(2, 2),
		Bias:   vector.NewZeros(2),
	}}
	grad := func(ps mlp.Parameters) mlp.GradBuffers {
		gs := ps.NewGradsZerosLike()
		for i, w := range ps[0].Weight.Data {
			gs[0].Weight.Data[i] = 2 * (w - 3)
		}
		for i, b := range ps[0].Bias.Data {
			gs[0].Bias.Data[i] = 2 * (b - 3)
		}
		return gs
	}
	return params, grad
}

func TestAdamConverges(t *testing.T) {
	params, grad := quadratic()
	adam := optimizer.NewAdam(params, 0.1)
	for i := 0; i < 500; i++ {
		require.NoError(t, adam.Step(params, grad(params)))
	}
	assert.Equal(t, 500, adam.Iter())
	for _, w := range params[0].Weight.Data {
		assert.InDelta(t, 3.0, w, 0.05)
	}
	for _, b := range params[0].Bias.Data {
		assert.InDelta(t, 3.0, b, 0.05)
	}
}

func TestMomentumConverges(t *testing.T) {
	params, grad := quadratic()
	opt := optimizer.NewMomentum(params, 0.05, 0.9)
	for i := 0; i < 500; i++ {
		require.NoError(t, opt.Step(params, grad(params)))
	}
	for _, w := range params[0].Weight.Data {
		assert.InDelta(t, 3.0, w, 0.05)
	}
}

func TestStepRejectsMismatchedGrads(t *testing.T) {
	params, _ := quadratic()
	adam := optimizer.NewAdam(params, 0.1)
	assert.Error(t, adam.Step(params, mlp.GradBuffers{}))
}

func TestClipGradNorm(t *testing.T) {
	params, grad := quadratic()
	gs := grad(params) // every element is -6, 6 elements
	before := optimizer.ClipGradNorm(gs, 1.0)
	assert.InDelta(t, 6*math32.Sqrt(6), before, 1e-4)
	assert.InDelta(t, 1.0, math32.Sqrt(gs.SquaredNorm()), 1e-4)

	gs = grad(params)
	optimizer.ClipGradNorm(gs, 0)
	assert.InDelta(t, 216.0, gs.SquaredNorm(), 1e-3)
}
