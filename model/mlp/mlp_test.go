package mlp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/brawler/blas32/vector"
	cmath "github.com/sw965/brawler/math"
	crand "github.com/sw965/brawler/math/rand"
	"github.com/sw965/brawler/model/mlp"
	"gonum.org/v1/gonum/blas/blas32"
)

func newModel() mlp.Model {
	rng := crand.NewMt19937(42)
	model := mlp.Model{}
	model.AppendAffine(3, 5, rng)
	model.AppendLeakyReLU(0.1)
	model.AppendAffine(5, 2, rng)
	return model
}

// loss = 0.5 * ||y||^2, so dL/dy = y.
func halfSquaredLoss(model *mlp.Model, x blas32.Vector) float32 {
	y, err := model.Predict(x)
	if err != nil {
		panic(err)
	}
	return 0.5 * vector.SquaredNorm(y)
}

func TestBackPropagateMatchesNumericalGradient(t *testing.T) {
	model := newModel()
	x := vector.FromSlice([]float32{0.3, -0.7, 1.1})

	y, backwards, err := model.Propagate(x)
	require.NoError(t, err)
	_, grads, err := backwards.Propagate(vector.Clone(y))
	require.NoError(t, err)
	require.Len(t, grads, len(model.Parameters))

	for _, layer := range []int{0, 2} {
		w := model.Parameters[layer].Weight.Data
		numerical := cmath.NumericalGradient(w, 1e-3, func([]float32) float32 {
			return halfSquaredLoss(&model, x)
		})
		for i := range w {
			assert.InDelta(t, numerical[i], grads[layer].Weight.Data[i], 1e-2, "layer %d weight %d", layer, i)
		}

		b := model.Parameters[layer].Bias.Data
		numerical = cmath.NumericalGradient(b, 1e-3, func([]float32) float32 {
			return halfSquaredLoss(&model, x)
		})
		for i := range b {
			assert.InDelta(t, numerical[i], grads[layer].Bias.Data[i], 1e-2, "layer %d bias %d", layer, i)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	model := newModel()
	clone := model.Clone()
	clone.Parameters[0].Weight.Data[0] += 10.0
	assert.NotEqual(t, model.Parameters[0].Weight.Data[0], clone.Parameters[0].Weight.Data[0])

	x := vector.FromSlice([]float32{1, 1, 1})
	a, err := model.Predict(x)
	require.NoError(t, err)
	fresh := newModel()
	b, err := fresh.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestGradBuffersAxpyAndNorm(t *testing.T) {
	model := newModel()
	grads := model.Parameters.NewGradsZerosLike()
	ones := grads.NewZerosLike()
	for i := range ones {
		for j := range ones[i].Weight.Data {
			ones[i].Weight.Data[j] = 1.0
		}
		for j := range ones[i].Bias.Data {
			ones[i].Bias.Data[j] = 1.0
		}
	}
	grads.Axpy(2.0, ones)
	assert.InDelta(t, float32(4*model.Parameters.Count()), grads.SquaredNorm(), 1e-3)
	grads.Scal(0.5)
	assert.InDelta(t, float32(model.Parameters.Count()), grads.SquaredNorm(), 1e-3)
}

func TestPropagateRejectsWrongInputSize(t *testing.T) {
	model := newModel()
	_, err := model.Predict(vector.FromSlice([]float32{1, 2}))
	assert.Error(t, err)
}
