package vector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sw965/brawler/blas32/vector"
	"gonum.org/v1/gonum/blas/blas32"
)

func TestClone(t *testing.T) {
	vec := vector.FromSlice([]float32{-1.0, -2.0, -3.0, 4.0})
	result := vector.Clone(vec)
	result.Data[0] = 1000.0
	assert.Equal(t, float32(-1.0), vec.Data[0])
	assert.Equal(t, vec.N, result.N)
}

func TestAffine(t *testing.T) {
	x := vector.FromSlice([]float32{1.0, 2.0})
	w := blas32.General{
		Rows:   2,
		Cols:   3,
		Stride: 3,
		Data: []float32{
			1, 0, 2,
			0, 1, -1,
		},
	}
	b := vector.FromSlice([]float32{0.5, 0.5, 0.5})
	y := vector.Affine(x, w, b)
	assert.Equal(t, []float32{1.5, 2.5, 0.5}, y.Data)
}

func TestSoftmax(t *testing.T) {
	y := vector.Softmax(vector.FromSlice([]float32{1000.0, 1000.0, 1000.0, 1000.0}))
	var sum float32
	for _, e := range y.Data {
		assert.InDelta(t, 0.25, e, 1e-6)
		sum += e
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 2, vector.Argmax(vector.FromSlice([]float32{0.1, 0.3, 0.5, 0.1})))
	assert.Equal(t, 0, vector.Argmax(vector.FromSlice([]float32{0.5, 0.5})))
}
