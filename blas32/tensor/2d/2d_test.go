package tensor2d_test

import (
	"slices"
	"testing"

	tensor2d "github.com/sw965/brawler/blas32/tensor/2d"
	crand "github.com/sw965/brawler/math/rand"
	"gonum.org/v1/gonum/blas/blas32"
)

func TestTranspose(t *testing.T) {
	x := blas32.General{
		Rows:   3,
		Cols:   5,
		Stride: 5,
		Data: []float32{
			1, 2, 3, 4, 5,
			2, 5, 4, 1, 3,
			3, 1, 5, 2, 4,
		},
	}

	result := tensor2d.Transpose(x)
	expected := blas32.General{
		Rows:   5,
		Cols:   3,
		Stride: 3,
		Data: []float32{
			1, 2, 3,
			2, 5, 1,
			3, 4, 5,
			4, 1, 2,
			5, 3, 4,
		},
	}

	if result.Rows != expected.Rows {
		t.Errorf("rows: got %d, want %d", result.Rows, expected.Rows)
	}

	if result.Cols != expected.Cols {
		t.Errorf("cols: got %d, want %d", result.Cols, expected.Cols)
	}

	if result.Stride != expected.Stride {
		t.Errorf("stride: got %d, want %d", result.Stride, expected.Stride)
	}

	if !slices.Equal(result.Data, expected.Data) {
		t.Errorf("data: got %v, want %v", result.Data, expected.Data)
	}
}

func TestCloneIsDeep(t *testing.T) {
	rng := crand.NewMt19937(1)
	w := tensor2d.NewHe(4, 3, rng)
	c := tensor2d.Clone(w)
	c.Data[0] += 1.0
	if w.Data[0] == c.Data[0] {
		t.Errorf("clone shares storage with original")
	}
}

func TestAxpy(t *testing.T) {
	x := tensor2d.NewZeros(2, 2)
	y := tensor2d.NewZeros(2, 2)
	for i := range x.Data {
		x.Data[i] = float32(i)
	}
	tensor2d.Axpy(-2.0, x, y)
	if !slices.Equal(y.Data, []float32{0, -2, -4, -6}) {
		t.Errorf("got %v", y.Data)
	}
}
