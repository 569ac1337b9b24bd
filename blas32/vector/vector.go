package vector

import (
	"math/rand"
	"slices"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func NewZeros(n int) blas32.Vector {
	return blas32.Vector{
		N:    n,
		Inc:  1,
		Data: make([]float32, n),
	}
}

func NewZerosLike(vec blas32.Vector) blas32.Vector {
	return NewZeros(vec.N)
}

func NewNormal(n int, std float64, rng *rand.Rand) blas32.Vector {
	vec := NewZeros(n)
	for i := range vec.Data {
		vec.Data[i] = float32(rng.NormFloat64() * std)
	}
	return vec
}

func FromSlice(xs []float32) blas32.Vector {
	return blas32.Vector{
		N:    len(xs),
		Inc:  1,
		Data: xs,
	}
}

func Clone(vec blas32.Vector) blas32.Vector {
	return blas32.Vector{
		N:    vec.N,
		Inc:  vec.Inc,
		Data: slices.Clone(vec.Data),
	}
}

func Affine(x blas32.Vector, w blas32.General, b blas32.Vector) blas32.Vector {
	yn := len(b.Data)
	y := blas32.Vector{N: yn, Inc: 1, Data: make([]float32, yn)}
	blas32.Copy(b, y)
	blas32.Gemv(blas.Trans, 1.0, w, x, 1.0, y)
	return y
}

func Softmax(x blas32.Vector) blas32.Vector {
	maxX := slices.Max(x.Data) // オーバーフロー対策
	y := NewZeros(x.N)
	var sum float32
	for i, e := range x.Data {
		y.Data[i] = math32.Exp(e - maxX)
		sum += y.Data[i]
	}
	blas32.Scal(1.0/sum, y)
	return y
}

func SquaredNorm(vec blas32.Vector) float32 {
	n := blas32.Nrm2(vec)
	return n * n
}

func Argmax(vec blas32.Vector) int {
	best := 0
	for i, e := range vec.Data {
		if e > vec.Data[best] {
			best = i
		}
	}
	return best
}
