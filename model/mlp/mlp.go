package mlp

import (
	"fmt"
	"math/rand"
	"slices"

	tensor2d "github.com/sw965/brawler/blas32/tensor/2d"
	"github.com/sw965/brawler/blas32/vector"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

type GradBuffer struct {
	Weight blas32.General
	Bias   blas32.Vector
}

func (g *GradBuffer) NewZerosLike() GradBuffer {
	return GradBuffer{
		Weight: tensor2d.NewZerosLike(g.Weight),
		Bias:   vector.NewZerosLike(g.Bias),
	}
}

func (g GradBuffer) Clone() GradBuffer {
	return GradBuffer{
		Weight: tensor2d.Clone(g.Weight),
		Bias:   vector.Clone(g.Bias),
	}
}

func (g *GradBuffer) Axpy(alpha float32, x *GradBuffer) {
	if x.Weight.Rows != 0 {
		tensor2d.Axpy(alpha, x.Weight, g.Weight)
	}

	if x.Bias.N != 0 {
		blas32.Axpy(alpha, x.Bias, g.Bias)
	}
}

func (g *GradBuffer) Scal(alpha float32) {
	if g.Weight.Rows != 0 {
		tensor2d.Scal(alpha, g.Weight)
	}

	if g.Bias.N != 0 {
		blas32.Scal(alpha, g.Bias)
	}
}

func (g *GradBuffer) SquaredNorm() float32 {
	var sum float32
	if g.Weight.Rows != 0 {
		sum += vector.SquaredNorm(tensor2d.ToVector(g.Weight))
	}
	if g.Bias.N != 0 {
		sum += vector.SquaredNorm(g.Bias)
	}
	return sum
}

type GradBuffers []GradBuffer

func (gs GradBuffers) NewZerosLike() GradBuffers {
	zeros := make(GradBuffers, len(gs))
	for i, g := range gs {
		zeros[i] = g.NewZerosLike()
	}
	return zeros
}

func (gs GradBuffers) Clone() GradBuffers {
	clone := make(GradBuffers, len(gs))
	for i, g := range gs {
		clone[i] = g.Clone()
	}
	return clone
}

func (gs GradBuffers) Axpy(alpha float32, xs GradBuffers) {
	for i := range gs {
		gs[i].Axpy(alpha, &xs[i])
	}
}

func (gs GradBuffers) Scal(alpha float32) {
	for i := range gs {
		gs[i].Scal(alpha)
	}
}

func (gs GradBuffers) SquaredNorm() float32 {
	var sum float32
	for i := range gs {
		sum += gs[i].SquaredNorm()
	}
	return sum
}

type Parameter struct {
	Weight blas32.General
	Bias   blas32.Vector
}

func (p *Parameter) NewGradZerosLike() GradBuffer {
	return GradBuffer{
		Weight: tensor2d.NewZerosLike(p.Weight),
		Bias:   vector.NewZerosLike(p.Bias),
	}
}

func (p *Parameter) Clone() Parameter {
	return Parameter{
		Weight: tensor2d.Clone(p.Weight),
		Bias:   vector.Clone(p.Bias),
	}
}

func (p *Parameter) AxpyGrad(alpha float32, grad *GradBuffer) {
	if p.Weight.Rows != 0 {
		tensor2d.Axpy(alpha, grad.Weight, p.Weight)
	}

	if p.Bias.N != 0 {
		blas32.Axpy(alpha, grad.Bias, p.Bias)
	}
}

func (p *Parameter) IsEmpty() bool {
	return p.Weight.Rows == 0 && p.Bias.N == 0
}

type Parameters []Parameter

func (ps Parameters) NewGradsZerosLike() GradBuffers {
	grads := make(GradBuffers, len(ps))
	for i := range ps {
		grads[i] = ps[i].NewGradZerosLike()
	}
	return grads
}

func (ps Parameters) Clone() Parameters {
	clone := make(Parameters, len(ps))
	for i := range ps {
		clone[i] = ps[i].Clone()
	}
	return clone
}

func (ps Parameters) AxpyGrads(alpha float32, grads GradBuffers) {
	for i := range ps {
		ps[i].AxpyGrad(alpha, &grads[i])
	}
}

// Count returns the number of scalar parameters.
func (ps Parameters) Count() int {
	n := 0
	for _, p := range ps {
		n += tensor2d.N(p.Weight) + p.Bias.N
	}
	return n
}

type Forward func(blas32.Vector, *Parameter) (blas32.Vector, Backward, error)
type Forwards []Forward

func (fs Forwards) Propagate(x blas32.Vector, params Parameters) (blas32.Vector, Backwards, error) {
	if len(fs) != len(params) {
		return blas32.Vector{}, nil, fmt.Errorf("forwards/parameters length mismatch: %d != %d", len(fs), len(params))
	}
	var err error
	var backward Backward
	backwards := make(Backwards, len(fs))
	for i, f := range fs {
		x, backward, err = f(x, &params[i])
		if err != nil {
			return blas32.Vector{}, nil, err
		}
		backwards[i] = backward
	}
	y := x
	slices.Reverse(backwards)
	return y, backwards, nil
}

type Backward func(blas32.Vector) (blas32.Vector, GradBuffer, error)
type Backwards []Backward

// Propagate returns grads in forward (parameter) order.
func (bs Backwards) Propagate(chain blas32.Vector) (blas32.Vector, GradBuffers, error) {
	grads := make(GradBuffers, len(bs))
	var grad GradBuffer
	var err error
	for i, b := range bs {
		chain, grad, err = b(chain)
		if err != nil {
			return blas32.Vector{}, nil, err
		}
		grads[i] = grad
	}
	dx := chain
	slices.Reverse(grads)
	return dx, grads, nil
}

func AffineForward(x blas32.Vector, param *Parameter) (blas32.Vector, Backward, error) {
	if x.N != param.Weight.Rows {
		return blas32.Vector{}, nil, fmt.Errorf("affine input size %d != weight rows %d", x.N, param.Weight.Rows)
	}
	y := vector.Affine(x, param.Weight, param.Bias)

	var backward Backward
	backward = func(chain blas32.Vector) (blas32.Vector, GradBuffer, error) {
		wRows := param.Weight.Rows
		wCols := param.Weight.Cols

		dx := vector.NewZeros(wRows)
		blas32.Gemv(blas.NoTrans, 1.0, param.Weight, chain, 0.0, dx)

		dw := tensor2d.NewZeros(wRows, wCols)
		blas32.Ger(1.0, x, chain, dw)

		db := vector.NewZeros(chain.N)
		blas32.Copy(chain, db)

		grad := GradBuffer{
			Weight: dw,
			Bias:   db,
		}
		return dx, grad, nil
	}
	return y, backward, nil
}

func NewLeakyReLUForward(alpha float32) Forward {
	return func(x blas32.Vector, _ *Parameter) (blas32.Vector, Backward, error) {
		xData := x.Data
		yData := make([]float32, x.N)
		for i, e := range xData {
			if e > 0 {
				yData[i] = e
			} else {
				yData[i] = alpha * e
			}
		}
		y := vector.FromSlice(yData)

		var backward Backward
		backward = func(chain blas32.Vector) (blas32.Vector, GradBuffer, error) {
			chainData := chain.Data
			dxData := make([]float32, chain.N)
			for i, e := range xData {
				if e > 0 {
					dxData[i] = chainData[i]
				} else {
					dxData[i] = alpha * chainData[i]
				}
			}
			return vector.FromSlice(dxData), GradBuffer{}, nil
		}
		return y, backward, nil
	}
}

var ReLUForward = NewLeakyReLUForward(0.0)

type Model struct {
	Parameters Parameters
	Forwards   Forwards
}

func (m *Model) AppendAffine(xn, yn int, rng *rand.Rand) {
	m.AppendAffineParameter(Parameter{
		Weight: tensor2d.NewHe(xn, yn, rng),
		Bias:   vector.NewZeros(yn),
	})
}

func (m *Model) AppendAffineParameter(param Parameter) {
	m.Parameters = append(m.Parameters, param)
	m.Forwards = append(m.Forwards, AffineForward)
}

func (m *Model) AppendReLU() {
	m.appendActivation(ReLUForward)
}

func (m *Model) AppendLeakyReLU(alpha float32) {
	m.appendActivation(NewLeakyReLUForward(alpha))
}

func (m *Model) appendActivation(f Forward) {
	param := Parameter{
		Weight: blas32.General{Rows: 0, Cols: 0, Stride: 0, Data: []float32{}},
		Bias:   blas32.Vector{N: 0, Inc: 1, Data: []float32{}},
	}
	m.Parameters = append(m.Parameters, param)
	m.Forwards = append(m.Forwards, f)
}

// Clone shares Forwards (stateless closures) but deep-copies Parameters.
func (m Model) Clone() Model {
	return Model{
		Parameters: m.Parameters.Clone(),
		Forwards:   slices.Clone(m.Forwards),
	}
}

func (m *Model) Predict(x blas32.Vector) (blas32.Vector, error) {
	y, _, err := m.Forwards.Propagate(x, m.Parameters)
	return y, err
}

func (m *Model) Propagate(x blas32.Vector) (blas32.Vector, Backwards, error) {
	return m.Forwards.Propagate(x, m.Parameters)
}
