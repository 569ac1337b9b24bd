package optimizer

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/sw965/brawler/model/mlp"
)

type Optimizer interface {
	Step(params mlp.Parameters, grads mlp.GradBuffers) error
}

type Momentum struct {
	LearningRate float32
	Momentum     float32

	velocity mlp.GradBuffers
}

func NewMomentum(params mlp.Parameters, lr, momentum float32) *Momentum {
	return &Momentum{
		LearningRate: lr,
		Momentum:     momentum,
		velocity:     params.NewGradsZerosLike(),
	}
}

func (opt *Momentum) Step(params mlp.Parameters, grads mlp.GradBuffers) error {
	if len(params) != len(grads) {
		return fmt.Errorf("momentum: parameters/grads size mismatch: %d != %d", len(params), len(grads))
	}
	if len(opt.velocity) != len(params) {
		opt.velocity = params.NewGradsZerosLike()
	}
	for i := range grads {
		v := &opt.velocity[i]
		v.Scal(opt.Momentum)
		v.Axpy(-opt.LearningRate, &grads[i])
		params[i].AxpyGrad(1.0, v)
	}
	return nil
}

type Adam struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32

	iter int
	m    mlp.GradBuffers
	v    mlp.GradBuffers
}

// NewAdam の内部状態 (1st/2nd moment) は params と同じ形状で 0 初期化される。
func NewAdam(params mlp.Parameters, lr float32) *Adam {
	return &Adam{
		LearningRate: lr,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		m:            params.NewGradsZerosLike(),
		v:            params.NewGradsZerosLike(),
	}
}

func (a *Adam) Iter() int {
	return a.iter
}

func (a *Adam) Step(params mlp.Parameters, grads mlp.GradBuffers) error {
	if len(params) != len(grads) {
		return fmt.Errorf("adam: parameters/grads size mismatch: %d != %d", len(params), len(grads))
	}

	if len(a.m) != len(params) {
		a.m = params.NewGradsZerosLike()
		a.v = params.NewGradsZerosLike()
	}

	a.iter++
	beta1, beta2 := a.Beta1, a.Beta2
	lrt := a.LearningRate *
		math32.Sqrt(1-math32.Pow(beta2, float32(a.iter))) /
		(1 - math32.Pow(beta1, float32(a.iter)))

	update := func(w, g, m, v []float32) {
		for j := range g {
			m[j] += (1 - beta1) * (g[j] - m[j])
			v[j] += (1 - beta2) * (g[j]*g[j] - v[j])
			w[j] -= lrt * m[j] / (math32.Sqrt(v[j]) + a.Epsilon)
		}
	}

	for i := range grads {
		update(params[i].Weight.Data, grads[i].Weight.Data, a.m[i].Weight.Data, a.v[i].Weight.Data)
		update(params[i].Bias.Data, grads[i].Bias.Data, a.m[i].Bias.Data, a.v[i].Bias.Data)
	}
	return nil
}

// ClipGradNorm rescales grads in place so their global L2 norm is at most maxNorm
// and returns the norm before clipping. maxNorm <= 0 disables clipping.
func ClipGradNorm(grads mlp.GradBuffers, maxNorm float32) float32 {
	norm := math32.Sqrt(grads.SquaredNorm())
	if maxNorm > 0 && norm > maxNorm {
		grads.Scal(maxNorm / (norm + 1e-6))
	}
	return norm
}
