package actorcritic

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
	tensor2d "github.com/sw965/brawler/blas32/tensor/2d"
	"github.com/sw965/brawler/blas32/vector"
	cmath "github.com/sw965/brawler/math"
	crand "github.com/sw965/brawler/math/rand"
	"github.com/sw965/brawler/model/mlp"
	"github.com/sw965/brawler/optimizer"
	"gonum.org/v1/gonum/blas/blas32"
)

// ErrConfiguration marks shape mismatches between a model, its inputs and
// the encoder configuration. It is always fatal.
var ErrConfiguration = errors.New("configuration error")

const (
	DefaultHiddenSize   = 128
	DefaultLearningRate = 3e-4

	logProbEpsilon = 1e-8
)

type Config struct {
	ObsSize      int     `mapstructure:"obs_size"`
	ActionSize   int     `mapstructure:"action_size"`
	HiddenSize   int     `mapstructure:"hidden_size"`
	LearningRate float32 `mapstructure:"learning_rate"`
}

func (c Config) Validate() error {
	if c.ObsSize <= 0 {
		return fmt.Errorf("%w: obs_size must be positive, got %d", ErrConfiguration, c.ObsSize)
	}
	if c.ActionSize <= 1 {
		return fmt.Errorf("%w: action_size must be at least 2, got %d", ErrConfiguration, c.ActionSize)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("%w: hidden_size must be positive, got %d", ErrConfiguration, c.HiddenSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning_rate must be positive", ErrConfiguration)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.HiddenSize == 0 {
		c.HiddenSize = DefaultHiddenSize
	}
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	return c
}

// Policy is a shared-trunk actor-critic: two ReLU dense layers feeding a
// softmax policy head and a linear value head.
type Policy struct {
	cfg Config

	trunk      mlp.Model
	policyHead mlp.Model
	valueHead  mlp.Model

	optimizer *optimizer.Adam
}

func New(cfg Config, rng *rand.Rand) (*Policy, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := cfg.HiddenSize
	p := &Policy{cfg: cfg}
	p.trunk.AppendAffine(cfg.ObsSize, h, rng)
	p.trunk.AppendReLU()
	p.trunk.AppendAffine(h, h, rng)
	p.trunk.AppendReLU()

	p.policyHead.AppendAffineParameter(mlp.Parameter{
		Weight: tensor2d.NewScaledNormal(h, cfg.ActionSize, 0.01, rng),
		Bias:   vector.NewZeros(cfg.ActionSize),
	})
	p.valueHead.AppendAffineParameter(mlp.Parameter{
		Weight: tensor2d.NewScaledNormal(h, 1, 1.0/float64(h), rng),
		Bias:   vector.NewZeros(1),
	})
	p.optimizer = newOptimizer(p)
	return p, nil
}

func newOptimizer(p *Policy) *optimizer.Adam {
	return optimizer.NewAdam(p.parameters(), p.cfg.LearningRate)
}

func (p *Policy) ObsSize() int    { return p.cfg.ObsSize }
func (p *Policy) ActionSize() int { return p.cfg.ActionSize }
func (p *Policy) HiddenSize() int { return p.cfg.HiddenSize }
func (p *Policy) Config() Config  { return p.cfg }

// parameters は trunk, policy head, value head の順に連結したビュー。
// 要素の Data は元のモデルと共有している。
func (p *Policy) parameters() mlp.Parameters {
	ps := make(mlp.Parameters, 0, len(p.trunk.Parameters)+len(p.policyHead.Parameters)+len(p.valueHead.Parameters))
	ps = append(ps, p.trunk.Parameters...)
	ps = append(ps, p.policyHead.Parameters...)
	ps = append(ps, p.valueHead.Parameters...)
	return ps
}

func (p *Policy) ParameterCount() int {
	return p.parameters().Count()
}

type forwardPass struct {
	probs      blas32.Vector
	value      float32
	trunkBack  mlp.Backwards
	policyBack mlp.Backwards
	valueBack  mlp.Backwards
}

func (p *Policy) checkObservation(obs []float32) error {
	if len(obs) != p.cfg.ObsSize {
		return fmt.Errorf("%w: observation length %d, policy expects %d", ErrConfiguration, len(obs), p.cfg.ObsSize)
	}
	return nil
}

func (p *Policy) forward(obs []float32) (forwardPass, error) {
	if err := p.checkObservation(obs); err != nil {
		return forwardPass{}, err
	}
	h, trunkBack, err := p.trunk.Propagate(vector.FromSlice(obs))
	if err != nil {
		return forwardPass{}, err
	}
	logits, policyBack, err := p.policyHead.Propagate(h)
	if err != nil {
		return forwardPass{}, err
	}
	v, valueBack, err := p.valueHead.Propagate(h)
	if err != nil {
		return forwardPass{}, err
	}
	return forwardPass{
		probs:      vector.Softmax(logits),
		value:      v.Data[0],
		trunkBack:  trunkBack,
		policyBack: policyBack,
		valueBack:  valueBack,
	}, nil
}

type Prediction struct {
	Policy []float32
	Value  float32
}

func (p *Policy) Predict(obs []float32) (Prediction, error) {
	pass, err := p.forward(obs)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Policy: pass.probs.Data, Value: pass.value}, nil
}

type SampleOptions struct {
	// Temperature <= 0 is treated as 1.
	Temperature float32
	// Forced skips sampling; it is clamped into the action range and still
	// gets a log-probability under the current policy.
	Forced *int
}

type Sample struct {
	Action  int
	LogProb float32
	Value   float32
}

func Temper(probs []float32, temperature float32) []float32 {
	if temperature <= 0 || temperature == 1 {
		return probs
	}
	exponent := 1.0 / temperature
	tempered := make([]float32, len(probs))
	var sum float32
	for i, prob := range probs {
		tempered[i] = math32.Pow(prob, exponent)
		sum += tempered[i]
	}
	if sum <= 0 || !cmath.IsFinite(sum) {
		return probs
	}
	for i := range tempered {
		tempered[i] /= sum
	}
	return tempered
}

func (p *Policy) SampleAction(obs []float32, opts SampleOptions, rng *rand.Rand) (Sample, error) {
	pass, err := p.forward(obs)
	if err != nil {
		return Sample{}, err
	}
	probs := Temper(pass.probs.Data, opts.Temperature)

	var action int
	if opts.Forced != nil {
		action = cmath.Clamp(*opts.Forced, 0, p.cfg.ActionSize-1)
	} else {
		action = crand.IntByWeight(probs, rng)
	}
	// 温度はサンプリングのみ。LogProb は Update が再計算する素の softmax に揃える
	return Sample{
		Action:  action,
		LogProb: math32.Log(pass.probs.Data[action] + logProbEpsilon),
		Value:   pass.value,
	}, nil
}

func (p *Policy) SelectBestAction(obs []float32) (int, error) {
	pass, err := p.forward(obs)
	if err != nil {
		return 0, err
	}
	return vector.Argmax(pass.probs), nil
}

// Clone deep-copies the parameters. The clone gets a fresh optimizer, so
// nothing mutable is shared with p.
func (p *Policy) Clone() *Policy {
	clone := &Policy{
		cfg:        p.cfg,
		trunk:      p.trunk.Clone(),
		policyHead: p.policyHead.Clone(),
		valueHead:  p.valueHead.Clone(),
	}
	clone.optimizer = newOptimizer(clone)
	return clone
}
