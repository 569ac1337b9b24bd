package actorcritic

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/sw965/brawler/blas32/vector"
	cmath "github.com/sw965/brawler/math"
	"github.com/sw965/brawler/model/mlp"
	"github.com/sw965/brawler/optimizer"
	"github.com/sw965/brawler/rl"
	"gonum.org/v1/gonum/blas/blas32"
)

type UpdateConfig struct {
	Gamma         float32 `mapstructure:"gamma"`
	Lambda        float32 `mapstructure:"lambda"`
	ClipRange     float32 `mapstructure:"clip_range"`
	ValueCoef     float32 `mapstructure:"value_coef"`
	EntropyCoef   float32 `mapstructure:"entropy_coef"`
	Epochs        int     `mapstructure:"epochs"`
	MinibatchSize int     `mapstructure:"minibatch_size"`
	// MaxGradNorm <= 0 disables clipping.
	MaxGradNorm float32 `mapstructure:"max_grad_norm"`
	// LearningRate > 0 overrides the optimizer's rate for this update.
	LearningRate float32 `mapstructure:"learning_rate"`
}

func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{
		Gamma:         0.99,
		Lambda:        0.95,
		ClipRange:     0.2,
		ValueCoef:     0.5,
		EntropyCoef:   0.01,
		Epochs:        4,
		MinibatchSize: 64,
		MaxGradNorm:   0.5,
	}
}

func (c UpdateConfig) Validate() error {
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("%w: gamma must be in [0, 1], got %v", ErrConfiguration, c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("%w: lambda must be in [0, 1], got %v", ErrConfiguration, c.Lambda)
	}
	if c.ClipRange <= 0 || c.ClipRange >= 1 {
		return fmt.Errorf("%w: clip_range must be in (0, 1), got %v", ErrConfiguration, c.ClipRange)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("%w: epochs must be positive", ErrConfiguration)
	}
	if c.MinibatchSize <= 0 {
		return fmt.Errorf("%w: minibatch_size must be positive", ErrConfiguration)
	}
	return nil
}

type UpdateStats struct {
	PolicyLoss   float32
	ValueLoss    float32
	Entropy      float32
	ClipFraction float32
	ApproxKL     float32
	GradNorm     float32
	Minibatches  int
}

func (s *UpdateStats) add(o UpdateStats) {
	s.PolicyLoss += o.PolicyLoss
	s.ValueLoss += o.ValueLoss
	s.Entropy += o.Entropy
	s.ClipFraction += o.ClipFraction
	s.ApproxKL += o.ApproxKL
	s.GradNorm += o.GradNorm
	s.Minibatches++
}

func (s *UpdateStats) mean() {
	if s.Minibatches == 0 {
		return
	}
	n := float32(s.Minibatches)
	s.PolicyLoss /= n
	s.ValueLoss /= n
	s.Entropy /= n
	s.ClipFraction /= n
	s.ApproxKL /= n
	s.GradNorm /= n
}

type sampleResult struct {
	policyLoss float32
	valueLoss  float32
	entropy    float32
	clipped    bool
	kl         float32
}

// backward computes the per-sample loss and writes its parameter gradient
// (trunk, policy head, value head order) into grads when grads is non-nil.
func (p *Policy) backward(t rl.Transition, advantage, ret float32, cfg UpdateConfig, grads mlp.GradBuffers) (sampleResult, error) {
	pass, err := p.forward(t.Observation)
	if err != nil {
		return sampleResult{}, err
	}
	probs := pass.probs.Data
	a := t.Action

	newLogProb := math32.Log(probs[a] + logProbEpsilon)
	ratio := math32.Exp(newLogProb - t.LogProb)
	lo, hi := 1-cfg.ClipRange, 1+cfg.ClipRange
	surr1 := ratio * advantage
	surr2 := cmath.Clamp(ratio, lo, hi) * advantage

	var entropy float32
	logs := make([]float32, len(probs))
	for j, prob := range probs {
		logs[j] = math32.Log(prob + logProbEpsilon)
		entropy -= prob * logs[j]
	}

	diff := pass.value - ret
	res := sampleResult{
		policyLoss: -min(surr1, surr2),
		valueLoss:  diff * diff,
		entropy:    entropy,
		clipped:    ratio < lo || ratio > hi,
		kl:         t.LogProb - newLogProb,
	}
	if grads == nil {
		return res, nil
	}

	// 悲観的な min 側がクリップ項の場合、ratio に対する勾配は 0
	var dLogProb float32
	if surr1 <= surr2 {
		dLogProb = -advantage * ratio
	}

	dLogits := vector.NewZeros(len(probs))
	for j, prob := range probs {
		var indicator float32
		if j == a {
			indicator = 1
		}
		dLogits.Data[j] = dLogProb*(indicator-prob) + cfg.EntropyCoef*prob*(logs[j]+entropy)
	}
	dValue := vector.FromSlice([]float32{cfg.ValueCoef * 2 * diff})

	dhPolicy, policyGrads, err := pass.policyBack.Propagate(dLogits)
	if err != nil {
		return sampleResult{}, err
	}
	dhValue, valueGrads, err := pass.valueBack.Propagate(dValue)
	if err != nil {
		return sampleResult{}, err
	}
	blas32.Axpy(1.0, dhValue, dhPolicy)
	_, trunkGrads, err := pass.trunkBack.Propagate(dhPolicy)
	if err != nil {
		return sampleResult{}, err
	}

	offset := 0
	for _, gs := range []mlp.GradBuffers{trunkGrads, policyGrads, valueGrads} {
		for i := range gs {
			grads[offset+i].Axpy(1.0, &gs[i])
		}
		offset += len(gs)
	}
	return res, nil
}

func (p *Policy) validateBuffer(buf *rl.Buffer) error {
	if buf.Len() == 0 {
		return fmt.Errorf("%w: empty rollout buffer", ErrConfiguration)
	}
	for i, t := range buf.Transitions() {
		if len(t.Observation) != p.cfg.ObsSize {
			return fmt.Errorf("%w: transition %d observation length %d, policy expects %d", ErrConfiguration, i, len(t.Observation), p.cfg.ObsSize)
		}
		if t.Action < 0 || t.Action >= p.cfg.ActionSize {
			return fmt.Errorf("%w: transition %d action %d outside [0, %d)", ErrConfiguration, i, t.Action, p.cfg.ActionSize)
		}
	}
	return nil
}

func (p *Policy) advantages(buf *rl.Buffer, cfg UpdateConfig) ([]float32, []float32, error) {
	advantages, returns, err := buf.GAE(cfg.Gamma, cfg.Lambda)
	if err != nil {
		return nil, nil, err
	}
	rl.Normalize(advantages)
	return advantages, returns, nil
}

// Evaluate reports the PPO losses of buf under the current parameters
// without taking a gradient step.
func (p *Policy) Evaluate(buf *rl.Buffer, cfg UpdateConfig) (UpdateStats, error) {
	if err := cfg.Validate(); err != nil {
		return UpdateStats{}, err
	}
	if err := p.validateBuffer(buf); err != nil {
		return UpdateStats{}, err
	}
	advantages, returns, err := p.advantages(buf, cfg)
	if err != nil {
		return UpdateStats{}, err
	}
	idxs := make([]int, buf.Len())
	for i := range idxs {
		idxs[i] = i
	}
	stats, err := p.minibatch(buf, idxs, advantages, returns, cfg, nil)
	if err != nil {
		return UpdateStats{}, err
	}
	stats.Minibatches = 1
	return stats, nil
}

func (p *Policy) minibatch(buf *rl.Buffer, idxs []int, advantages, returns []float32, cfg UpdateConfig, grads mlp.GradBuffers) (UpdateStats, error) {
	var stats UpdateStats
	var clipped int
	for _, idx := range idxs {
		res, err := p.backward(buf.At(idx), advantages[idx], returns[idx], cfg, grads)
		if err != nil {
			return UpdateStats{}, err
		}
		stats.PolicyLoss += res.policyLoss
		stats.ValueLoss += res.valueLoss
		stats.Entropy += res.entropy
		stats.ApproxKL += res.kl
		if res.clipped {
			clipped++
		}
	}
	n := float32(len(idxs))
	stats.PolicyLoss /= n
	stats.ValueLoss /= n
	stats.Entropy /= n
	stats.ApproxKL /= n
	stats.ClipFraction = float32(clipped) / n
	return stats, nil
}

// Update runs the PPO step over buf: GAE, advantage normalisation, then
// Epochs passes of shuffled minibatches with one optimizer step each.
// The buffer is validated before any parameter is touched.
func (p *Policy) Update(buf *rl.Buffer, cfg UpdateConfig, rng *rand.Rand) (UpdateStats, error) {
	if err := cfg.Validate(); err != nil {
		return UpdateStats{}, err
	}
	if err := p.validateBuffer(buf); err != nil {
		return UpdateStats{}, err
	}
	advantages, returns, err := p.advantages(buf, cfg)
	if err != nil {
		return UpdateStats{}, err
	}
	if cfg.LearningRate > 0 {
		p.optimizer.LearningRate = cfg.LearningRate
	}

	n := buf.Len()
	size := cmath.Clamp(cfg.MinibatchSize, 1, n)
	params := p.parameters()

	var total UpdateStats
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		perm := rng.Perm(n)
		for start := 0; start < n; start += size {
			idxs := perm[start:min(start+size, n)]
			grads := params.NewGradsZerosLike()
			stats, err := p.minibatch(buf, idxs, advantages, returns, cfg, grads)
			if err != nil {
				return UpdateStats{}, err
			}
			grads.Scal(1.0 / float32(len(idxs)))
			stats.GradNorm = optimizer.ClipGradNorm(grads, cfg.MaxGradNorm)
			if err := p.optimizer.Step(params, grads); err != nil {
				return UpdateStats{}, err
			}
			total.add(stats)
		}
	}
	total.mean()
	return total, nil
}
