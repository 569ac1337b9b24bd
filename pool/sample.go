package pool

import (
	"fmt"
	"math"

	crand "github.com/sw965/brawler/math/rand"
)

type Strategy string

const (
	Uniform    Strategy = "uniform"
	Mixed      Strategy = "mixed"
	Recent     Strategy = "recent"
	Strong     Strategy = "strong"
	Weak       Strategy = "weak"
	Curriculum Strategy = "curriculum"
)

const (
	// 上位(下位)半分を引く確率
	favoredHalfProb = 0.8
	curriculumShare = 0.7
)

func (s Strategy) Valid() bool {
	switch s {
	case Uniform, Mixed, Recent, Strong, Weak, Curriculum:
		return true
	}
	return false
}

// Sample draws an opponent. An empty strategy uses Config.Strategy.
func (p *Pool) Sample(strategy Strategy) (*Snapshot, error) {
	if len(p.snapshots) == 0 {
		return nil, ErrEmptyPool
	}
	if strategy == "" {
		strategy = p.cfg.Strategy
	}

	switch strategy {
	case Uniform, Mixed:
		return crand.Choice(p.snapshots, p.rng), nil
	case Recent:
		n := len(p.snapshots)
		k := p.cfg.KeepRecent
		if k <= 0 || k > n {
			k = n
		}
		return crand.Choice(p.snapshots[n-k:], p.rng), nil
	case Strong:
		return p.sampleHalves(p.sortedByElo(true)), nil
	case Weak:
		return p.sampleHalves(p.sortedByElo(false)), nil
	case Curriculum:
		ss := p.sortedByElo(false)
		k := max(int(math.Ceil(curriculumShare*float64(len(ss)))), 1)
		return crand.Choice(ss[:k], p.rng), nil
	}
	return nil, fmt.Errorf("pool: unknown strategy %q", strategy)
}

// sampleHalves picks from the first half of ss with probability
// favoredHalfProb and from the second half otherwise.
func (p *Pool) sampleHalves(ss []*Snapshot) *Snapshot {
	half := (len(ss) + 1) / 2
	favored, rest := ss[:half], ss[half:]
	if len(rest) == 0 || crand.Bool(favoredHalfProb, p.rng) {
		return crand.Choice(favored, p.rng)
	}
	return crand.Choice(rest, p.rng)
}
