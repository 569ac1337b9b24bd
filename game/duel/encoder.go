package duel

import (
	"github.com/sw965/brawler/game"
	"github.com/sw965/brawler/pool"
)

const baseFeatures = 10

type Encoder struct {
	cfg Config
}

func NewEncoder(cfg Config) Encoder {
	return Encoder{cfg: cfg}
}

func (e Encoder) Size() int {
	return baseFeatures + len(pool.Styles)
}

// Encode は role 視点の特徴量。末尾はスタイルの one-hot。
func (e Encoder) Encode(state State, role game.Role, style pool.Style) []float32 {
	self := state.Fighter(role)
	other := state.Fighter(role.Opponent())
	w := e.cfg.ArenaWidth
	cd := float64(max(e.cfg.AttackCooldown, 1))

	xs := make([]float32, 0, e.Size())
	xs = append(xs,
		float32(self.Pos/w),
		float32(other.Pos/w),
		float32((other.Pos-self.Pos)/w),
		float32(self.HP/e.cfg.MaxHP),
		float32(other.HP/e.cfg.MaxHP),
		float32(float64(self.Cooldown)/cd),
		float32(float64(other.Cooldown)/cd),
		boolFeature(self.Blocking),
		boolFeature(other.Blocking),
		boolFeature(state.Distance() <= e.cfg.AttackRange),
	)
	for _, s := range pool.Styles {
		xs = append(xs, boolFeature(s == style))
	}
	return xs
}

func boolFeature(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
