package duel

import (
	"github.com/sw965/brawler/game"
)

type RewardConfig struct {
	Win  float64 `mapstructure:"win"`
	Loss float64 `mapstructure:"loss"`
	// HP 差分の重み
	Damage float64 `mapstructure:"damage"`
	Step   float64 `mapstructure:"step"`
}

func DefaultRewardConfig() RewardConfig {
	return RewardConfig{Win: 1, Loss: -1, Damage: 1, Step: -0.001}
}

// NewReward scores a step from role's side: HP traded as a fraction of
// MaxHP, a terminal bonus on a KO and a small per-step cost.
func NewReward(cfg Config, rc RewardConfig) game.RewardFunc[State] {
	return func(prev, curr State, role game.Role, events []game.Event) float64 {
		opp := role.Opponent()
		dealt := prev.Fighter(opp).HP - curr.Fighter(opp).HP
		taken := prev.Fighter(role).HP - curr.Fighter(role).HP
		r := rc.Damage*(dealt-taken)/cfg.MaxHP + rc.Step
		for _, ev := range events {
			if ev.Kind != game.EventKO {
				continue
			}
			if ev.Actor == role {
				r += rc.Win
			} else {
				r += rc.Loss
			}
		}
		return r
	}
}
