package duel

import (
	"math/rand"

	"github.com/sw965/brawler/game"
	crand "github.com/sw965/brawler/math/rand"
	"github.com/sw965/brawler/pool"
)

var allActions = []Action{Idle, Left, Right, Attack, Block}

func toward(s State, r game.Role) Action {
	if s.Direction(r) > 0 {
		return Right
	}
	return Left
}

func away(s State, r game.Role) Action {
	if s.Direction(r) > 0 {
		return Left
	}
	return Right
}

func aggressive(cfg Config) func(State, game.Role, game.Role) Action {
	return func(s State, actor, _ game.Role) Action {
		if s.Distance() <= cfg.AttackRange {
			if s.Fighter(actor).Cooldown == 0 {
				return Attack
			}
			return Idle
		}
		return toward(s, actor)
	}
}

func defensive(cfg Config) func(State, game.Role, game.Role) Action {
	return func(s State, actor, target game.Role) Action {
		if s.Distance() > cfg.AttackRange {
			return Idle
		}
		if s.Fighter(target).Cooldown == 0 {
			return Block
		}
		if s.Fighter(actor).Cooldown == 0 {
			return Attack
		}
		return Block
	}
}

func evasive(cfg Config) func(State, game.Role, game.Role) Action {
	return func(s State, actor, _ game.Role) Action {
		self := s.Fighter(actor)
		cornered := self.Pos <= 0 || self.Pos >= cfg.ArenaWidth
		if s.Distance() <= cfg.AttackRange && (cornered || self.Cooldown == 0) {
			return Attack
		}
		if s.Distance() < cfg.AttackRange*2 {
			return away(s, actor)
		}
		return Idle
	}
}

func balanced(cfg Config) func(State, game.Role, game.Role) Action {
	agg, def := aggressive(cfg), defensive(cfg)
	return func(s State, actor, target game.Role) Action {
		if s.Fighter(actor).HP < s.Fighter(target).HP {
			return def(s, actor, target)
		}
		return agg(s, actor, target)
	}
}

// Scripted builds a rule-based opponent for style. With probability
// 1-difficulty it plays a uniformly random action instead of the rule.
// StyleNone plays randomly.
func Scripted(cfg Config) func(style pool.Style, difficulty float64, rng *rand.Rand) game.ScriptedOpponent[State, Action] {
	return func(style pool.Style, difficulty float64, rng *rand.Rand) game.ScriptedOpponent[State, Action] {
		var rule func(State, game.Role, game.Role) Action
		switch style {
		case pool.StyleAggressive:
			rule = aggressive(cfg)
		case pool.StyleDefensive:
			rule = defensive(cfg)
		case pool.StyleEvasive:
			rule = evasive(cfg)
		case pool.StyleBalanced:
			rule = balanced(cfg)
		default:
			difficulty = 0
		}
		return func(s State, actor, target game.Role) Action {
			if rule == nil || !crand.Bool(difficulty, rng) {
				return crand.Choice(allActions, rng)
			}
			return rule(s, actor, target)
		}
	}
}
