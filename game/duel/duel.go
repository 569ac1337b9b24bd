// Package duel is a small one-dimensional fighting game used to exercise the
// trainer. Two fighters move along a line, attack and block.
package duel

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sw965/brawler/game"
	cmath "github.com/sw965/brawler/math"
)

type Config struct {
	ArenaWidth    float64 `mapstructure:"arena_width"`
	StartDistance float64 `mapstructure:"start_distance"`
	// StartJitter はリセット時に開始位置へ加える一様乱数の幅
	StartJitter  float64 `mapstructure:"start_jitter"`
	MaxHP        float64 `mapstructure:"max_hp"`
	MoveSpeed    float64 `mapstructure:"move_speed"`
	AttackRange  float64 `mapstructure:"attack_range"`
	AttackDamage float64 `mapstructure:"attack_damage"`
	// BlockFactor scales damage against a blocking target.
	BlockFactor    float64 `mapstructure:"block_factor"`
	AttackCooldown int     `mapstructure:"attack_cooldown"`
}

func DefaultConfig() Config {
	return Config{
		ArenaWidth:     10,
		StartDistance:  6,
		StartJitter:    1,
		MaxHP:          100,
		MoveSpeed:      0.5,
		AttackRange:    1.5,
		AttackDamage:   10,
		BlockFactor:    0.2,
		AttackCooldown: 3,
	}
}

func (c Config) Validate() error {
	if c.ArenaWidth <= 0 {
		return fmt.Errorf("duel: arena_width must be positive")
	}
	if c.StartDistance <= 0 || c.StartDistance > c.ArenaWidth {
		return fmt.Errorf("duel: start_distance must be in (0, arena_width]")
	}
	if c.MaxHP <= 0 || c.AttackDamage <= 0 || c.MoveSpeed <= 0 || c.AttackRange <= 0 {
		return fmt.Errorf("duel: max_hp, attack_damage, move_speed and attack_range must be positive")
	}
	if c.BlockFactor < 0 || c.BlockFactor > 1 {
		return fmt.Errorf("duel: block_factor must be in [0, 1]")
	}
	if c.AttackCooldown < 0 {
		return fmt.Errorf("duel: attack_cooldown must not be negative")
	}
	return nil
}

type Fighter struct {
	Pos      float64
	HP       float64
	Cooldown int
	Blocking bool
}

type State struct {
	P1    Fighter
	P2    Fighter
	Frame int
}

func (s State) Fighter(r game.Role) Fighter {
	if r == game.Player2 {
		return s.P2
	}
	return s.P1
}

func (s *State) fighter(r game.Role) *Fighter {
	if r == game.Player2 {
		return &s.P2
	}
	return &s.P1
}

func (s State) Distance() float64 {
	return math.Abs(s.P1.Pos - s.P2.Pos)
}

// Direction is +1 when the opponent of r is to the right, -1 otherwise.
func (s State) Direction(r game.Role) float64 {
	self, other := s.Fighter(r), s.Fighter(r.Opponent())
	if other.Pos >= self.Pos {
		return 1
	}
	return -1
}

type Env struct {
	cfg   Config
	state State
	rng   *rand.Rand
}

func NewEnv(cfg Config, rng *rand.Rand) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Env{cfg: cfg, rng: rng}
	e.Reset()
	return e, nil
}

func (e *Env) Config() Config {
	return e.cfg
}

func (e *Env) Reset() State {
	center := e.cfg.ArenaWidth / 2
	jitter := (e.rng.Float64()*2 - 1) * e.cfg.StartJitter / 2
	half := e.cfg.StartDistance / 2
	e.state = State{
		P1: Fighter{Pos: cmath.Clamp(center-half+jitter, 0, e.cfg.ArenaWidth), HP: e.cfg.MaxHP},
		P2: Fighter{Pos: cmath.Clamp(center+half+jitter, 0, e.cfg.ArenaWidth), HP: e.cfg.MaxHP},
	}
	return e.state
}

func (e *Env) State() State {
	return e.state
}

// Step applies both actions simultaneously: movement and blocking first,
// then attacks against the post-movement positions.
func (e *Env) Step(actions map[game.Role]Action) (game.StepInfo, error) {
	for _, r := range game.Roles {
		a, ok := actions[r]
		if !ok {
			return game.StepInfo{}, fmt.Errorf("duel: missing action for %s", r)
		}
		if !a.Valid() {
			return game.StepInfo{}, fmt.Errorf("duel: invalid action %d for %s", a, r)
		}
	}

	next := e.state
	next.Frame++
	for _, r := range game.Roles {
		f := next.fighter(r)
		f.Blocking = actions[r] == Block
		if f.Cooldown > 0 {
			f.Cooldown--
		}
		switch actions[r] {
		case Left:
			f.Pos = cmath.Clamp(f.Pos-e.cfg.MoveSpeed, 0, e.cfg.ArenaWidth)
		case Right:
			f.Pos = cmath.Clamp(f.Pos+e.cfg.MoveSpeed, 0, e.cfg.ArenaWidth)
		}
	}

	info := game.StepInfo{
		DamageDealt: map[game.Role]float64{},
		DamageTaken: map[game.Role]float64{},
	}
	// 同時攻撃は両方とも当たる
	startCooldowns := map[game.Role]int{game.Player1: next.P1.Cooldown, game.Player2: next.P2.Cooldown}
	for _, r := range game.Roles {
		if actions[r] != Attack || startCooldowns[r] > 0 {
			continue
		}
		attacker := next.fighter(r)
		target := next.fighter(r.Opponent())
		attacker.Cooldown = e.cfg.AttackCooldown
		if next.Distance() > e.cfg.AttackRange {
			continue
		}
		damage := e.cfg.AttackDamage
		kind := game.EventHit
		if target.Blocking {
			damage *= e.cfg.BlockFactor
			kind = game.EventBlocked
		}
		target.HP = math.Max(target.HP-damage, 0)
		info.DamageDealt[r] += damage
		info.DamageTaken[r.Opponent()] += damage
		info.Events = append(info.Events, game.Event{Kind: kind, Actor: r, Target: r.Opponent(), Amount: damage})
	}

	p1Down, p2Down := next.P1.HP <= 0, next.P2.HP <= 0
	switch {
	case p1Down && p2Down:
		info.Done = true
	case p1Down:
		info.Done = true
		info.Winner = game.Player2
		info.Events = append(info.Events, game.Event{Kind: game.EventKO, Actor: game.Player2, Target: game.Player1})
	case p2Down:
		info.Done = true
		info.Winner = game.Player1
		info.Events = append(info.Events, game.Event{Kind: game.EventKO, Actor: game.Player1, Target: game.Player2})
	}
	info.Distance = next.Distance()
	e.state = next
	return info, nil
}
