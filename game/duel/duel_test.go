package duel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/brawler/game"
	"github.com/sw965/brawler/game/duel"
	crand "github.com/sw965/brawler/math/rand"
	"github.com/sw965/brawler/pool"
)

func noJitter() duel.Config {
	cfg := duel.DefaultConfig()
	cfg.StartJitter = 0
	return cfg
}

func newEnv(t *testing.T, cfg duel.Config) *duel.Env {
	t.Helper()
	env, err := duel.NewEnv(cfg, crand.NewMt19937(1))
	require.NoError(t, err)
	return env
}

func TestReset(t *testing.T) {
	cfg := noJitter()
	env := newEnv(t, cfg)
	s := env.Reset()
	assert.Equal(t, cfg.StartDistance, s.Distance())
	assert.Equal(t, cfg.MaxHP, s.P1.HP)
	assert.Equal(t, cfg.MaxHP, s.P2.HP)
	assert.Equal(t, 1.0, s.Direction(game.Player1))
	assert.Equal(t, -1.0, s.Direction(game.Player2))
}

func TestStepMovementAndRange(t *testing.T) {
	cfg := noJitter()
	env := newEnv(t, cfg)
	info, err := env.Step(map[game.Role]duel.Action{game.Player1: duel.Right, game.Player2: duel.Left})
	require.NoError(t, err)
	assert.InDelta(t, cfg.StartDistance-2*cfg.MoveSpeed, info.Distance, 1e-9)
	assert.False(t, info.Done)
	assert.Equal(t, 1, env.State().Frame)

	// 射程外の攻撃はクールダウンだけ消費する
	info, err = env.Step(map[game.Role]duel.Action{game.Player1: duel.Attack, game.Player2: duel.Idle})
	require.NoError(t, err)
	assert.Empty(t, info.Events)
	assert.Equal(t, cfg.AttackCooldown, env.State().P1.Cooldown)
}

func closeRange(t *testing.T, env *duel.Env) {
	t.Helper()
	for env.State().Distance() > env.Config().AttackRange {
		_, err := env.Step(map[game.Role]duel.Action{game.Player1: duel.Right, game.Player2: duel.Left})
		require.NoError(t, err)
	}
}

func TestStepHitBlockAndKO(t *testing.T) {
	cfg := noJitter()
	env := newEnv(t, cfg)
	closeRange(t, env)

	info, err := env.Step(map[game.Role]duel.Action{game.Player1: duel.Attack, game.Player2: duel.Block})
	require.NoError(t, err)
	require.Len(t, info.Events, 1)
	assert.Equal(t, game.EventBlocked, info.Events[0].Kind)
	assert.InDelta(t, cfg.AttackDamage*cfg.BlockFactor, info.DamageDealt[game.Player1], 1e-9)
	assert.InDelta(t, cfg.AttackDamage*cfg.BlockFactor, info.DamageTaken[game.Player2], 1e-9)

	var last game.StepInfo
	for i := 0; i < 1000 && !last.Done; i++ {
		last, err = env.Step(map[game.Role]duel.Action{game.Player1: duel.Attack, game.Player2: duel.Idle})
		require.NoError(t, err)
	}
	require.True(t, last.Done)
	assert.Equal(t, game.Player1, last.Winner)
	assert.Equal(t, game.EventKO, last.Events[len(last.Events)-1].Kind)
	assert.Zero(t, env.State().P2.HP)
}

func TestStepRejectsMissingAction(t *testing.T) {
	env := newEnv(t, noJitter())
	_, err := env.Step(map[game.Role]duel.Action{game.Player1: duel.Idle})
	assert.Error(t, err)
	_, err = env.Step(map[game.Role]duel.Action{game.Player1: duel.Idle, game.Player2: duel.Action(42)})
	assert.Error(t, err)
}

func TestEncoder(t *testing.T) {
	cfg := noJitter()
	env := newEnv(t, cfg)
	enc := duel.NewEncoder(cfg)
	s := env.State()

	a := enc.Encode(s, game.Player1, pool.StyleAggressive)
	b := enc.Encode(s, game.Player2, pool.StyleAggressive)
	require.Len(t, a, enc.Size())
	require.Len(t, b, enc.Size())
	assert.Equal(t, a[0], b[1])
	assert.Equal(t, a[2], -b[2])

	none := enc.Encode(s, game.Player1, pool.StyleNone)
	var hot float32
	for _, x := range none[enc.Size()-len(pool.Styles):] {
		hot += x
	}
	assert.Zero(t, hot)
}

func TestReward(t *testing.T) {
	cfg := noJitter()
	rc := duel.DefaultRewardConfig()
	reward := duel.NewReward(cfg, rc)
	prev := duel.State{P1: duel.Fighter{HP: 100}, P2: duel.Fighter{HP: 100}}
	curr := duel.State{P1: duel.Fighter{HP: 100}, P2: duel.Fighter{HP: 90}}

	assert.InDelta(t, 0.1+rc.Step, reward(prev, curr, game.Player1, nil), 1e-9)
	assert.InDelta(t, -0.1+rc.Step, reward(prev, curr, game.Player2, nil), 1e-9)

	ko := []game.Event{{Kind: game.EventKO, Actor: game.Player1, Target: game.Player2}}
	assert.InDelta(t, 0.1+rc.Step+rc.Win, reward(prev, curr, game.Player1, ko), 1e-9)
	assert.InDelta(t, -0.1+rc.Step+rc.Loss, reward(prev, curr, game.Player2, ko), 1e-9)
}

func TestScripted(t *testing.T) {
	cfg := noJitter()
	env := newEnv(t, cfg)
	factory := duel.Scripted(cfg)
	rng := crand.NewMt19937(3)

	agg := factory(pool.StyleAggressive, 1, rng)
	assert.Equal(t, duel.Right, agg(env.State(), game.Player1, game.Player2))
	assert.Equal(t, duel.Left, agg(env.State(), game.Player2, game.Player1))

	closeRange(t, env)
	assert.Equal(t, duel.Attack, agg(env.State(), game.Player1, game.Player2))
	def := factory(pool.StyleDefensive, 1, rng)
	assert.Equal(t, duel.Block, def(env.State(), game.Player2, game.Player1))

	random := factory(pool.StyleNone, 1, rng)
	seen := map[duel.Action]bool{}
	for i := 0; i < 200; i++ {
		seen[random(env.State(), game.Player1, game.Player2)] = true
	}
	assert.Len(t, seen, duel.ActionSpace{}.Size())
}

func TestActionSpace(t *testing.T) {
	var space duel.ActionSpace
	for i := 0; i < space.Size(); i++ {
		a := space.Decode(i)
		j, ok := space.Index(a)
		assert.True(t, ok)
		assert.Equal(t, i, j)
	}
	_, ok := space.Index(duel.Action(-1))
	assert.False(t, ok)
}
