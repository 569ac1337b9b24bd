package trainer

import (
	"math/rand"

	"github.com/sw965/brawler/game"
	"github.com/sw965/brawler/pool"
)

type ScriptedFactory[S, A any] func(style pool.Style, difficulty float64, rng *rand.Rand) game.ScriptedOpponent[S, A]

type botKey struct {
	style      pool.Style
	difficulty float64
}

// OpponentCache builds each scripted bot once per style and difficulty.
type OpponentCache[S, A any] struct {
	factory ScriptedFactory[S, A]
	rng     *rand.Rand
	bots    map[botKey]game.ScriptedOpponent[S, A]
}

func NewOpponentCache[S, A any](factory ScriptedFactory[S, A], rng *rand.Rand) *OpponentCache[S, A] {
	return &OpponentCache[S, A]{
		factory: factory,
		rng:     rng,
		bots:    map[botKey]game.ScriptedOpponent[S, A]{},
	}
}

func (c *OpponentCache[S, A]) Get(style pool.Style, difficulty float64) game.ScriptedOpponent[S, A] {
	k := botKey{style: style, difficulty: difficulty}
	if bot, ok := c.bots[k]; ok {
		return bot
	}
	bot := c.factory(style, difficulty, c.rng)
	c.bots[k] = bot
	return bot
}

func (c *OpponentCache[S, A]) Len() int {
	return len(c.bots)
}

type SourceKind string

const (
	SourceScripted SourceKind = "scripted"
	SourceSnapshot SourceKind = "snapshot"
)

// opponent is the other side of one episode: either a scripted bot or a
// frozen snapshot.
type opponent[S, A any] struct {
	kind     SourceKind
	style    pool.Style
	scripted game.ScriptedOpponent[S, A]
	snapshot *pool.Snapshot
}

func (o opponent[S, A]) id() string {
	if o.snapshot != nil {
		return o.snapshot.ID
	}
	return "scripted_" + string(o.style)
}
