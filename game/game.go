// Package game defines the boundary between the trainer and a two-player
// simultaneous-move combat environment.
package game

import (
	"github.com/sw965/brawler/pool"
)

type Role string

const (
	Player1 Role = "player1"
	Player2 Role = "player2"
)

var Roles = []Role{Player1, Player2}

func (r Role) Opponent() Role {
	if r == Player1 {
		return Player2
	}
	return Player1
}

func (r Role) Valid() bool {
	return r == Player1 || r == Player2
}

type EventKind string

const (
	EventHit     EventKind = "hit"
	EventBlocked EventKind = "blocked"
	EventKO      EventKind = "ko"
)

type Event struct {
	Kind   EventKind
	Actor  Role
	Target Role
	Amount float64
}

// StepInfo describes one simultaneous step. Winner is empty unless Done is
// set and one side won.
type StepInfo struct {
	Done        bool
	DamageDealt map[Role]float64
	DamageTaken map[Role]float64
	Distance    float64
	Events      []Event
	Winner      Role
}

// Environment advances when every role has submitted an action.
type Environment[S, A any] interface {
	Reset() S
	Step(actions map[Role]A) (StepInfo, error)
	State() S
}

// Encoder turns a state into a fixed-length observation from role's point
// of view. Size is the length of every returned slice.
type Encoder[S any] interface {
	Encode(state S, role Role, style pool.Style) []float32
	Size() int
}

type RewardFunc[S any] func(prev, curr S, role Role, events []Event) float64

type ScriptedOpponent[S, A any] func(state S, actor, target Role) A

type ActionSpace[A any] interface {
	Size() int
	Decode(i int) A
	Index(a A) (int, bool)
}
