package duel

type Action int

const (
	Idle Action = iota
	Left
	Right
	Attack
	Block
	actionCount
)

func (a Action) Valid() bool {
	return a >= Idle && a < actionCount
}

func (a Action) String() string {
	switch a {
	case Idle:
		return "idle"
	case Left:
		return "left"
	case Right:
		return "right"
	case Attack:
		return "attack"
	case Block:
		return "block"
	}
	return "unknown"
}

// ActionSpace maps policy indices onto actions one-to-one.
type ActionSpace struct{}

func (ActionSpace) Size() int {
	return int(actionCount)
}

func (ActionSpace) Decode(i int) Action {
	return Action(i)
}

func (ActionSpace) Index(a Action) (int, bool) {
	return int(a), a.Valid()
}
