package rl

import (
	"fmt"
)

type Transition struct {
	Observation []float32
	Action      int
	Reward      float32
	Done        bool
	Value       float32
	LogProb     float32
}

// Buffer is a fixed-capacity rollout. Done[i] marks an episode boundary.
type Buffer struct {
	transitions []Transition
	capacity    int
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		transitions: make([]Transition, 0, capacity),
		capacity:    capacity,
	}
}

func (b *Buffer) Append(t Transition) error {
	if b.IsFull() {
		return fmt.Errorf("rollout buffer is full (capacity %d)", b.capacity)
	}
	b.transitions = append(b.transitions, t)
	return nil
}

func (b *Buffer) Len() int {
	return len(b.transitions)
}

func (b *Buffer) Capacity() int {
	return b.capacity
}

func (b *Buffer) IsFull() bool {
	return len(b.transitions) >= b.capacity
}

func (b *Buffer) At(i int) Transition {
	return b.transitions[i]
}

func (b *Buffer) Transitions() []Transition {
	return b.transitions
}

func (b *Buffer) Reset() {
	b.transitions = b.transitions[:0]
}

func (b *Buffer) Rewards() []float32 {
	ys := make([]float32, len(b.transitions))
	for i, t := range b.transitions {
		ys[i] = t.Reward
	}
	return ys
}

func (b *Buffer) Values() []float32 {
	ys := make([]float32, len(b.transitions))
	for i, t := range b.transitions {
		ys[i] = t.Value
	}
	return ys
}

func (b *Buffer) Dones() []bool {
	ys := make([]bool, len(b.transitions))
	for i, t := range b.transitions {
		ys[i] = t.Done
	}
	return ys
}

func (b *Buffer) Episodes() int {
	n := 0
	for _, t := range b.transitions {
		if t.Done {
			n++
		}
	}
	return n
}

func (b *Buffer) MeanReward() float32 {
	if len(b.transitions) == 0 {
		return 0
	}
	var sum float32
	for _, t := range b.transitions {
		sum += t.Reward
	}
	return sum / float32(len(b.transitions))
}
