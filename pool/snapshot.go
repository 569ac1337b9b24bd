package pool

import (
	"fmt"
	"time"

	"github.com/sw965/brawler/model/actorcritic"
)

type Style string

const (
	StyleNone       Style = ""
	StyleBalanced   Style = "balanced"
	StyleAggressive Style = "aggressive"
	StyleDefensive  Style = "defensive"
	StyleEvasive    Style = "evasive"
)

var Styles = []Style{StyleBalanced, StyleAggressive, StyleDefensive, StyleEvasive}

func ParseStyle(s string) (Style, error) {
	style := Style(s)
	if !style.Valid() {
		return StyleNone, fmt.Errorf("unknown style %q", s)
	}
	return style, nil
}

func (s Style) Valid() bool {
	switch s {
	case StyleNone, StyleBalanced, StyleAggressive, StyleDefensive, StyleEvasive:
		return true
	}
	return false
}

func (s *Style) UnmarshalText(text []byte) error {
	style, err := ParseStyle(string(text))
	if err != nil {
		return err
	}
	*s = style
	return nil
}

type Metadata struct {
	CheckpointStep int       `json:"checkpointStep"`
	Timestamp      time.Time `json:"timestamp"`
	Style          Style     `json:"style,omitempty"`
	Difficulty     float64   `json:"difficulty,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Baseline       bool      `json:"baseline,omitempty"`
}

func (m Metadata) Validate() error {
	if !m.Style.Valid() {
		return fmt.Errorf("unknown style %q", m.Style)
	}
	if m.CheckpointStep < 0 {
		return fmt.Errorf("checkpoint step must not be negative, got %d", m.CheckpointStep)
	}
	return nil
}

// Snapshot is a frozen opponent. Its Policy is never updated after creation.
// Elo, GamesPlayed and WinRate mirror the pool's rating ledger.
type Snapshot struct {
	ID          string
	Policy      *actorcritic.Policy
	Elo         float64
	GamesPlayed int
	WinRate     float64
	Metadata    Metadata

	seq int
}

// Record is the metadata.json stored next to a snapshot's model.json.
type Record struct {
	ID          string   `json:"id"`
	Elo         float64  `json:"elo"`
	GamesPlayed int      `json:"gamesPlayed"`
	WinRate     float64  `json:"winRate"`
	Metadata    Metadata `json:"metadata"`
}

func (s *Snapshot) Record() Record {
	return Record{
		ID:          s.ID,
		Elo:         s.Elo,
		GamesPlayed: s.GamesPlayed,
		WinRate:     s.WinRate,
		Metadata:    s.Metadata,
	}
}
