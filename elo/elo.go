// Package elo keeps a pairwise Elo rating ledger for named competitors.
package elo

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	cmath "github.com/sw965/brawler/math"
	"gonum.org/v1/gonum/stat"
)

var ErrDuplicateID = errors.New("duplicate competitor id")

type Result int

const (
	Win Result = iota
	Draw
	Loss
)

func (r Result) String() string {
	switch r {
	case Win:
		return "win"
	case Draw:
		return "draw"
	case Loss:
		return "loss"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// actualScore is the score of the winner slot.
func (r Result) actualScore() float64 {
	switch r {
	case Draw:
		return 0.5
	case Loss:
		return 0.0
	}
	return 1.0
}

type Config struct {
	InitialRating float64 `mapstructure:"initial_rating" json:"initialRating"`
	K             float64 `mapstructure:"k" json:"k"`
	MinRating     float64 `mapstructure:"min_rating" json:"minRating"`
	MaxRating     float64 `mapstructure:"max_rating" json:"maxRating"`

	// Adaptive K thresholds: K = HighK below HighGames games,
	// MediumK below MediumGames, LowK otherwise.
	HighK       float64 `mapstructure:"high_k" json:"highK"`
	MediumK     float64 `mapstructure:"medium_k" json:"mediumK"`
	LowK        float64 `mapstructure:"low_k" json:"lowK"`
	HighGames   int     `mapstructure:"high_games" json:"highGames"`
	MediumGames int     `mapstructure:"medium_games" json:"mediumGames"`
}

func DefaultConfig() Config {
	return Config{
		InitialRating: 1500,
		K:             32,
		MinRating:     100,
		MaxRating:     3000,
		HighK:         40,
		MediumK:       20,
		LowK:          10,
		HighGames:     20,
		MediumGames:   100,
	}
}

func (c Config) Validate() error {
	if c.MinRating >= c.MaxRating {
		return fmt.Errorf("elo: min_rating %v must be below max_rating %v", c.MinRating, c.MaxRating)
	}
	if c.InitialRating < c.MinRating || c.InitialRating > c.MaxRating {
		return fmt.Errorf("elo: initial_rating %v outside [%v, %v]", c.InitialRating, c.MinRating, c.MaxRating)
	}
	if c.K <= 0 {
		return fmt.Errorf("elo: k must be positive")
	}
	return nil
}

type Player struct {
	ID          string  `json:"id"`
	Rating      float64 `json:"rating"`
	GamesPlayed int     `json:"gamesPlayed"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Draws       int     `json:"draws"`
}

func (p Player) WinRate() float64 {
	if p.GamesPlayed == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.GamesPlayed)
}

type Outcome struct {
	Winner Player
	Loser  Player
}

// Rating is the ledger. It is the only place ratings change.
type Rating struct {
	cfg     Config
	players map[string]*Player
	order   []string
}

func New(cfg Config) *Rating {
	return &Rating{
		cfg:     cfg,
		players: map[string]*Player{},
	}
}

func (r *Rating) Config() Config {
	return r.cfg
}

func (r *Rating) Len() int {
	return len(r.order)
}

func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

func (r *Rating) Register(id string, initial ...float64) (Player, error) {
	if _, ok := r.players[id]; ok {
		return Player{}, fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	rating := r.cfg.InitialRating
	if len(initial) > 0 {
		rating = cmath.Clamp(initial[0], r.cfg.MinRating, r.cfg.MaxRating)
	}
	p := &Player{ID: id, Rating: rating}
	r.players[id] = p
	r.order = append(r.order, id)
	return *p, nil
}

// RegisterRecord restores a complete record, e.g. from an export or disk.
func (r *Rating) RegisterRecord(p Player) error {
	if _, ok := r.players[p.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
	}
	cp := p
	r.players[p.ID] = &cp
	r.order = append(r.order, p.ID)
	return nil
}

func (r *Rating) getOrRegister(id string) *Player {
	if p, ok := r.players[id]; ok {
		return p
	}
	r.Register(id)
	return r.players[id]
}

func (r *Rating) Update(winnerID, loserID string, result Result) (Outcome, error) {
	return r.update(winnerID, loserID, result, func(_, _ *Player) float64 { return r.cfg.K })
}

// UpdateAdaptive uses the mean of both players' experience-based K.
func (r *Rating) UpdateAdaptive(winnerID, loserID string, result Result) (Outcome, error) {
	return r.update(winnerID, loserID, result, func(w, l *Player) float64 {
		return (r.AdaptiveK(w.GamesPlayed) + r.AdaptiveK(l.GamesPlayed)) / 2
	})
}

func (r *Rating) AdaptiveK(gamesPlayed int) float64 {
	switch {
	case gamesPlayed < r.cfg.HighGames:
		return r.cfg.HighK
	case gamesPlayed < r.cfg.MediumGames:
		return r.cfg.MediumK
	}
	return r.cfg.LowK
}

func (r *Rating) update(winnerID, loserID string, result Result, kFunc func(w, l *Player) float64) (Outcome, error) {
	if winnerID == loserID {
		return Outcome{}, fmt.Errorf("elo: cannot rate %q against itself", winnerID)
	}
	if result < Win || result > Loss {
		return Outcome{}, fmt.Errorf("elo: unknown result %v", result)
	}
	w := r.getOrRegister(winnerID)
	l := r.getOrRegister(loserID)
	k := kFunc(w, l)

	expectedW := ExpectedScore(w.Rating, l.Rating)
	expectedL := ExpectedScore(l.Rating, w.Rating)
	actualW := result.actualScore()
	actualL := 1.0 - actualW

	w.Rating = cmath.Clamp(w.Rating+k*(actualW-expectedW), r.cfg.MinRating, r.cfg.MaxRating)
	l.Rating = cmath.Clamp(l.Rating+k*(actualL-expectedL), r.cfg.MinRating, r.cfg.MaxRating)

	w.GamesPlayed++
	l.GamesPlayed++
	switch result {
	case Win:
		w.Wins++
		l.Losses++
	case Loss:
		w.Losses++
		l.Wins++
	case Draw:
		w.Draws++
		l.Draws++
	}
	return Outcome{Winner: *w, Loser: *l}, nil
}

func (r *Rating) Player(id string) (Player, bool) {
	p, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Players returns copies in registration order.
func (r *Rating) Players() []Player {
	ps := make([]Player, len(r.order))
	for i, id := range r.order {
		ps[i] = *r.players[id]
	}
	return ps
}

// Leaderboard returns the top n players by rating (all when n <= 0).
// Ties keep registration order.
func (r *Rating) Leaderboard(n int) []Player {
	ps := r.Players()
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Rating > ps[j].Rating
	})
	if n > 0 && n < len(ps) {
		ps = ps[:n]
	}
	return ps
}

func (r *Rating) InRange(minRating, maxRating float64) []Player {
	var ps []Player
	for _, p := range r.Players() {
		if p.Rating >= minRating && p.Rating <= maxRating {
			ps = append(ps, p)
		}
	}
	return ps
}

type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func Summarize(ratings []float64) Summary {
	if len(ratings) == 0 {
		return Summary{}
	}
	xs := slices.Clone(ratings)
	slices.Sort(xs)
	s := Summary{
		Count: len(xs),
		Mean:  stat.Mean(xs, nil),
		Min:   xs[0],
		Max:   xs[len(xs)-1],
	}
	if n := len(xs); n%2 == 1 {
		s.Median = xs[n/2]
	} else {
		s.Median = (xs[n/2-1] + xs[n/2]) / 2
	}
	if len(xs) > 1 {
		s.StdDev = stat.PopStdDev(xs, nil)
	}
	return s
}

func (r *Rating) Summary() Summary {
	ratings := make([]float64, 0, len(r.order))
	for _, id := range r.order {
		ratings = append(ratings, r.players[id].Rating)
	}
	return Summarize(ratings)
}

type Export struct {
	Config  Config   `json:"config"`
	Players []Player `json:"players"`
}

func (r *Rating) Export() Export {
	return Export{Config: r.cfg, Players: r.Players()}
}

// Import replaces the ledger with e.
func (r *Rating) Import(e Export) error {
	fresh := New(e.Config)
	for _, p := range e.Players {
		if err := fresh.RegisterRecord(p); err != nil {
			return err
		}
	}
	*r = *fresh
	return nil
}

func (r *Rating) Reset() {
	r.players = map[string]*Player{}
	r.order = nil
}
