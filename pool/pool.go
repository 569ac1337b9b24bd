// Package pool manages frozen policy snapshots used as self-play opponents.
package pool

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sw965/brawler/elo"
	"github.com/sw965/brawler/model/actorcritic"
)

var ErrEmptyPool = errors.New("opponent pool is empty")

const idPrefix = "snapshot_"

type Config struct {
	MaxSnapshots      int      `mapstructure:"max_snapshots"`
	KeepBest          int      `mapstructure:"keep_best"`
	KeepRecent        int      `mapstructure:"keep_recent"`
	KeepBaselines     int      `mapstructure:"keep_baselines"`
	SnapshotFrequency int      `mapstructure:"snapshot_frequency"`
	Strategy          Strategy `mapstructure:"strategy"`
	// Dir が空なら永続化しない
	Dir string     `mapstructure:"dir"`
	Elo elo.Config `mapstructure:"elo"`
}

func DefaultConfig() Config {
	return Config{
		MaxSnapshots:      20,
		KeepBest:          5,
		KeepRecent:        5,
		KeepBaselines:     2,
		SnapshotFrequency: 50000,
		Strategy:          Mixed,
		Elo:               elo.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.MaxSnapshots <= 0 {
		return fmt.Errorf("pool: max_snapshots must be positive, got %d", c.MaxSnapshots)
	}
	if c.KeepBest < 0 || c.KeepRecent < 0 || c.KeepBaselines < 0 {
		return fmt.Errorf("pool: keep counts must not be negative")
	}
	if c.SnapshotFrequency <= 0 {
		return fmt.Errorf("pool: snapshot_frequency must be positive, got %d", c.SnapshotFrequency)
	}
	if !c.Strategy.Valid() {
		return fmt.Errorf("pool: unknown strategy %q", c.Strategy)
	}
	return c.Elo.Validate()
}

// Pool is owned by the training goroutine. Only disk I/O runs elsewhere.
type Pool struct {
	cfg       Config
	snapshots []*Snapshot
	ratings   *elo.Rating
	nextID    int
	seq       int

	rng    *rand.Rand
	store  *Store
	logger zerolog.Logger
}

func New(cfg Config, rng *rand.Rand, logger zerolog.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:     cfg,
		ratings: elo.New(cfg.Elo),
		rng:     rng,
		logger:  logger.With().Str("component", "pool").Logger(),
	}
	if cfg.Dir != "" {
		p.store = NewStore(cfg.Dir, logger)
	}
	return p, nil
}

func (p *Pool) Config() Config {
	return p.cfg
}

func (p *Pool) Len() int {
	return len(p.snapshots)
}

func (p *Pool) Player(id string) (elo.Player, bool) {
	return p.ratings.Player(id)
}

func (p *Pool) EloSummary() elo.Summary {
	return p.ratings.Summary()
}

func (p *Pool) idTaken(id string) bool {
	if _, ok := p.Get(id); ok {
		return true
	}
	if _, ok := p.ratings.Player(id); ok {
		return true
	}
	return p.store != nil && p.store.Exists(id)
}

func (p *Pool) allocateID() string {
	for {
		id := idPrefix + strconv.Itoa(p.nextID)
		p.nextID++
		if !p.idTaken(id) {
			return id
		}
	}
}

// Add freezes a clone of policy into the pool and prunes if the pool is over
// capacity. Persistence is queued and never fails the call.
func (p *Pool) Add(policy *actorcritic.Policy, meta Metadata) (*Snapshot, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	id := p.allocateID()
	player, err := p.ratings.Register(id)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{
		ID:          id,
		Policy:      policy.Clone(),
		Elo:         player.Rating,
		GamesPlayed: player.GamesPlayed,
		WinRate:     player.WinRate(),
		Metadata:    meta,
		seq:         p.seq,
	}
	p.seq++
	p.snapshots = append(p.snapshots, s)
	p.logger.Debug().Str("id", id).Int("checkpoint_step", meta.CheckpointStep).Msg("snapshot added")

	if p.store != nil {
		c := s.Policy.Checkpoint()
		p.store.Save(id, &c, s.Record())
	}
	if len(p.snapshots) > p.cfg.MaxSnapshots {
		p.prune()
	}
	return s, nil
}

func (p *Pool) sortedByElo(desc bool) []*Snapshot {
	ss := slices.Clone(p.snapshots)
	sort.SliceStable(ss, func(i, j int) bool {
		if desc {
			return ss[i].Elo > ss[j].Elo
		}
		return ss[i].Elo < ss[j].Elo
	})
	return ss
}

func (p *Pool) keepSet() map[string]struct{} {
	keep := map[string]struct{}{}
	for i, s := range p.sortedByElo(true) {
		if i >= p.cfg.KeepBest {
			break
		}
		keep[s.ID] = struct{}{}
	}
	n := len(p.snapshots)
	for i := max(n-p.cfg.KeepRecent, 0); i < n; i++ {
		keep[p.snapshots[i].ID] = struct{}{}
	}
	baselines := 0
	for _, s := range p.snapshots {
		if baselines >= p.cfg.KeepBaselines {
			break
		}
		if s.Metadata.Baseline {
			keep[s.ID] = struct{}{}
			baselines++
		}
	}
	return keep
}

// prune removes unprotected snapshots, oldest checkpoint step first, until
// the pool is at capacity. When the protected set alone is larger than
// MaxSnapshots the pool stays above capacity.
func (p *Pool) prune() {
	keep := p.keepSet()
	var candidates []*Snapshot
	for _, s := range p.snapshots {
		if _, ok := keep[s.ID]; !ok {
			candidates = append(candidates, s)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Metadata.CheckpointStep != candidates[j].Metadata.CheckpointStep {
			return candidates[i].Metadata.CheckpointStep < candidates[j].Metadata.CheckpointStep
		}
		return candidates[i].seq < candidates[j].seq
	})

	removed := map[string]struct{}{}
	for _, s := range candidates {
		if len(p.snapshots)-len(removed) <= p.cfg.MaxSnapshots {
			break
		}
		removed[s.ID] = struct{}{}
	}
	p.snapshots = slices.DeleteFunc(p.snapshots, func(s *Snapshot) bool {
		_, ok := removed[s.ID]
		return ok
	})
	for id := range removed {
		p.logger.Debug().Str("id", id).Msg("snapshot pruned")
		if p.store != nil {
			p.store.Delete(id)
		}
	}
	if len(p.snapshots) > p.cfg.MaxSnapshots {
		p.logger.Debug().Int("size", len(p.snapshots)).Int("max", p.cfg.MaxSnapshots).Msg("protected snapshots exceed capacity")
	}
}

// UpdateElo records a win of winnerID over loserID and mirrors the new
// ratings onto the matching snapshots. Either id may be a non-snapshot
// competitor such as the live policy.
func (p *Pool) UpdateElo(winnerID, loserID string) error {
	out, err := p.ratings.Update(winnerID, loserID, elo.Win)
	if err != nil {
		return err
	}
	p.sync(out.Winner)
	p.sync(out.Loser)
	return nil
}

func (p *Pool) sync(player elo.Player) {
	s, ok := p.Get(player.ID)
	if !ok {
		return
	}
	s.Elo = player.Rating
	s.GamesPlayed = player.GamesPlayed
	s.WinRate = player.WinRate()
}

// SyncMetadata queues a metadata.json rewrite for every snapshot so the
// persisted ratings follow the ledger.
func (p *Pool) SyncMetadata() {
	if p.store == nil {
		return
	}
	for _, s := range p.snapshots {
		p.store.Save(s.ID, nil, s.Record())
	}
}

func (p *Pool) Get(id string) (*Snapshot, bool) {
	for _, s := range p.snapshots {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// All returns the snapshots in insertion order.
func (p *Pool) All() []*Snapshot {
	return slices.Clone(p.snapshots)
}

func (p *Pool) Leaderboard(n int) []*Snapshot {
	ss := p.sortedByElo(true)
	if n > 0 && n < len(ss) {
		ss = ss[:n]
	}
	return ss
}

func (p *Pool) ByStyle(style Style) []*Snapshot {
	var ss []*Snapshot
	for _, s := range p.snapshots {
		if s.Metadata.Style == style {
			ss = append(ss, s)
		}
	}
	return ss
}

func (p *Pool) InEloRange(minElo, maxElo float64) []*Snapshot {
	var ss []*Snapshot
	for _, s := range p.snapshots {
		if s.Elo >= minElo && s.Elo <= maxElo {
			ss = append(ss, s)
		}
	}
	return ss
}

type Statistics struct {
	Count            int           `json:"count"`
	Elo              elo.Summary   `json:"elo"`
	TotalGamesPlayed int           `json:"totalGamesPlayed"`
	Baselines        int           `json:"baselines"`
	Styles           map[Style]int `json:"styles"`
	OldestStep       int           `json:"oldestStep"`
	NewestStep       int           `json:"newestStep"`
}

func (p *Pool) Statistics() Statistics {
	st := Statistics{Count: len(p.snapshots), Styles: map[Style]int{}}
	if len(p.snapshots) == 0 {
		return st
	}
	ratings := make([]float64, len(p.snapshots))
	st.OldestStep = math.MaxInt
	st.NewestStep = math.MinInt
	for i, s := range p.snapshots {
		ratings[i] = s.Elo
		st.TotalGamesPlayed += s.GamesPlayed
		if s.Metadata.Baseline {
			st.Baselines++
		}
		st.Styles[s.Metadata.Style]++
		st.OldestStep = min(st.OldestStep, s.Metadata.CheckpointStep)
		st.NewestStep = max(st.NewestStep, s.Metadata.CheckpointStep)
	}
	st.Elo = elo.Summarize(ratings)
	return st
}

type SnapshotExport struct {
	Record
	Model actorcritic.Checkpoint `json:"model"`
}

type Export struct {
	NextID    int              `json:"nextId"`
	Snapshots []SnapshotExport `json:"snapshots"`
	Elo       elo.Export       `json:"elo"`
}

func (p *Pool) Export() Export {
	e := Export{NextID: p.nextID, Elo: p.ratings.Export()}
	for _, s := range p.snapshots {
		e.Snapshots = append(e.Snapshots, SnapshotExport{Record: s.Record(), Model: s.Policy.Checkpoint()})
	}
	return e
}

// Import replaces the in-memory state with e. Nothing is written to disk.
// Snapshot ratings are taken from the imported ledger when it knows the id.
func (p *Pool) Import(e Export) error {
	ratings := elo.New(e.Elo.Config)
	if err := ratings.Import(e.Elo); err != nil {
		return err
	}
	snapshots := make([]*Snapshot, 0, len(e.Snapshots))
	seen := map[string]struct{}{}
	for i, se := range e.Snapshots {
		if _, ok := seen[se.ID]; ok {
			return fmt.Errorf("%w: %q", elo.ErrDuplicateID, se.ID)
		}
		seen[se.ID] = struct{}{}
		if err := se.Metadata.Validate(); err != nil {
			return fmt.Errorf("snapshot %q: %w", se.ID, err)
		}
		policy, err := actorcritic.FromCheckpoint(se.Model, 0)
		if err != nil {
			return fmt.Errorf("snapshot %q: %w", se.ID, err)
		}
		s := &Snapshot{
			ID:          se.ID,
			Policy:      policy,
			Elo:         se.Elo,
			GamesPlayed: se.GamesPlayed,
			WinRate:     se.WinRate,
			Metadata:    se.Metadata,
			seq:         i,
		}
		if player, ok := ratings.Player(se.ID); ok {
			s.Elo = player.Rating
			s.GamesPlayed = player.GamesPlayed
			s.WinRate = player.WinRate()
		}
		snapshots = append(snapshots, s)
	}
	p.snapshots = snapshots
	p.ratings = ratings
	p.nextID = e.NextID
	p.seq = len(snapshots)
	return nil
}

// Clear drops every snapshot and resets the id counter and ledger. Files on
// disk are left alone; new ids skip over them.
func (p *Pool) Clear() {
	p.snapshots = nil
	p.ratings = elo.New(p.cfg.Elo)
	p.nextID = 0
	p.seq = 0
}

func parseID(id string) (int, bool) {
	s, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// Load reads every snapshot directory under Config.Dir. Entries that fail to
// load are logged and skipped. obsSize and actionSize, when positive, reject
// models of another shape.
func (p *Pool) Load(obsSize, actionSize int) int {
	if p.store == nil {
		return 0
	}
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			p.store.logger.Warn().Err(err).Str("dir", p.cfg.Dir).Msg("failed to list snapshots")
		}
		return 0
	}

	type loaded struct {
		n      int
		record Record
		policy *actorcritic.Policy
	}
	var ls []loaded
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		n, ok := parseID(id)
		if !ok {
			continue
		}
		if _, exists := p.Get(id); exists {
			continue
		}
		warn := func(err error) {
			p.store.logger.Warn().Err(err).Str("id", id).Msg("failed to load snapshot")
		}
		record, err := ReadRecord(p.cfg.Dir, id)
		if err != nil {
			warn(err)
			continue
		}
		if record.ID != id {
			warn(fmt.Errorf("metadata id %q does not match directory", record.ID))
			continue
		}
		if err := record.Metadata.Validate(); err != nil {
			warn(err)
			continue
		}
		policy, err := actorcritic.Load(p.store.dirOf(id), obsSize, actionSize, 0)
		if err != nil {
			warn(err)
			continue
		}
		ls = append(ls, loaded{n: n, record: record, policy: policy})
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].n < ls[j].n })

	count := 0
	for _, l := range ls {
		wins := int(math.Round(l.record.WinRate * float64(l.record.GamesPlayed)))
		err := p.ratings.RegisterRecord(elo.Player{
			ID:          l.record.ID,
			Rating:      l.record.Elo,
			GamesPlayed: l.record.GamesPlayed,
			Wins:        wins,
			Losses:      l.record.GamesPlayed - wins,
		})
		if err != nil {
			p.store.logger.Warn().Err(err).Str("id", l.record.ID).Msg("failed to load snapshot")
			continue
		}
		p.snapshots = append(p.snapshots, &Snapshot{
			ID:          l.record.ID,
			Policy:      l.policy,
			Elo:         l.record.Elo,
			GamesPlayed: l.record.GamesPlayed,
			WinRate:     l.record.WinRate,
			Metadata:    l.record.Metadata,
			seq:         p.seq,
		})
		p.seq++
		p.nextID = max(p.nextID, l.n+1)
		count++
	}
	p.logger.Info().Int("loaded", count).Str("dir", p.cfg.Dir).Msg("snapshots loaded")
	if len(p.snapshots) > p.cfg.MaxSnapshots {
		p.prune()
	}
	return count
}

// Close flushes pending saves and deletions.
func (p *Pool) Close() {
	if p.store != nil {
		p.store.Close()
	}
}
