// Package trainer runs self-play PPO: it collects rollouts against scripted
// bots and pooled snapshots, updates the live policy and schedules snapshots.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/sw965/brawler/game"
	cmath "github.com/sw965/brawler/math"
	crand "github.com/sw965/brawler/math/rand"
	"github.com/sw965/brawler/model/actorcritic"
	"github.com/sw965/brawler/pool"
	"github.com/sw965/brawler/rl"
	"gonum.org/v1/gonum/stat"
)

var ErrConfiguration = actorcritic.ErrConfiguration

type Recorder interface {
	Record(kind string, obj zerolog.LogObjectMarshaler)
}

type Deps[S, A any] struct {
	Env      game.Environment[S, A]
	Encoder  game.Encoder[S]
	Reward   game.RewardFunc[S]
	Actions  game.ActionSpace[A]
	Scripted ScriptedFactory[S, A]
	Policy   *actorcritic.Policy
	Pool     *pool.Pool
	// Recorder は nil でもよい
	Recorder Recorder
	RNG      *rand.Rand
	Logger   zerolog.Logger
}

type episode[S, A any] struct {
	role     game.Role
	opp      opponent[S, A]
	frames   int
	reward   float64
	firstHit bool
	distance float64
	measured bool
}

type match struct {
	winner, loser string
}

// rollout holds everything observed while the buffer fills. Nothing in it
// reaches the trainer's counters until the update succeeds.
type rollout struct {
	stats          RolloutStats
	episodeRewards []float64
	matches        []match
}

type Trainer[S, A any] struct {
	cfg      Config
	env      game.Environment[S, A]
	encoder  game.Encoder[S]
	reward   game.RewardFunc[S]
	actions  game.ActionSpace[A]
	policy   *actorcritic.Policy
	pool     *pool.Pool
	bots     *OpponentCache[S, A]
	recorder Recorder
	rng      *rand.Rand
	logger   zerolog.Logger

	buffer *rl.Buffer
	ep     *episode[S, A]

	totalSteps       int
	lastSnapshotStep int
	rollouts         int
	record           Record
	lifetime         Record
}

func New[S, A any](deps Deps[S, A], cfg Config) (*Trainer[S, A], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Env == nil || deps.Encoder == nil || deps.Reward == nil || deps.Actions == nil ||
		deps.Scripted == nil || deps.Policy == nil || deps.Pool == nil || deps.RNG == nil {
		return nil, fmt.Errorf("%w: trainer dependencies must not be nil", ErrConfiguration)
	}
	if deps.Encoder.Size() != deps.Policy.ObsSize() {
		return nil, fmt.Errorf("%w: encoder produces %d features, policy expects %d",
			ErrConfiguration, deps.Encoder.Size(), deps.Policy.ObsSize())
	}
	if deps.Actions.Size() != deps.Policy.ActionSize() {
		return nil, fmt.Errorf("%w: action space has %d actions, policy outputs %d",
			ErrConfiguration, deps.Actions.Size(), deps.Policy.ActionSize())
	}

	t := &Trainer[S, A]{
		cfg:      cfg,
		env:      deps.Env,
		encoder:  deps.Encoder,
		reward:   deps.Reward,
		actions:  deps.Actions,
		policy:   deps.Policy,
		pool:     deps.Pool,
		bots:     NewOpponentCache(deps.Scripted, deps.RNG),
		recorder: deps.Recorder,
		rng:      deps.RNG,
		logger:   deps.Logger.With().Str("component", "trainer").Logger(),
		buffer:   rl.NewBuffer(cfg.StepsPerRollout),
	}
	t.env.Reset()
	return t, nil
}

func (t *Trainer[S, A]) Config() Config                  { return t.cfg }
func (t *Trainer[S, A]) Policy() *actorcritic.Policy     { return t.policy }
func (t *Trainer[S, A]) Pool() *pool.Pool                { return t.pool }
func (t *Trainer[S, A]) Opponents() *OpponentCache[S, A] { return t.bots }
func (t *Trainer[S, A]) TotalSteps() int                 { return t.totalSteps }
func (t *Trainer[S, A]) Rollouts() int                   { return t.rollouts }

// Record is the match record since the last snapshot.
func (t *Trainer[S, A]) Record() Record   { return t.record }
func (t *Trainer[S, A]) Lifetime() Record { return t.lifetime }

func (t *Trainer[S, A]) scripted(style pool.Style) opponent[S, A] {
	return opponent[S, A]{
		kind:     SourceScripted,
		style:    style,
		scripted: t.bots.Get(style, t.cfg.ScriptedDifficulty),
	}
}

func (t *Trainer[S, A]) randomScripted() opponent[S, A] {
	return t.scripted(crand.Choice(pool.Styles, t.rng))
}

func (t *Trainer[S, A]) chooseOpponent(index int) opponent[S, A] {
	if index < t.cfg.MinScriptedEpisodes {
		return t.randomScripted()
	}
	snap, err := t.pool.Sample("")
	if err != nil {
		if !errors.Is(err, pool.ErrEmptyPool) {
			t.logger.Warn().Err(err).Msg("opponent sampling failed, using scripted opponent")
		}
		return t.randomScripted()
	}
	// 忘却対策
	if crand.Bool(t.cfg.ScriptedMixProb, t.rng) {
		return t.randomScripted()
	}
	return opponent[S, A]{kind: SourceSnapshot, style: snap.Metadata.Style, snapshot: snap}
}

// startEpisode picks the live policy's role and its opponent. The first
// MinPlayer2Episodes episodes of each rollout put the policy on player2
// against the aggressive bot.
func (t *Trainer[S, A]) startEpisode(ro *rollout) *episode[S, A] {
	index := ro.stats.EpisodesStarted
	ro.stats.EpisodesStarted++

	ep := &episode[S, A]{role: game.Player1}
	if index < t.cfg.MinPlayer2Episodes {
		ep.role = game.Player2
		ep.opp = t.scripted(pool.StyleAggressive)
	} else {
		if crand.Bool(t.cfg.SwapRoleProb, t.rng) {
			ep.role = game.Player2
		}
		ep.opp = t.chooseOpponent(index)
	}

	if ep.role == game.Player2 {
		ro.stats.Player2Episodes++
	}
	switch ep.opp.kind {
	case SourceScripted:
		ro.stats.ScriptedEpisodes++
	case SourceSnapshot:
		ro.stats.SnapshotEpisodes++
	}
	return ep
}

func (t *Trainer[S, A]) opponentAction(state S, ep *episode[S, A]) (A, error) {
	role := ep.role.Opponent()
	if ep.opp.kind == SourceScripted {
		return ep.opp.scripted(state, role, ep.role), nil
	}
	snap := ep.opp.snapshot
	obs := t.encoder.Encode(state, role, snap.Metadata.Style)
	smp, err := snap.Policy.SampleAction(obs, actorcritic.SampleOptions{Temperature: t.cfg.OpponentTemperature}, t.rng)
	if err != nil {
		var zero A
		return zero, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	return t.actions.Decode(smp.Action), nil
}

func (t *Trainer[S, A]) step(ro *rollout) error {
	if t.ep == nil {
		t.ep = t.startEpisode(ro)
	}
	ep := t.ep
	state := t.env.State()

	obs := t.encoder.Encode(state, ep.role, t.cfg.Style)
	if len(obs) != t.policy.ObsSize() {
		return fmt.Errorf("%w: observation has %d features, policy expects %d", ErrConfiguration, len(obs), t.policy.ObsSize())
	}
	opts := actorcritic.SampleOptions{Temperature: t.cfg.Temperature}
	if t.cfg.BootstrapProb > 0 && crand.Bool(t.cfg.BootstrapProb, t.rng) {
		demo := t.bots.Get(t.cfg.Style, 1)(state, ep.role, ep.role.Opponent())
		if i, ok := t.actions.Index(demo); ok {
			opts.Forced = &i
			ro.stats.Bootstrapped++
		}
	}
	smp, err := t.policy.SampleAction(obs, opts, t.rng)
	if err != nil {
		return err
	}
	oppAction, err := t.opponentAction(state, ep)
	if err != nil {
		return err
	}

	info, err := t.env.Step(map[game.Role]A{
		ep.role:            t.actions.Decode(smp.Action),
		ep.role.Opponent(): oppAction,
	})
	if err != nil {
		return fmt.Errorf("environment step: %w", err)
	}
	r := t.reward(state, t.env.State(), ep.role, info.Events)
	if !cmath.IsFinite(r) {
		return fmt.Errorf("%w: reward function returned %v", ErrConfiguration, r)
	}

	ep.frames++
	done := info.Done
	timeout := !done && ep.frames >= t.cfg.MaxEpisodeFrames
	if timeout {
		done = true
		r -= t.cfg.TimeoutPenalty
	}
	ep.reward += r
	t.observeEngagement(ro, ep, info)

	err = t.buffer.Append(rl.Transition{
		Observation: obs,
		Action:      smp.Action,
		Reward:      float32(r),
		Done:        done,
		Value:       smp.Value,
		LogProb:     smp.LogProb,
	})
	if err != nil {
		return err
	}
	if done {
		t.finishEpisode(ro, ep, info, timeout)
		t.env.Reset()
		t.ep = nil
	}
	return nil
}

func (t *Trainer[S, A]) observeEngagement(ro *rollout, ep *episode[S, A], info game.StepInfo) {
	e := &ro.stats.Engagement
	e.DamageDealt += info.DamageDealt[ep.role]
	e.DamageTaken += info.DamageTaken[ep.role]
	if ep.measured {
		e.DistanceClosed += max(ep.distance-info.Distance, 0)
	}
	ep.distance = info.Distance
	ep.measured = true

	if ep.firstHit {
		return
	}
	for _, ev := range info.Events {
		if ev.Kind != game.EventHit {
			continue
		}
		ep.firstHit = true
		if ev.Actor == ep.role {
			e.FirstHits++
		} else {
			e.FirstHitsTaken++
		}
		return
	}
}

func (t *Trainer[S, A]) finishEpisode(ro *rollout, ep *episode[S, A], info game.StepInfo, timeout bool) {
	ro.stats.Episodes++
	ro.episodeRewards = append(ro.episodeRewards, ep.reward)
	if timeout {
		ro.stats.Timeouts++
	}

	decisive := !timeout && info.Winner != ""
	switch {
	case !decisive:
		ro.stats.Results.Draws++
	case info.Winner == ep.role:
		ro.stats.Results.Wins++
	default:
		ro.stats.Results.Losses++
	}

	// 引き分けはレーティングに反映しない
	if decisive && ep.opp.kind == SourceSnapshot {
		m := match{winner: LiveID, loser: ep.opp.id()}
		if info.Winner != ep.role {
			m.winner, m.loser = m.loser, m.winner
		}
		ro.matches = append(ro.matches, m)
		ro.stats.RatedGames++
	}
}

// Rollout fills the buffer and runs one PPO update. Counters, ratings and
// telemetry only change once the update has succeeded.
func (t *Trainer[S, A]) Rollout(ctx context.Context) (RolloutStats, error) {
	ro := &rollout{}
	t.buffer.Reset()
	for !t.buffer.IsFull() {
		if err := ctx.Err(); err != nil {
			return RolloutStats{}, err
		}
		if err := t.step(ro); err != nil {
			return RolloutStats{}, err
		}
	}

	update, err := t.policy.Update(t.buffer, t.cfg.PPO, t.rng)
	if err != nil {
		return RolloutStats{}, fmt.Errorf("ppo update: %w", err)
	}

	for _, m := range ro.matches {
		if err := t.pool.UpdateElo(m.winner, m.loser); err != nil {
			return RolloutStats{}, err
		}
	}
	t.totalSteps += t.buffer.Len()
	t.rollouts++
	t.record.add(ro.stats.Results)
	t.lifetime.add(ro.stats.Results)

	stats := ro.stats
	stats.Rollout = t.rollouts
	stats.TotalSteps = t.totalSteps
	stats.Steps = t.buffer.Len()
	stats.MeanReward = float64(t.buffer.MeanReward())
	if len(ro.episodeRewards) > 0 {
		stats.MeanEpisodeReward = stat.Mean(ro.episodeRewards, nil)
	}
	stats.LiveElo = t.liveElo()
	stats.Update = update

	if t.recorder != nil {
		t.recorder.Record("rollout", stats)
	}
	t.logger.Info().
		Int("rollout", stats.Rollout).
		Int("total_steps", stats.TotalSteps).
		Int("episodes", stats.Episodes).
		Float64("mean_reward", stats.MeanReward).
		Float64("live_elo", stats.LiveElo).
		Float32("policy_loss", update.PolicyLoss).
		Float32("value_loss", update.ValueLoss).
		Msg("rollout complete")
	return stats, nil
}

func (t *Trainer[S, A]) liveElo() float64 {
	if p, ok := t.pool.Player(LiveID); ok {
		return p.Rating
	}
	return t.pool.Config().Elo.InitialRating
}

// ShouldCreateSnapshot reports whether more than SnapshotFrequency steps have
// passed since the last snapshot. It is meant to be checked between rollouts.
func (t *Trainer[S, A]) ShouldCreateSnapshot() bool {
	return t.totalSteps-t.lastSnapshotStep > t.pool.Config().SnapshotFrequency
}

func (t *Trainer[S, A]) CreateSnapshot(avgReward float64, style pool.Style, difficulty float64) (*pool.Snapshot, error) {
	meta := pool.Metadata{
		CheckpointStep: t.totalSteps,
		Timestamp:      time.Now().UTC(),
		Style:          style,
		Difficulty:     difficulty,
		Notes:          fmt.Sprintf("avg_reward=%.4f", avgReward),
	}
	s, err := t.pool.Add(t.policy, meta)
	if err != nil {
		return nil, err
	}
	t.lastSnapshotStep = t.totalSteps
	t.record = Record{}

	ev := snapshotEvent{id: s.ID, step: t.totalSteps, avgReward: avgReward, poolSize: t.pool.Len()}
	if t.recorder != nil {
		t.recorder.Record("snapshot", ev)
	}
	t.logger.Info().EmbedObject(ev).Msg("snapshot created")
	return s, nil
}

// difficulty は現在の Elo をレーティング範囲で正規化したもの
func (t *Trainer[S, A]) difficulty() float64 {
	cfg := t.pool.Config().Elo
	return cmath.Clamp((t.liveElo()-cfg.MinRating)/(cfg.MaxRating-cfg.MinRating), 0, 1)
}

func (t *Trainer[S, A]) checkpoint() error {
	if t.cfg.CheckpointDir == "" {
		return nil
	}
	if err := t.policy.Save(t.cfg.CheckpointDir); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	t.logger.Debug().Str("dir", t.cfg.CheckpointDir).Int("total_steps", t.totalSteps).Msg("checkpoint saved")
	return nil
}

// Train runs rollouts until TotalSteps or until ctx is done, creating
// snapshots when due. The live policy is checkpointed every CheckpointEvery
// rollouts and once more on the way out. A cancelled ctx is returned as its
// error after the final checkpoint.
func (t *Trainer[S, A]) Train(ctx context.Context) error {
	for t.totalSteps < t.cfg.TotalSteps {
		stats, err := t.Rollout(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		if t.ShouldCreateSnapshot() {
			if _, err := t.CreateSnapshot(stats.MeanEpisodeReward, t.cfg.Style, t.difficulty()); err != nil {
				return err
			}
			t.pool.SyncMetadata()
		}
		if t.cfg.CheckpointEvery > 0 && t.rollouts%t.cfg.CheckpointEvery == 0 {
			if err := t.checkpoint(); err != nil {
				t.logger.Warn().Err(err).Msg("checkpoint failed")
			}
		}
	}

	t.pool.SyncMetadata()
	if err := t.checkpoint(); err != nil {
		return err
	}
	t.logger.Info().
		Int("total_steps", t.totalSteps).
		Int("rollouts", t.rollouts).
		Int("wins", t.lifetime.Wins).
		Int("losses", t.lifetime.Losses).
		Int("draws", t.lifetime.Draws).
		Msg("training finished")
	return ctx.Err()
}
