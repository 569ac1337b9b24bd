package trainer

import (
	"github.com/rs/zerolog"
	"github.com/sw965/brawler/model/actorcritic"
)

// Engagement summarises how the live policy fought during one rollout.
type Engagement struct {
	DamageDealt    float64
	DamageTaken    float64
	DistanceClosed float64
	FirstHits      int
	FirstHitsTaken int
}

type Record struct {
	Wins   int
	Losses int
	Draws  int
}

func (r Record) Games() int {
	return r.Wins + r.Losses + r.Draws
}

func (r Record) WinRate() float64 {
	if r.Games() == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Games())
}

func (r *Record) add(o Record) {
	r.Wins += o.Wins
	r.Losses += o.Losses
	r.Draws += o.Draws
}

type RolloutStats struct {
	Rollout    int
	TotalSteps int
	Steps      int

	EpisodesStarted  int
	Episodes         int
	Timeouts         int
	ScriptedEpisodes int
	SnapshotEpisodes int
	Player2Episodes  int
	Bootstrapped     int
	RatedGames       int
	Results          Record

	MeanReward        float64
	MeanEpisodeReward float64
	LiveElo           float64

	Engagement Engagement
	Update     actorcritic.UpdateStats
}

func (s RolloutStats) MarshalZerologObject(e *zerolog.Event) {
	e.Int("rollout", s.Rollout).
		Int("total_steps", s.TotalSteps).
		Int("steps", s.Steps).
		Int("episodes_started", s.EpisodesStarted).
		Int("episodes", s.Episodes).
		Int("timeouts", s.Timeouts).
		Int("scripted_episodes", s.ScriptedEpisodes).
		Int("snapshot_episodes", s.SnapshotEpisodes).
		Int("player2_episodes", s.Player2Episodes).
		Int("bootstrapped", s.Bootstrapped).
		Int("rated_games", s.RatedGames).
		Int("wins", s.Results.Wins).
		Int("losses", s.Results.Losses).
		Int("draws", s.Results.Draws).
		Float64("mean_reward", s.MeanReward).
		Float64("mean_episode_reward", s.MeanEpisodeReward).
		Float64("live_elo", s.LiveElo).
		Float64("damage_dealt", s.Engagement.DamageDealt).
		Float64("damage_taken", s.Engagement.DamageTaken).
		Float64("distance_closed", s.Engagement.DistanceClosed).
		Int("first_hits", s.Engagement.FirstHits).
		Int("first_hits_taken", s.Engagement.FirstHitsTaken).
		Float32("policy_loss", s.Update.PolicyLoss).
		Float32("value_loss", s.Update.ValueLoss).
		Float32("entropy", s.Update.Entropy).
		Float32("clip_fraction", s.Update.ClipFraction).
		Float32("approx_kl", s.Update.ApproxKL).
		Float32("grad_norm", s.Update.GradNorm)
}

type snapshotEvent struct {
	id        string
	step      int
	avgReward float64
	poolSize  int
}

func (s snapshotEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", s.id).
		Int("step", s.step).
		Float64("avg_reward", s.avgReward).
		Int("pool_size", s.poolSize)
}
