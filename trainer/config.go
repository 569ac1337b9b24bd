package trainer

import (
	"fmt"

	"github.com/sw965/brawler/model/actorcritic"
	"github.com/sw965/brawler/pool"
)

// LiveID is the rating id of the policy being trained.
const LiveID = "current"

type Config struct {
	StepsPerRollout  int     `mapstructure:"steps_per_rollout"`
	TotalSteps       int     `mapstructure:"total_steps"`
	MaxEpisodeFrames int     `mapstructure:"max_episode_frames"`
	TimeoutPenalty   float64 `mapstructure:"timeout_penalty"`

	SwapRoleProb        float64 `mapstructure:"swap_role_prob"`
	MinPlayer2Episodes  int     `mapstructure:"min_player2_episodes"`
	MinScriptedEpisodes int     `mapstructure:"min_scripted_episodes"`
	ScriptedMixProb     float64 `mapstructure:"scripted_mix_prob"`
	// BootstrapProb は方策の行動をスクリプトの行動で置き換える確率
	BootstrapProb      float64 `mapstructure:"bootstrap_prob"`
	ScriptedDifficulty float64 `mapstructure:"scripted_difficulty"`

	Temperature         float32 `mapstructure:"temperature"`
	OpponentTemperature float32 `mapstructure:"opponent_temperature"`

	// Style conditions the live policy's observations and tags its snapshots.
	Style pool.Style `mapstructure:"style"`

	PPO actorcritic.UpdateConfig `mapstructure:"ppo"`

	CheckpointDir string `mapstructure:"checkpoint_dir"`
	// CheckpointEvery <= 0 なら最後にだけ保存する
	CheckpointEvery int `mapstructure:"checkpoint_every"`
}

func DefaultConfig() Config {
	return Config{
		StepsPerRollout:     2048,
		TotalSteps:          1_000_000,
		MaxEpisodeFrames:    600,
		TimeoutPenalty:      0.5,
		SwapRoleProb:        0.5,
		MinPlayer2Episodes:  2,
		MinScriptedEpisodes: 2,
		ScriptedMixProb:     0.2,
		BootstrapProb:       0,
		ScriptedDifficulty:  0.8,
		Temperature:         1,
		OpponentTemperature: 1,
		Style:               pool.StyleBalanced,
		PPO:                 actorcritic.DefaultUpdateConfig(),
		CheckpointEvery:     10,
	}
}

func probability(name string, p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrConfiguration, name, p)
	}
	return nil
}

func (c Config) Validate() error {
	if c.StepsPerRollout <= 0 {
		return fmt.Errorf("%w: steps_per_rollout must be positive", ErrConfiguration)
	}
	if c.TotalSteps < 0 {
		return fmt.Errorf("%w: total_steps must not be negative", ErrConfiguration)
	}
	if c.MaxEpisodeFrames <= 0 {
		return fmt.Errorf("%w: max_episode_frames must be positive", ErrConfiguration)
	}
	if c.MinPlayer2Episodes < 0 || c.MinScriptedEpisodes < 0 {
		return fmt.Errorf("%w: episode minimums must not be negative", ErrConfiguration)
	}
	// 前のロールアウトから持ち越したエピソードがあっても最低数を開始できること
	if minimum := max(c.MinPlayer2Episodes, c.MinScriptedEpisodes); minimum*c.MaxEpisodeFrames > c.StepsPerRollout {
		return fmt.Errorf("%w: %d forced episodes of up to %d frames do not fit in %d steps per rollout",
			ErrConfiguration, minimum, c.MaxEpisodeFrames, c.StepsPerRollout)
	}
	for name, p := range map[string]float64{
		"swap_role_prob":      c.SwapRoleProb,
		"scripted_mix_prob":   c.ScriptedMixProb,
		"bootstrap_prob":      c.BootstrapProb,
		"scripted_difficulty": c.ScriptedDifficulty,
	} {
		if err := probability(name, p); err != nil {
			return err
		}
	}
	if !c.Style.Valid() {
		return fmt.Errorf("%w: unknown style %q", ErrConfiguration, c.Style)
	}
	return c.PPO.Validate()
}
