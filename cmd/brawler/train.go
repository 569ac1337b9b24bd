package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw965/brawler/game/duel"
	crand "github.com/sw965/brawler/math/rand"
	"github.com/sw965/brawler/model/actorcritic"
	"github.com/sw965/brawler/pool"
	"github.com/sw965/brawler/telemetry"
	"github.com/sw965/brawler/trainer"
)

var (
	resumeDir  string
	totalSteps int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run self-play training",
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&resumeDir, "resume", "", "Directory holding a model.json to resume from")
	trainCmd.Flags().IntVar(&totalSteps, "total-steps", 0, "Override trainer.total_steps")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("resume") {
		cfg.Policy.Resume = resumeDir
	}
	if cmd.Flags().Changed("total-steps") {
		cfg.Trainer.TotalSteps = totalSteps
		if err := cfg.Trainer.Validate(); err != nil {
			return err
		}
	}

	env, err := duel.NewEnv(cfg.Duel, crand.NewMt19937(cfg.Seed))
	if err != nil {
		return err
	}
	encoder := duel.NewEncoder(cfg.Duel)
	actions := duel.ActionSpace{}
	rng := crand.NewMt19937(cfg.Seed + 1)

	var policy *actorcritic.Policy
	if cfg.Policy.Resume != "" {
		policy, err = actorcritic.Load(cfg.Policy.Resume, encoder.Size(), actions.Size(), cfg.Policy.LearningRate)
		if err != nil {
			return fmt.Errorf("failed to resume policy: %w", err)
		}
		logger.Info().Str("dir", cfg.Policy.Resume).Msg("resumed policy")
	} else {
		policy, err = actorcritic.New(actorcritic.Config{
			ObsSize:      encoder.Size(),
			ActionSize:   actions.Size(),
			HiddenSize:   cfg.Policy.HiddenSize,
			LearningRate: cfg.Policy.LearningRate,
		}, rng)
		if err != nil {
			return err
		}
	}

	opponents, err := pool.New(cfg.Pool, crand.NewMt19937(cfg.Seed+2), logger)
	if err != nil {
		return err
	}
	defer opponents.Close()
	if n := opponents.Load(encoder.Size(), actions.Size()); n > 0 {
		logger.Info().Int("snapshots", n).Str("dir", cfg.Pool.Dir).Msg("loaded opponent pool")
	}

	deps := trainer.Deps[duel.State, duel.Action]{
		Env:      env,
		Encoder:  encoder,
		Reward:   duel.NewReward(cfg.Duel, cfg.Reward),
		Actions:  actions,
		Scripted: duel.Scripted(cfg.Duel),
		Policy:   policy,
		Pool:     opponents,
		RNG:      rng,
		Logger:   logger,
	}
	if cfg.Telemetry.Path != "" {
		sink, err := telemetry.Open(cfg.Telemetry.Path)
		if err != nil {
			return err
		}
		defer sink.Close()
		deps.Recorder = sink
		logger = logger.With().Str("run_id", sink.RunID()).Logger()
		deps.Logger = logger
	}

	t, err := trainer.New(deps, cfg.Trainer)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger.Info().
		Int("obs_size", encoder.Size()).
		Int("parameters", policy.ParameterCount()).
		Int("total_steps", cfg.Trainer.TotalSteps).
		Msg("starting training")
	err = t.Train(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	record := t.Lifetime()
	summary := opponents.EloSummary()
	logger.Info().
		Bool("interrupted", err != nil).
		Int("games", record.Games()).
		Float64("win_rate", record.WinRate()).
		Int("snapshots", opponents.Len()).
		Int("rated_players", summary.Count).
		Float64("elo_mean", summary.Mean).
		Float64("elo_max", summary.Max).
		Msg("training summary")
	return nil
}
