package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/brawler/config"
	"github.com/sw965/brawler/pool"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brawler.yaml")
	yaml := `
seed: 7
log:
  level: debug
pool:
  max_snapshots: 12
  strategy: strong
  elo:
    k: 24
trainer:
  steps_per_rollout: 128
  max_episode_frames: 64
  style: aggressive
  ppo:
    epochs: 2
server:
  read_timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("BRAWLER_POOL_KEEP_BEST", "3")
	t.Setenv("BRAWLER_TRAINER_SWAP_ROLE_PROB", "0.25")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	def := config.Default()

	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, def.Log.Format, cfg.Log.Format)
	assert.Equal(t, 12, cfg.Pool.MaxSnapshots)
	assert.Equal(t, pool.Strong, cfg.Pool.Strategy)
	assert.Equal(t, 24.0, cfg.Pool.Elo.K)
	assert.Equal(t, def.Pool.Elo.InitialRating, cfg.Pool.Elo.InitialRating)
	assert.Equal(t, 3, cfg.Pool.KeepBest)
	assert.Equal(t, 128, cfg.Trainer.StepsPerRollout)
	assert.Equal(t, 64, cfg.Trainer.MaxEpisodeFrames)
	assert.Equal(t, pool.StyleAggressive, cfg.Trainer.Style)
	assert.Equal(t, 2, cfg.Trainer.PPO.Epochs)
	assert.Equal(t, def.Trainer.PPO.ClipRange, cfg.Trainer.PPO.ClipRange)
	assert.Equal(t, 0.25, cfg.Trainer.SwapRoleProb)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  strategy: bogus\n"), 0o644))
	_, err := config.Load(path)
	assert.Error(t, err)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("BRAWLER_LOG_FORMAT", "xml")
	_, err = config.Load("")
	assert.Error(t, err)
}
