// Package config loads the brawler configuration from defaults, an optional
// YAML file and BRAWLER_* environment variables.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/sw965/brawler/game/duel"
	"github.com/sw965/brawler/pool"
	"github.com/sw965/brawler/trainer"
)

const EnvPrefix = "BRAWLER"

type LogConfig struct {
	Level string `mapstructure:"level"`
	// "console" or "json"
	Format string `mapstructure:"format"`
}

type PolicyConfig struct {
	HiddenSize   int     `mapstructure:"hidden_size"`
	LearningRate float32 `mapstructure:"learning_rate"`
	// Resume が空でなければそのディレクトリの model.json から再開する
	Resume string `mapstructure:"resume"`
}

type TelemetryConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Config struct {
	Seed      int64             `mapstructure:"seed"`
	Log       LogConfig         `mapstructure:"log"`
	Policy    PolicyConfig      `mapstructure:"policy"`
	Pool      pool.Config       `mapstructure:"pool"`
	Trainer   trainer.Config    `mapstructure:"trainer"`
	Duel      duel.Config       `mapstructure:"duel"`
	Reward    duel.RewardConfig `mapstructure:"reward"`
	Telemetry TelemetryConfig   `mapstructure:"telemetry"`
	Server    ServerConfig      `mapstructure:"server"`
}

func Default() *Config {
	poolCfg := pool.DefaultConfig()
	poolCfg.Dir = "runs/pool"
	trainerCfg := trainer.DefaultConfig()
	trainerCfg.CheckpointDir = "runs/live"

	return &Config{
		Seed: 1,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Policy: PolicyConfig{
			HiddenSize:   128,
			LearningRate: 3e-4,
		},
		Pool:    poolCfg,
		Trainer: trainerCfg,
		Duel:    duel.DefaultConfig(),
		Reward:  duel.DefaultRewardConfig(),
		Telemetry: TelemetryConfig{
			Path: "runs/telemetry.jsonl",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Policy.HiddenSize <= 0 {
		return fmt.Errorf("policy.hidden_size must be positive")
	}
	if c.Policy.LearningRate <= 0 {
		return fmt.Errorf("policy.learning_rate must be positive")
	}
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if err := c.Trainer.Validate(); err != nil {
		return err
	}
	if err := c.Duel.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// setDefaults registers every leaf of v under its mapstructure key so that
// environment variables can override keys absent from the file.
func setDefaults(vp *viper.Viper, prefix string, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Time{}) {
			setDefaults(vp, key, fv)
			continue
		}
		vp.SetDefault(key, fv.Interface())
	}
}

// Load reads path (optional) over the defaults. Environment variables such as
// BRAWLER_TRAINER_STEPS_PER_ROLLOUT take precedence over the file.
func Load(path string) (*Config, error) {
	vp := viper.New()
	setDefaults(vp, "", reflect.ValueOf(*Default()))
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
