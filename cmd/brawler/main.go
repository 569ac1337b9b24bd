package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/sw965/brawler/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "brawler",
	Short: "Self-play PPO trainer for a two-player fighting game",
	Long: `brawler trains an actor-critic policy by self-play against scripted
bots and an Elo-rated pool of frozen snapshots of itself.

Configuration is read from --config (YAML, optional) and BRAWLER_*
environment variables, e.g. BRAWLER_TRAINER_TOTAL_STEPS=200000.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.AddCommand(trainCmd, leaderboardCmd, serveCmd)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg.Log), nil
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if c.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
