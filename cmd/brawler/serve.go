package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/sw965/brawler/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the persisted opponent pool over HTTP",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(cfg.Pool.Dir, logger).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signalContext()
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("dir", cfg.Pool.Dir).Msg("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
