// Package telemetry appends one JSON line per training event to a file.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Sink struct {
	file   *os.File
	logger zerolog.Logger
	runID  string
}

// Open appends to path, creating it and its directory if needed. Every line
// carries the run_id of this sink.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry file: %w", err)
	}
	runID := uuid.New().String()
	return &Sink{
		file:   f,
		logger: zerolog.New(f).With().Timestamp().Str("run_id", runID).Logger(),
		runID:  runID,
	}, nil
}

func (s *Sink) RunID() string {
	return s.runID
}

func (s *Sink) Record(kind string, obj zerolog.LogObjectMarshaler) {
	s.logger.Log().Str("kind", kind).EmbedObject(obj).Send()
}

func (s *Sink) Close() error {
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
