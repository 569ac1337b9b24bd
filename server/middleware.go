package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const correlationHeader = "X-Correlation-ID"

func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(correlationHeader, id)
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r)
	})
}

func RequestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&logFormatter{logger: logger})
}

type logFormatter struct {
	logger zerolog.Logger
}

func (f *logFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{
		logger: f.logger.With().
			Str("correlation_id", r.Header.Get(correlationHeader)).
			Str("method", r.Method).
			Str("url", r.URL.Path).
			Logger(),
	}
}

type logEntry struct {
	logger zerolog.Logger
}

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	level := zerolog.DebugLevel
	switch {
	case status >= 500:
		level = zerolog.ErrorLevel
	case status >= 400:
		level = zerolog.WarnLevel
	}
	e.logger.WithLevel(level).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("request completed")
}

func (e *logEntry) Panic(v any, stack []byte) {
	e.logger.Error().Interface("panic", v).Bytes("stack", stack).Msg("request panic")
}
