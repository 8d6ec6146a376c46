// Package observability holds the process-wide structured logger.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(New(os.Stdout, slog.LevelInfo))
}

// New builds a JSON logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps LOG_LEVEL values onto slog levels.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetLogger replaces the global logger.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func Logger() *slog.Logger {
	return logger.Load()
}

// LoggerFromContext adds request_id when the request went through chi's
// RequestID middleware.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	l := logger.Load()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return l.With("request_id", reqID)
	}
	return l
}
