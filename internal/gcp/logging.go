package gcp

import (
	"io"
	"log/slog"
	"strings"
)

// NewJSONLogger returns the structured JSON logger every function installs as the slog
// default. OCR_LOG_LEVEL (debug, info, warn, error) selects the level.
func NewJSONLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(GetEnv("OCR_LOG_LEVEL", "info")))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
