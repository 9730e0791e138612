package gcp

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer environment variable. Unparsable values are logged and
// replaced by the fallback.
func GetEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Ignoring invalid integer environment variable", "key", key, "value", value, "error", err)
		return fallback
	}
	return n
}

// GetEnvInt64 is GetEnvInt for 64-bit sizes.
func GetEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		slog.Warn("Ignoring invalid integer environment variable", "key", key, "value", value, "error", err)
		return fallback
	}
	return n
}

// GetEnvDuration reads a time.ParseDuration formatted variable ("30s", "1m30s").
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Ignoring invalid duration environment variable", "key", key, "value", value, "error", err)
		return fallback
	}
	return d
}

// GetEnvList splits a comma or plus separated variable, dropping empty items.
func GetEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	items := SplitList(value)
	if len(items) == 0 {
		return fallback
	}
	return items
}

// SplitList splits "eng+fra" or "eng, fra" into its trimmed, non-empty items.
func SplitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '+' || r == ' '
	})
	items := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			items = append(items, f)
		}
	}
	return items
}
