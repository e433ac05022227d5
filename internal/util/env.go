// Package util holds small helpers shared across drilldial's packages.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads a boolean from the named environment variable. An unset
// or empty variable yields fallback; true/1/yes/on and false/0/no/off are
// accepted in any case; anything else logs a warning and yields fallback.
func ParseBoolEnv(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("ParseBoolEnv: unrecognized value", "key", key, "value", raw, "fallback", fallback)
	return fallback
}
