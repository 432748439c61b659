package util

import (
	"os"
	"time"
)

// EnvOrDefault returns the environment variable value or fallback when it is
// empty.
func EnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// EnvDuration parses a duration from the environment, falling back when the
// variable is unset or malformed.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
