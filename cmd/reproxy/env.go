package main

import (
	"os"
	"strconv"
)

// getEnvOrDefault reads an environment variable, falling back to
// defaultValue when the variable is unset or empty.
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt reads an integer environment variable. Unset, empty, and
// unparsable values all fall back to defaultValue.
func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}
