// Package env provides utilities for working with environment variables.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Get returns the value of the environment variable or the default if not set.
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetInt returns the integer value of the environment variable or the default if not set.
func GetInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

// GetList splits a comma-separated variable, dropping blank entries.
// Returns the default if the variable is unset or has no entries.
func GetList(key string, defaultValue []string) []string {
	items := SplitList(os.Getenv(key))
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// SplitList splits a comma-separated string, trimming spaces and dropping blank entries.
func SplitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load reads KEY=VALUE pairs from a dotenv file into the process environment.
// Variables already set take precedence. A missing file is not an error unless
// required is true.
func Load(path string, required bool) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading env file %s: %w", path, err)
}
