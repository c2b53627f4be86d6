// Package config loads privkit settings from the environment and optional
// .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultMaxPDFSize   int64 = 100 * 1024 * 1024
	DefaultMaxImageSize int64 = 50 * 1024 * 1024
	DefaultJPEGQuality        = 85
)

// Config holds process-wide settings. Command line flags are applied on
// top of a loaded Config.
type Config struct {
	LogLevel      string
	LogFormat     string
	MaxPDFSize    int64
	MaxImageSize  int64
	JPEGQuality   int
	Workers       int
	Deterministic bool
}

// Load reads envFiles (".env" when none are given) and then the PRIVKIT_*
// variables. Missing files are ignored; variables already set in the
// environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		LogLevel:      getEnvOrDefault("PRIVKIT_LOG_LEVEL", "info"),
		LogFormat:     getEnvOrDefault("PRIVKIT_LOG_FORMAT", "text"),
		MaxPDFSize:    getEnvInt64OrDefault("PRIVKIT_MAX_PDF_SIZE", DefaultMaxPDFSize),
		MaxImageSize:  getEnvInt64OrDefault("PRIVKIT_MAX_IMAGE_SIZE", DefaultMaxImageSize),
		JPEGQuality:   int(getEnvInt64OrDefault("PRIVKIT_JPEG_QUALITY", DefaultJPEGQuality)),
		Workers:       int(getEnvInt64OrDefault("PRIVKIT_WORKERS", int64(runtime.NumCPU()))),
		Deterministic: getEnvBoolOrDefault("PRIVKIT_DETERMINISTIC", false),
	}
}

// Validate reports the first setting out of range.
func (c *Config) Validate() error {
	switch {
	case c.MaxPDFSize <= 0:
		return fmt.Errorf("max PDF size must be positive, got %d", c.MaxPDFSize)
	case c.MaxImageSize <= 0:
		return fmt.Errorf("max image size must be positive, got %d", c.MaxImageSize)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("JPEG quality must be within 1..100, got %d", c.JPEGQuality)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
