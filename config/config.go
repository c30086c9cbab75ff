/*
Package config loads runtime configuration and owns the process logger.

PURPOSE:
  Central place for environment-driven settings. A .env file is loaded
  when present (local development); real environments set variables
  directly.

VARIABLES:
  PAYROLL_ADDR        HTTP listen address (default ":8080")
  PAYROLL_DB          SQLite database path (default "./data/payroll.db")
  PAYROLL_WORKERS     Worker pool size for detection and import (default 4)
  LOG_LEVEL           logrus level name (default "info")
  LOG_FORMAT          "json" or "text" (default "json")

SEE ALSO:
  - cmd/server/main.go: flags override these values
*/
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config carries everything the server needs to start.
type Config struct {
	Addr     string
	DBPath   string
	Workers  int
	LogLevel string
}

// Load reads a .env file if one exists, then the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:     envOr("PAYROLL_ADDR", ":8080"),
		DBPath:   envOr("PAYROLL_DB", "./data/payroll.db"),
		Workers:  envIntOr("PAYROLL_WORKERS", 4),
		LogLevel: envOr("LOG_LEVEL", "info"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

var logg *logrus.Logger

// GetLogger returns the process-wide logger.
func GetLogger() *logrus.Logger {
	return logg
}

// SetLogLevel applies a logrus level name to the process logger. Unknown
// names fall back to info.
func SetLogLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		level = logrus.InfoLevel
	}
	logg.SetLevel(level)
}

func init() {
	logg = logrus.New()
	logg.SetOutput(os.Stdout)
	if os.Getenv("LOG_FORMAT") == "text" {
		logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logg.SetFormatter(&logrus.JSONFormatter{})
	}
	SetLogLevel(envOr("LOG_LEVEL", "info"))
}
