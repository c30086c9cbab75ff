package config_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/forgeline/payroll-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYROLL_ADDR", "")
	t.Setenv("PAYROLL_DB", "")
	t.Setenv("PAYROLL_WORKERS", "")
	t.Setenv("LOG_LEVEL", "")

	cfg := config.Load()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "./data/payroll.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	t.Setenv("PAYROLL_ADDR", ":3000")
	t.Setenv("PAYROLL_DB", ":memory:")
	t.Setenv("PAYROLL_WORKERS", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := config.Load()
	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_BadWorkerCountsFallBack(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-2"} {
		t.Setenv("PAYROLL_WORKERS", raw)
		assert.Equal(t, 4, config.Load().Workers, "raw %q", raw)
	}
}

func TestSetLogLevel_AppliesToProcessLogger(t *testing.T) {
	log := config.GetLogger()
	prev := log.GetLevel()
	defer config.SetLogLevel(prev.String())

	config.SetLogLevel("debug")
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	config.SetLogLevel("warn")
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	// Unknown names fall back to info rather than erroring out.
	config.SetLogLevel("shouting")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
