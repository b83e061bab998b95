package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "trackhive", cfg.Database.DBName)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24, cfg.JWT.ExpireHours)
	assert.Equal(t, 24, cfg.Reminders.ScanIntervalHours)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DB_NAME", "tracker_test")
	t.Setenv("REMINDER_SCAN_INTERVAL_HOURS", "6")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "tracker_test", cfg.Database.DBName)
	assert.Equal(t, 6, cfg.Reminders.ScanIntervalHours)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db", Port: "5432", User: "app", Password: "secret",
		DBName: "trackhive", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://app:secret@db:5432/trackhive?sslmode=disable", db.DSN())

	db.URL = "postgres://elsewhere/trackhive"
	assert.Equal(t, "postgres://elsewhere/trackhive", db.DSN())
}
