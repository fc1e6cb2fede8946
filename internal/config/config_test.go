package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CREDIT_DUE_DAYS", "")
	t.Setenv("DATABASE_URL", "ledger.db")

	cfg := Load()

	assert.Equal(t, 30, cfg.CreditDueDays)
	assert.Equal(t, 7, cfg.ReminderDaysBefore)
	assert.Equal(t, 7, cfg.ReminderDaysAfter)
	assert.Equal(t, 60, cfg.BadDebtThresholdDays)
	assert.Equal(t, "off", cfg.NotifyDedup)
	assert.Equal(t, 24*time.Hour, cfg.ReminderEvery)
	assert.False(t, cfg.IsPostgres())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost:5432/ledger?sslmode=disable")
	t.Setenv("REMINDER_DAYS_BEFORE", "3")
	t.Setenv("NOTIFY_DEDUP", "Redis")
	t.Setenv("REMINDER_EVERY", "not-a-duration")

	cfg := Load()

	assert.True(t, cfg.IsPostgres())
	assert.Equal(t, 3, cfg.ReminderDaysBefore)
	assert.Equal(t, "redis", cfg.NotifyDedup)
	assert.Equal(t, 24*time.Hour, cfg.ReminderEvery)
}

func TestLoadFallsBackOnInvalidDays(t *testing.T) {
	t.Setenv("CREDIT_DUE_DAYS", "0")
	t.Setenv("REMINDER_DAYS_BEFORE", "-3")
	t.Setenv("REMINDER_DAYS_AFTER", "0")
	t.Setenv("BAD_DEBT_THRESHOLD_DAYS", "-1")
	t.Setenv("REMINDER_EVERY", "-5m")

	cfg := Load()

	assert.Equal(t, 30, cfg.CreditDueDays, "a credit must fall due after the day it is issued")
	assert.Equal(t, 7, cfg.ReminderDaysBefore)
	assert.Equal(t, 7, cfg.ReminderDaysAfter, "zero would never reach the overdue stage")
	assert.Equal(t, 60, cfg.BadDebtThresholdDays)
	assert.Equal(t, 24*time.Hour, cfg.ReminderEvery)
}

func TestLoadAcceptsZeroOffsets(t *testing.T) {
	t.Setenv("REMINDER_DAYS_BEFORE", "0")
	t.Setenv("BAD_DEBT_THRESHOLD_DAYS", "0")
	t.Setenv("CREDIT_DUE_DAYS", "1")

	cfg := Load()

	assert.Equal(t, 0, cfg.ReminderDaysBefore)
	assert.Equal(t, 0, cfg.BadDebtThresholdDays)
	assert.Equal(t, 1, cfg.CreditDueDays)
}

func TestParseDays(t *testing.T) {
	t.Setenv("SOME_DAYS", " 14 ")
	assert.Equal(t, 14, parseDays("SOME_DAYS", 5, 1))

	t.Setenv("SOME_DAYS", "two weeks")
	assert.Equal(t, 5, parseDays("SOME_DAYS", 5, 1))

	t.Setenv("SOME_DAYS", "0")
	assert.Equal(t, 5, parseDays("SOME_DAYS", 5, 1))
	assert.Equal(t, 0, parseDays("SOME_DAYS", 5, 0))
}
